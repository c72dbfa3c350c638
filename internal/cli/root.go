package cli

import (
	"fmt"
	"strings"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/spf13/cobra"
)

// annotationSkipConfig marks commands that must run before a config file
// exists.
const annotationSkipConfig = "brickctl/skip-config"

// Command builds the brickctl command tree bound to a.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "brickctl",
		Short: "Manage files and programs on an EV3-style brick over USB or Bluetooth",
		Long: `brickctl talks to a brick's system-command interface. It probes USB first,
then Bluetooth serial, and runs one file operation per invocation.

Relative remote paths are joined to the CD environment variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(a.flags.output) {
			case formatTable, formatJSON, formatYAML:
			default:
				return protocol.ArgumentError("", fmt.Errorf("unknown output format %q", a.flags.output))
			}
			return a.setup(cmd.Annotations[annotationSkipConfig] == "")
		},
	}
	root.SetIn(a.opts.Stdin)
	root.SetOut(a.opts.Stdout)
	root.SetErr(a.opts.Stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "config file (default is brickctl/config.toml in the user config dir)")
	f.BoolVarP(&a.flags.noDevice, "no-device", "i", false, "do not probe for a device")
	f.BoolVarP(&a.flags.yes, "yes", "y", false, "skip confirmation prompts for destructive operations")
	f.StringVarP(&a.flags.output, "output", "o", formatTable, "output format: table, json, yaml")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, off")
	f.StringVar(&a.flags.logFile, "log-file", "", "also write JSON logs to this rotated file")
	f.StringVar(&a.flags.metricsFile, "metrics-file", "", "write exchange metrics to this file on exit")
	f.DurationVar(&a.flags.timeout, "timeout", 0, "wait per reply poll (default from config)")
	f.IntVar(&a.flags.retries, "retries", 0, "reply polls before timing out (default from config)")
	f.IntVar(&a.flags.maxChunk, "max-chunk", 0, "payload bytes per transfer frame (default derived from the link)")

	root.AddCommand(
		a.uploadCommand(),
		a.downloadCommand(),
		a.execCommand(),
		a.killCommand(),
		a.copyCommand(),
		a.moveCommand(),
		a.removeCommand(),
		a.mkdirCommand(),
		a.listCommand(),
		a.treeCommand(),
		a.pwdCommand(),
		a.testCommand(),
		a.mkrbfCommand(),
		a.configCommand(),
	)
	return root
}
