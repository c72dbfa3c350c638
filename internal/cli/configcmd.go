package cli

import (
	"fmt"

	"github.com/danmuck/brickctl/internal/config"
	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/spf13/cobra"
)

func (a *App) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check or print the brickctl config",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a config file holding every default",
		Annotations: map[string]string{annotationSkipConfig: "true"},
		Args:        cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.configTarget(args)
			if err != nil {
				return err
			}
			if err := config.WriteTemplate(target, force); err != nil {
				return protocol.IOError("config", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", target)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	validateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.configTarget(args)
			if err != nil {
				return err
			}
			if _, err := config.Load(target, true); err != nil {
				return protocol.ArgumentError("config", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s\n", target)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := config.Template(a.cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), body)
			return err
		},
	}

	cmd.AddCommand(initCmd, validateCmd, showCmd)
	return cmd
}

// configTarget picks the explicit argument, then --config, then the
// default path.
func (a *App) configTarget(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if a.flags.configPath != "" {
		return a.flags.configPath, nil
	}
	p, err := config.DefaultPath()
	if err != nil {
		return "", protocol.IOError("config", err)
	}
	return p, nil
}
