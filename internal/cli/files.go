package cli

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/rbf"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *App) uploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "up <local> <remote>",
		Aliases: []string{"upload"},
		Short:   "Upload a local file to the brick",
		Long:    "Upload a local file. A remote path ending in / receives the local file name.",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return protocol.IOError("upload", err)
			}
			remote := a.remote(args[1])
			if strings.HasSuffix(remote, "/") {
				remote += filepath.Base(args[0])
			}
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := sess.Upload(cmd.Context(), data, remote); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s to %s (%s)\n", args[0], remote, humanize.IBytes(uint64(len(data))))
			return nil
		},
	}
}

func (a *App) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "dl <remote> [local]",
		Aliases: []string{"download"},
		Short:   "Download a file from the brick",
		Long:    "Download a remote file. The local path defaults to the remote base name.",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := a.remote(args[0])
			local := path.Base(remote)
			if len(args) == 2 {
				local = args[1]
			}
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			data, err := sess.Download(cmd.Context(), remote)
			if err != nil {
				return err
			}
			if err := os.WriteFile(local, data, 0o644); err != nil {
				return protocol.IOError("download", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s to %s (%s)\n", remote, local, humanize.IBytes(uint64(len(data))))
			return nil
		},
	}
}

func (a *App) mkrbfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkrbf <target> <output>",
		Short: "Write a launcher program that starts target on the brick",
		Long: `Write a launcher image to a local file. Uploaded to the brick and run, it
starts the program at target. The target path is stored as given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := rbf.Build(args[0])
			if err != nil {
				return protocol.ArgumentError("mkrbf", err)
			}
			if err := os.WriteFile(args[1], image, 0o644); err != nil {
				return protocol.IOError("mkrbf", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes) launching %s\n", args[1], len(image), args[0])
			return nil
		},
	}
}
