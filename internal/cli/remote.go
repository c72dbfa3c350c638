package cli

import (
	"fmt"
	"path"
	"strings"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/session"
	"github.com/danmuck/brickctl/internal/remotepath"
	"github.com/spf13/cobra"
)

func (a *App) execCommand() *cobra.Command {
	var noReply bool
	cmd := &cobra.Command{
		Use:   "exec <remote>",
		Short: "Start a program on the brick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session.Session) error {
				return s.Exec(cmd.Context(), a.remote(args[0]), !noReply)
			})
		},
	}
	cmd.Flags().BoolVar(&noReply, "no-reply", false, "send without waiting for the brick to answer")
	return cmd
}

func (a *App) killCommand() *cobra.Command {
	var noReply bool
	cmd := &cobra.Command{
		Use:   "kill <remote>",
		Short: "Stop a running program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session.Session) error {
				return s.Kill(cmd.Context(), a.remote(args[0]), !noReply)
			})
		},
	}
	cmd.Flags().BoolVar(&noReply, "no-reply", false, "send without waiting for the brick to answer")
	return cmd
}

func (a *App) copyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <remote> <remote>",
		Short: "Copy a file on the brick",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session.Session) error {
				return s.Copy(cmd.Context(), a.remote(args[0]), a.remote(args[1]))
			})
		},
	}
}

func (a *App) moveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <remote> <remote>",
		Short: "Move or rename a file on the brick",
		Long: `Move a file. A source containing * is expanded against its directory;
every match moves into the destination directory after confirmation.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session.Session) error {
				src, dst := a.remote(args[0]), a.remote(args[1])
				if !remotepath.HasWildcard(src) {
					return s.Move(cmd.Context(), src, dst)
				}
				matches, err := a.expand(cmd, s, src)
				if err != nil {
					return err
				}
				if err := a.confirm(cmd, "move", matches); err != nil {
					return err
				}
				for _, m := range matches {
					if err := s.Move(cmd.Context(), m, path.Join(dst, path.Base(m))); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (a *App) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <remote>...",
		Aliases: []string{"remove"},
		Short:   "Remove files or empty directories",
		Long: `Remove remote paths. Arguments containing * are expanded against their
directory and confirmed before anything is removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session.Session) error {
				var paths []string
				wild := false
				for _, arg := range args {
					p := a.remote(arg)
					if !remotepath.HasWildcard(p) {
						paths = append(paths, p)
						continue
					}
					wild = true
					matches, err := a.expand(cmd, s, p)
					if err != nil {
						return err
					}
					paths = append(paths, matches...)
				}
				if wild {
					if err := a.confirm(cmd, "remove", paths); err != nil {
						return err
					}
				}
				return s.RemovePaths(cmd.Context(), paths)
			})
		},
	}
}

func (a *App) mkdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <remote>",
		Short: "Create a directory on the brick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session.Session) error {
				return s.Mkdir(cmd.Context(), a.remote(args[0]))
			})
		},
	}
}

func (a *App) testCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the brick answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session.Session) error {
				if err := s.Test(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "brick answered on %s\n", a.dev.Name())
				return nil
			})
		},
	}
}

func (a *App) withSession(cmd *cobra.Command, fn func(*session.Session) error) error {
	s, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	return fn(s)
}

// expand lists the directory of a wildcard path and returns the matching
// entries.
func (a *App) expand(cmd *cobra.Command, s *session.Session, p string) ([]string, error) {
	pat, err := remotepath.Compile(p)
	if err != nil {
		return nil, protocol.ArgumentError("expand", err)
	}
	entries, err := s.List(cmd.Context(), pat.Dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	matches, err := pat.Expand(names)
	if err != nil {
		return nil, protocol.ArgumentError("expand", err)
	}
	return matches, nil
}

// confirm asks before a destructive operation on expanded paths.
func (a *App) confirm(cmd *cobra.Command, verb string, paths []string) error {
	if a.flags.yes {
		return nil
	}
	prompt := fmt.Sprintf("This will %s %d path(s):\n  %s\nProceed?", verb, len(paths), strings.Join(paths, "\n  "))
	ok, err := a.opts.Confirm(prompt)
	if err != nil {
		return protocol.ArgumentError(verb, err)
	}
	if !ok {
		return protocol.ArgumentError(verb, fmt.Errorf("aborted"))
	}
	return nil
}
