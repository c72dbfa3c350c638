package cli

import (
	"fmt"
	"io"
	"path"

	"github.com/danmuck/brickctl/internal/protocol/session"
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/spf13/cobra"
)

// node is one entry of a recursive listing.
type node struct {
	Path  string        `json:"path" yaml:"path"`
	Depth int           `json:"depth" yaml:"depth"`
	Entry session.Entry `json:"entry" yaml:"entry"`
}

func (a *App) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [remote]",
		Short: "List a remote directory",
		Long:  "List a remote directory, by default the virtual current directory or \".\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.remoteDir(args)
			return a.withSession(cmd, func(s *session.Session) error {
				entries, err := s.List(cmd.Context(), dir)
				if err != nil {
					return err
				}
				return a.printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func (a *App) treeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [remote]",
		Short: "List a remote directory recursively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.remoteDir(args)
			return a.withSession(cmd, func(s *session.Session) error {
				var nodes []node
				err := s.Walk(cmd.Context(), root, func(p string, e session.Entry, depth int) error {
					nodes = append(nodes, node{Path: p, Depth: depth, Entry: e})
					return nil
				})
				if err != nil {
					return err
				}
				if a.format() != formatTable {
					return a.encode(cmd.OutOrStdout(), nodes)
				}
				return renderTree(cmd.OutOrStdout(), root, nodes)
			})
		},
	}
}

func (a *App) pwdCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pwd [remote]",
		Short: "Print a remote path resolved against CD",
		Long:  "Print the path brickctl would send for remote. Set CD to change the virtual current directory.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.remoteDir(args))
			return nil
		},
	}
}

// remoteDir resolves an optional directory argument, defaulting to ".".
func (a *App) remoteDir(args []string) string {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	if dir := a.remote(arg); dir != "" {
		return dir
	}
	return "."
}

func renderTree(w io.Writer, root string, nodes []node) error {
	items := make(pterm.LeveledList, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, pterm.LeveledListItem{Level: n.Depth, Text: treeLabel(n)})
	}
	fmt.Fprintln(w, root)
	if len(items) == 0 {
		return nil
	}
	out, err := pterm.DefaultTree.WithRoot(putils.TreeFromLeveledList(items)).Srender()
	if err != nil {
		return fmt.Errorf("render tree: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func treeLabel(n node) string {
	name := path.Base(n.Path)
	if n.Entry.IsDirectory {
		return name + "/"
	}
	return fmt.Sprintf("%s (%s)", name, sizeString(n.Entry.Size))
}
