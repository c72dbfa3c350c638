package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/danmuck/brickctl/internal/protocol/session"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func (a *App) format() string {
	return strings.ToLower(a.flags.output)
}

// encode writes v as JSON or YAML.
func (a *App) encode(w io.Writer, v any) error {
	switch a.format() {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", a.flags.output)
	}
}

func (a *App) printEntries(w io.Writer, entries []session.Entry) error {
	if entries == nil {
		entries = []session.Entry{}
	}
	if a.format() != formatTable {
		return a.encode(w, entries)
	}
	return renderTable(w, entries)
}

// renderTable prints entries in device order with sizes and checksums.
// Colors follow the writer: a pipe gets plain text.
func renderTable(w io.Writer, entries []session.Entry) error {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).PaddingRight(2)
	dir := r.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	dim := r.NewStyle().Foreground(lipgloss.Color("245"))
	cell := r.NewStyle().PaddingRight(2)

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, dim.Render("empty directory"))
		return err
	}
	sizeW, nameW := len("SIZE"), len("NAME")
	for _, e := range entries {
		sizeW = max(sizeW, len(sizeString(e.Size)))
		nameW = max(nameW, len(e.Name)+1)
	}
	fmt.Fprintln(w, header.Width(sizeW+2).Render("SIZE")+header.Width(nameW+2).Render("NAME")+header.Render("MD5"))
	for _, e := range entries {
		if e.IsDirectory {
			fmt.Fprintln(w, cell.Width(sizeW+2).Render("-")+dir.Render(e.Name+"/"))
			continue
		}
		fmt.Fprintln(w, cell.Width(sizeW+2).Render(sizeString(e.Size))+
			cell.Width(nameW+2).Render(e.Name)+dim.Render(e.Checksum))
	}
	return nil
}

func sizeString(n uint32) string {
	return humanize.IBytes(uint64(n))
}
