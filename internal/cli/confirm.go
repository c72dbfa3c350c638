package cli

import (
	"errors"
	"os"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

var errNotInteractive = errors.New("confirmation needs a terminal; rerun with --yes")

// terminalConfirm prompts on stdin when it is a terminal and refuses
// otherwise, so scripted runs must opt in with --yes.
func (a *App) terminalConfirm(prompt string) (bool, error) {
	f, ok := a.opts.Stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, errNotInteractive
	}
	return pterm.DefaultInteractiveConfirm.
		WithDefaultText(prompt).
		WithDefaultValue(false).
		Show()
}
