// Package remotepath resolves brick paths against the virtual current
// directory and expands wildcard arguments against a directory listing.
package remotepath

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// EnvCD names the environment variable holding the virtual current
// directory joined in front of relative remote paths.
const EnvCD = "CD"

// Wildcard is the only metacharacter the brick tools treat as ambiguous.
const Wildcard = "*"

var (
	ErrWildcardInDir = errors.New("remotepath: wildcard outside the last path element")
	ErrNoMatch       = errors.New("remotepath: no entry matches")
)

// Join resolves p against cwd as cwd + "/" + p. Absolute paths and an
// empty cwd leave p untouched; an empty p resolves to cwd.
func Join(cwd, p string) string {
	switch {
	case p == "":
		return cwd
	case cwd == "", strings.HasPrefix(p, "/"):
		return p
	}
	return strings.TrimRight(cwd, "/") + "/" + p
}

func HasWildcard(p string) bool {
	return strings.Contains(p, Wildcard)
}

// Pattern is a wildcard path split into the directory to list and a
// compiled matcher for entry names inside it.
type Pattern struct {
	Raw string
	Dir string
	g   glob.Glob
}

// Compile prepares p for expansion. Only the last element may carry
// wildcards; the device has no recursive matching.
func Compile(p string) (*Pattern, error) {
	dir, base := path.Split(p)
	if HasWildcard(dir) {
		return nil, fmt.Errorf("%w: %q", ErrWildcardInDir, p)
	}
	g, err := glob.Compile(base)
	if err != nil {
		return nil, fmt.Errorf("remotepath: compile %q: %w", p, err)
	}
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" && strings.HasPrefix(p, "/") {
		dir = "/"
	}
	if dir == "" {
		dir = "."
	}
	return &Pattern{Raw: p, Dir: dir, g: g}, nil
}

func (p *Pattern) Match(name string) bool {
	return p.g.Match(name)
}

// Expand returns the paths of names matched by the pattern, in the order
// given. Dot entries never match.
func (p *Pattern) Expand(names []string) ([]string, error) {
	var out []string
	for _, n := range names {
		if n == "." || n == ".." || !p.Match(n) {
			continue
		}
		out = append(out, path.Join(p.Dir, n))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoMatch, p.Raw)
	}
	return out, nil
}
