package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/danmuck/brickctl/internal/protocol"
)

// Entry is one line of a directory listing.
type Entry struct {
	Name        string `json:"name" yaml:"name"`
	IsDirectory bool   `json:"is_directory" yaml:"is_directory"`
	Size        uint32 `json:"size" yaml:"size"`
	// Checksum is the hex MD5 the device reports for files; empty for directories.
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// List returns the entries of a remote directory in device order. The
// listing may span several frames.
func (s *Session) List(ctx context.Context, dir string) ([]Entry, error) {
	raw, err := s.fetch(ctx, "list", protocol.OpList, protocol.OpContinueList, dir)
	if err != nil {
		return nil, err
	}
	entries, err := ParseListing(raw)
	if err != nil {
		return nil, s.record("list", protocol.ProtocolError("list", err))
	}
	return entries, nil
}

// ParseListing decodes listing text: "name/" lines are directories,
// "<md5 hex> <size hex> name" lines are files.
func ParseListing(raw []byte) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 1024), len(raw)+1)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\x00")
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "/") {
			out = append(out, Entry{Name: strings.TrimSuffix(line, "/"), IsDirectory: true})
			continue
		}
		e, err := parseFileLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseFileLine(line string) (Entry, error) {
	sum, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Entry{}, malformedLine(line)
	}
	sizeHex, name, ok := strings.Cut(rest, " ")
	if !ok || name == "" {
		return Entry{}, malformedLine(line)
	}
	if _, err := hex.DecodeString(sum); err != nil || len(sum) != 32 {
		return Entry{}, malformedLine(line)
	}
	size, err := strconv.ParseUint(sizeHex, 16, 32)
	if err != nil {
		return Entry{}, malformedLine(line)
	}
	return Entry{Name: name, Size: uint32(size), Checksum: strings.ToLower(sum)}, nil
}

func malformedLine(line string) error {
	return fmt.Errorf("%w: listing line %q", protocol.ErrMalformed, line)
}

// WalkFunc is called for every entry below the walk root; returning an
// error stops the walk.
type WalkFunc func(p string, e Entry, depth int) error

// Walk lists root and every directory below it depth-first in device
// order, skipping the "." and ".." entries.
func (s *Session) Walk(ctx context.Context, root string, fn WalkFunc) error {
	return s.walk(ctx, root, 0, fn)
}

func (s *Session) walk(ctx context.Context, dir string, depth int, fn WalkFunc) error {
	entries, err := s.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		p := path.Join(dir, e.Name)
		if err := fn(p, e, depth); err != nil {
			return err
		}
		if e.IsDirectory {
			if err := s.walk(ctx, p, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
