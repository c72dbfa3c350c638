package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/brickctl/internal/protocol"
)

// Exec starts the program at remote. With reply false the request is sent
// fire-and-forget.
func (s *Session) Exec(ctx context.Context, remote string, reply bool) error {
	return s.pathOp(ctx, "exec", protocol.OpExec, remote, reply)
}

// Kill stops the program at remote.
func (s *Session) Kill(ctx context.Context, remote string, reply bool) error {
	return s.pathOp(ctx, "kill", protocol.OpKill, remote, reply)
}

func (s *Session) Mkdir(ctx context.Context, remote string) error {
	return s.pathOp(ctx, "mkdir", protocol.OpMkdir, remote, true)
}

// Remove deletes one remote file or empty directory. Wildcards are
// rejected: expand and confirm them first, then call RemovePaths.
func (s *Session) Remove(ctx context.Context, remote string) error {
	if err := unambiguous("remove", remote); err != nil {
		return err
	}
	return s.pathOp(ctx, "remove", protocol.OpRemove, remote, true)
}

// RemovePaths removes each already expanded path in order and stops at
// the first failure.
func (s *Session) RemovePaths(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := unambiguous("remove", p); err != nil {
			return err
		}
	}
	for i, p := range paths {
		if err := s.Remove(ctx, p); err != nil {
			s.log.Warn().Str("path", p).Int("index", i).Int("total", len(paths)).Msg("remove stopped")
			return err
		}
	}
	return nil
}

func (s *Session) Copy(ctx context.Context, src, dst string) error {
	return s.pairOp(ctx, "copy", protocol.OpCopy, src, dst)
}

func (s *Session) Move(ctx context.Context, src, dst string) error {
	if err := unambiguous("move", src); err != nil {
		return err
	}
	return s.pairOp(ctx, "move", protocol.OpMove, src, dst)
}

// Test performs an empty handshake verifying the link carries correlated
// replies.
func (s *Session) Test(ctx context.Context) error {
	_, err := s.exchange(ctx, "test", protocol.OpTest, nil, true)
	return err
}

func (s *Session) pathOp(ctx context.Context, name string, op protocol.Op, remote string, reply bool) error {
	p, err := pathPayload(name, remote)
	if err != nil {
		return err
	}
	_, err = s.exchange(ctx, name, op, p, reply)
	return err
}

func (s *Session) pairOp(ctx context.Context, name string, op protocol.Op, src, dst string) error {
	a, err := pathPayload(name, src)
	if err != nil {
		return err
	}
	b, err := pathPayload(name, dst)
	if err != nil {
		return err
	}
	_, err = s.exchange(ctx, name, op, append(a, b...), true)
	return err
}

func unambiguous(name, p string) error {
	if strings.ContainsRune(p, '*') {
		return protocol.ArgumentError(name, fmt.Errorf("%w: %q", protocol.ErrAmbiguousPath, p))
	}
	return nil
}
