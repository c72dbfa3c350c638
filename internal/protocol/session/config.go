package session

import (
	"fmt"
	"time"
)

// Config defines reply polling and chunking limits.
type Config struct {
	// ReadTimeout bounds one poll of the channel.
	ReadTimeout time.Duration
	// Retries is how many polls an exchange waits before timing out. The
	// request is never resent.
	Retries int
	// MaxChunk caps payload bytes per transfer frame; 0 derives the cap
	// from the channel's frame size.
	MaxChunk int
	// MaxTransfer rejects inbound transfers declaring more bytes; 0
	// disables the check.
	MaxTransfer int64
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout: time.Second,
		Retries:     5,
		MaxChunk:    0,
		MaxTransfer: 64 << 20,
	}
}

func (c Config) Validate() error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("session config: read timeout must be positive, got %v", c.ReadTimeout)
	}
	if c.Retries < 1 {
		return fmt.Errorf("session config: retries must be at least 1, got %d", c.Retries)
	}
	if c.MaxChunk < 0 {
		return fmt.Errorf("session config: max chunk must not be negative, got %d", c.MaxChunk)
	}
	if c.MaxTransfer < 0 {
		return fmt.Errorf("session config: max transfer must not be negative, got %d", c.MaxTransfer)
	}
	return nil
}
