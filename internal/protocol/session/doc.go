// Package session sequences file-store and program operations as strictly
// half-duplex request/reply exchanges with one brick.
//
// Ownership boundary:
// - per-exchange state machine and bounded reply polling
// - upload/download/list chunk loops and file handle release
// - single-frame status operations (exec, kill, remove, mkdir, copy, move, test)
package session
