// Package protocol owns the system-command contract shared by every layer.
//
// Ownership boundary:
// - error taxonomy surfaced to callers
// - firmware-defined opcode/status registry
// - frame, codec, chunk and session subpackages build on both
package protocol
