// Package transport owns the byte channels that carry system-command frames.
//
// Ownership boundary:
// - the Channel capability shared by every physical link
// - USB HID report wrapping (usb.go, report.go)
// - Bluetooth serial stream reassembly (bluetooth.go)
// - probe order selecting exactly one channel at startup (probe.go)
package transport
