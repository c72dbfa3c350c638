package transport

import "github.com/danmuck/brickctl/internal/protocol/frame"

// wrapReport embeds frame in one output report: id byte, frame, zero padding.
func wrapReport(id uint8, f []byte, size int) []byte {
	report := make([]byte, size+1)
	report[0] = id
	copy(report[1:], f)
	return report
}

// unwrapReport strips an echoed report id and the zero padding after the
// frame. A declared length larger than the report is left for the decoder
// to reject.
func unwrapReport(id uint8, report []byte) []byte {
	if id != 0 && len(report) > 0 && report[0] == id {
		report = report[1:]
	}
	n, ok := frame.DeclaredSize(report)
	if !ok || n > len(report) {
		return report
	}
	return report[:n]
}
