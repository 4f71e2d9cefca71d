package decode

import "github.com/protocolbuffers/protoscope"

// Dump disassembles raw wire bytes into protoscope text: a human-readable
// rendering of tags, wire types, and values, with no mini-table needed to
// produce it. It is a standalone debugging helper; the decoder's own errors
// and statuses do not include its output. protoscope is the same tool the
// teacher's own test suite uses in the other direction to encode fixtures
// (see parse_test.go, internal/testdata).
func Dump(buffer []byte) string {
	return protoscope.Write(buffer, protoscope.WriterOptions{})
}
