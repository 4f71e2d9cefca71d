package mintable

import (
	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/decode"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
)

// Re-exported so callers of this facade never need to import decode
// directly for the common case.
type (
	// Status is the outcome of a Decode call. See [decode.Status].
	Status = decode.Status
	// Options configures a Decode call. See [decode.Options].
	Options = decode.Options
	// Error is the error type, carrying a byte offset, that the decoder
	// builds internally for a failure. Decode itself returns only a
	// [Status]. See [decode.Error].
	Error = decode.Error
)

const (
	Ok               = decode.Ok
	Malformed        = decode.Malformed
	OutOfMemory      = decode.OutOfMemory
	MaxDepthExceeded = decode.MaxDepthExceeded
	MissingRequired  = decode.MissingRequired
	BadUTF8          = decode.BadUTF8
	Unlinked         = decode.Unlinked
)

// New allocates a zero-valued message for mt out of a, ready to be the
// destination of a Decode call.
func New(mt *minitable.MiniTable, a *arena.Arena) *message.Message {
	return message.New(mt, a)
}

// Decode parses buffer against mt, storing the result into msg. reg
// resolves extension and legacy MessageSet fields; it may be nil if mt
// defines none. See [decode.Decode] for the full contract.
func Decode(buffer []byte, msg *message.Message, mt *minitable.MiniTable, reg *minitable.ExtensionRegistry, opts Options, a *arena.Arena) Status {
	return decode.Decode(buffer, msg, mt, reg, opts, a)
}

// Dump renders buffer as protoscope text, independent of any mini-table.
// See [decode.Dump].
func Dump(buffer []byte) string {
	return decode.Dump(buffer)
}
