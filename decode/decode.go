// Package decode implements the wire-format decoder: a single generic,
// table-driven dispatch loop that reads a [wire.Stream] against a
// [minitable.MiniTable] and stores the result into a [message.Message].
//
// This is the Go rendering of upb's reference decoder (upb/decode.c) rather
// than the teacher's profile-guided, JIT-compiled threaded-code decoder
// (internal/tdp/compiler + internal/tdp/vm): the decoder here is one
// recursive function operating directly against mini-table data, with no
// code generation step of its own. See the package doc comment on the
// message and minitable packages for the layout this decoder writes into.
package decode

import (
	"errors"
	"fmt"

	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
	"github.com/bufbuild/mintable/wire"
)

// Status is the outcome of a [Decode] call.
type Status int

const (
	// Ok means the buffer was fully and successfully parsed.
	Ok Status = iota
	// Malformed means the wire bytes themselves are invalid: a truncated
	// varint, a bad wire type, a zero field number, or a mismatched group.
	// Invalid UTF-8 is reported as BadUTF8 instead. The partial message must not be inspected for semantic content.
	Malformed
	// OutOfMemory means the arena's block allocator was exhausted.
	OutOfMemory
	// MaxDepthExceeded means the configured recursion budget ran out.
	MaxDepthExceeded
	// MissingRequired means Options.CheckRequired was set and at least one
	// required field was never seen; the rest of the message is otherwise
	// fully populated.
	MissingRequired
	// BadUTF8 means a string field requiring UTF-8 validation held
	// ill-formed bytes.
	BadUTF8
	// Unlinked means a message-typed field's sub-mini-table was not
	// available (commonly: an extension registered without one); the field
	// was stored as an empty-tagged placeholder instead of a decoded
	// submessage. Decoding otherwise continued to completion.
	Unlinked
)

// String implements [fmt.Stringer].
func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case Malformed:
		return "malformed"
	case OutOfMemory:
		return "out of memory"
	case MaxDepthExceeded:
		return "max depth exceeded"
	case MissingRequired:
		return "missing required field"
	case BadUTF8:
		return "invalid utf-8"
	case Unlinked:
		return "unlinked submessage"
	default:
		return fmt.Sprintf("decode.Status(%d)", int(s))
	}
}

// Options configures a [Decode] call. Every option is off in the zero value,
// and a zero recursion depth falls back to [DefaultMaxDepth].
type Options struct {
	// AliasStrings permits string/bytes fields to alias the input buffer
	// instead of copying it onto the arena. Safe only when buffer outlives
	// every message decoded from it (and the arena it was decoded onto).
	AliasStrings bool
	// CheckRequired reports MissingRequired when a required field was never
	// seen, instead of silently accepting the message.
	CheckRequired bool
	// DiscardUnknown drops unrecognized fields instead of recording them in
	// the message's unknown-field chunk list.
	DiscardUnknown bool
	// AlwaysValidateUTF8 validates every string field's contents as UTF-8,
	// not just fields whose mini-table entry requests it.
	AlwaysValidateUTF8 bool
	// MaxDepth caps submessage/group recursion. Zero means
	// [DefaultMaxDepth].
	MaxDepth int
}

// DefaultMaxDepth is the recursion budget Options.MaxDepth falls back to
// when left zero.
const DefaultMaxDepth = 64

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Sentinel errors wrapped by [*Error]; callers match against these with
// [errors.Is] rather than comparing [Error.Unwrap] directly.
var (
	ErrMalformedVarint    = wire.ErrMalformedVarint
	ErrMalformedTag       = wire.ErrMalformedTag
	ErrTruncated          = wire.ErrTruncated
	ErrWireTypeMismatch   = errors.New("decode: wire type does not match field")
	ErrGroupMismatch      = errors.New("decode: mismatched end-group field number")
	ErrMaxDepthExceeded   = errors.New("decode: recursion depth exceeded")
	ErrBadUTF8            = errors.New("decode: invalid utf-8 in string field")
	ErrMessageTooLarge    = errors.New("decode: length prefix exceeds mini-table size limit")
	ErrOutOfMemory        = errors.New("decode: arena allocator exhausted")
)

// Error is returned (wrapped in an ordinary Go error, never panicked) by
// internal decode helpers; [Decode] reduces it to a [Status] at the
// top-level call boundary. It matches the teacher's own errParse shape
// (error.go): a sentinel plus a byte offset, joined by Unwrap.
type Error struct {
	err    error
	offset int64
}

// Offset returns the byte offset within the top-level buffer at which the
// error was detected.
func (e *Error) Offset() int64 { return e.offset }

// Unwrap implements error unwrapping via [errors.Unwrap].
func (e *Error) Unwrap() error { return e.err }

// Error implements [error].
func (e *Error) Error() string {
	return fmt.Sprintf("mintable: decode error at offset %d: %v", e.offset, e.err)
}

func wrapErr(s *wire.Stream, err error) *Error {
	return &Error{err: err, offset: s.Offset()}
}

// statusFor reduces a decode-internal error into the [Status] [Decode]
// reports, the inverse of the sentinels above.
func statusFor(err error) Status {
	switch {
	case err == nil:
		return Ok
	case errors.Is(err, ErrOutOfMemory):
		return OutOfMemory
	case errors.Is(err, ErrMaxDepthExceeded):
		return MaxDepthExceeded
	case errors.Is(err, ErrBadUTF8):
		return BadUTF8
	default:
		return Malformed
	}
}

// Decode parses buffer against mt, storing the result into msg and
// allocating all variable-length data (strings copied per AliasStrings,
// submessages, arrays, maps, unknown-field bytes) on a.
//
// reg resolves extension field numbers on extendable messages; it may be
// nil, in which case every extension field is recorded as an unknown-field
// chunk instead.
//
// On any non-Ok status other than MissingRequired or Unlinked, msg's
// contents must not be inspected: per the wire-format's error-handling
// contract, a partially-decoded message carries no semantic guarantee and
// the caller is expected to drop the arena.
func Decode(buffer []byte, msg *message.Message, mt *minitable.MiniTable, reg *minitable.ExtensionRegistry, opts Options, a *arena.Arena) Status {
	s := wire.NewStream(wire.Bytes(buffer), opts.AliasStrings, a)
	d := &decoder{stream: s, buf: buffer, reg: reg, opts: opts, arena: a, maxDepth: opts.maxDepth()}

	missingRequired := false
	unlinked := false

	err := d.decodeMessage(msg, mt, noGroup, d.maxDepth, &missingRequired, &unlinked)
	if err != nil {
		return statusFor(err)
	}
	if s.Err() != nil {
		return statusFor(wrapErr(s, s.Err()))
	}
	if missingRequired {
		return MissingRequired
	}
	if unlinked {
		return Unlinked
	}
	return Ok
}

// decoder carries the state threaded through one top-level Decode call:
// the input stream, the extension registry, the configured options, the
// arena every allocation lands on, and the remaining recursion budget.
type decoder struct {
	stream *wire.Stream
	// buf is the exact buffer Decode was called with. Only valid because
	// Decode always wraps a single, fully-materialized []byte (wire.Bytes);
	// it lets unknown-field handling slice out the original [tag, value]
	// bytes verbatim by offset instead of re-serializing a parsed value.
	buf      []byte
	reg      *minitable.ExtensionRegistry
	opts     Options
	arena    *arena.Arena
	maxDepth int
}
