// Package wire implements an epsilon-copy input stream: a chunked-input
// reading abstraction that lets the decoder parse varints, tags, and
// fixed-width values without copying the underlying bytes, and alias string
// and bytes fields directly into caller-owned memory when it is safe to do
// so.
//
// This is a Go rendering of upb's upb_EpsCopyInputStream
// (upb/wire/eps_copy_input_stream.h). The C original tracks a raw `ptr`
// into a fixed-size lookahead window (`slop` = 16 bytes) specifically so
// that varint/tag decoding can dereference a few bytes past the logical end
// of a buffer without a bounds check on every byte, patching over chunk
// boundaries with a small on-stack scratch buffer. Go's runtime already
// bounds-checks every slice access at effectively no cost worth avoiding, so
// that mechanism's entire reason to exist does not transfer; this package
// keeps upb's three-way is_done/fallback state machine, its nesting limit
// stack, and its aliasing/copy distinction, but tracks position as a plain
// "bytes remaining until the nearest limit" counter instead of upb's
// end-relative pointer arithmetic. The result is the same external contract
// (Status, PushLimit/PopLimit, ReadString aliasing, TryParseDelimitedFast)
// implemented without ever holding an unsafe.Pointer into moving buffers.
package wire

import (
	"errors"
	"unsafe"

	"github.com/bufbuild/mintable/arena"
)

// Slop is the number of bytes upb's reference algorithm guarantees are
// safely dereferenceable past any is_done checkpoint. This package has no
// operational need for it (see the package doc comment) but keeps the
// constant, at its canonical value, as part of the ported vocabulary; no
// code in this package reads it, [TryParseDelimitedFast] included.
const Slop = 16

// ErrTruncated is set on a Stream when the underlying source runs out of
// chunks before a semantic limit (an explicit PushLimit, or a value the
// decoder expected more bytes for) was reached.
var ErrTruncated = errors.New("wire: input truncated before reaching the expected limit")

// ErrLimitOverflow is set when a PushLimit call would widen the currently
// active limit instead of narrowing it — always a malformed length prefix.
var ErrLimitOverflow = errors.New("wire: length prefix exceeds the enclosing limit")

// ErrMalformedVarint is set when a varint does not terminate within 10
// bytes, or its top bits overflow 64 bits.
var ErrMalformedVarint = errors.New("wire: malformed varint")

// ErrMalformedTag is set when a tag's field number is zero or its wire type
// is not one of the six defined values.
var ErrMalformedTag = errors.New("wire: malformed tag")

// ChunkSource supplies a Stream with successive chunks of input. Next
// returns ok == false once the source is exhausted; it must never be called
// again afterward.
type ChunkSource interface {
	Next() (chunk []byte, ok bool)
}

// sliceSource is a ChunkSource that yields a fixed list of chunks once each.
type sliceSource struct {
	chunks [][]byte
	i      int
}

func (s *sliceSource) Next() ([]byte, bool) {
	if s.i >= len(s.chunks) {
		return nil, false
	}
	c := s.chunks[s.i]
	s.i++
	return c, true
}

// Bytes returns a ChunkSource that yields a single buffer and then is
// exhausted — the common case of decoding a fully-materialized []byte.
func Bytes(b []byte) ChunkSource { return &sliceSource{chunks: [][]byte{b}} }

// Chunks returns a ChunkSource that yields each of bufs in order.
func Chunks(bufs [][]byte) ChunkSource { return &sliceSource{chunks: bufs} }

// Status is the three-way result of checking whether a Stream has more data
// to offer without first trying to fetch it.
type Status int

const (
	// NotDone means more bytes are immediately available in the current
	// chunk.
	NotDone Status = iota
	// NeedFallback means the current chunk is exhausted but the nearest
	// limit has not been reached; the next chunk must be fetched.
	NeedFallback
	// Done means the nearest limit (an explicit PushLimit, or true
	// end-of-input) has been reached.
	Done
)

// Limit is an opaque token returned by [Stream.PushLimit] and required by
// [Stream.PopLimit] to restore the enclosing limit.
type Limit struct {
	savedRemaining int64
	size           int64
}

// Stream reads tags, varints, fixed-width values, and length-delimited byte
// ranges from a [ChunkSource], honoring a stack of nested byte-count limits.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	source ChunkSource
	arena  *arena.Arena

	cur []byte // the current chunk, exactly as returned by source.Next()
	pos int    // read position within cur

	// remaining is the number of bytes left before the nearest limit is
	// reached: either an explicit PushLimit, or (at the outermost level) a
	// logical end-of-input accounted for by consuming chunks until the
	// source is exhausted.
	remaining int64

	exhausted bool
	aliasing  bool

	consumedBeforeCur int64
	err               error
}

// NewStream constructs a Stream over source. If aliasing is true,
// [Stream.ReadString] may return strings that directly reference bytes
// owned by a chunk the source produced, instead of copying them onto a.
func NewStream(source ChunkSource, aliasing bool, a *arena.Arena) *Stream {
	s := &Stream{source: source, arena: a, aliasing: aliasing, remaining: maxRemaining}
	s.fallback()
	return s
}

// maxRemaining is the initial "remaining" budget before any explicit limit
// has been pushed: effectively unbounded, exhausted only by the source
// itself running out of chunks.
const maxRemaining = 1<<62 - 1

func (s *Stream) fallback() bool {
	if s.exhausted {
		return false
	}
	s.consumedBeforeCur += int64(len(s.cur))
	chunk, ok := s.source.Next()
	if !ok {
		s.exhausted = true
		s.cur = nil
		s.pos = 0
		return false
	}
	s.cur = chunk
	s.pos = 0
	return true
}

// ensure fetches chunks until the current one has at least one unread byte,
// or the nearest limit is reached.
func (s *Stream) ensure() bool {
	for s.pos >= len(s.cur) {
		if s.remaining <= 0 {
			return false
		}
		if !s.fallback() {
			return false
		}
	}
	return true
}

// Status reports the current stream position's status without consuming
// anything.
func (s *Stream) Status() Status {
	if s.remaining <= 0 {
		return Done
	}
	if s.pos < len(s.cur) {
		return NotDone
	}
	return NeedFallback
}

// IsDone reports whether the stream has reached its nearest limit, fetching
// further chunks as needed. If it returns true because the source was
// exhausted before a positive remaining budget ran out, [Stream.Err]
// returns [ErrTruncated].
func (s *Stream) IsDone() bool {
	for {
		switch s.Status() {
		case Done:
			return true
		case NotDone:
			return false
		default: // NeedFallback
			if !s.fallback() {
				// Without an explicit limit, remaining plus the bytes
				// consumed always equals maxRemaining; running out of
				// input there is the normal end of the stream.
				if s.remaining > 0 && s.remaining+s.Offset() != maxRemaining {
					s.err = ErrTruncated
				}
				return true
			}
		}
	}
}

// Err returns the first error encountered, if any.
func (s *Stream) Err() error { return s.err }

// Offset returns the absolute number of bytes consumed from the start of
// the stream, for error reporting.
func (s *Stream) Offset() int64 { return s.consumedBeforeCur + int64(s.pos) }

// AliasingEnabled reports whether this stream was constructed with aliasing
// allowed.
func (s *Stream) AliasingEnabled() bool { return s.aliasing }

// ReadByte consumes and returns one byte.
func (s *Stream) ReadByte() (byte, bool) {
	if s.remaining <= 0 || !s.ensure() {
		if s.remaining > 0 {
			s.err = ErrTruncated
		}
		return 0, false
	}
	b := s.cur[s.pos]
	s.pos++
	s.remaining--
	return b, true
}

// ReadVarint reads a base-128 varint of up to 10 bytes.
func (s *Stream) ReadVarint() (uint64, bool) {
	var result uint64
	for shift := uint(0); shift < 70; shift += 7 {
		b, ok := s.ReadByte()
		if !ok {
			return 0, false
		}
		if shift == 63 && b > 1 {
			s.err = ErrMalformedVarint
			return 0, false
		}
		result |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return result, true
		}
	}
	s.err = ErrMalformedVarint
	return 0, false
}

// WireType is the low 3 bits of a tag.
type WireType uint8

const (
	WireVarint     WireType = 0
	WireFixed64    WireType = 1
	WireDelimited  WireType = 2
	WireStartGroup WireType = 3
	WireEndGroup   WireType = 4
	WireFixed32    WireType = 5
)

// ReadTag reads a tag, splitting it into a field number and wire type.
func (s *Stream) ReadTag() (number int32, wt WireType, ok bool) {
	v, ok := s.ReadVarint()
	if !ok {
		return 0, 0, false
	}
	wt = WireType(v & 7)
	num := v >> 3
	if num == 0 || num > 1<<29 || wt > WireFixed32 {
		s.err = ErrMalformedTag
		return 0, 0, false
	}
	return int32(num), wt, true
}

// ReadFixed32 reads 4 little-endian bytes.
func (s *Stream) ReadFixed32() (uint32, bool) {
	var v uint32
	for i := uint(0); i < 4; i++ {
		b, ok := s.ReadByte()
		if !ok {
			return 0, false
		}
		v |= uint32(b) << (8 * i)
	}
	return v, true
}

// ReadFixed64 reads 8 little-endian bytes.
func (s *Stream) ReadFixed64() (uint64, bool) {
	var v uint64
	for i := uint(0); i < 8; i++ {
		b, ok := s.ReadByte()
		if !ok {
			return 0, false
		}
		v |= uint64(b) << (8 * i)
	}
	return v, true
}

// CheckSize reports whether n more bytes are available before the nearest
// limit, without consuming anything. A false result with no further limit
// pushed means the field's length prefix overruns its message.
func (s *Stream) CheckSize(n int) bool {
	return int64(n) <= s.remaining
}

// ReadBytes consumes exactly n bytes and returns an arena-allocated copy,
// transparently crossing chunk boundaries.
func (s *Stream) ReadBytes(n int) ([]byte, bool) {
	if !s.CheckSize(n) {
		s.err = ErrTruncated
		return nil, false
	}
	out := s.arena.Alloc(n)
	got := 0
	for got < n {
		if !s.ensure() {
			s.err = ErrTruncated
			return nil, false
		}
		take := len(s.cur) - s.pos
		if take > n-got {
			take = n - got
		}
		copy(out[got:got+take], s.cur[s.pos:s.pos+take])
		got += take
		s.pos += take
		s.remaining -= int64(take)
	}
	return out, true
}

// ReadString consumes exactly n bytes and returns them as a string. When
// aliasing is enabled on this stream and the n bytes lie entirely within
// the current chunk, the returned string directly views that chunk's
// memory (no allocation, no copy) and aliased reports true; the caller must
// not hold onto it past the lifetime of the chunk's owner. Otherwise the
// bytes are copied onto this stream's arena first.
func (s *Stream) ReadString(n int) (str string, aliased, ok bool) {
	if !s.CheckSize(n) {
		s.err = ErrTruncated
		return "", false, false
	}
	if s.aliasing && s.pos+n <= len(s.cur) {
		view := s.cur[s.pos : s.pos+n]
		s.pos += n
		s.remaining -= int64(n)
		return unsafe.String(unsafe.SliceData(view), len(view)), true, true
	}
	b, ok := s.ReadBytes(n)
	if !ok {
		return "", false, false
	}
	return unsafe.String(unsafe.SliceData(b), len(b)), false, true
}

// Skip consumes and discards n bytes.
func (s *Stream) Skip(n int) bool {
	if !s.CheckSize(n) {
		s.err = ErrTruncated
		return false
	}
	skipped := 0
	for skipped < n {
		if !s.ensure() {
			s.err = ErrTruncated
			return false
		}
		take := len(s.cur) - s.pos
		if take > n-skipped {
			take = n - skipped
		}
		s.pos += take
		s.remaining -= int64(take)
		skipped += take
	}
	return true
}

// PushLimit narrows the stream's remaining budget to n bytes from the
// current position, returning a token to later restore the enclosing
// limit. It fails if n exceeds the bytes remaining in the enclosing limit.
func (s *Stream) PushLimit(n int) (Limit, bool) {
	if int64(n) > s.remaining {
		s.err = ErrLimitOverflow
		return Limit{}, false
	}
	l := Limit{savedRemaining: s.remaining, size: int64(n)}
	s.remaining = int64(n)
	return l, true
}

// PopLimit restores the limit saved by the matching PushLimit call. It must
// only be called once [Stream.IsDone] reports true for the pushed limit
// (i.e. the nested parse consumed exactly the bytes it was given).
func (s *Stream) PopLimit(l Limit) {
	s.remaining = l.savedRemaining - l.size
}

// TryParseDelimitedFast pushes a limit of n bytes, invokes fn, and pops the
// limit again. In upb this additionally avoids a full limit-stack push when
// the submessage fits within the current buffer's lookahead window; every
// PushLimit/PopLimit pair in this package is already an O(1) counter swap
// (see the package doc comment), so this exists only to preserve the named
// operation from the wire-decoder's vocabulary for callers and tests that
// expect it.
func (s *Stream) TryParseDelimitedFast(n int, fn func() error) (bool, error) {
	if !s.CheckSize(n) {
		return false, ErrTruncated
	}
	l, ok := s.PushLimit(n)
	if !ok {
		return false, s.err
	}
	err := fn()
	if err == nil && !s.IsDone() {
		err = errors.New("wire: delimited parse did not consume exactly its length prefix")
	}
	s.PopLimit(l)
	return true, err
}
