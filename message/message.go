// Package message implements the in-memory message runtime: hasbit and
// oneof presence tracking, scalar field storage, repeated/map containers,
// unknown-field accumulation, and extension storage, all built on top of a
// [minitable.MiniTable]'s field layout.
//
// A [Message] is grounded on the teacher's message.go/field.go, but drops
// the raw-pointer, bitset-follows-the-struct layout trick those files use
// (a *message there is itself a pointer into arena memory, with its own
// hasbit words and field storage physically following the Go struct in the
// same allocation) in favor of an ordinary Go struct whose storage region
// is a plain arena-backed []byte. Go's garbage collector already traces
// ordinary struct fields correctly; the teacher's trick exists to let one
// arena allocation serve as both the Go value and its trailing field data,
// which buys layout compactness this rendering does not need to chase.
package message

import (
	"encoding/binary"
	"unsafe"

	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/minitable"
)

// Message is a mutable, single-writer instance of some [minitable.MiniTable].
//
// All of a Message's variable-length data (string/bytes contents, unknown
// field bytes, nested messages and their own storage) lives on the same
// [arena.Arena] that owns the Message's storage region, so freeing that
// arena invalidates the Message and everything reachable from it.
type Message struct {
	mt    *minitable.MiniTable
	arena *arena.Arena

	// storage is exactly mt.Size bytes: hasbit bytes, then oneof case
	// words, then per-field storage, at the offsets minitable.Build
	// assigned. See minitable.MiniTable.Size's doc comment.
	//
	// Pointer-valued fields (submessages, [Array], [Map]) are NOT kept
	// here even though minitable reserves byte-range offsets for them:
	// Go's garbage collector does not scan []byte for live pointers, so a
	// *Message or *Array value stored inside this slice would be
	// invisible to the collector and could be freed out from under a live
	// reference. Those offsets are instead redirected into ptrs, an
	// ordinary pointer-typed slice the GC does scan; see [Message.ptrSlot].
	storage []byte
	ptrs    []unsafe.Pointer

	// extras is allocated lazily, on first unknown byte or extension set,
	// mirroring the teacher's "cold" region (message.go's cold/coldIdx):
	// most messages never see either, so it costs nothing until used.
	extras *extras
}

type extras struct {
	unknown    []UnknownChunk
	extensions map[int32]any
}

// New allocates a zero-initialized message of the given mini-table on a.
func New(mt *minitable.MiniTable, a *arena.Arena) *Message {
	return &Message{
		mt:      mt,
		arena:   a,
		storage: a.Alloc(int(mt.Size)),
		ptrs:    make([]unsafe.Pointer, mt.Size/8+1),
	}
}

// ptrSlot returns the index into m.ptrs that a pointer-valued field at byte
// offset off uses. Every pointer-valued field is 8-byte aligned and 8 bytes
// wide (see minitable's repPointer rep), so distinct fields never collide.
func ptrSlot(off uint16) int { return int(off / 8) }

// MiniTable returns the mini-table describing this message's layout.
func (m *Message) MiniTable() *minitable.MiniTable { return m.mt }

// Arena returns the arena this message (and all data reachable from it) was
// allocated on.
func (m *Message) Arena() *arena.Arena { return m.arena }

// HasBit reports whether f's hasbit is set. f.Mode.Presence must be
// [minitable.Explicit] or [minitable.Required].
func (m *Message) HasBit(f *minitable.Field) bool {
	byteIdx := f.Presence / 8
	mask := byte(1) << (f.Presence % 8)
	return m.storage[byteIdx]&mask != 0
}

// SetBit sets f's hasbit.
func (m *Message) SetBit(f *minitable.Field) {
	byteIdx := f.Presence / 8
	mask := byte(1) << (f.Presence % 8)
	m.storage[byteIdx] |= mask
}

// ClearBit clears f's hasbit.
func (m *Message) ClearBit(f *minitable.Field) {
	byteIdx := f.Presence / 8
	mask := byte(1) << (f.Presence % 8)
	m.storage[byteIdx] &^= mask
}

// OneofCase returns the field number currently set within f's oneof group,
// or 0 if none is set. f.Mode.Presence must be [minitable.Oneof].
func (m *Message) OneofCase(f *minitable.Field) int32 {
	return int32(binary.LittleEndian.Uint32(m.storage[f.Presence:]))
}

// SetOneofCase records that number is now the set member of f's oneof
// group. The caller is responsible for writing that field's storage
// separately; this only updates the case word.
func (m *Message) SetOneofCase(f *minitable.Field, number int32) {
	binary.LittleEndian.PutUint32(m.storage[f.Presence:], uint32(number))
}

// scalar returns a typed pointer into f's storage slot. T's size must match
// the wire type's storage representation (4 bytes for every rep4 type, 8
// for every rep8 type, 1 for bool); minitable's build algorithm guarantees
// this by construction.
func scalar[T any](m *Message, f *minitable.Field) *T {
	return (*T)(unsafe.Pointer(&m.storage[f.Offset]))
}

// GetScalar reads f's storage as a T.
func GetScalar[T any](m *Message, f *minitable.Field) T {
	return *scalar[T](m, f)
}

// SetScalar writes v into f's storage and marks presence if f has explicit
// or required presence. Oneof case words are not touched here: callers
// driving a oneof field must call [Message.SetOneofCase] themselves, since
// setting a new oneof member should first observe (and, if the field was a
// pointer type, let go of) whichever member was previously set.
func SetScalar[T any](m *Message, f *minitable.Field, v T) {
	*scalar[T](m, f) = v
	if f.Mode.Presence == minitable.Explicit || f.Mode.Presence == minitable.Required {
		m.SetBit(f)
	}
}

// GetString reads f's storage as a string. Valid for [minitable.String] and
// [minitable.Bytes] fields, which share the same 16-byte string-header
// storage representation; [minitable.Bytes] accessors reinterpret the
// result with [StringAsBytes].
func GetString(m *Message, f *minitable.Field) string {
	return GetScalar[string](m, f)
}

// SetString writes a string into f's storage. The string's backing array is
// not copied; callers that want arena-owned storage rather than an alias
// into caller/input memory must copy first (see [arena.Arena.Alloc] plus
// [unsafe.String]).
func SetString(m *Message, f *minitable.Field, s string) {
	SetScalar(m, f, s)
}

// StringAsBytes reinterprets a string returned by [GetString] as a []byte,
// for [minitable.Bytes]-typed fields (which this package stores identically
// to strings; see [minitable.Type.scalarRep]). The result aliases s's
// backing array and must be treated as read-only: mutating it is undefined
// behavior if s in turn aliases arena or input memory.
func StringAsBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Pointer returns f's storage slot interpreted as a pointer, for
// [minitable.Message] and [minitable.Group] (singular) fields and for
// [minitable.Repeated] and [minitable.Map] fields, all of which store one
// machine word.
func Pointer(m *Message, f *minitable.Field) unsafe.Pointer {
	return m.ptrs[ptrSlot(f.Offset)]
}

// SetPointer writes p into f's storage slot.
func SetPointer(m *Message, f *minitable.Field, p unsafe.Pointer) {
	m.ptrs[ptrSlot(f.Offset)] = p
	if f.Mode.Presence == minitable.Explicit || f.Mode.Presence == minitable.Required {
		m.SetBit(f)
	}
}

// GetSubMessage returns the submessage stored at f, or nil if f is unset or
// still holds an unpromoted [TaggedMessagePtr] placeholder (see
// [GetSubMessageTagged] to observe that case).
func GetSubMessage(m *Message, f *minitable.Field) *Message {
	return GetSubMessageTagged(m, f).LinkedMessage()
}

// SetSubMessage stores sub at f as a linked, fully-typed submessage.
func SetSubMessage(m *Message, f *minitable.Field, sub *Message) {
	SetSubMessageTagged(m, f, Linked(sub))
}

// GetSubMessageTagged returns the full [TaggedMessagePtr] stored at a
// Message- or Group-typed field, distinguishing a linked submessage from an
// unpromoted empty placeholder (see [TaggedMessagePtr.IsEmpty]). Every
// Message/Group field's pointer slot holds a `*TaggedMessagePtr` box rather
// than a bare `*Message`, so that a field whose sub-mini-table was
// unavailable at decode time can still occupy the slot.
func GetSubMessageTagged(m *Message, f *minitable.Field) TaggedMessagePtr {
	tp := (*TaggedMessagePtr)(Pointer(m, f))
	if tp == nil {
		return TaggedMessagePtr{}
	}
	return *tp
}

// SetSubMessageTagged stores tp at f, boxing it in the field's pointer slot.
func SetSubMessageTagged(m *Message, f *minitable.Field, tp TaggedMessagePtr) {
	box := tp
	SetPointer(m, f, unsafe.Pointer(&box))
}

// GetArray returns the array stored at f, or nil if the field has never had
// an element appended to it.
func GetArray(m *Message, f *minitable.Field) *Array {
	return (*Array)(Pointer(m, f))
}

// EnsureArray returns the array stored at f, lazily allocating one of the
// given element type on first use.
func EnsureArray(m *Message, f *minitable.Field, elemType minitable.Type) *Array {
	if a := GetArray(m, f); a != nil {
		return a
	}
	a := NewArray(elemType)
	SetPointer(m, f, unsafe.Pointer(a))
	return a
}

// GetMap returns the map stored at f, or nil if the field has never had an
// entry set on it.
func GetMap(m *Message, f *minitable.Field) *Map {
	return (*Map)(Pointer(m, f))
}

// EnsureMap returns the map stored at f, lazily allocating one of the given
// key/value types on first use.
func EnsureMap(m *Message, f *minitable.Field, keyType, valType minitable.Type) *Map {
	if mp := GetMap(m, f); mp != nil {
		return mp
	}
	mp := NewMap(keyType, valType)
	SetPointer(m, f, unsafe.Pointer(mp))
	return mp
}

func (m *Message) mutableExtras() *extras {
	if m.extras == nil {
		m.extras = &extras{}
	}
	return m.extras
}
