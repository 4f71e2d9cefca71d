package message

import "github.com/bufbuild/mintable/minitable"

// Array is the runtime storage for a repeated scalar, string/bytes, or
// message/group field.
//
// The distilled runtime model describes an array as a {len, capacity,
// element-pointer} header realloc'd on the arena as it grows (mirroring
// upb's upb_Array). This package stores elements in an ordinary Go slice
// instead of a manually-grown arena buffer: growth, copying, and capacity
// bookkeeping on append is exactly what the Go runtime's slice-growth
// already does correctly, and — as with [Message.ptrs] — a slice of
// *Message element pointers must live in ordinary GC-visible memory, not a
// raw arena byte range, for pointer elements to stay reachable. Each Array
// holds exactly one of the typed slices below, chosen once by the field's
// [minitable.Type] when the array is first allocated.
type Array struct {
	typ minitable.Type

	bools []bool
	u32s  []uint32 // also holds int32/sint32/fixed32/sfixed32/float/enum bit patterns
	u64s  []uint64 // also holds int64/sint64/fixed64/sfixed64/double bit patterns
	strs  []string // also holds Bytes elements; see [StringAsBytes]
	msgs  []*Message
}

// NewArray allocates an empty array for a field of the given type.
func NewArray(typ minitable.Type) *Array {
	return &Array{typ: typ}
}

// Type returns the element type this array was created for.
func (a *Array) Type() minitable.Type { return a.typ }

// Len returns the number of elements currently stored.
func (a *Array) Len() int {
	switch a.typ {
	case minitable.Bool:
		return len(a.bools)
	case minitable.String, minitable.Bytes:
		return len(a.strs)
	case minitable.Message, minitable.Group:
		return len(a.msgs)
	default:
		if scalarRepSize(a.typ) == 8 {
			return len(a.u64s)
		}
		return len(a.u32s)
	}
}

// AppendBool appends a bool element. Valid only for Bool-typed arrays.
func (a *Array) AppendBool(v bool) { a.bools = append(a.bools, v) }

// BoolAt returns the i'th element of a Bool-typed array.
func (a *Array) BoolAt(i int) bool { return a.bools[i] }

// AppendU32 appends the raw 4-byte bit pattern of a rep4-class element
// (int32, uint32, sint32, fixed32, sfixed32, float, enum).
func (a *Array) AppendU32(v uint32) { a.u32s = append(a.u32s, v) }

// U32At returns the i'th raw rep4 bit pattern.
func (a *Array) U32At(i int) uint32 { return a.u32s[i] }

// AppendU64 appends the raw 8-byte bit pattern of a rep8-class element
// (int64, uint64, sint64, fixed64, sfixed64, double).
func (a *Array) AppendU64(v uint64) { a.u64s = append(a.u64s, v) }

// U64At returns the i'th raw rep8 bit pattern.
func (a *Array) U64At(i int) uint64 { return a.u64s[i] }

// AppendString appends a string or bytes element.
func (a *Array) AppendString(v string) { a.strs = append(a.strs, v) }

// StringAt returns the i'th string/bytes element.
func (a *Array) StringAt(i int) string { return a.strs[i] }

// AppendMessage appends a submessage or group element.
func (a *Array) AppendMessage(v *Message) { a.msgs = append(a.msgs, v) }

// MessageAt returns the i'th submessage/group element.
func (a *Array) MessageAt(i int) *Message { return a.msgs[i] }

// scalarRepSize reports the storage width (in bytes) that [Array] uses for
// t's rep4/rep8 bucket, without exposing minitable's private rep type.
func scalarRepSize(t minitable.Type) int {
	switch t {
	case minitable.Int64, minitable.UInt64, minitable.SInt64, minitable.Fixed64, minitable.SFixed64, minitable.Double:
		return 8
	default:
		return 4
	}
}
