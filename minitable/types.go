// Package minitable implements the compact, table-driven runtime type
// description ("mini-table") that the wire decoder dispatches against, and
// the algorithm that builds one from a dense textual "mini-descriptor"
// encoding.
//
// A MiniTable never refers back to a .proto descriptor: translating a
// descriptor into a mini-descriptor string is the job of an out-of-scope
// definition-builder collaborator. This package only knows how to go from a
// mini-descriptor string to a MiniTable and back (via [Encoder]); it has no
// dependency on google.golang.org/protobuf/reflect/protoreflect.
package minitable

import "fmt"

// Type is one of the 18 Protobuf wire-level field types. The numbering
// matches the historical FieldDescriptorProto.Type enum so that mini-tables
// built from a descriptor and mini-tables built from hand-written
// mini-descriptors agree on the encoding.
type Type uint8

// The 18 descriptor types.
const (
	Double Type = iota + 1
	Float
	Int64
	UInt64
	Int32
	Fixed64
	Fixed32
	Bool
	String
	Group
	Message
	Bytes
	UInt32
	Enum
	SFixed32
	SFixed64
	SInt32
	SInt64
)

// IsPackable reports whether a repeated field of this type may use the
// packed wire encoding. Strings, bytes, messages, and groups are never
// packable, since they are already length- or tag-delimited.
func (t Type) IsPackable() bool {
	switch t {
	case String, Bytes, Group, Message:
		return false
	default:
		return true
	}
}

// String implements [fmt.Stringer].
func (t Type) String() string {
	switch t {
	case Double:
		return "double"
	case Float:
		return "float"
	case Int64:
		return "int64"
	case UInt64:
		return "uint64"
	case Int32:
		return "int32"
	case Fixed64:
		return "fixed64"
	case Fixed32:
		return "fixed32"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Group:
		return "group"
	case Message:
		return "message"
	case Bytes:
		return "bytes"
	case UInt32:
		return "uint32"
	case Enum:
		return "enum"
	case SFixed32:
		return "sfixed32"
	case SFixed64:
		return "sfixed64"
	case SInt32:
		return "sint32"
	case SInt64:
		return "sint64"
	default:
		return fmt.Sprintf("minitable.Type(%d)", uint8(t))
	}
}

// rep is the in-memory representation class a field's storage uses. The
// offset-assignment rounds of the build algorithm place fields in rep order
// so that same-sized, same-aligned storage is grouped together.
type rep uint8

const (
	rep1 rep = iota // bool
	rep4            // int32, uint32, sint32, fixed32, sfixed32, float, enum
	rep8            // int64, uint64, sint64, fixed64, sfixed64, double
	repString       // a Go string header: aliases either the input buffer or an arena copy
	repPointer      // repeated (array), map, and singular message/group fields
	numReps
)

func (t Type) scalarRep() rep {
	switch t {
	case Bool:
		return rep1
	case Int32, UInt32, SInt32, Fixed32, SFixed32, Float, Enum:
		return rep4
	case Int64, UInt64, SInt64, Fixed64, SFixed64, Double:
		return rep8
	case String, Bytes:
		return repString
	case Message, Group:
		return repPointer
	default:
		panic(fmt.Sprintf("minitable: unreachable type %v", t))
	}
}

func (r rep) size() uint16 {
	switch r {
	case rep1:
		return 1
	case rep4:
		return 4
	case rep8:
		return 8
	case repString:
		return 16 // a Go string header: {data *byte; len int}, 2 machine words.
	case repPointer:
		return 8
	default:
		panic("minitable: unreachable rep")
	}
}

func (r rep) align() uint16 {
	switch r {
	case rep1:
		return 1
	case rep4:
		return 4
	default:
		return 8
	}
}

// Cardinality classifies how many values a field's wire occurrences produce.
type Cardinality uint8

const (
	// Scalar fields hold exactly one value (the most recently parsed wins).
	Scalar Cardinality = iota
	// Repeated fields hold zero or more values in an array.
	Repeated
	// Map fields are wire-encoded as a repeated synthetic entry message but
	// stored as a key/value table.
	Map
)

// Presence classifies how a field's "is it set" state is tracked.
type Presence uint8

const (
	// Implicit presence fields (proto3 singular scalars, and all repeated
	// and map fields) have no distinguishable "unset" state beyond the zero
	// value / empty collection; they consume no hasbit.
	Implicit Presence = iota
	// Explicit presence fields (proto2 singular scalars, proto3
	// `optional`-qualified scalars, and all singular message fields)
	// consume one hasbit.
	Explicit
	// Oneof fields share a single 4-byte case word per oneof group instead
	// of a hasbit.
	Oneof
	// Required fields behave like Explicit for storage purposes, but are
	// additionally tracked by the decoder's required-field mask and sorted
	// to the front of MiniTable.Fields.
	Required
)

// Mode packs a field's cardinality, presence, and miscellaneous flags.
//
// This is the Go rendering of the mini-descriptor's field-level modifier
// bits: {default-is-packed, is-proto3-singular, validate-utf8, is-required,
// is-extendable, flip-packed} are resolved into this struct at build time,
// rather than re-examined bit-by-bit on every decode.
type Mode struct {
	Cardinality Cardinality
	Presence    Presence

	// Packed is only meaningful when Cardinality == Repeated and Type is
	// packable; it controls how *this mini-table's own encoder* emits the
	// field. The decoder always accepts both packed and unpacked wire forms
	// regardless of this flag (the packed/unpacked duality property).
	Packed bool

	// Extension marks a field that lives in an extendee's extension
	// registry rather than its dense field array. MiniTableField values
	// with Extension set are never found in MiniTable.Fields; they appear
	// only inside a MiniTableExtension.
	Extension bool

	// AltType flips a field between its natural wire handling and an
	// alternate one. Presently this distinguishes an ordinary
	// length-delimited Message field from one using the legacy Group wire
	// encoding (StartGroup/EndGroup instead of a length prefix). The decoder
	// uses group framing for a field whose Type is Group, or whose Type is
	// Message with this bit set. [Build] never sets this bit.
	AltType bool

	// ValidateUTF8 requires string field contents to be well-formed UTF-8;
	// violating it is a BadUTF8 decode status rather than silent acceptance.
	ValidateUTF8 bool
}
