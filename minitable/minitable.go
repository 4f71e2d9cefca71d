package minitable

import "sort"

// Field describes one field of a message's dense field array: its wire
// number, type and mode, and where its value lives inside a message's
// storage region.
type Field struct {
	Number int32
	Type   Type
	Mode   Mode

	// Offset is the byte offset of this field's storage within a message's
	// storage region (0 <= Offset < MiniTable.Size). Oneof-secondary fields
	// (every member of a oneof after the first) share the offset of their
	// oneof's primary field.
	Offset uint16

	// Presence is a token whose meaning depends on Mode.Presence:
	//   - Explicit, Required: the hasbit index (not byte offset) guarding
	//     this field, i.e. bit Presence of the hasbit region.
	//   - Oneof: the byte offset of the 4-byte case word for this field's
	//     oneof group. All members of one oneof carry the same value here.
	//   - Implicit: unused, always zero.
	Presence uint16

	// SubIndex indexes MiniTable.Subs for Message, Group, and Enum fields,
	// or -1 for every other type.
	SubIndex int16
}

// HasSub reports whether this field has an associated entry in
// MiniTable.Subs (true for Message, Group, and Enum fields).
func (f *Field) HasSub() bool { return f.SubIndex >= 0 }

// Sub is one entry of a MiniTable's sub-array: either the mini-table of a
// message/group-typed field, or the closed-enum validity set of an
// enum-typed field. Exactly one of Message or Enum is non-nil.
type Sub struct {
	Message *MiniTable
	Enum    *EnumTable // nil also means "open enum": every int32 value is valid.
}

// EnumTable is the closed set of valid values for a proto2 (or edition
// closed-enum-feature) enum. Proto3 open enums have no EnumTable: every
// wire value round-trips even if the generated Go constants don't name it.
type EnumTable struct {
	values []int32 // sorted ascending
}

// NewEnumTable builds an EnumTable from an unsorted set of valid values.
func NewEnumTable(values []int32) *EnumTable {
	sorted := append([]int32(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &EnumTable{values: sorted}
}

// IsValid reports whether v is one of this enum's declared values.
func (e *EnumTable) IsValid(v int32) bool {
	if e == nil {
		return true // open enum
	}
	i := sort.Search(len(e.values), func(i int) bool { return e.values[i] >= v })
	return i < len(e.values) && e.values[i] == v
}

// ExtMode classifies a message's relationship to the extension/MessageSet
// wire extensions and to the synthetic map-entry wire shape.
type ExtMode uint8

const (
	// NonExtendable messages reject unknown field numbers below 1 just like
	// any other message: unrecognized fields become unknown bytes, not
	// extensions.
	NonExtendable ExtMode = iota
	// Extendable messages consult an [ExtensionRegistry] for field numbers
	// not present in the dense Fields array.
	Extendable
	// IsMessageSet messages use the legacy MessageSet wire grouping
	// (type_id in field 2, message bytes in field 3, wrapped in a group).
	IsMessageSet
	// IsMapEntry messages are the synthetic two-field (key=1, value=2)
	// entry type the wire format uses to represent one map field.
	IsMapEntry
)

// MiniTable is the compiled, table-driven description of one message type:
// its field layout, its storage size, and its extension/map-entry mode.
//
// A MiniTable is built once (by [Build], an out-of-scope definition-builder,
// or by hand for tests) and is safe for concurrent use by any number of
// decoders; it holds no decode-time state itself.
type MiniTable struct {
	// Fields is sorted: every Required field first (in field-number order),
	// then every other field in field-number order.
	Fields []Field
	Subs   []Sub

	// Size is the number of bytes of the message storage region this table
	// describes: hasbits + oneof case words + per-field storage, rounded up
	// to [arena.Align]. It does not include the opaque internal header
	// (extension table pointer, unknown-field chunk list) that every
	// message additionally carries; see the message package.
	Size uint16

	// RequiredCount is the number of Fields with Mode.Presence == Required.
	// They are exactly Fields[:RequiredCount].
	RequiredCount uint16

	// DenseBelow is the largest N such that Fields[i].Number == i+1 for
	// every i < N. [MiniTable.FindFieldByNumber] uses it as an O(1)
	// fast path before falling back to a linear scan.
	DenseBelow uint16

	Ext ExtMode
}

// IsMapEntry reports whether this table describes a synthetic map-entry
// message.
func (mt *MiniTable) IsMapEntry() bool { return mt.Ext == IsMapEntry }

// IsExtendable reports whether unrecognized field numbers should be
// resolved against an extension registry instead of becoming unknown bytes.
func (mt *MiniTable) IsExtendable() bool {
	return mt.Ext == Extendable || mt.Ext == IsMessageSet
}

// IsMessageSet reports whether this table uses the legacy MessageSet wire
// grouping.
func (mt *MiniTable) IsMessageSet() bool { return mt.Ext == IsMessageSet }

// FindFieldByNumber returns the Field describing number, or false if number
// is not present in this table's dense array (it may still resolve as an
// extension; callers check IsExtendable + an ExtensionRegistry separately).
func (mt *MiniTable) FindFieldByNumber(number int32) (*Field, bool) {
	if number >= 1 && number <= int32(mt.DenseBelow) {
		return &mt.Fields[number-1], true
	}
	// Slow path: the required-first prefix and any gaps past DenseBelow
	// need an exhaustive scan. Fields beyond RequiredCount are still sorted
	// by number, so this could binary-search that suffix; a linear scan is
	// simpler and every production mini-table keeps DenseBelow covering the
	// overwhelming majority of lookups anyway.
	for i := range mt.Fields {
		if mt.Fields[i].Number == number {
			return &mt.Fields[i], true
		}
	}
	return nil, false
}

// GetSubMessageTable returns the mini-table for a Message- or Group-typed
// field.
func (mt *MiniTable) GetSubMessageTable(f *Field) (*MiniTable, bool) {
	if !f.HasSub() || int(f.SubIndex) >= len(mt.Subs) {
		return nil, false
	}
	sub := mt.Subs[f.SubIndex]
	return sub.Message, sub.Message != nil
}

// GetSubEnum returns the closed-enum validity set for an Enum-typed field.
// A nil, true result means the field is a valid enum field with open (v3)
// semantics: every value is accepted.
func (mt *MiniTable) GetSubEnum(f *Field) (*EnumTable, bool) {
	if !f.HasSub() || int(f.SubIndex) >= len(mt.Subs) {
		return nil, false
	}
	return mt.Subs[f.SubIndex].Enum, true
}
