package minitable

import (
	"fmt"
	"sort"
)

// This file implements the mini-descriptor: a short, printable-ASCII,
// varint-packed encoding of a MiniTable's shape, dense enough to embed in
// generated code or hand-write in a test.
//
// Byte layout. A descriptor string is:
//
//	version-tag body
//
// The version tag is always the first byte and selects one of four kinds of
// message:
const (
	TagMessage    = '!' // an ordinary message
	TagMapEntry   = '"' // a synthetic two-field (key=1, value=2) map entry
	TagMessageSet = '#' // a message using the legacy MessageSet extension grouping
	TagExtension  = '$' // a single extension field, decoded by [BuildExtension]
)

// Structural bytes that may never appear as part of a varint digit.
const (
	tokEndOfFields   = '%'  // terminates the field-token list; oneof groups follow
	tokOneofFieldSep = '&'  // separates member field numbers within one oneof group
	tokOneofGroupSep = '\'' // separates successive oneof groups
)

// The varint digit alphabet: 87 printable-ASCII bytes, '(' (40) through '~'
// (126). This is this module's own concrete realization of the
// specification's "base-92, printable-ASCII" varint figure: the order of
// magnitude matches, but the exact digit count and continuation scheme are
// local to this package, since no external tool ever parses these bytes —
// mini-descriptors are produced and consumed exclusively by this package and
// [Encoder].
const (
	alphabetLo = 40
	alphabetHi = 126

	// Each digit carries 5 bits of payload. A digit value < contCount means
	// "more digits follow"; a digit value >= contCount is the final digit of
	// the varint, carrying value-contCount.
	contCount  = 44
	bitsPerDig = 5
	digMask    = 1<<bitsPerDig - 1
)

func decodeVarint(s string, pos int) (value uint64, next int, err error) {
	shift := uint(0)
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("minitable: truncated varint at byte %d", pos)
		}
		b := s[pos]
		if int(b) < alphabetLo || int(b) > alphabetHi {
			return 0, pos, fmt.Errorf("minitable: byte %q at position %d is not a varint digit", b, pos)
		}
		dv := int(b) - alphabetLo
		pos++
		if dv < contCount {
			value |= uint64(dv) << shift
			shift += bitsPerDig
			continue
		}
		value |= uint64(dv-contCount) << shift
		return value, pos, nil
	}
}

func encodeVarint(v uint64) []byte {
	var digits []byte
	for {
		digits = append(digits, byte(v&digMask))
		v >>= bitsPerDig
		if v == 0 {
			break
		}
	}
	out := make([]byte, len(digits))
	for i, d := range digits {
		if i == len(digits)-1 {
			out[i] = byte(alphabetLo + contCount + int(d))
		} else {
			out[i] = byte(alphabetLo + int(d))
		}
	}
	return out
}

// Field-level modifier bits, captured by the varint immediately following
// every field-type token.
const (
	modIsRequired       = 1 << 0
	modFlipPacked       = 1 << 1
	modProto3Singular   = 1 << 2 // implicit presence: a proto3 field with no `optional` keyword
	modValidateUTF8Flip = 1 << 3
)

// Message-level modifier bits, captured by the varint that always opens a
// message/map-entry/message-set body (0 if the message declares none).
const (
	msgModDefaultIsPacked = 1 << 0
	msgModValidateUTF8    = 1 << 1
)

type provisionalField struct {
	number   int32
	typ      Type
	repeated bool
	mods     uint64
	oneof    int // -1 if not in a oneof group, else group index
}

// Build decodes descriptor and constructs the MiniTable it describes.
//
// subs supplies the resolved submessage mini-tables and enum validity sets
// that the descriptor's field tokens reference by ordinal: the first
// submsg_count entries (in the order their owning fields appear in the
// descriptor) carry the fields' Message tables (a nil Message leaves that
// field unlinked: the decoder captures its bytes without parsing them), and
// the remaining subenum_count
// entries must carry the enum's EnumTable (possibly nil, for an open enum).
// Linking descriptor ordinals to concrete types is the caller's
// responsibility, exactly as a mini-table's submsg_index is meaningless
// without an external linker providing the array it indexes.
func Build(descriptor string, subs []Sub) (*MiniTable, error) {
	if len(descriptor) == 0 {
		return nil, fmt.Errorf("minitable: empty descriptor")
	}

	var ext ExtMode
	switch descriptor[0] {
	case TagMessage:
		ext = NonExtendable
	case TagMapEntry:
		ext = IsMapEntry
	case TagMessageSet:
		ext = IsMessageSet
	default:
		return nil, fmt.Errorf("minitable: unknown version tag %q", descriptor[0])
	}

	pos := 1
	msgMods, pos, err := decodeVarint(descriptor, pos)
	if err != nil {
		return nil, fmt.Errorf("minitable: message modifiers: %w", err)
	}

	var fields []provisionalField
	nextNumber := int32(1)
	for {
		if pos >= len(descriptor) {
			return nil, fmt.Errorf("minitable: descriptor ended before end-of-fields marker")
		}
		if descriptor[pos] == tokEndOfFields {
			pos++
			break
		}

		tok, newPos, err := decodeVarint(descriptor, pos)
		if err != nil {
			return nil, fmt.Errorf("minitable: field token: %w", err)
		}
		pos = newPos

		const numTypes = 18
		if tok >= 2*numTypes {
			// Skip token: advance the implicit field number without
			// emitting a field.
			nextNumber += int32(tok-2*numTypes) + 1
			continue
		}

		typ := Type(tok%numTypes + 1)
		repeated := tok >= numTypes

		mods, newPos, err := decodeVarint(descriptor, pos)
		if err != nil {
			return nil, fmt.Errorf("minitable: field modifiers for field %d: %w", nextNumber, err)
		}
		pos = newPos

		fields = append(fields, provisionalField{
			number:   nextNumber,
			typ:      typ,
			repeated: repeated,
			mods:     mods,
			oneof:    -1,
		})
		nextNumber++
	}

	// Step 4: oneof groups. Each group is a '&'-separated list of field
	// numbers; groups themselves are separated by '\''.
	byNumber := make(map[int32]int, len(fields))
	for i, f := range fields {
		byNumber[f.number] = i
	}
	groupCount := 0
	for pos < len(descriptor) {
		group := groupCount
		groupCount++
		for {
			num, newPos, err := decodeVarint(descriptor, pos)
			if err != nil {
				return nil, fmt.Errorf("minitable: oneof member: %w", err)
			}
			pos = newPos
			idx, ok := byNumber[int32(num)]
			if !ok {
				return nil, fmt.Errorf("minitable: oneof references unknown field number %d", num)
			}
			fields[idx].oneof = group

			if pos < len(descriptor) && descriptor[pos] == tokOneofFieldSep {
				pos++
				continue
			}
			break
		}
		if pos < len(descriptor) && descriptor[pos] == tokOneofGroupSep {
			pos++
			continue
		}
		break
	}

	return assemble(fields, msgMods, ext, subs)
}

// assemble runs steps 5-8 of the build algorithm over a parsed, but not yet
// laid out, provisional field list.
func assemble(pf []provisionalField, msgMods uint64, ext ExtMode, subs []Sub) (*MiniTable, error) {
	out := make([]Field, len(pf))
	submsgCount, subenumCount := 0, 0

	// Step 3 (continued)/5: assign provisional sub-indices, message mode,
	// and packing.
	for i, f := range pf {
		mode := Mode{
			ValidateUTF8: msgMods&msgModValidateUTF8 != 0,
		}
		switch {
		case f.oneof >= 0:
			mode.Presence = Oneof
		case f.mods&modIsRequired != 0:
			mode.Presence = Required
		case f.repeated:
			mode.Presence = Implicit
		case f.mods&modProto3Singular != 0:
			mode.Presence = Implicit
		default:
			mode.Presence = Explicit
		}
		if f.repeated {
			mode.Cardinality = Repeated
		}

		subIndex := int16(-1)
		switch f.typ {
		case Message, Group:
			subIndex = int16(submsgCount)
			submsgCount++
		case Enum:
			subIndex = int16(subenumCount) // re-indexed below, once submsgCount is final
			subenumCount++
		}

		packed := f.mods&modFlipPacked != 0
		if msgMods&msgModDefaultIsPacked != 0 {
			packed = !packed
		}
		if !f.typ.IsPackable() || mode.Cardinality != Repeated {
			packed = false
		}
		mode.Packed = packed

		out[i] = Field{
			Number:   f.number,
			Type:     f.typ,
			Mode:     mode,
			SubIndex: subIndex,
		}
	}

	// Step 5: enum subs follow every message sub.
	for i := range out {
		if out[i].Type == Enum {
			out[i].SubIndex += int16(submsgCount)
		}
	}
	if got, want := len(subs), submsgCount+subenumCount; got != want {
		return nil, fmt.Errorf("minitable: descriptor references %d subs (%d messages, %d enums) but %d were supplied",
			want, submsgCount, subenumCount, got)
	}

	// Oneof primary/secondary bookkeeping: record, per oneof group, the
	// index (into out, pre-sort) of its first member.
	oneofPrimary := make(map[int]int) // group -> index into pf/out
	for i, f := range pf {
		if f.oneof < 0 {
			continue
		}
		if _, ok := oneofPrimary[f.oneof]; !ok {
			oneofPrimary[f.oneof] = i
		}
	}

	// Step 6: sort required-first, then by field number.
	sort.SliceStable(out, func(i, j int) bool {
		iReq, jReq := out[i].Mode.Presence == Required, out[j].Mode.Presence == Required
		if iReq != jReq {
			return iReq
		}
		return out[i].Number < out[j].Number
	})

	var requiredCount int
	for _, f := range out {
		if f.Mode.Presence == Required {
			requiredCount++
		}
	}

	mt := &MiniTable{
		Fields:        out,
		Subs:          subs,
		RequiredCount: uint16(requiredCount),
		Ext:           ext,
	}

	if err := assignHasbitsAndOffsets(mt, pf, oneofPrimary); err != nil {
		return nil, err
	}
	mt.DenseBelow = computeDenseBelow(mt.Fields)

	// Promote Message-typed repeated fields whose sub is a map entry to
	// Cardinality Map; a map is wire-encoded as a repeated synthetic entry
	// message but stored as a key/value table rather than an array.
	for i := range mt.Fields {
		f := &mt.Fields[i]
		if f.Mode.Cardinality != Repeated || (f.Type != Message && f.Type != Group) {
			continue
		}
		if sub, ok := mt.GetSubMessageTable(f); ok && sub.IsMapEntry() {
			f.Mode.Cardinality = Map
		}
	}

	if err := validate(mt); err != nil {
		return nil, err
	}
	return mt, nil
}

// assignHasbitsAndOffsets implements build step 7. pf and oneofPrimary are
// indexed by the PRE-SORT field order (the order field numbers were first
// seen in the descriptor), since oneof grouping was recorded against that
// order; mt.Fields is already sorted.
func assignHasbitsAndOffsets(mt *MiniTable, pf []provisionalField, oneofPrimary map[int]int) error {
	numberToPre := make(map[int32]int, len(pf))
	for i, f := range pf {
		numberToPre[f.number] = i
	}

	// Size is rounded up to 8 at the end, so a running total above 65528
	// cannot fit the 65535-byte ceiling; checking as the total grows keeps
	// the uint16 arithmetic from wrapping.
	const maxUnaligned = 65528
	tooLarge := fmt.Errorf("minitable: message size exceeds 65535 bytes")

	var hasbitCount uint16
	groupCaseWordOffset := make(map[int]uint16)

	// Hasbits first: one bit per non-oneof explicit/required field.
	for i := range mt.Fields {
		f := &mt.Fields[i]
		if f.Mode.Presence == Explicit || f.Mode.Presence == Required {
			f.Presence = hasbitCount
			hasbitCount++
		}
	}
	hasbitBytes := (hasbitCount + 7) / 8

	// Oneof case words: 4 bytes each, one per distinct oneof group,
	// allocated right after the hasbit region, in the order each group's
	// primary field appears in mt.Fields.
	msgSize := uint16(hasbitBytes)
	msgSize = alignU16(msgSize, 4)
	for i := range mt.Fields {
		f := &mt.Fields[i]
		if f.Mode.Presence != Oneof {
			continue
		}
		pre := numberToPre[f.Number]
		group := pf[pre].oneof
		off, ok := groupCaseWordOffset[group]
		if !ok {
			off = msgSize
			groupCaseWordOffset[group] = off
			if int(msgSize)+4 > maxUnaligned {
				return tooLarge
			}
			msgSize += 4
		}
		f.Presence = off
	}

	// Field storage, in rep-order rounds. Oneof-secondary fields copy the
	// primary member's offset instead of taking a fresh slot.
	assigned := make([]bool, len(mt.Fields))
	byRep := make([][]int, numReps)
	for i := range mt.Fields {
		f := &mt.Fields[i]
		r := storageRep(f)
		byRep[r] = append(byRep[r], i)
	}

	// A oneof's shared slot is sized and aligned for its largest member.
	groupRep := make(map[int]rep)
	for i := range mt.Fields {
		if f := &mt.Fields[i]; f.Mode.Presence == Oneof {
			group := pf[numberToPre[f.Number]].oneof
			if r, ok := groupRep[group]; !ok || storageRep(f).size() > r.size() {
				groupRep[group] = storageRep(f)
			}
		}
	}

	primaryOffset := make(map[int]uint16) // oneof group -> storage offset, once assigned
	for r := rep(0); r < numReps; r++ {
		for _, i := range byRep[r] {
			f := &mt.Fields[i]
			if assigned[i] {
				continue
			}
			if f.Mode.Presence == Oneof {
				pre := numberToPre[f.Number]
				group := pf[pre].oneof
				if off, ok := primaryOffset[group]; ok {
					f.Offset = off
					assigned[i] = true
					continue
				}
				gr := groupRep[group]
				msgSize = alignU16(msgSize, gr.align())
				if int(msgSize)+int(gr.size()) > maxUnaligned {
					return tooLarge
				}
				f.Offset = msgSize
				primaryOffset[group] = msgSize
				msgSize += gr.size()
				assigned[i] = true
				continue
			}

			msgSize = alignU16(msgSize, r.align())
			if int(msgSize)+int(r.size()) > maxUnaligned {
				return tooLarge
			}
			f.Offset = msgSize
			msgSize += r.size()
			assigned[i] = true
		}
	}

	mt.Size = alignU16(msgSize, 8)
	return nil
}

// storageRep returns the rep bucket a field's storage belongs to: array and
// map fields always store a single pointer to a lazily-allocated [Array] or
// [Map], regardless of element type.
func storageRep(f *Field) rep {
	if f.Mode.Cardinality != Scalar {
		return repPointer
	}
	return f.Type.scalarRep()
}

func alignU16(n, to uint16) uint16 {
	return (n + to - 1) &^ (to - 1)
}

func computeDenseBelow(fields []Field) uint16 {
	var n uint16
	for int(n) < len(fields) && fields[n].Number == int32(n)+1 {
		n++
	}
	return n
}

func validate(mt *MiniTable) error {
	const maxMessageSize = 65535
	if mt.Size > maxMessageSize {
		return fmt.Errorf("minitable: message size %d exceeds %d", mt.Size, maxMessageSize)
	}

	if mt.Ext == IsMapEntry {
		if len(mt.Fields) != 2 || mt.Fields[0].Number != 1 || mt.Fields[1].Number != 2 {
			return fmt.Errorf("minitable: map entry must have exactly fields 1 and 2, got %d fields", len(mt.Fields))
		}
		for _, f := range mt.Fields {
			if f.Type == Group || (f.Number == 1 && f.Type == Message) {
				return fmt.Errorf("minitable: map entry field %d has a disallowed type %v", f.Number, f.Type)
			}
		}
	}

	if mt.Ext == IsMessageSet {
		for _, f := range mt.Fields {
			if f.Mode.Cardinality == Repeated {
				return fmt.Errorf("minitable: message-set extension field %d must not be repeated", f.Number)
			}
		}
	}

	for _, f := range mt.Fields {
		if f.Mode.Packed && (!f.Type.IsPackable() || f.Mode.Cardinality != Repeated) {
			return fmt.Errorf("minitable: field %d is marked packed but is not a repeated packable type", f.Number)
		}
	}
	return nil
}
