package decode

import (
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
	"github.com/bufbuild/mintable/wire"
)

// isGroupField reports whether f uses legacy StartGroup/EndGroup framing
// instead of a length-delimited payload. minitable carries this two ways:
// a field whose declared Type is literally [minitable.Group] (the historical
// FieldDescriptorProto numbering this package's Type mirrors), or an
// ordinary Message-typed field with Mode.AltType set (the mini-descriptor's
// own way of flagging the same wire behavior without a distinct Type).
func isGroupField(f *minitable.Field) bool {
	return f.Type == minitable.Group || (f.Type == minitable.Message && f.Mode.AltType)
}

func validateUTF8(f *minitable.Field, opts Options, s string) bool {
	if !f.Mode.ValidateUTF8 && !opts.AlwaysValidateUTF8 {
		return true
	}
	return utf8.ValidString(s)
}

// readSingularField implements field dispatch for a Scalar-cardinality
// field (steps 4-6 of the dispatch algorithm): verify the wire type, read
// and coerce the value, and set presence.
func (d *decoder) readSingularField(msg *message.Message, mt *minitable.MiniTable, f *minitable.Field, tagStart int64, wt wire.WireType, depth int, missingRequired, unlinked *bool) (bool, error) {
	switch f.Type {
	case minitable.Message, minitable.Group:
		return d.readSingularMessage(msg, mt, f, tagStart, wt, depth, missingRequired, unlinked)
	case minitable.String, minitable.Bytes:
		if wt != wire.WireDelimited {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
		return d.readStringScalar(msg, f)
	default:
		want := wireTypeForScalar(f.Type)
		if wt != want {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
		if err := d.readScalarInto(msg, f, want); err != nil {
			return false, err
		}
		return true, nil
	}
}

func (d *decoder) readScalarInto(msg *message.Message, f *minitable.Field, wt wire.WireType) error {
	switch wt {
	case wire.WireVarint:
		v, err := d.readVarintValue()
		if err != nil {
			return err
		}
		storeVarintScalar(msg, f, v)
	case wire.WireFixed32:
		v, err := d.readFixed32Value()
		if err != nil {
			return err
		}
		message.SetScalar(msg, f, v)
	case wire.WireFixed64:
		v, err := d.readFixed64Value()
		if err != nil {
			return err
		}
		message.SetScalar(msg, f, v)
	}
	return nil
}

func (d *decoder) readStringScalar(msg *message.Message, f *minitable.Field) (bool, error) {
	n, err := d.readLengthPrefix()
	if err != nil {
		return false, err
	}
	s, _, ok := d.stream.ReadString(n)
	if !ok {
		return false, wrapErr(d.stream, d.stream.Err())
	}
	if !validateUTF8(f, d.opts, s) {
		return false, wrapErr(d.stream, ErrBadUTF8)
	}
	message.SetString(msg, f, s)
	return true, nil
}

// readLengthPrefix reads a Delimited field's varint length prefix and
// bounds-checks it against the total input size before the caller tries to
// consume that many bytes, so a corrupt huge length fails fast as Malformed
// instead of as an OutOfMemory from an oversized arena allocation.
func (d *decoder) readLengthPrefix() (int, error) {
	n, ok := d.stream.ReadVarint()
	if !ok {
		return 0, wrapErr(d.stream, d.stream.Err())
	}
	if n > uint64(len(d.buf)) {
		return 0, wrapErr(d.stream, wire.ErrTruncated)
	}
	return int(n), nil
}

func (d *decoder) readSingularMessage(msg *message.Message, mt *minitable.MiniTable, f *minitable.Field, tagStart int64, wt wire.WireType, depth int, missingRequired, unlinked *bool) (bool, error) {
	group := isGroupField(f)
	if group {
		if wt != wire.WireStartGroup {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
	} else if wt != wire.WireDelimited {
		return false, d.recordUnknownRaw(msg, tagStart, wt)
	}

	subMT, hasSub := mt.GetSubMessageTable(f)
	if !hasSub {
		raw, err := d.captureSubBytes(group, f.Number, depth)
		if err != nil {
			return false, err
		}
		placeholder := message.NewEmptyMessage(d.arena, raw)
		message.SetSubMessageTagged(msg, f, message.Empty(placeholder))
		*unlinked = true
		return true, nil
	}

	sub := message.New(subMT, d.arena)
	if err := d.decodeSubMessage(sub, subMT, group, f.Number, depth, missingRequired, unlinked); err != nil {
		return false, err
	}
	message.SetSubMessage(msg, f, sub)
	return true, nil
}

// decodeSubMessage recurses into a nested message or group body, pushing a
// length limit for the delimited case (popped on return) or threading the
// field number through for group-body EndGroup matching. missingRequired and
// unlinked are the same pointers threaded through the whole top-level Decode
// call, so a required field missing (or a field left unlinked) anywhere in
// the message tree surfaces at the top level.
func (d *decoder) decodeSubMessage(sub *message.Message, subMT *minitable.MiniTable, group bool, number int32, depth int, missingRequired, unlinked *bool) error {
	if group {
		return d.decodeMessage(sub, subMT, number, depth-1, missingRequired, unlinked)
	}
	n, err := d.readLengthPrefix()
	if err != nil {
		return err
	}
	l, ok := d.stream.PushLimit(n)
	if !ok {
		return wrapErr(d.stream, d.stream.Err())
	}
	err = d.decodeMessage(sub, subMT, noGroup, depth-1, missingRequired, unlinked)
	d.stream.PopLimit(l)
	return err
}

// captureSubBytes consumes (without interpreting) the raw wire bytes of an
// unlinked submessage or group field, returning them verbatim so a later
// caller holding the right mini-table can parse them via
// [message.TaggedMessagePtr.PromoteTarget].
func (d *decoder) captureSubBytes(group bool, number int32, depth int) ([]byte, error) {
	if group {
		start := d.stream.Offset()
		if err := d.skipGroup(depth - 1); err != nil {
			return nil, err
		}
		return d.buf[start:d.stream.Offset()], nil
	}
	n, err := d.readLengthPrefix()
	if err != nil {
		return nil, err
	}
	start := d.stream.Offset()
	if !d.stream.Skip(n) {
		return nil, wrapErr(d.stream, d.stream.Err())
	}
	return d.buf[start:d.stream.Offset()], nil
}

// readRepeatedField implements dispatch for a Repeated-cardinality field:
// lazily allocates the backing [message.Array], then accepts either a
// packed (Delimited) or unpacked (scalar wire type) occurrence regardless
// of the field's own Mode.Packed flag (the packed/unpacked duality
// property).
func (d *decoder) readRepeatedField(msg *message.Message, mt *minitable.MiniTable, f *minitable.Field, tagStart int64, wt wire.WireType, depth int, missingRequired, unlinked *bool) (bool, error) {
	switch f.Type {
	case minitable.Message, minitable.Group:
		return d.readRepeatedMessage(msg, mt, f, tagStart, wt, depth, missingRequired, unlinked)
	case minitable.String, minitable.Bytes:
		if wt != wire.WireDelimited {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
		return d.readRepeatedString(msg, f)
	default:
		return d.readRepeatedScalar(msg, f, tagStart, wt)
	}
}

func (d *decoder) readRepeatedMessage(msg *message.Message, mt *minitable.MiniTable, f *minitable.Field, tagStart int64, wt wire.WireType, depth int, missingRequired, unlinked *bool) (bool, error) {
	group := isGroupField(f)
	if group {
		if wt != wire.WireStartGroup {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
	} else if wt != wire.WireDelimited {
		return false, d.recordUnknownRaw(msg, tagStart, wt)
	}

	arr := message.EnsureArray(msg, f, f.Type)
	subMT, hasSub := mt.GetSubMessageTable(f)
	if !hasSub {
		// No mini-table for repeated message elements: record the element
		// as unknown bytes (there is no per-element tagged-placeholder slot
		// in an Array the way there is for a singular field) and flag
		// Unlinked so the caller knows this array is incomplete.
		if _, err := d.captureSubBytes(group, f.Number, depth); err != nil {
			return false, err
		}
		if !d.opts.DiscardUnknown {
			msg.AddUnknown(d.buf[tagStart:d.stream.Offset()])
		}
		*unlinked = true
		return false, nil
	}

	sub := message.New(subMT, d.arena)
	if err := d.decodeSubMessage(sub, subMT, group, f.Number, depth, missingRequired, unlinked); err != nil {
		return false, err
	}
	arr.AppendMessage(sub)
	return true, nil
}

func (d *decoder) readRepeatedString(msg *message.Message, f *minitable.Field) (bool, error) {
	n, err := d.readLengthPrefix()
	if err != nil {
		return false, err
	}
	s, _, ok := d.stream.ReadString(n)
	if !ok {
		return false, wrapErr(d.stream, d.stream.Err())
	}
	if !validateUTF8(f, d.opts, s) {
		return false, wrapErr(d.stream, ErrBadUTF8)
	}
	message.EnsureArray(msg, f, f.Type).AppendString(s)
	return true, nil
}

func (d *decoder) readRepeatedScalar(msg *message.Message, f *minitable.Field, tagStart int64, wt wire.WireType) (bool, error) {
	want := wireTypeForScalar(f.Type)
	if wt == want {
		arr := message.EnsureArray(msg, f, f.Type)
		return true, d.appendOneScalar(arr, f.Type, want)
	}
	if wt != wire.WireDelimited || !f.Type.IsPackable() {
		return false, d.recordUnknownRaw(msg, tagStart, wt)
	}

	n, err := d.readLengthPrefix()
	if err != nil {
		return false, err
	}
	l, ok := d.stream.PushLimit(n)
	if !ok {
		return false, wrapErr(d.stream, d.stream.Err())
	}
	arr := message.EnsureArray(msg, f, f.Type)
	for !d.stream.IsDone() {
		if err := d.appendOneScalar(arr, f.Type, want); err != nil {
			d.stream.PopLimit(l)
			return false, err
		}
	}
	d.stream.PopLimit(l)
	if d.stream.Err() != nil {
		return false, wrapErr(d.stream, d.stream.Err())
	}
	return true, nil
}

func (d *decoder) appendOneScalar(arr *message.Array, typ minitable.Type, wt wire.WireType) error {
	switch wt {
	case wire.WireVarint:
		v, err := d.readVarintValue()
		if err != nil {
			return err
		}
		appendVarintScalar(arr, typ, v)
	case wire.WireFixed32:
		v, err := d.readFixed32Value()
		if err != nil {
			return err
		}
		arr.AppendU32(v)
	case wire.WireFixed64:
		v, err := d.readFixed64Value()
		if err != nil {
			return err
		}
		arr.AppendU64(v)
	}
	return nil
}

// readMapField implements dispatch for a map field: each wire occurrence is
// one Delimited synthetic entry message with key=field 1, value=field 2,
// parsed into a transient pair and inserted into the field's
// lazily-allocated [message.Map].
func (d *decoder) readMapField(msg *message.Message, mt *minitable.MiniTable, f *minitable.Field, tagStart int64, wt wire.WireType, depth int, missingRequired, unlinked *bool) (bool, error) {
	if wt != wire.WireDelimited {
		return false, d.recordUnknownRaw(msg, tagStart, wt)
	}
	entryMT, hasSub := mt.GetSubMessageTable(f)
	if !hasSub {
		return false, d.recordUnknownRaw(msg, tagStart, wt)
	}

	n, err := d.readLengthPrefix()
	if err != nil {
		return false, err
	}
	l, ok := d.stream.PushLimit(n)
	if !ok {
		return false, wrapErr(d.stream, d.stream.Err())
	}

	keyField, _ := entryMT.FindFieldByNumber(1)
	valField, _ := entryMT.FindFieldByNumber(2)
	key, value, err := d.readMapEntry(entryMT, keyField, valField, depth, missingRequired, unlinked)
	d.stream.PopLimit(l)
	if err != nil {
		return false, err
	}

	mp := message.EnsureMap(msg, f, keyField.Type, valField.Type)
	mp.Set(key, value)
	return true, nil
}

// readMapEntry parses one map-entry message's key (field 1) and value
// (field 2) directly off the stream, without materializing a
// [message.Message] for the transient entry: map keys/values are returned
// as plain Go values boxed for [message.Map.Set], so there is no field
// storage for an entry message to write into. Fields present more than
// once (malformed but seen in the wild) keep the last occurrence, matching
// ordinary singular-field semantics; an omitted key or value yields that
// type's zero value, per the map-entry invariant.
func (d *decoder) readMapEntry(entryMT *minitable.MiniTable, keyField, valField *minitable.Field, depth int, missingRequired, unlinked *bool) (key, value any, err error) {
	key = zeroValueFor(keyField.Type)
	value = zeroValueFor(valField.Type)

	for !d.stream.IsDone() {
		number, wt, ok := d.stream.ReadTag()
		if !ok {
			return nil, nil, wrapErr(d.stream, d.stream.Err())
		}
		switch number {
		case 1:
			v, err := d.readMapScalarOrString(entryMT, keyField, wt, depth, missingRequired, unlinked)
			if err != nil {
				return nil, nil, err
			}
			if v != nil {
				key = v
			}
		case 2:
			v, err := d.readMapScalarOrString(entryMT, valField, wt, depth, missingRequired, unlinked)
			if err != nil {
				return nil, nil, err
			}
			if v != nil {
				value = v
			}
		default:
			if err := d.skipValue(wt); err != nil {
				return nil, nil, err
			}
		}
	}
	return key, value, nil
}

// readMapScalarOrString reads one map key or value occurrence, returning
// nil (not the type's zero value) when the wire type doesn't match so the
// caller can tell "absent" apart from "present with the zero value".
func (d *decoder) readMapScalarOrString(entryMT *minitable.MiniTable, f *minitable.Field, wt wire.WireType, depth int, missingRequired, unlinked *bool) (any, error) {
	switch f.Type {
	case minitable.Message:
		if wt != wire.WireDelimited {
			return nil, d.skipValue(wt)
		}
		subMT, hasSub := entryMT.GetSubMessageTable(f)
		if !hasSub {
			return nil, d.skipValue(wt)
		}
		n, err := d.readLengthPrefix()
		if err != nil {
			return nil, err
		}
		l, ok := d.stream.PushLimit(n)
		if !ok {
			return nil, wrapErr(d.stream, d.stream.Err())
		}
		sub := message.New(subMT, d.arena)
		err = d.decodeMessage(sub, subMT, noGroup, depth-1, missingRequired, unlinked)
		d.stream.PopLimit(l)
		if err != nil {
			return nil, err
		}
		return sub, nil
	case minitable.String, minitable.Bytes:
		if wt != wire.WireDelimited {
			return nil, d.skipValue(wt)
		}
		n, err := d.readLengthPrefix()
		if err != nil {
			return nil, err
		}
		s, _, ok := d.stream.ReadString(n)
		if !ok {
			return nil, wrapErr(d.stream, d.stream.Err())
		}
		return s, nil
	default:
		want := wireTypeForScalar(f.Type)
		if wt != want {
			return nil, d.skipValue(wt)
		}
		switch want {
		case wire.WireVarint:
			v, err := d.readVarintValue()
			if err != nil {
				return nil, err
			}
			return varintScalarValue(f.Type, v), nil
		case wire.WireFixed32:
			v, err := d.readFixed32Value()
			if err != nil {
				return nil, err
			}
			return v, nil
		case wire.WireFixed64:
			v, err := d.readFixed64Value()
			if err != nil {
				return nil, err
			}
			return v, nil
		}
		return nil, nil
	}
}

// zeroValueFor returns the Go zero value [message.Map] stores for an absent
// map key or value of type t.
func zeroValueFor(t minitable.Type) any {
	switch t {
	case minitable.Bool:
		return false
	case minitable.String, minitable.Bytes:
		return ""
	case minitable.Int64, minitable.UInt64, minitable.SInt64, minitable.Fixed64, minitable.SFixed64, minitable.Double:
		return uint64(0)
	case minitable.Message:
		return (*message.Message)(nil)
	default:
		return uint32(0)
	}
}

// varintScalarValue is storeVarintScalar's value-returning counterpart for
// map entries, which box a plain Go value instead of writing into message
// storage.
func varintScalarValue(t minitable.Type, v uint64) any {
	switch t {
	case minitable.Bool:
		return v != 0
	case minitable.SInt32:
		return decodeZigZag32(v)
	case minitable.SInt64:
		return uint64(protowire.DecodeZigZag(v))
	case minitable.Int64, minitable.UInt64:
		return v
	default:
		return uint32(v)
	}
}
