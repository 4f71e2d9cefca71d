package decode

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
	"github.com/bufbuild/mintable/wire"
)

// wireTypeForScalar returns the one wire type a singular occurrence of a
// scalar-class field type is read with. String/Bytes/Message/Group are
// handled by their own dedicated readers, not through here.
func wireTypeForScalar(t minitable.Type) wire.WireType {
	switch t {
	case minitable.Double, minitable.Fixed64, minitable.SFixed64:
		return wire.WireFixed64
	case minitable.Float, minitable.Fixed32, minitable.SFixed32:
		return wire.WireFixed32
	default:
		// Int32, Int64, UInt32, UInt64, SInt32, SInt64, Bool, Enum.
		return wire.WireVarint
	}
}

// decodeZigZag32 undoes zigzag encoding for a 32-bit signed field. The
// varint itself was read as a full 64-bit value (protobuf never restricts a
// varint's byte width by the field's declared type); truncating to the low
// 32 bits before applying [protowire.DecodeZigZag]'s 64-bit formula and
// truncating the result back down reproduces the canonical 32-bit zigzag
// decode, since the zigzag transform only ever touches the low bit and a
// logical right shift — both truncation-safe.
func decodeZigZag32(v uint64) uint32 {
	return uint32(protowire.DecodeZigZag(uint64(uint32(v))))
}

// storeVarintScalar applies f.Type's coercion rule to a raw varint value and
// writes the result into msg's storage for f. Every rep4-class field (bool
// aside) is stored as its raw 32-bit bit pattern and every rep8-class field
// as its raw 64-bit bit pattern, exactly as [message.Array] stores repeated
// elements, so a caller reinterpreting the bits as int32/float32/etc. sees
// the same representation whether the field is singular or repeated.
func storeVarintScalar(msg *message.Message, f *minitable.Field, v uint64) {
	switch f.Type {
	case minitable.Bool:
		message.SetScalar(msg, f, v != 0)
	case minitable.SInt32:
		message.SetScalar(msg, f, decodeZigZag32(v))
	case minitable.SInt64:
		message.SetScalar(msg, f, uint64(protowire.DecodeZigZag(v)))
	case minitable.Int64, minitable.UInt64:
		message.SetScalar(msg, f, v)
	default:
		// Int32, UInt32, Enum: low 32 bits, sign-extension handled by the
		// reader reinterpreting the stored bits as a signed type.
		message.SetScalar(msg, f, uint32(v))
	}
}

// appendVarintScalar is storeVarintScalar's [message.Array] counterpart.
func appendVarintScalar(arr *message.Array, typ minitable.Type, v uint64) {
	switch typ {
	case minitable.Bool:
		arr.AppendBool(v != 0)
	case minitable.SInt32:
		arr.AppendU32(decodeZigZag32(v))
	case minitable.SInt64:
		arr.AppendU64(uint64(protowire.DecodeZigZag(v)))
	case minitable.Int64, minitable.UInt64:
		arr.AppendU64(v)
	default:
		arr.AppendU32(uint32(v))
	}
}

// readVarintValue reads one varint and returns its raw value, for callers
// that need to dispatch storage generically (singular vs. packed).
func (d *decoder) readVarintValue() (uint64, error) {
	v, ok := d.stream.ReadVarint()
	if !ok {
		return 0, wrapErr(d.stream, d.stream.Err())
	}
	return v, nil
}

func (d *decoder) readFixed32Value() (uint32, error) {
	v, ok := d.stream.ReadFixed32()
	if !ok {
		return 0, wrapErr(d.stream, d.stream.Err())
	}
	return v, nil
}

func (d *decoder) readFixed64Value() (uint64, error) {
	v, ok := d.stream.ReadFixed64()
	if !ok {
		return 0, wrapErr(d.stream, d.stream.Err())
	}
	return v, nil
}

// skipValue consumes and discards one field value of wire type wt, without
// interpreting it — used for both plain unknown fields and recognized
// fields whose wire type does not match what their mini-table entry
// expects (see [decoder.dispatchField]'s doc comment).
func (d *decoder) skipValue(wt wire.WireType) error {
	switch wt {
	case wire.WireVarint:
		if _, ok := d.stream.ReadVarint(); !ok {
			return wrapErr(d.stream, d.stream.Err())
		}
	case wire.WireFixed32:
		if _, ok := d.stream.ReadFixed32(); !ok {
			return wrapErr(d.stream, d.stream.Err())
		}
	case wire.WireFixed64:
		if _, ok := d.stream.ReadFixed64(); !ok {
			return wrapErr(d.stream, d.stream.Err())
		}
	case wire.WireDelimited:
		n, ok := d.stream.ReadVarint()
		if !ok {
			return wrapErr(d.stream, d.stream.Err())
		}
		if n > uint64(len(d.buf)) {
			return wrapErr(d.stream, wire.ErrTruncated)
		}
		if !d.stream.Skip(int(n)) {
			return wrapErr(d.stream, d.stream.Err())
		}
	case wire.WireStartGroup:
		return d.skipGroup(d.maxDepth)
	default:
		return wrapErr(d.stream, ErrMalformedVarint)
	}
	return nil
}

// skipGroup discards a legacy group body, recursing through any nested
// groups, and stops at the first EndGroup tag at its own nesting level; the
// field number carried by that EndGroup tag is not checked against the one
// that started the group. depth is the remaining recursion budget.
func (d *decoder) skipGroup(depth int) error {
	if depth < 0 {
		return wrapErr(d.stream, ErrMaxDepthExceeded)
	}
	for {
		if d.stream.IsDone() {
			return wrapErr(d.stream, wire.ErrTruncated)
		}
		_, wt, ok := d.stream.ReadTag()
		if !ok {
			return wrapErr(d.stream, d.stream.Err())
		}
		switch wt {
		case wire.WireEndGroup:
			return nil
		case wire.WireStartGroup:
			if err := d.skipGroup(depth - 1); err != nil {
				return err
			}
		default:
			if err := d.skipValue(wt); err != nil {
				return err
			}
		}
	}
}
