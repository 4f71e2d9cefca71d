package decode

import (
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
	"github.com/bufbuild/mintable/wire"
)

// recordUnknownRaw skips one field value of wire type wt (whose tag has
// already been consumed, starting at tagStart) and, unless DiscardUnknown is
// set, records the verbatim [tag, value] bytes as one more unknown-field
// chunk on msg. Used both for genuinely unrecognized field numbers and for
// recognized field numbers whose wire type doesn't match their mini-table
// entry (see [decoder.dispatchField]'s doc comment).
func (d *decoder) recordUnknownRaw(msg *message.Message, tagStart int64, wt wire.WireType) error {
	if err := d.skipValue(wt); err != nil {
		return err
	}
	if !d.opts.DiscardUnknown {
		msg.AddUnknown(d.buf[tagStart:d.stream.Offset()])
	}
	return nil
}

// handleUnknownField implements step 3 of field dispatch: a field number
// mt has no entry for. Three things can still claim it, in order: a legacy
// MessageSet's type-id/message group framing, a registered extension on an
// extendable message, or (failing both) plain unknown-byte recording.
func (d *decoder) handleUnknownField(msg *message.Message, mt *minitable.MiniTable, tagStart int64, number int32, wt wire.WireType, depth int, missingRequired, unlinked *bool) error {
	if mt.IsMessageSet() && number == messageSetItemTag && wt == wire.WireStartGroup {
		return d.readMessageSetItem(msg, mt, tagStart, depth, missingRequired, unlinked)
	}

	if mt.IsExtendable() && d.reg != nil {
		if ext, ok := d.reg.Find(mt, number); ok {
			_, err := d.readExtension(msg, ext, tagStart, wt, depth, missingRequired, unlinked)
			return err
		}
	}

	return d.recordUnknownRaw(msg, tagStart, wt)
}

// readExtension parses one occurrence of a registered extension field,
// storing the result via [message.Message.SetExtension]. Rather than routing
// through readSingularField et al., it handles the scalar, string, and
// submessage shapes directly, mirroring readSingularField's own structure.
// Every occurrence is read as a single value: for a repeated extension the
// last occurrence replaces earlier ones, and a packed occurrence (whose wire
// type does not match the element type) is recorded as unknown bytes.
func (d *decoder) readExtension(msg *message.Message, ext *minitable.Extension, tagStart int64, wt wire.WireType, depth int, missingRequired, unlinked *bool) (bool, error) {
	f := &ext.Field
	switch f.Type {
	case minitable.Message, minitable.Group:
		group := isGroupField(f)
		if group {
			if wt != wire.WireStartGroup {
				return false, d.recordUnknownRaw(msg, tagStart, wt)
			}
		} else if wt != wire.WireDelimited {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
		if ext.Sub.Message == nil {
			raw, err := d.captureSubBytes(group, f.Number, depth)
			if err != nil {
				return false, err
			}
			placeholder := message.NewEmptyMessage(d.arena, raw)
			msg.SetExtension(ext, message.Empty(placeholder))
			*unlinked = true
			return true, nil
		}
		sub := message.New(ext.Sub.Message, d.arena)
		if err := d.decodeSubMessage(sub, ext.Sub.Message, group, f.Number, depth, missingRequired, unlinked); err != nil {
			return false, err
		}
		msg.SetExtension(ext, sub)
		return true, nil
	case minitable.String, minitable.Bytes:
		if wt != wire.WireDelimited {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
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
		msg.SetExtension(ext, s)
		return true, nil
	default:
		want := wireTypeForScalar(f.Type)
		if wt != want {
			return false, d.recordUnknownRaw(msg, tagStart, wt)
		}
		switch want {
		case wire.WireVarint:
			v, err := d.readVarintValue()
			if err != nil {
				return false, err
			}
			msg.SetExtension(ext, varintScalarValue(f.Type, v))
		case wire.WireFixed32:
			v, err := d.readFixed32Value()
			if err != nil {
				return false, err
			}
			msg.SetExtension(ext, v)
		case wire.WireFixed64:
			v, err := d.readFixed64Value()
			if err != nil {
				return false, err
			}
			msg.SetExtension(ext, v)
		}
		return true, nil
	}
}

// messageSetItemTag is the field number a legacy MessageSet group is always
// framed under (the wire-format's fixed "Item" group field within the
// synthetic MessageSet wrapper message).
const messageSetItemTag int32 = 1

// readMessageSetItem parses one `Item` group of a legacy MessageSet
// extension: { type_id: int32 (field 2), message: bytes (field 3) },
// resolving type_id against the extension registry exactly like an ordinary
// extension field number, then parsing the payload against that extension's
// mini-table.
func (d *decoder) readMessageSetItem(msg *message.Message, mt *minitable.MiniTable, tagStart int64, depth int, missingRequired, unlinked *bool) error {
	if depth < 0 {
		return wrapErr(d.stream, ErrMaxDepthExceeded)
	}
	var typeID int32
	var payload []byte
	for {
		if d.stream.IsDone() {
			return wrapErr(d.stream, wire.ErrTruncated)
		}
		number, wt, ok := d.stream.ReadTag()
		if !ok {
			return wrapErr(d.stream, d.stream.Err())
		}
		if wt == wire.WireEndGroup {
			if number != messageSetItemTag {
				return wrapErr(d.stream, ErrGroupMismatch)
			}
			break
		}
		switch {
		case number == 2 && wt == wire.WireVarint:
			v, err := d.readVarintValue()
			if err != nil {
				return err
			}
			typeID = int32(v)
		case number == 3 && wt == wire.WireDelimited:
			n, err := d.readLengthPrefix()
			if err != nil {
				return err
			}
			start := d.stream.Offset()
			if !d.stream.Skip(n) {
				return wrapErr(d.stream, d.stream.Err())
			}
			payload = d.buf[start:d.stream.Offset()]
		default:
			if err := d.skipValue(wt); err != nil {
				return err
			}
		}
	}

	if payload == nil {
		return nil
	}

	if d.reg != nil {
		if ext, ok := d.reg.Find(mt, typeID); ok && ext.Sub.Message != nil {
			sub := message.New(ext.Sub.Message, d.arena)
			if status := Decode(payload, sub, ext.Sub.Message, d.reg, d.opts, d.arena); status != Ok && status != MissingRequired && status != Unlinked {
				return wrapErr(d.stream, ErrMalformedVarint)
			} else if status == MissingRequired {
				*missingRequired = true
			} else if status == Unlinked {
				*unlinked = true
			}
			msg.SetExtension(ext, sub)
			return nil
		}
	}

	if !d.opts.DiscardUnknown {
		msg.AddUnknown(d.buf[tagStart:d.stream.Offset()])
	}
	return nil
}
