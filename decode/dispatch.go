package decode

import (
	"github.com/bufbuild/mintable/internal/dbg"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
	"github.com/bufbuild/mintable/wire"
)

// noGroup is the groupField sentinel decodeMessage uses for a message body
// that is not itself a legacy-group payload (the top-level call, or any
// ordinary length-delimited submessage).
const noGroup int32 = -1

// decodeMessage is the recursive field-dispatch loop: it reads tags from
// d.stream until the enclosing limit is reached (or, for a group body,
// until an EndGroup matching groupField arrives), dispatching each one
// against mt.
//
// missingRequired and unlinked are shared across the whole top-level Decode
// call (every nested message contributes to the same two flags) rather than
// returned per-call, since a single non-Ok status covers the entire decode.
//
// depth is the remaining recursion budget; it is decremented by the caller
// (readSingularField, readRepeatedField) before every recursive call, not
// here, since a group body shares the same budget check as an ordinary
// submessage.
func (d *decoder) decodeMessage(msg *message.Message, mt *minitable.MiniTable, groupField int32, depth int, missingRequired, unlinked *bool) error {
	if depth < 0 {
		return wrapErr(d.stream, ErrMaxDepthExceeded)
	}
	seen := make([]bool, mt.RequiredCount)

	for {
		if d.stream.IsDone() {
			if groupField != noGroup {
				// The enclosing limit ended before a matching EndGroup did:
				// a truncated or malformed group.
				return wrapErr(d.stream, wire.ErrTruncated)
			}
			break
		}

		tagStart := d.stream.Offset()
		number, wt, ok := d.stream.ReadTag()
		if !ok {
			return wrapErr(d.stream, d.stream.Err())
		}

		if wt == wire.WireEndGroup {
			if groupField == noGroup || number != groupField {
				return wrapErr(d.stream, ErrGroupMismatch)
			}
			break
		}

		stored, err := d.dispatchField(msg, mt, tagStart, number, wt, depth, missingRequired, unlinked)
		if err != nil {
			return err
		}
		if stored {
			if idx := requiredIndex(mt, number); idx >= 0 {
				seen[idx] = true
			}
		}
	}

	if d.opts.CheckRequired {
		for _, s := range seen {
			if !s {
				*missingRequired = true
				break
			}
		}
	}
	return nil
}

// requiredIndex returns the position of number within mt.Fields[:RequiredCount]
// (which minitable.Build keeps sorted in field-number order, ahead of every
// other field), or -1 if number does not name a required field.
func requiredIndex(mt *minitable.MiniTable, number int32) int {
	lo, hi := 0, int(mt.RequiredCount)
	for lo < hi {
		mid := (lo + hi) / 2
		if mt.Fields[mid].Number < number {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < int(mt.RequiredCount) && mt.Fields[lo].Number == number {
		return lo
	}
	return -1
}

// dispatchField implements steps 2-7 of field dispatch: look the field up,
// fall back to unknown/extension/message-set handling if it is not found,
// verify the wire type, lazily allocate containers, set presence, and write
// storage. It returns stored == true only when a value was actually written
// into msg (used to drive required-field tracking): a wire-type mismatch on
// a recognized field number is treated the same as an unrecognized one,
// matching real-world decoders' wire-compatibility behavior (a field whose
// type changed between schema versions degrades to unknown bytes rather
// than aborting the whole parse).
func (d *decoder) dispatchField(msg *message.Message, mt *minitable.MiniTable, tagStart int64, number int32, wt wire.WireType, depth int, missingRequired, unlinked *bool) (stored bool, err error) {
	f, ok := mt.FindFieldByNumber(number)
	if !ok {
		return false, d.handleUnknownField(msg, mt, tagStart, number, wt, depth, missingRequired, unlinked)
	}

	var reader func(*message.Message, *minitable.MiniTable, *minitable.Field, int64, wire.WireType, int, *bool, *bool) (bool, error)
	switch f.Mode.Cardinality {
	case minitable.Map:
		reader = d.readMapField
	case minitable.Repeated:
		reader = d.readRepeatedField
	default:
		reader = d.readSingularField
	}
	if dbg.Enabled {
		dbg.Log(nil, "dispatch", "%v", dbg.Dict("field",
			"number", number, "wire", wt, "via", dbg.Func(reader)))
	}
	stored, err = reader(msg, mt, f, tagStart, wt, depth, missingRequired, unlinked)
	if stored && f.Mode.Presence == minitable.Oneof {
		msg.SetOneofCase(f, f.Number)
	}
	return stored, err
}
