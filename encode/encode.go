// Package encode provides a minimal mini-table-driven encoder, wire
// compatible with [github.com/bufbuild/mintable/decode], used only to
// exercise this module's own round-trip tests (decode ∘ encode = id). It is
// deliberately small: unlike decode, it carries no public stability
// contract, no profiling, and no canonicalization options — a real
// serializer belongs to an external collaborator, exactly as
// [github.com/bufbuild/mintable/minitable.Build]'s doc comment already
// treats ".proto descriptor → mini-descriptor" translation as out of scope.
package encode

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
)

// Append serializes msg against mt, appending the result to buf and
// returning the extended slice. Field order follows mt.Fields (ascending
// field number after the required-first sort minitable.Build applies),
// which need not match the original wire order a decoded message came
// from — the wire format does not require it.
func Append(buf []byte, msg *message.Message, mt *minitable.MiniTable) []byte {
	for i := range mt.Fields {
		buf = appendField(buf, msg, &mt.Fields[i])
	}
	buf = append(buf, msg.GetUnknown()...)
	return buf
}

func appendField(buf []byte, msg *message.Message, f *minitable.Field) []byte {
	switch f.Mode.Cardinality {
	case minitable.Map:
		return appendMapField(buf, msg, f)
	case minitable.Repeated:
		return appendRepeatedField(buf, msg, f)
	default:
		return appendSingularField(buf, msg, f)
	}
}

func appendSingularField(buf []byte, msg *message.Message, f *minitable.Field) []byte {
	switch f.Mode.Presence {
	case minitable.Implicit:
		// No presence tracking; zero values are omitted field by field below.
	case minitable.Oneof:
		if msg.OneofCase(f) != f.Number {
			return buf
		}
	default: // Explicit, Required
		if !msg.HasBit(f) {
			return buf
		}
	}

	switch f.Type {
	case minitable.Message, minitable.Group:
		sub := message.GetSubMessage(msg, f)
		if sub == nil {
			return buf
		}
		return appendSubMessage(buf, sub, sub.MiniTable(), f)
	case minitable.String, minitable.Bytes:
		s := message.GetString(msg, f)
		if f.Mode.Presence == minitable.Implicit && s == "" {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(f.Number), protowire.BytesType)
		return protowire.AppendString(buf, s)
	default:
		return appendScalar(buf, msg, f)
	}
}

func appendSubMessage(buf []byte, sub *message.Message, subMT *minitable.MiniTable, f *minitable.Field) []byte {
	if f.Type == minitable.Group || (f.Type == minitable.Message && f.Mode.AltType) {
		buf = protowire.AppendTag(buf, protowire.Number(f.Number), protowire.StartGroupType)
		buf = Append(buf, sub, subMT)
		return protowire.AppendTag(buf, protowire.Number(f.Number), protowire.EndGroupType)
	}
	buf = protowire.AppendTag(buf, protowire.Number(f.Number), protowire.BytesType)
	return protowire.AppendBytes(buf, Append(nil, sub, subMT))
}

func appendScalar(buf []byte, msg *message.Message, f *minitable.Field) []byte {
	wt := wireTypeForScalar(f.Type)
	switch wt {
	case protowire.VarintType:
		v := varintBitsFor(msg, f)
		if f.Mode.Presence == minitable.Implicit && v == 0 {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(f.Number), wt)
		return protowire.AppendVarint(buf, v)
	case protowire.Fixed32Type:
		v := message.GetScalar[uint32](msg, f)
		if f.Mode.Presence == minitable.Implicit && v == 0 {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(f.Number), wt)
		return protowire.AppendFixed32(buf, v)
	default:
		v := message.GetScalar[uint64](msg, f)
		if f.Mode.Presence == minitable.Implicit && v == 0 {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(f.Number), wt)
		return protowire.AppendFixed64(buf, v)
	}
}

// varintBitsFor reads f's storage and re-encodes it as the raw varint value
// the wire format carries, undoing storeVarintScalar's coercions (decode's
// counterpart) in reverse: zigzag for SInt32/SInt64, straight bit patterns
// otherwise.
func varintBitsFor(msg *message.Message, f *minitable.Field) uint64 {
	switch f.Type {
	case minitable.Bool:
		if message.GetScalar[bool](msg, f) {
			return 1
		}
		return 0
	case minitable.SInt32:
		return protowire.EncodeZigZag(int64(int32(message.GetScalar[uint32](msg, f))))
	case minitable.SInt64:
		return protowire.EncodeZigZag(int64(message.GetScalar[uint64](msg, f)))
	case minitable.Int64, minitable.UInt64:
		return message.GetScalar[uint64](msg, f)
	default:
		return uint64(message.GetScalar[uint32](msg, f))
	}
}

func wireTypeForScalar(t minitable.Type) protowire.Type {
	switch t {
	case minitable.Double, minitable.Fixed64, minitable.SFixed64:
		return protowire.Fixed64Type
	case minitable.Float, minitable.Fixed32, minitable.SFixed32:
		return protowire.Fixed32Type
	default:
		return protowire.VarintType
	}
}

func appendRepeatedField(buf []byte, msg *message.Message, f *minitable.Field) []byte {
	arr := message.GetArray(msg, f)
	if arr == nil {
		return buf
	}

	switch f.Type {
	case minitable.Message, minitable.Group:
		for i := 0; i < arr.Len(); i++ {
			sub := arr.MessageAt(i)
			buf = appendSubMessage(buf, sub, sub.MiniTable(), f)
		}
		return buf
	case minitable.String, minitable.Bytes:
		for i := 0; i < arr.Len(); i++ {
			buf = protowire.AppendTag(buf, protowire.Number(f.Number), protowire.BytesType)
			buf = protowire.AppendString(buf, arr.StringAt(i))
		}
		return buf
	default:
		return appendRepeatedScalar(buf, arr, f)
	}
}

func appendRepeatedScalar(buf []byte, arr *message.Array, f *minitable.Field) []byte {
	wt := wireTypeForScalar(f.Type)
	if !f.Mode.Packed || !f.Type.IsPackable() {
		for i := 0; i < arr.Len(); i++ {
			buf = protowire.AppendTag(buf, protowire.Number(f.Number), wt)
			buf = appendOneElement(buf, arr, f.Type, i, wt)
		}
		return buf
	}

	var body []byte
	for i := 0; i < arr.Len(); i++ {
		body = appendOneElement(body, arr, f.Type, i, wt)
	}
	buf = protowire.AppendTag(buf, protowire.Number(f.Number), protowire.BytesType)
	return protowire.AppendBytes(buf, body)
}

func appendOneElement(buf []byte, arr *message.Array, typ minitable.Type, i int, wt protowire.Type) []byte {
	switch wt {
	case protowire.VarintType:
		return protowire.AppendVarint(buf, varintBitsForElement(typ, arr, i))
	case protowire.Fixed32Type:
		return protowire.AppendFixed32(buf, arr.U32At(i))
	default:
		return protowire.AppendFixed64(buf, arr.U64At(i))
	}
}

func varintBitsForElement(typ minitable.Type, arr *message.Array, i int) uint64 {
	switch typ {
	case minitable.Bool:
		if arr.BoolAt(i) {
			return 1
		}
		return 0
	case minitable.SInt32:
		return protowire.EncodeZigZag(int64(int32(arr.U32At(i))))
	case minitable.SInt64:
		return protowire.EncodeZigZag(int64(arr.U64At(i)))
	case minitable.Int64, minitable.UInt64:
		return arr.U64At(i)
	default:
		return uint64(arr.U32At(i))
	}
}

// appendMapField re-serializes a map field as one Delimited synthetic
// key=1/value=2 entry message per (key, value) pair, in whatever order
// [message.Map.Range] yields them (the wire format imposes no ordering on
// map entries).
func appendMapField(buf []byte, msg *message.Message, f *minitable.Field) []byte {
	mp := message.GetMap(msg, f)
	if mp == nil {
		return buf
	}
	mp.Range(func(key, value any) bool {
		var entry []byte
		entry = appendMapScalarOrString(entry, 1, key)
		entry = appendMapScalarOrString(entry, 2, value)
		buf = protowire.AppendTag(buf, protowire.Number(f.Number), protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
		return true
	})
	return buf
}

func appendMapScalarOrString(buf []byte, number int32, v any) []byte {
	switch val := v.(type) {
	case string:
		if val == "" {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(number), protowire.BytesType)
		return protowire.AppendString(buf, val)
	case bool:
		if !val {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(number), protowire.VarintType)
		return protowire.AppendVarint(buf, 1)
	case uint32:
		if val == 0 {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(number), protowire.VarintType)
		return protowire.AppendVarint(buf, uint64(val))
	case uint64:
		if val == 0 {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(number), protowire.VarintType)
		return protowire.AppendVarint(buf, val)
	case *message.Message:
		if val == nil {
			return buf
		}
		buf = protowire.AppendTag(buf, protowire.Number(number), protowire.BytesType)
		return protowire.AppendBytes(buf, Append(nil, val, val.MiniTable()))
	default:
		return buf
	}
}
