package decode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/decode"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
)

func buildTable(t *testing.T, enc *minitable.Encoder, subs []minitable.Sub) *minitable.MiniTable {
	t.Helper()
	mt, err := enc.Build(subs)
	require.NoError(t, err)
	return mt
}

func TestDecodeScalarFields(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false).
		Field(2, minitable.Bool, false).
		Field(3, minitable.String, false), nil)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 42)
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 1)
	buf = protowire.AppendTag(buf, 3, protowire.BytesType)
	buf = protowire.AppendString(buf, "hello")

	a := arena.New()
	defer a.Free()
	msg := message.New(mt, a)

	status := decode.Decode(buf, msg, mt, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	f1, _ := mt.FindFieldByNumber(1)
	f2, _ := mt.FindFieldByNumber(2)
	f3, _ := mt.FindFieldByNumber(3)
	assert.EqualValues(t, 42, message.GetScalar[int32](msg, f1))
	assert.True(t, message.GetScalar[bool](msg, f2))
	assert.Equal(t, "hello", message.GetString(msg, f3))
}

func TestDecodeMissingRequiredField(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false, minitable.RequiredField()).
		Field(2, minitable.Int32, false), nil)

	var buf []byte
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 7)

	a := arena.New()
	defer a.Free()
	msg := message.New(mt, a)

	status := decode.Decode(buf, msg, mt, nil, decode.Options{CheckRequired: true}, a)
	assert.Equal(t, decode.MissingRequired, status)

	// Without CheckRequired the same bytes parse cleanly.
	msg2 := message.New(mt, a)
	status = decode.Decode(buf, msg2, mt, nil, decode.Options{}, a)
	assert.Equal(t, decode.Ok, status)
}

func TestDecodeUnknownFieldRecorded(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false), nil)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 5)
	buf = protowire.AppendTag(buf, 99, protowire.BytesType)
	buf = protowire.AppendString(buf, "unrecognized")

	a := arena.New()
	defer a.Free()
	msg := message.New(mt, a)

	status := decode.Decode(buf, msg, mt, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)
	assert.NotNil(t, msg.GetUnknown())

	// DiscardUnknown drops it instead of recording it.
	msg2 := message.New(mt, a)
	status = decode.Decode(buf, msg2, mt, nil, decode.Options{DiscardUnknown: true}, a)
	require.Equal(t, decode.Ok, status)
	assert.Nil(t, msg2.GetUnknown())
}

func TestDecodeWireTypeMismatchTreatedAsUnknown(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false), nil)

	// Field 1 declared as a varint but encoded here as a length-delimited
	// value: a schema-evolution mismatch, not malformed wire data.
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendString(buf, "surprise")

	a := arena.New()
	defer a.Free()
	msg := message.New(mt, a)

	status := decode.Decode(buf, msg, mt, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	f1, _ := mt.FindFieldByNumber(1)
	assert.False(t, msg.HasBit(f1))
	assert.NotNil(t, msg.GetUnknown())
}

func TestDecodeRepeatedPackedAndUnpackedBothAccepted(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, true), nil)

	// Unpacked: three separate varint occurrences of field 1.
	var unpacked []byte
	for _, v := range []uint64{1, 2, 3} {
		unpacked = protowire.AppendTag(unpacked, 1, protowire.VarintType)
		unpacked = protowire.AppendVarint(unpacked, v)
	}

	// Packed: one length-delimited occurrence containing the same varints.
	var packedBody []byte
	for _, v := range []uint64{1, 2, 3} {
		packedBody = protowire.AppendVarint(packedBody, v)
	}
	var packed []byte
	packed = protowire.AppendTag(packed, 1, protowire.BytesType)
	packed = protowire.AppendBytes(packed, packedBody)

	a := arena.New()
	defer a.Free()
	f1, _ := mt.FindFieldByNumber(1)

	for _, buf := range [][]byte{unpacked, packed} {
		msg := message.New(mt, a)
		status := decode.Decode(buf, msg, mt, nil, decode.Options{}, a)
		require.Equal(t, decode.Ok, status)
		arr := message.GetArray(msg, f1)
		require.NotNil(t, arr)
		require.Equal(t, 3, arr.Len())
		assert.EqualValues(t, 1, arr.U32At(0))
		assert.EqualValues(t, 2, arr.U32At(1))
		assert.EqualValues(t, 3, arr.U32At(2))
	}
}

func TestDecodeNestedSubMessage(t *testing.T) {
	childMT := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false), nil)
	parentMT := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Message, false), []minitable.Sub{{Message: childMT}})

	var childBytes []byte
	childBytes = protowire.AppendTag(childBytes, 1, protowire.VarintType)
	childBytes = protowire.AppendVarint(childBytes, 9)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, childBytes)

	a := arena.New()
	defer a.Free()
	msg := message.New(parentMT, a)

	status := decode.Decode(buf, msg, parentMT, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	pf1, _ := parentMT.FindFieldByNumber(1)
	sub := message.GetSubMessage(msg, pf1)
	require.NotNil(t, sub)
	cf1, _ := childMT.FindFieldByNumber(1)
	assert.EqualValues(t, 9, message.GetScalar[int32](sub, cf1))
}

func TestDecodeUnlinkedSubMessageCapturesRawBytes(t *testing.T) {
	// parentMT declares field 1 as a message type but supplies no sub
	// mini-table: the decoder can't parse it, only capture it.
	parentMT := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Message, false), []minitable.Sub{{}})

	var childBytes []byte
	childBytes = protowire.AppendTag(childBytes, 1, protowire.VarintType)
	childBytes = protowire.AppendVarint(childBytes, 9)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, childBytes)

	a := arena.New()
	defer a.Free()
	msg := message.New(parentMT, a)

	status := decode.Decode(buf, msg, parentMT, nil, decode.Options{}, a)
	require.Equal(t, decode.Unlinked, status)

	pf1, _ := parentMT.FindFieldByNumber(1)
	tp := message.GetSubMessageTagged(msg, pf1)
	require.True(t, tp.IsEmpty())
	assert.Equal(t, childBytes, tp.EmptyPlaceholder().Bytes())
}

func TestDecodeMapField(t *testing.T) {
	entryMT := buildTable(t, minitable.NewEncoder(minitable.TagMapEntry).
		Field(1, minitable.String, false).
		Field(2, minitable.Int32, false), nil)
	parentMT := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Message, true), []minitable.Sub{{Message: entryMT}})

	var entry []byte
	entry = protowire.AppendTag(entry, 1, protowire.BytesType)
	entry = protowire.AppendString(entry, "a")
	entry = protowire.AppendTag(entry, 2, protowire.VarintType)
	entry = protowire.AppendVarint(entry, 1)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, entry)

	a := arena.New()
	defer a.Free()
	msg := message.New(parentMT, a)

	status := decode.Decode(buf, msg, parentMT, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	pf1, _ := parentMT.FindFieldByNumber(1)
	mp := message.GetMap(msg, pf1)
	require.NotNil(t, mp)
	v, ok := mp.Get("a")
	require.True(t, ok)
	assert.EqualValues(t, 1, v)
}

func TestDecodeMaxDepthExceeded(t *testing.T) {
	// A message whose field 1 is itself the same message type: build it
	// with a placeholder sub, then patch the sub in place to close the
	// cycle, giving a genuinely self-recursive mini-table.
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Message, false), []minitable.Sub{{}})
	mt.Subs[0].Message = mt

	var buf []byte
	inner := []byte{}
	for i := 0; i < 5; i++ {
		var next []byte
		next = protowire.AppendTag(next, 1, protowire.BytesType)
		next = protowire.AppendBytes(next, inner)
		inner = next
	}
	buf = inner

	a := arena.New()
	defer a.Free()
	msg := message.New(mt, a)

	status := decode.Decode(buf, msg, mt, nil, decode.Options{MaxDepth: 2}, a)
	assert.Equal(t, decode.MaxDepthExceeded, status)
}

func TestDecodeTruncatedVarintIsMalformed(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false), nil)

	// A varint tag with no following value byte at all.
	buf := protowire.AppendTag(nil, 1, protowire.VarintType)

	a := arena.New()
	defer a.Free()
	msg := message.New(mt, a)

	status := decode.Decode(buf, msg, mt, nil, decode.Options{}, a)
	assert.Equal(t, decode.Malformed, status)
}

func TestDecodeExtensionField(t *testing.T) {
	base := buildTable(t, minitable.NewEncoder(minitable.TagMessage), nil)
	// The descriptor grammar this encoder emits has no token for a
	// proto2-style extension range; Ext is an ordinary exported field, so
	// tests needing an Extendable table set it directly rather than going
	// through Build.
	extendeeVal := *base
	extendeeVal.Ext = minitable.Extendable
	extendee := &extendeeVal

	ext, err := minitable.BuildExtension(
		minitable.NewEncoder(minitable.TagExtension).Field(100, minitable.Int32, false).String(),
		extendee, minitable.Sub{})
	require.NoError(t, err)

	reg := minitable.NewExtensionRegistry()
	reg.Register(ext)

	var buf []byte
	buf = protowire.AppendTag(buf, 100, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 5)

	a := arena.New()
	defer a.Free()
	msg := message.New(extendee, a)

	status := decode.Decode(buf, msg, extendee, reg, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	v, ok := msg.GetExtension(ext)
	require.True(t, ok)
	assert.EqualValues(t, 5, v)
}

func TestDumpProducesNonEmptyText(t *testing.T) {
	buf := protowire.AppendTag(nil, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 42)
	text := decode.Dump(buf)
	assert.NotEmpty(t, text)
}
