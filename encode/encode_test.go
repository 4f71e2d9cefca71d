package encode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/decode"
	"github.com/bufbuild/mintable/encode"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
)

func buildTable(t *testing.T, enc *minitable.Encoder, subs []minitable.Sub) *minitable.MiniTable {
	t.Helper()
	mt, err := enc.Build(subs)
	require.NoError(t, err)
	return mt
}

// TestRoundTripScalarsAndRepeated exercises decode ∘ encode = id for a
// message with singular scalars, a string, and a packed repeated field.
func TestRoundTripScalarsAndRepeated(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		SetDefaultPacked(true).
		Field(1, minitable.Int32, false).
		Field(2, minitable.String, false).
		Field(3, minitable.Int32, true), nil)

	a := arena.New()
	defer a.Free()
	msg := message.New(mt, a)

	f1, _ := mt.FindFieldByNumber(1)
	f2, _ := mt.FindFieldByNumber(2)
	f3, _ := mt.FindFieldByNumber(3)
	message.SetScalar[int32](msg, f1, -7)
	message.SetString(msg, f2, "round trip")
	arr := message.EnsureArray(msg, f3, minitable.Int32)
	arr.AppendU32(1)
	arr.AppendU32(2)
	arr.AppendU32(3)

	buf := encode.Append(nil, msg, mt)

	decoded := message.New(mt, a)
	status := decode.Decode(buf, decoded, mt, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	assert.EqualValues(t, -7, message.GetScalar[int32](decoded, f1))
	assert.Equal(t, "round trip", message.GetString(decoded, f2))
	decodedArr := message.GetArray(decoded, f3)
	require.NotNil(t, decodedArr)
	require.Equal(t, 3, decodedArr.Len())
	assert.EqualValues(t, 1, decodedArr.U32At(0))
	assert.EqualValues(t, 2, decodedArr.U32At(1))
	assert.EqualValues(t, 3, decodedArr.U32At(2))
}

// TestRoundTripNestedMessage exercises decode ∘ encode = id through one
// level of submessage nesting.
func TestRoundTripNestedMessage(t *testing.T) {
	childMT := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Bool, false), nil)
	parentMT := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Message, false), []minitable.Sub{{Message: childMT}})

	a := arena.New()
	defer a.Free()
	msg := message.New(parentMT, a)
	pf1, _ := parentMT.FindFieldByNumber(1)
	child := message.New(childMT, a)
	cf1, _ := childMT.FindFieldByNumber(1)
	message.SetScalar[bool](child, cf1, true)
	message.SetSubMessage(msg, pf1, child)

	buf := encode.Append(nil, msg, parentMT)

	decoded := message.New(parentMT, a)
	status := decode.Decode(buf, decoded, parentMT, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	sub := message.GetSubMessage(decoded, pf1)
	require.NotNil(t, sub)
	assert.True(t, message.GetScalar[bool](sub, cf1))
}

// TestRoundTripMapField exercises decode ∘ encode = id for a map field.
func TestRoundTripMapField(t *testing.T) {
	entryMT := buildTable(t, minitable.NewEncoder(minitable.TagMapEntry).
		Field(1, minitable.String, false).
		Field(2, minitable.Int32, false), nil)
	parentMT := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Message, true), []minitable.Sub{{Message: entryMT}})

	a := arena.New()
	defer a.Free()
	msg := message.New(parentMT, a)
	pf1, _ := parentMT.FindFieldByNumber(1)
	mp := message.EnsureMap(msg, pf1, minitable.String, minitable.Int32)
	mp.Set("x", uint32(1))
	mp.Set("y", uint32(2))

	buf := encode.Append(nil, msg, parentMT)

	decoded := message.New(parentMT, a)
	status := decode.Decode(buf, decoded, parentMT, nil, decode.Options{}, a)
	require.Equal(t, decode.Ok, status)

	decodedMap := message.GetMap(decoded, pf1)
	require.NotNil(t, decodedMap)
	vx, ok := decodedMap.Get("x")
	require.True(t, ok)
	assert.EqualValues(t, 1, vx)
	vy, ok := decodedMap.Get("y")
	require.True(t, ok)
	assert.EqualValues(t, 2, vy)
}
