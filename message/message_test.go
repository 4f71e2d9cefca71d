package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
)

func buildTable(t *testing.T, enc *minitable.Encoder, subs []minitable.Sub) *minitable.MiniTable {
	t.Helper()
	mt, err := enc.Build(subs)
	require.NoError(t, err)
	return mt
}

func TestMessageScalarRoundTrip(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false).
		Field(2, minitable.Bool, false), nil)

	a := arena.New()
	defer a.Free()
	m := message.New(mt, a)

	f1, ok := mt.FindFieldByNumber(1)
	require.True(t, ok)
	assert.False(t, m.HasBit(f1))
	message.SetScalar[int32](m, f1, 42)
	assert.True(t, m.HasBit(f1))
	assert.EqualValues(t, 42, message.GetScalar[int32](m, f1))

	f2, ok := mt.FindFieldByNumber(2)
	require.True(t, ok)
	message.SetScalar[bool](m, f2, true)
	assert.True(t, message.GetScalar[bool](m, f2))
	assert.True(t, m.HasBit(f2))
}

func TestMessageStringRoundTrip(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).Field(1, minitable.String, false), nil)
	a := arena.New()
	defer a.Free()
	m := message.New(mt, a)

	f, _ := mt.FindFieldByNumber(1)
	message.SetString(m, f, "hello")
	assert.Equal(t, "hello", message.GetString(m, f))
	assert.Equal(t, []byte("hello"), message.StringAsBytes(message.GetString(m, f)))
}

func TestMessageOneofSharesCaseWord(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false).
		Field(2, minitable.String, false).
		Oneof(1, 2), nil)

	a := arena.New()
	defer a.Free()
	m := message.New(mt, a)

	f1, _ := mt.FindFieldByNumber(1)
	f2, _ := mt.FindFieldByNumber(2)

	assert.EqualValues(t, 0, m.OneofCase(f1))
	m.SetOneofCase(f1, 1)
	message.SetScalar[int32](m, f1, 7)
	assert.EqualValues(t, 1, m.OneofCase(f1))
	assert.EqualValues(t, 1, m.OneofCase(f2), "both members share one case word")

	m.SetOneofCase(f2, 2)
	message.SetString(m, f2, "now set")
	assert.EqualValues(t, 2, m.OneofCase(f1))
}

func TestMessageSubMessagePointerSurvivesGC(t *testing.T) {
	childDesc := minitable.NewEncoder(minitable.TagMessage).Field(1, minitable.Int32, false).String()
	child, err := minitable.Build(childDesc, nil)
	require.NoError(t, err)

	parentDesc := minitable.NewEncoder(minitable.TagMessage).Field(1, minitable.Message, false).String()
	parent, err := minitable.Build(parentDesc, []minitable.Sub{{Message: child}})
	require.NoError(t, err)

	a := arena.New()
	defer a.Free()

	p := message.New(parent, a)
	f, _ := parent.FindFieldByNumber(1)
	assert.Nil(t, message.GetSubMessage(p, f))

	c := message.New(child, a)
	cf, _ := child.FindFieldByNumber(1)
	message.SetScalar[int32](c, cf, 99)
	message.SetSubMessage(p, f, c)

	got := message.GetSubMessage(p, f)
	require.NotNil(t, got)
	assert.EqualValues(t, 99, message.GetScalar[int32](got, cf))
}

func TestMessageArrayLazilyAllocatedViaField(t *testing.T) {
	mt := buildTable(t, minitable.NewEncoder(minitable.TagMessage).Field(1, minitable.Int32, true), nil)
	a := arena.New()
	defer a.Free()
	m := message.New(mt, a)

	f, _ := mt.FindFieldByNumber(1)
	assert.Nil(t, message.GetArray(m, f))

	arr := message.EnsureArray(m, f, minitable.Int32)
	arr.AppendU32(1)
	arr.AppendU32(2)

	again := message.EnsureArray(m, f, minitable.Int32)
	assert.Same(t, arr, again, "a second Ensure call returns the same array")
	assert.Equal(t, 2, again.Len())
}

func TestMessageMapLazilyAllocatedViaField(t *testing.T) {
	entryDesc := minitable.NewEncoder(minitable.TagMapEntry).
		Field(1, minitable.String, false).
		Field(2, minitable.Int32, false).
		String()
	entry, err := minitable.Build(entryDesc, nil)
	require.NoError(t, err)

	parentDesc := minitable.NewEncoder(minitable.TagMessage).Field(1, minitable.Message, true).String()
	parent, err := minitable.Build(parentDesc, []minitable.Sub{{Message: entry}})
	require.NoError(t, err)

	a := arena.New()
	defer a.Free()
	m := message.New(parent, a)
	f, _ := parent.FindFieldByNumber(1)

	mp := message.EnsureMap(m, f, minitable.String, minitable.Int32)
	mp.Set("a", int32(1))
	mp.Set("b", int32(2))

	again := message.GetMap(m, f)
	assert.Same(t, mp, again)
	assert.Equal(t, 2, again.Len())

	v, ok := again.Get("a")
	require.True(t, ok)
	assert.EqualValues(t, 1, v)
}
