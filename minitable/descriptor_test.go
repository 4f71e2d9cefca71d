package minitable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufbuild/mintable/minitable"
)

func TestBuildSimpleMessageLayout(t *testing.T) {
	desc := minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Bool, false).
		Field(2, minitable.Int32, false).
		Field(3, minitable.Int64, false).
		Field(4, minitable.String, false).
		String()

	mt, err := minitable.Build(desc, nil)
	require.NoError(t, err)

	require.Len(t, mt.Fields, 4)
	assert.EqualValues(t, 4, mt.DenseBelow)
	assert.Zero(t, mt.RequiredCount)

	f1, ok := mt.FindFieldByNumber(1)
	require.True(t, ok)
	assert.Equal(t, minitable.Bool, f1.Type)

	f4, ok := mt.FindFieldByNumber(4)
	require.True(t, ok)
	assert.Equal(t, minitable.String, f4.Type)

	// Every field has explicit presence (proto2-style default), so each
	// consumes one hasbit and the message carries one hasbit byte before
	// any field storage.
	assert.Less(t, uint16(0), f1.Offset)
}

func TestBuildRequiredFieldsSortFirst(t *testing.T) {
	desc := minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false).
		Field(2, minitable.Int32, false, minitable.RequiredField()).
		Field(3, minitable.Int32, false, minitable.RequiredField()).
		String()

	mt, err := minitable.Build(desc, nil)
	require.NoError(t, err)
	require.Len(t, mt.Fields, 3)
	assert.EqualValues(t, 2, mt.RequiredCount)
	assert.Equal(t, int32(2), mt.Fields[0].Number)
	assert.Equal(t, int32(3), mt.Fields[1].Number)
	assert.Equal(t, int32(1), mt.Fields[2].Number)

	// Required-first sorting breaks the 1-based dense_below fast path here,
	// since field 1 no longer sits at index 0.
	assert.Zero(t, mt.DenseBelow)
}

func TestBuildSkipTokenLeavesGapInFieldNumbers(t *testing.T) {
	desc := minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false).
		Field(5, minitable.Int32, false).
		String()

	mt, err := minitable.Build(desc, nil)
	require.NoError(t, err)
	require.Len(t, mt.Fields, 2)
	assert.Equal(t, int32(1), mt.Fields[0].Number)
	assert.Equal(t, int32(5), mt.Fields[1].Number)
	assert.EqualValues(t, 1, mt.DenseBelow)

	_, ok := mt.FindFieldByNumber(3)
	assert.False(t, ok)
}

func TestBuildOneofSharesOffsetAndCaseWord(t *testing.T) {
	desc := minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int64, false).
		Field(2, minitable.String, false).
		Oneof(1, 2).
		String()

	mt, err := minitable.Build(desc, nil)
	require.NoError(t, err)

	f1, _ := mt.FindFieldByNumber(1)
	f2, _ := mt.FindFieldByNumber(2)
	assert.Equal(t, minitable.Oneof, f1.Mode.Presence)
	assert.Equal(t, minitable.Oneof, f2.Mode.Presence)
	assert.Equal(t, f1.Presence, f2.Presence, "both members of one oneof share a case-word offset")
	assert.Equal(t, f1.Offset, f2.Offset, "both members of one oneof share storage")
}

func TestBuildRepeatedFieldUsesPointerStorage(t *testing.T) {
	desc := minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, true).
		String()

	mt, err := minitable.Build(desc, nil)
	require.NoError(t, err)
	f, _ := mt.FindFieldByNumber(1)
	assert.Equal(t, minitable.Repeated, f.Mode.Cardinality)
}

func TestBuildMapEntrySubPromotesCardinalityToMap(t *testing.T) {
	entryDesc := minitable.NewEncoder(minitable.TagMapEntry).
		Field(1, minitable.String, false).
		Field(2, minitable.Int32, false).
		String()
	entry, err := minitable.Build(entryDesc, nil)
	require.NoError(t, err)
	require.True(t, entry.IsMapEntry())

	parentDesc := minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Message, true).
		String()
	parent, err := minitable.Build(parentDesc, []minitable.Sub{{Message: entry}})
	require.NoError(t, err)

	f, _ := parent.FindFieldByNumber(1)
	assert.Equal(t, minitable.Map, f.Mode.Cardinality)
	sub, ok := parent.GetSubMessageTable(f)
	require.True(t, ok)
	assert.True(t, sub.IsMapEntry())
}

func TestBuildRejectsMapEntryWithWrongFieldNumbers(t *testing.T) {
	desc := minitable.NewEncoder(minitable.TagMapEntry).
		Field(1, minitable.String, false).
		Field(3, minitable.Int32, false).
		String()
	_, err := minitable.Build(desc, nil)
	assert.Error(t, err)
}

func TestBuildRejectsOversizedMessage(t *testing.T) {
	enc := minitable.NewEncoder(minitable.TagMessage)
	// Each string-view field costs 16 bytes of storage; 5000 of them
	// overflows the 65535-byte message size ceiling.
	n := int32(5000)
	for i := int32(1); i <= n; i++ {
		enc.Field(i, minitable.String, false)
	}
	_, err := minitable.Build(enc.String(), nil)
	assert.Error(t, err)
}

func TestBuildRejectsUnknownVersionTag(t *testing.T) {
	_, err := minitable.Build("?", nil)
	assert.Error(t, err)
}

func TestBuildMessageSetRejectsRepeatedField(t *testing.T) {
	desc := minitable.NewEncoder(minitable.TagMessageSet).
		Field(1, minitable.Message, true).
		String()
	_, err := minitable.Build(desc, []minitable.Sub{{Message: &minitable.MiniTable{}}})
	assert.Error(t, err)
}

func TestBuildExtensionDescriptor(t *testing.T) {
	extendee, err := minitable.Build(minitable.NewEncoder(minitable.TagMessage).String(), nil)
	require.NoError(t, err)

	enc := minitable.NewEncoder(minitable.TagExtension).Field(100, minitable.Int32, false)
	ext, err := minitable.BuildExtension(enc.String(), extendee, minitable.Sub{})
	require.NoError(t, err)
	assert.Equal(t, int32(100), ext.Field.Number)
	assert.Same(t, extendee, ext.Extendee)
}

func TestExtensionRegistryRoundTrip(t *testing.T) {
	extendee, err := minitable.Build(minitable.NewEncoder(minitable.TagMessage).String(), nil)
	require.NoError(t, err)
	ext, err := minitable.BuildExtension(minitable.NewEncoder(minitable.TagExtension).Field(7, minitable.Bool, false).String(), extendee, minitable.Sub{})
	require.NoError(t, err)

	reg := minitable.NewExtensionRegistry()
	reg.Register(ext)

	got, ok := reg.Find(extendee, 7)
	require.True(t, ok)
	assert.Equal(t, ext, got)

	_, ok = reg.Find(extendee, 8)
	assert.False(t, ok)
}

func TestEnumTableClosedValidity(t *testing.T) {
	et := minitable.NewEnumTable([]int32{0, 2, 5})
	assert.True(t, et.IsValid(0))
	assert.True(t, et.IsValid(5))
	assert.False(t, et.IsValid(1))

	var openEnum *minitable.EnumTable
	assert.True(t, openEnum.IsValid(999), "a nil EnumTable means an open (proto3) enum")
}
