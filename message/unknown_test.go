package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
)

func TestMessageUnknownAccumulatesChunks(t *testing.T) {
	mt, err := minitable.Build(minitable.NewEncoder(minitable.TagMessage).String(), nil)
	require.NoError(t, err)

	a := arena.New()
	defer a.Free()
	m := message.New(mt, a)

	assert.Nil(t, m.GetUnknown())

	m.AddUnknown([]byte{0x08, 0x01})
	m.AddUnknown([]byte{0x10, 0x02})

	assert.Equal(t, []byte{0x08, 0x01, 0x10, 0x02}, m.GetUnknown())
	assert.Len(t, m.UnknownChunks(), 2)
}

func TestMessageAddUnknownCopiesInputBuffer(t *testing.T) {
	mt, err := minitable.Build(minitable.NewEncoder(minitable.TagMessage).String(), nil)
	require.NoError(t, err)

	a := arena.New()
	defer a.Free()
	m := message.New(mt, a)

	src := []byte{1, 2, 3}
	m.AddUnknown(src)
	src[0] = 99

	assert.Equal(t, byte(1), m.GetUnknown()[0], "mutating the caller's buffer must not affect the stored copy")
}

func TestMessageAddUnknownIgnoresEmpty(t *testing.T) {
	mt, err := minitable.Build(minitable.NewEncoder(minitable.TagMessage).String(), nil)
	require.NoError(t, err)

	a := arena.New()
	defer a.Free()
	m := message.New(mt, a)

	m.AddUnknown(nil)
	assert.Nil(t, m.GetUnknown())
}
