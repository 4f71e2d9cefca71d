package mintable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bufbuild/mintable"
	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/minitable"
)

// TestDecodeViaFacade exercises the facade's re-exported Decode entry point
// end to end, without reaching into the decode package directly.
func TestDecodeViaFacade(t *testing.T) {
	mt, err := minitable.NewEncoder(minitable.TagMessage).
		Field(1, minitable.Int32, false).
		Build(nil)
	require.NoError(t, err)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 42)

	a := arena.New()
	defer a.Free()
	msg := mintable.New(mt, a)

	status := mintable.Decode(buf, msg, mt, nil, mintable.Options{}, a)
	assert.Equal(t, mintable.Ok, status)
	assert.NotEmpty(t, mintable.Dump(buf))
}
