package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufbuild/mintable/arena"
)

func TestAllocBumpsPointer(t *testing.T) {
	a := arena.New()
	p1 := a.Alloc(8)
	p2 := a.Alloc(8)
	require.Len(t, p1, 8)
	require.Len(t, p2, 8)

	p1[0] = 1
	assert.Zero(t, p2[0], "allocations must not alias")
}

func TestAllocGrowsAcrossBlocks(t *testing.T) {
	var requested []int
	a := arena.New(arena.WithBlockAllocator(func(size int) []byte {
		requested = append(requested, size)
		return make([]byte, size)
	}))

	// Force the arena past its initial block by requesting a big chunk.
	big := a.Alloc(4096)
	require.Len(t, big, 4096)
	assert.NotEmpty(t, requested)

	for i := range big {
		big[i] = byte(i)
	}
	for i, b := range big {
		assert.Equal(t, byte(i), b)
	}
}

func TestReallocInPlaceGrowsTailAllocation(t *testing.T) {
	a := arena.New()
	s := a.Alloc(8)
	copy(s, []byte("12345678"))

	grown := a.Realloc(s, 16)
	require.Len(t, grown, 16)
	assert.Equal(t, []byte("12345678"), grown[:8])
}

func TestReallocShrinkTruncates(t *testing.T) {
	a := arena.New()
	s := a.Alloc(16)
	copy(s, []byte("0123456789abcdef"))

	shrunk := a.Realloc(s, 4)
	assert.Equal(t, []byte("0123"), shrunk)
}

func TestCleanupsRunLIFOAtFree(t *testing.T) {
	a := arena.New()
	var order []int
	a.AddCleanup(1, func(v any) { order = append(order, v.(int)) })
	a.AddCleanup(2, func(v any) { order = append(order, v.(int)) })
	a.AddCleanup(3, func(v any) { order = append(order, v.(int)) })

	a.Free()
	assert.Equal(t, []int{3, 2, 1}, order)
}

// TestFuseKeepsMemoryLiveUntilAllFreed exercises the liveness property from
// the specification's testable-properties section: fuse(a, b); fuse(b, c)
// implies allocations from any of {a, b, c} remain valid until all three
// handles are freed.
func TestFuseKeepsMemoryLiveUntilAllFreed(t *testing.T) {
	a := arena.New()
	b := arena.New()
	c := arena.New()

	p := a.Alloc(64)
	copy(p, []byte("liveness-probe-bytes-0123456789"))

	var freed bool
	b.AddCleanup(nil, func(any) { freed = true })

	arena.Fuse(a, b)
	arena.Fuse(b, c)

	a.Free()
	assert.False(t, freed, "group must stay alive while b and c hold references")
	assert.Equal(t, byte('l'), p[0], "a's memory must remain readable")

	b.Free()
	assert.False(t, freed)

	c.Free()
	assert.True(t, freed, "cleanup must run once the last handle frees the group")
}

func TestFuseSelfAndSameGroupIsNoop(t *testing.T) {
	a := arena.New()
	b := arena.New()
	arena.Fuse(a, b)
	arena.Fuse(a, b) // already fused; must not double-free or panic.
	arena.Fuse(a, a)

	a.Free()
	b.Free()
}

func TestBlockAllocatorExhaustionYieldsEmptyAlloc(t *testing.T) {
	calls := 0
	a := arena.New(arena.WithBlockAllocator(func(size int) []byte {
		calls++
		if calls > 1 {
			return nil
		}
		return make([]byte, size)
	}))

	// First alloc succeeds using the initial block.
	_ = a.Alloc(8)
	// Exhaust the initial block to force a grow, which will fail.
	huge := a.Alloc(1 << 20)
	assert.Empty(t, huge)
}

func TestWithInitialBlockAvoidsFirstHeapAllocation(t *testing.T) {
	scratch := make([]byte, 64)
	calls := 0
	a := arena.New(
		arena.WithInitialBlock(scratch),
		arena.WithBlockAllocator(func(size int) []byte {
			calls++
			return make([]byte, size)
		}),
	)

	_ = a.Alloc(16)
	assert.Zero(t, calls, "allocating within the initial block must not invoke the block allocator")
}
