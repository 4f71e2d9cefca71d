// Package arena implements a bump-pointer region allocator with fusion
// semantics.
//
// An Arena hands out aligned byte ranges from a chain of growable blocks.
// Nothing returned by an Arena is ever freed individually: the entire chain
// (and, after [Fuse], every arena transitively fused to it) is released
// together by [Arena.Free], which runs every registered cleanup in
// last-in-first-out order before releasing the underlying blocks.
//
// Unlike a general-purpose allocator, an Arena never needs per-object
// bookkeeping: allocation is a pointer bump, and deallocation is "free
// everything, all at once." This is the allocation discipline that the rest
// of this module's decoded data lives under: every message, array, map, and
// unknown-field byte produced while decoding into a *message.Message is
// backed by the arena that decode call was given.
package arena

import (
	"unsafe"

	"github.com/bufbuild/mintable/internal/dbg"
)

// initialBlockSize is the size of the first block allocated by a fresh
// Arena, absent a caller-supplied initial block. Subsequent blocks double the
// previous block's size, matching the geometric growth policy described for
// the arena's slow allocation path.
const initialBlockSize = 256

// Align is the alignment, in bytes, that every allocation from an Arena
// honors. This matches the alignment of the widest scalar (pointer/float64)
// that message storage ever needs.
const Align = 8

// BlockAllocator supplies fresh backing storage for an Arena's blocks. It is
// called with the minimum acceptable size and must return a slice with at
// least that much capacity, or nil to signal exhaustion.
//
// The default, [DefaultBlockAllocator], just calls Go's make(); tests and
// memory-constrained embedders can supply their own to observe or cap the
// arena's growth.
type BlockAllocator func(size int) []byte

// DefaultBlockAllocator allocates ordinary garbage-collected memory.
func DefaultBlockAllocator(size int) []byte {
	return make([]byte, size)
}

// block is one link in an arena's chain of backing storage.
type block struct {
	buf  []byte
	next int // bump pointer: buf[:next] is spoken for.
}

func (b *block) remaining() int { return len(b.buf) - b.next }

// cleanup is a single LIFO-ordered cleanup registration.
type cleanup struct {
	data any
	fn   func(any)
}

// lastAlloc identifies the most recent allocation, so that Realloc can
// recognize the in-place growth fast path.
type lastAlloc struct {
	blockIdx int
	start    int
	size     int
}

// Arena is a bump-pointer region allocator.
//
// The zero Arena is not ready to use; construct one with [New].
type Arena struct {
	_ noCopy

	group *group

	alloc  BlockAllocator
	blocks []*block

	cleanups []cleanup
	last     lastAlloc

	bytesAllocated int
}

// noCopy helps `go vet` flag accidental copies of an Arena via its embedding
// Lock/Unlock no-ops; Arenas contain pointers that alias their own blocks'
// bump state and must not be copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Option configures a new Arena.
type Option func(*Arena)

// WithBlockAllocator overrides the function used to obtain fresh blocks.
func WithBlockAllocator(a BlockAllocator) Option {
	return func(ar *Arena) { ar.alloc = a }
}

// WithInitialBlock seeds the arena with a caller-supplied block (for
// instance, a stack-allocated buffer) instead of requesting one from the
// block allocator. This avoids the first heap allocation for short-lived
// arenas that rarely grow beyond the caller's scratch space.
func WithInitialBlock(buf []byte) Option {
	return func(ar *Arena) {
		ar.blocks = append(ar.blocks, &block{buf: buf})
	}
}

// New returns a ready-to-use Arena.
func New(opts ...Option) *Arena {
	a := &Arena{alloc: DefaultBlockAllocator}
	for _, opt := range opts {
		opt(a)
	}
	a.group = newGroup(a)
	if len(a.blocks) == 0 {
		a.growBy(initialBlockSize)
	}
	return a
}

// Stats reports cheap diagnostic counters for an Arena.
type Stats struct {
	BytesAllocated int
	BlockCount     int
}

// Stats returns this arena's current allocation statistics.
func (a *Arena) Stats() Stats {
	return Stats{BytesAllocated: a.bytesAllocated, BlockCount: len(a.blocks)}
}

func align(n, to int) int {
	return (n + to - 1) &^ (to - 1)
}

// Alloc returns size bytes of zeroed, Align-aligned memory from the arena.
//
// The returned slice's contents must not be referenced after [Arena.Free] is
// called on this arena or any arena it has been fused with.
func (a *Arena) Alloc(size int) []byte {
	n := size
	size = align(size, Align)
	if size == 0 {
		return nil
	}

	cur := a.blocks[len(a.blocks)-1]
	if cur.remaining() < size {
		a.growBy(size)
		cur = a.blocks[len(a.blocks)-1]
		if cur.remaining() < size {
			// growBy could not obtain a block big enough (the block
			// allocator is exhausted); surface this as a nil result rather
			// than slicing past a block's actual capacity.
			return nil
		}
	}

	start := cur.next
	cur.next += size
	a.bytesAllocated += size
	a.last = lastAlloc{blockIdx: len(a.blocks) - 1, start: start, size: size}

	dbg.Log([]any{"%p", a}, "alloc", "%d bytes at block %d+%d", size, a.last.blockIdx, start)
	return cur.buf[start : start+n : start+size]
}

// Realloc grows (or shrinks) a previous allocation to newSize bytes,
// preserving its contents up to min(oldSize, newSize).
//
// If old is the most recent allocation from this arena and the containing
// block has room, the allocation is extended in place. Otherwise a fresh
// allocation is made and the old contents are copied over.
func (a *Arena) Realloc(old []byte, newSize int) []byte {
	want := newSize
	newSize = align(newSize, Align)
	oldSize := align(len(old), Align)

	if a.isLastAlloc(old) {
		blk := a.blocks[a.last.blockIdx]
		grow := newSize - oldSize
		if grow <= blk.remaining() {
			if grow < 0 {
				clear(blk.buf[a.last.start+newSize : a.last.start+oldSize])
			}
			blk.next += grow
			a.bytesAllocated += grow
			a.last.size = newSize
			dbg.Log([]any{"%p", a}, "realloc-in-place", "%d->%d", oldSize, newSize)
			return blk.buf[a.last.start : a.last.start+want : a.last.start+newSize]
		}
	}

	if want <= len(old) {
		return old[:want]
	}

	fresh := a.Alloc(want)
	copy(fresh, old)
	dbg.Log([]any{"%p", a}, "realloc", "%d->%d (moved)", oldSize, newSize)
	return fresh
}

func (a *Arena) isLastAlloc(p []byte) bool {
	if len(p) == 0 || a.last.size == 0 || a.last.blockIdx >= len(a.blocks) {
		return false
	}
	blk := a.blocks[a.last.blockIdx]
	return align(len(p), Align) == a.last.size &&
		&p[0] == &blk.buf[a.last.start]
}

// growBy allocates a fresh block of at least size bytes, doubling the
// previous block's size (the geometric growth policy).
func (a *Arena) growBy(size int) {
	next := initialBlockSize
	if n := len(a.blocks); n > 0 {
		next = 2 * len(a.blocks[n-1].buf)
	}
	if size > next {
		next = size
	}

	buf := a.alloc(next)
	if buf == nil {
		// The block allocator is exhausted; panic is not appropriate here
		// since callers must observe this as an ordinary OutOfMemory status,
		// not a crash. We surface it by leaving the arena's last block
		// un-grown; Alloc will then hand back a zero-length slice, which
		// every caller in this module treats as allocation failure.
		dbg.Log([]any{"%p", a}, "grow", "allocator exhausted, requested %d", size)
		a.blocks = append(a.blocks, &block{buf: nil})
		return
	}

	dbg.Log([]any{"%p", a}, "grow", "new block of %d bytes", len(buf))
	a.blocks = append(a.blocks, &block{buf: buf})
}

// AddCleanup registers fn to be called with data when this arena (or the
// fused group it becomes part of) is freed.
//
// Cleanups registered on one arena run in last-in-first-out order. In a fused
// group, each member's cleanups run as one block, and the members are visited
// in reverse order of the group's member list.
func (a *Arena) AddCleanup(data any, fn func(any)) {
	a.cleanups = append(a.cleanups, cleanup{data: data, fn: fn})
}

// Free releases this arena's resources.
//
// If this arena has been fused with others (see [Fuse]), the underlying
// memory and cleanups are not actually released until every fused handle has
// called Free.
//
// Referencing any memory returned by this arena (or a fused arena) after the
// group's last Free call is undefined behavior.
func (a *Arena) Free() {
	free(a)
}

func (a *Arena) runCleanupsAndRelease() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		c := a.cleanups[i]
		c.fn(c.data)
	}
	a.cleanups = nil
	a.blocks = nil
}

// KeepAlive is a type-erasure-free no-op retained for API symmetry with
// allocators that must pin external data against a garbage collector; the
// Go runtime already keeps anything reachable from a live []byte alive, so
// arena-allocated memory needs no special pinning. It is provided so that
// code ported from a manual-memory-management mini-table host (where an
// explicit "keep alive" call is mandatory) has an obvious, harmless home for
// that call.
func (a *Arena) KeepAlive(unsafe.Pointer) {}
