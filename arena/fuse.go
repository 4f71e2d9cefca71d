package arena

import "sync"

// group is a fusion group: a set of arenas whose lifetimes have been tied
// together with [Fuse]. It is implemented as a union-find forest, with a
// refcount and member list valid only at the current root.
//
// The distilled specification suggests a lock-free implementation built from
// an atomic compare-and-swap on the group's parent pointer and refcount.
// Fuse and Free are rare, cold operations compared to Alloc (which never
// touches a group at all), so this module instead serializes them behind a
// single package-level mutex; this is the idiomatic Go trade: a
// straightforward, obviously-correct lock protecting a cold path, rather
// than a hand-rolled lock-free union-find that would need just as much care
// to get right without the benefit of ever being measured as a bottleneck.
type group struct {
	parent  *group
	refcont int32 // valid only when parent == nil (i.e. this is a root)
	members []*Arena
	freed   bool
}

var fuseMu sync.Mutex

func newGroup(a *Arena) *group {
	return &group{refcont: 1, members: []*Arena{a}}
}

// root walks g's parent chain to the current root, compressing the path as
// it goes. Callers must hold fuseMu.
func root(g *group) *group {
	top := g
	for top.parent != nil {
		top = top.parent
	}
	for g != top {
		next := g.parent
		g.parent = top
		g = next
	}
	return top
}

// Fuse merges the lifetime groups of a and b: neither's memory (nor any
// cleanup either has registered) is released until every arena transitively
// fused with it has called [Arena.Free].
//
// Fusing an arena with itself, or with another member of its own group, is a
// no-op. Fuse is typically needed when decoding into message A stores a
// pointer to data allocated from a different arena B (for instance, when a
// submessage was parsed into its own scratch arena before being attached to
// its parent); without Fuse, freeing B would leave A's pointers into B's
// memory dangling, while after Fuse(A, B) that memory stays live until both
// A and B have been freed.
func Fuse(a, b *Arena) {
	fuseMu.Lock()
	defer fuseMu.Unlock()

	ra, rb := root(a.group), root(b.group)
	if ra == rb {
		return
	}

	// Union by member-count, so repeated fusion stays roughly balanced.
	if len(ra.members) < len(rb.members) {
		ra, rb = rb, ra
	}
	rb.parent = ra
	ra.members = append(ra.members, rb.members...)
	ra.refcont += rb.refcont
	rb.members = nil
}

// free implements Arena.Free: it decrements the owning group's refcount and,
// if this was the last live handle into the group, runs every member
// arena's cleanups (LIFO, in reverse fusion order) and releases their
// blocks.
func free(a *Arena) {
	fuseMu.Lock()
	r := root(a.group)
	r.refcont--
	shouldFree := r.refcont <= 0 && !r.freed
	var members []*Arena
	if shouldFree {
		r.freed = true
		members = r.members
	}
	fuseMu.Unlock()

	if !shouldFree {
		return
	}
	for i := len(members) - 1; i >= 0; i-- {
		members[i].runCleanupsAndRelease()
	}
}
