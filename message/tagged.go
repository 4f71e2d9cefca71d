package message

import (
	"github.com/bufbuild/mintable/arena"
	"github.com/bufbuild/mintable/minitable"
)

// EmptyMessage holds the raw, not-yet-parsed wire bytes of a message-typed
// field whose mini-table was not available to the decoder at parse time
// (most commonly: an extension field read before its extension was
// registered). The bytes are retained verbatim so a later caller that does
// know the right mini-table can parse them via [TaggedMessagePtr.PromoteTarget].
type EmptyMessage struct {
	arena *arena.Arena
	data  []byte
}

// NewEmptyMessage copies data onto a and wraps it as an EmptyMessage.
func NewEmptyMessage(a *arena.Arena, data []byte) *EmptyMessage {
	cp := a.Alloc(len(data))
	copy(cp, data)
	return &EmptyMessage{arena: a, data: cp}
}

// Bytes returns the raw, unparsed wire bytes this placeholder was built
// from.
func (e *EmptyMessage) Bytes() []byte { return e.data }

// TaggedMessagePtr is a pointer-to-message that distinguishes a
// fully-linked [Message] (decoded against its intended mini-table) from an
// [EmptyMessage] placeholder awaiting promotion.
//
// Upb represents this as a single machine word whose low bit is the tag
// (a real pointer value is always at least 4-byte aligned, leaving that bit
// free); Go gives no safe way to stash a tag bit inside a live pointer
// without losing the garbage collector's ability to trace it across a
// collection, so this is a two-pointer-field struct instead. One of the two
// fields is always nil; the extra word costs nothing a GC'd runtime would
// otherwise avoid paying for this distinction.
type TaggedMessagePtr struct {
	linked *Message
	empty  *EmptyMessage
}

// Linked wraps an already-typed message.
func Linked(m *Message) TaggedMessagePtr { return TaggedMessagePtr{linked: m} }

// Empty wraps a not-yet-typed placeholder.
func Empty(e *EmptyMessage) TaggedMessagePtr { return TaggedMessagePtr{empty: e} }

// IsEmpty reports whether this pointer is still an unpromoted placeholder.
func (t TaggedMessagePtr) IsEmpty() bool { return t.empty != nil }

// IsZero reports whether this pointer holds neither a linked message nor an
// empty placeholder (the zero value).
func (t TaggedMessagePtr) IsZero() bool { return t.linked == nil && t.empty == nil }

// LinkedMessage returns the wrapped message, or nil if this pointer is
// still an empty placeholder.
func (t TaggedMessagePtr) LinkedMessage() *Message { return t.linked }

// EmptyPlaceholder returns the wrapped placeholder, or nil if this pointer
// is already linked.
func (t TaggedMessagePtr) EmptyPlaceholder() *EmptyMessage { return t.empty }

// PromoteTarget allocates a fresh message of mt on the placeholder's arena
// for the caller to decode the placeholder's raw bytes into, returning
// those bytes alongside it. It does not itself parse anything — message
// has no dependency on the wire decoder — so the caller decodes raw into
// the returned message and then replaces its stored TaggedMessagePtr with
// [Linked] of that message. Returns ok == false if this pointer is already
// linked (nothing to promote).
func (t TaggedMessagePtr) PromoteTarget(mt *minitable.MiniTable) (*Message, []byte, bool) {
	if t.empty == nil {
		return nil, nil, false
	}
	return New(mt, t.empty.arena), t.empty.data, true
}
