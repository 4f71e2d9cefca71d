package message

import "google.golang.org/protobuf/encoding/protowire"

// UnknownChunk is one arena-backed range of unknown-field wire bytes: a
// single tag plus its value, copied verbatim from the input.
//
// The distilled runtime model describes unknown-field storage as one
// reallocating, doubling byte buffer (mirroring upb's
// _upb_Message_AddUnknownV). This package instead accumulates a small slice
// of chunks — one append per unrecognized field — and only concatenates
// them into a single buffer on demand, in [Message.GetUnknown]. This is
// grounded on the teacher's own "zc" (zero-copy byte range) abstraction
// (zc.go, internal/zc): a lightweight offset/length pair referencing either
// arena or input memory, used there for exactly the same reason (avoid an
// O(n^2) reallocation sequence when a message carries many scattered
// unrecognized fields).
type UnknownChunk struct {
	Data []byte
}

// AddUnknown appends an arena-owned copy of data as one more unknown-field
// chunk.
func (m *Message) AddUnknown(data []byte) {
	if len(data) == 0 {
		return
	}
	cp := m.arena.Alloc(len(data))
	copy(cp, data)
	e := m.mutableExtras()
	e.unknown = append(e.unknown, UnknownChunk{Data: cp})
}

// AddUnknownAliased appends data as one more unknown-field chunk without
// copying it. The caller must guarantee data outlives m (e.g. it was
// already arena-allocated, or aliasing is known to be safe for the
// lifetime of the decode).
func (m *Message) AddUnknownAliased(data []byte) {
	if len(data) == 0 {
		return
	}
	e := m.mutableExtras()
	e.unknown = append(e.unknown, UnknownChunk{Data: data})
}

// GetUnknown returns the concatenation of every unknown-field chunk
// recorded so far, in the order they were added (which is wire order).
// Returns nil if none have been recorded.
func (m *Message) GetUnknown() []byte {
	if m.extras == nil || len(m.extras.unknown) == 0 {
		return nil
	}
	if len(m.extras.unknown) == 1 {
		return m.extras.unknown[0].Data
	}
	n := 0
	for _, c := range m.extras.unknown {
		n += len(c.Data)
	}
	out := make([]byte, 0, n)
	for _, c := range m.extras.unknown {
		out = append(out, c.Data...)
	}
	return out
}

// UnknownChunks returns the raw, unconcatenated chunk list.
func (m *Message) UnknownChunks() []UnknownChunk {
	if m.extras == nil {
		return nil
	}
	return m.extras.unknown
}

// FindUnknown scans the unknown-field chunk list for the first chunk whose
// leading tag names number, returning its verbatim tag-plus-value bytes.
//
// This is the chunk-list counterpart of upb's upb_MiniTable_FindUnknown,
// adapted to a representation that already keeps each occurrence as a
// separate, self-delimited chunk: upb scans tag-by-tag through one flat
// byte buffer because that is how it stores unknown data, but here each
// chunk's bounds are already known, so finding a match only requires
// decoding each chunk's own leading tag rather than re-walking the wire
// format of values to skip past them.
func (m *Message) FindUnknown(number int32) (data []byte, ok bool) {
	if m.extras == nil {
		return nil, false
	}
	for _, c := range m.extras.unknown {
		n, _, tagLen := protowire.ConsumeTag(c.Data)
		if tagLen < 0 {
			continue
		}
		if int32(n) == number {
			return c.Data, true
		}
	}
	return nil, false
}

// DeleteUnknown removes the chunk whose Data backing array is identical to
// data (compared by address and length, not content), as returned by a
// prior [Message.FindUnknown]. Reports whether a chunk was removed.
func (m *Message) DeleteUnknown(data []byte) bool {
	if m.extras == nil {
		return false
	}
	for i, c := range m.extras.unknown {
		if sameBytes(c.Data, data) {
			m.extras.unknown = append(m.extras.unknown[:i], m.extras.unknown[i+1:]...)
			return true
		}
	}
	return false
}

func sameBytes(a, b []byte) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}
