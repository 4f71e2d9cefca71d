package minitable

import (
	"fmt"
	"sync"
)

// Extension describes one extension field: a field number owned by some
// other message ("the extendee") that was not compiled into the extendee's
// own mini-descriptor.
type Extension struct {
	Field    Field
	Extendee *MiniTable
	Sub      Sub
}

// BuildExtension decodes a single-field, '$'-tagged mini-descriptor
// describing one extension. Unlike [Build], extendee is supplied directly
// rather than being part of the descriptor grammar: an extension descriptor
// only ever carries the field's own number and type, since it is always
// decoded in the context of a specific (extendee, registry) pair. The layout
// is the one [Encoder] writes for a single field: the message-modifier
// varint, skip tokens advancing the implicit field number from 1, then the
// field-type token. Anything after the field-type token is not read.
func BuildExtension(descriptor string, extendee *MiniTable, sub Sub) (*Extension, error) {
	if len(descriptor) == 0 || descriptor[0] != TagExtension {
		return nil, fmt.Errorf("minitable: extension descriptor must start with %q", byte(TagExtension))
	}

	const numTypes = 18
	_, pos, err := decodeVarint(descriptor, 1)
	if err != nil {
		return nil, fmt.Errorf("minitable: extension modifiers: %w", err)
	}
	num := uint64(1)
	var tok uint64
	for {
		if tok, pos, err = decodeVarint(descriptor, pos); err != nil {
			return nil, fmt.Errorf("minitable: extension field token: %w", err)
		}
		if tok < 2*numTypes {
			break
		}
		num += tok - 2*numTypes + 1 // skip token
	}
	typ := Type(tok%numTypes + 1)
	repeated := tok >= numTypes

	mode := Mode{Presence: Explicit, Extension: true}
	if repeated {
		mode.Cardinality = Repeated
		mode.Presence = Implicit
	}

	subIndex := int16(-1)
	if typ == Message || typ == Group || typ == Enum {
		subIndex = 0
	}

	return &Extension{
		Field: Field{
			Number:   int32(num),
			Type:     typ,
			Mode:     mode,
			SubIndex: subIndex,
		},
		Extendee: extendee,
		Sub:      sub,
	}, nil
}

// extKey identifies one extension slot.
type extKey struct {
	extendee *MiniTable
	number   int32
}

// ExtensionRegistry resolves (extendee, field number) pairs to [Extension]
// descriptions for every extendable message a decoder may encounter. It is
// safe for concurrent use: lookups (the hot path, one per unrecognized
// field on an extendable message) take a read lock, and registration (rare,
// typically happening once at process startup) takes a write lock.
type ExtensionRegistry struct {
	mu  sync.RWMutex
	ext map[extKey]*Extension
}

// NewExtensionRegistry returns an empty registry.
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{ext: make(map[extKey]*Extension)}
}

// Register adds ext to the registry, keyed by (ext.Extendee, ext.Field.Number).
// It overwrites any existing registration for the same key.
func (r *ExtensionRegistry) Register(ext *Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ext[extKey{ext.Extendee, ext.Field.Number}] = ext
}

// Find looks up the extension registered for (extendee, number).
func (r *ExtensionRegistry) Find(extendee *MiniTable, number int32) (*Extension, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.ext[extKey{extendee, number}]
	return e, ok
}
