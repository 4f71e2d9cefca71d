package message

import "github.com/bufbuild/mintable/minitable"

// Map is the runtime storage for a map field.
//
// The distilled model describes a map as an open-addressed or
// separately-chained table (mirroring upb's upb_Map, a Swiss-table-style
// hash map implemented from scratch in C because C has no built-in one).
// Go already has a hash map with exactly the semantics a protobuf map
// field needs — unspecified iteration order, O(1) average lookup/insert —
// built into the language and runtime, so this package uses one directly
// instead of re-deriving a hash table. Keys are stored as Go `any` boxing
// either a string or one of the integral key types; values are similarly
// boxed, except message-typed values, which are *Message pointers boxed
// the same way. Boxing costs an allocation per distinct key/value on
// first insert, which plain maps accept as the cost of generality; a
// production-grade rendering could specialize by key/value type the way
// the teacher's internal/swiss package does, at the cost of one Map
// implementation per (key type, value type) pair.
type Map struct {
	keyType minitable.Type
	valType minitable.Type
	entries map[any]any
}

// NewMap allocates an empty map for the given key and value types.
func NewMap(keyType, valType minitable.Type) *Map {
	return &Map{keyType: keyType, valType: valType, entries: make(map[any]any)}
}

// KeyType returns the declared key type.
func (m *Map) KeyType() minitable.Type { return m.keyType }

// ValType returns the declared value type.
func (m *Map) ValType() minitable.Type { return m.valType }

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.entries) }

// Set inserts or overwrites the value for key.
func (m *Map) Set(key, value any) { m.entries[key] = value }

// Get looks up key, returning ok == false if absent.
func (m *Map) Get(key any) (value any, ok bool) {
	value, ok = m.entries[key]
	return
}

// Range calls yield once per entry, in Go's unspecified map iteration
// order, matching the distilled model's "Map fields have unspecified
// iteration order" invariant without any extra bookkeeping. Stops early if
// yield returns false.
func (m *Map) Range(yield func(key, value any) bool) {
	for k, v := range m.entries {
		if !yield(k, v) {
			return
		}
	}
}
