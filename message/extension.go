package message

import "github.com/bufbuild/mintable/minitable"

// GetExtension returns the value previously stored for ext's field number,
// or ok == false if none has been set. The concrete type of value matches
// whatever [SetExtension] call stored it: a scalar Go type, a string
// (shared storage for both String and Bytes extensions; see
// [StringAsBytes]), a *[Message] for a linked message/group extension, an
// *[Array] for repeated extensions, or a [TaggedMessagePtr] holding an
// [EmptyMessage] placeholder for a message/group extension whose
// sub-mini-table was unavailable at decode time (awaiting a later
// PromoteExtensionPlaceholder call).
//
// Extensions are rare compared to ordinary fields, so — unlike the dense
// offset-addressed field storage in message.go — this stores values boxed
// in a lazily-allocated map rather than reserving layout for every
// extension a mini-table's extendee might ever see.
func (m *Message) GetExtension(ext *minitable.Extension) (value any, ok bool) {
	if m.extras == nil || m.extras.extensions == nil {
		return nil, false
	}
	value, ok = m.extras.extensions[ext.Field.Number]
	return
}

// SetExtension records value as the current contents of ext's field.
func (m *Message) SetExtension(ext *minitable.Extension, value any) {
	e := m.mutableExtras()
	if e.extensions == nil {
		e.extensions = make(map[int32]any)
	}
	e.extensions[ext.Field.Number] = value
}

// ClearExtension removes any value stored for ext's field number.
func (m *Message) ClearExtension(ext *minitable.Extension) {
	if m.extras == nil || m.extras.extensions == nil {
		return
	}
	delete(m.extras.extensions, ext.Field.Number)
}
