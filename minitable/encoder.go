package minitable

// Encoder builds a mini-descriptor string token by token. It is the dual of
// [Build]: translating a .proto descriptor into calls on an Encoder (or into
// a hand-written descriptor string) is the job of an out-of-scope
// definition-builder; Encoder itself has no dependency on any descriptor
// representation, proto or otherwise. It exists because this module's
// tests, and any tooling built on top of it, need a way to construct
// mini-descriptors without hand-computing varint bytes.
type Encoder struct {
	kind          byte
	defaultPacked bool
	validateUTF8  bool
	next          int32
	body          []byte
	oneofGroups   [][]int32
}

// NewEncoder starts a new mini-descriptor of the given kind, one of
// [TagMessage], [TagMapEntry], [TagMessageSet], or [TagExtension] (a single
// field, decoded with [BuildExtension]).
func NewEncoder(kind byte) *Encoder {
	return &Encoder{kind: kind, next: 1}
}

// SetDefaultPacked sets this message's default packed-ness for repeated
// packable fields; an individual field's FlipPacked option inverts it.
func (e *Encoder) SetDefaultPacked(v bool) *Encoder {
	e.defaultPacked = v
	return e
}

// SetValidateUTF8 marks every string field in this message as requiring
// well-formed UTF-8 contents.
func (e *Encoder) SetValidateUTF8(v bool) *Encoder {
	e.validateUTF8 = v
	return e
}

// FieldOption customizes one call to [Encoder.Field].
type FieldOption func(*fieldOpts)

type fieldOpts struct {
	required   bool
	implicit   bool
	flipPacked bool
}

// RequiredField marks the field as having required presence.
func RequiredField() FieldOption { return func(o *fieldOpts) { o.required = true } }

// ImplicitPresence marks the field as having implicit (proto3 singular) presence.
// Its absence means explicit presence.
func ImplicitPresence() FieldOption { return func(o *fieldOpts) { o.implicit = true } }

// FlipPacked inverts this message's default packed-ness for this one field.
func FlipPacked() FieldOption { return func(o *fieldOpts) { o.flipPacked = true } }

// Field appends one field-type token to the descriptor. number must be
// strictly greater than every number added so far; gaps are encoded as skip
// tokens automatically.
func (e *Encoder) Field(number int32, typ Type, repeated bool, opts ...FieldOption) *Encoder {
	if number < e.next {
		panic("minitable: Encoder.Field numbers must be added in strictly increasing order")
	}
	var o fieldOpts
	for _, opt := range opts {
		opt(&o)
	}

	const numTypes = 18
	if number > e.next {
		skipAmount := uint64(number - e.next)
		e.body = append(e.body, encodeVarint(35+skipAmount)...)
	}
	e.next = number + 1

	tok := uint64(typ - 1)
	if repeated {
		tok += numTypes
	}
	e.body = append(e.body, encodeVarint(tok)...)

	var mods uint64
	if o.required {
		mods |= modIsRequired
	}
	if o.implicit {
		mods |= modProto3Singular
	}
	if o.flipPacked {
		mods |= modFlipPacked
	}
	e.body = append(e.body, encodeVarint(mods)...)
	return e
}

// Oneof declares a oneof group over the given field numbers, which must
// already have been added via Field.
func (e *Encoder) Oneof(numbers ...int32) *Encoder {
	e.oneofGroups = append(e.oneofGroups, append([]int32(nil), numbers...))
	return e
}

// String renders the accumulated descriptor.
func (e *Encoder) String() string {
	var msgMods uint64
	if e.defaultPacked {
		msgMods |= msgModDefaultIsPacked
	}
	if e.validateUTF8 {
		msgMods |= msgModValidateUTF8
	}

	out := make([]byte, 0, len(e.body)+8)
	out = append(out, e.kind)
	out = append(out, encodeVarint(msgMods)...)
	out = append(out, e.body...)
	out = append(out, tokEndOfFields)

	for gi, g := range e.oneofGroups {
		if gi > 0 {
			out = append(out, tokOneofGroupSep)
		}
		for i, n := range g {
			if i > 0 {
				out = append(out, tokOneofFieldSep)
			}
			out = append(out, encodeVarint(uint64(n))...)
		}
	}
	return string(out)
}

// Build is a convenience that renders the descriptor and immediately calls
// [Build] with it.
func (e *Encoder) Build(subs []Sub) (*MiniTable, error) {
	return Build(e.String(), subs)
}
