// Package mintable is a from-scratch Protobuf wire-format runtime core: an
// arena allocator, a mini-table message model, and a single recursive,
// table-driven wire decoder, all addressable without a code-generation step.
//
// The pieces live in their own packages — [arena], [minitable], [message],
// [wire], [decode] — and this package is a thin facade over the one
// operation tying them together: decoding a buffer against a compiled
// [minitable.MiniTable] into a [message.Message]. Compiling a mini-table from
// a .proto descriptor, serializing a message back to the wire format for
// production use, and implementing [protoreflect.Message] are all out of
// scope; the [encode] package exists only to give this module's own tests
// something to decode against.
package mintable
