package decode

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bufbuild/mintable/internal/dbg"
	"github.com/bufbuild/mintable/message"
	"github.com/bufbuild/mintable/minitable"
	"github.com/bufbuild/mintable/wire"
)

// logPromotion traces a promotion attempt's outcome. format is rendered
// lazily via [dbg.Fprintf] so the Sprintf-style work it wraps is skipped
// entirely outside a debug build.
func logPromotion(operation string, number int32, status Status, found bool) {
	if !dbg.Enabled {
		return
	}
	dbg.Log(nil, operation, "%v", dbg.Fprintf("field %d: status=%v found=%v", number, status, found))
}

// PromoteField resolves a singular Message/Group field f that was left
// holding an unlinked [message.TaggedMessagePtr] placeholder (because its
// sub-mini-table was unavailable when msg was decoded): it re-resolves f's
// sub-mini-table from mt (the same mini-table msg was decoded against,
// updated in place once the missing type becomes known — see
// [minitable.MiniTable.GetSubMessageTable]), decodes the placeholder's
// captured bytes against it, and replaces the placeholder with the linked
// result.
//
// If f is not currently a placeholder (it was never unlinked, or a prior
// PromoteField call already resolved it), or mt still can't resolve f's
// sub-mini-table, PromoteField is a no-op that reports Ok — promotion is
// idempotent as long as the sub-table's shape doesn't change between calls.
func PromoteField(msg *message.Message, mt *minitable.MiniTable, f *minitable.Field, reg *minitable.ExtensionRegistry, opts Options) (status Status) {
	defer func() { logPromotion("promote-field", f.Number, status, status != Ok) }()
	tp := message.GetSubMessageTagged(msg, f)
	if !tp.IsEmpty() {
		return Ok
	}
	subMT, hasSub := mt.GetSubMessageTable(f)
	if !hasSub {
		return Ok
	}
	target, raw, ok := tp.PromoteTarget(subMT)
	if !ok {
		return Ok
	}
	if isGroupField(f) {
		var stripOK bool
		raw, stripOK = stripEndGroupTag(raw, f.Number)
		if !stripOK {
			return Malformed
		}
	}
	status = Decode(raw, target, subMT, reg, opts, msg.Arena())
	switch status {
	case Ok, MissingRequired, Unlinked:
		message.SetSubMessageTagged(msg, f, message.Linked(target))
	}
	return status
}

// PromoteExtensionPlaceholder resolves a message/group-typed extension that
// was stored as an unlinked [message.TaggedMessagePtr] placeholder (because
// the extension was registered, but its own sub-mini-table was not, at
// decode time — see [decoder.readExtension]). It is the extension-map
// counterpart of PromoteField; unlike PromoteExtension, it does not consult
// the unknown-field list, since a placeholder extension's bytes were never
// filed there.
//
// If ext's current value is not a placeholder (never unlinked, already
// promoted, or not a message/group extension at all), PromoteExtensionPlaceholder
// is a no-op that reports Ok.
func PromoteExtensionPlaceholder(msg *message.Message, ext *minitable.Extension, subMT *minitable.MiniTable, reg *minitable.ExtensionRegistry, opts Options) (status Status) {
	defer func() { logPromotion("promote-extension-placeholder", ext.Field.Number, status, status != Ok) }()
	v, ok := msg.GetExtension(ext)
	if !ok {
		return Ok
	}
	tp, ok := v.(message.TaggedMessagePtr)
	if !ok || !tp.IsEmpty() {
		return Ok
	}
	f := &ext.Field
	target, raw, ok := tp.PromoteTarget(subMT)
	if !ok {
		return Ok
	}
	if isGroupField(f) {
		var stripOK bool
		raw, stripOK = stripEndGroupTag(raw, f.Number)
		if !stripOK {
			return Malformed
		}
	}
	status = Decode(raw, target, subMT, reg, opts, msg.Arena())
	switch status {
	case Ok, MissingRequired, Unlinked:
		msg.SetExtension(ext, target)
	}
	return status
}

// PromoteUnknown implements promote_unknown(msg, mini_table, field,
// decode_options): f must be a field mt already declares (so it has a
// stable storage slot in msg), reached here because the particular
// occurrence the decoder saw had no per-occurrence slot to hold it
// unlinked — a Repeated or Map field element whose sub-mini-table was
// unavailable at decode time (see readRepeatedMessage, readMapField), or a
// plain unrecognized field number msg's layout happens to also describe as
// mt.Subs has since been updated to resolve it. PromoteUnknown finds the
// unknown bytes carrying f's field number, re-resolves f's sub-mini-table
// from mt, decodes the bytes against it, stores the result into f
// (appending for a Repeated field, replacing for a singular one), and
// removes the matched bytes from the unknown list. found reports whether
// any unknown bytes named f's field number; when found is false, status is
// always Ok.
//
// Only the first matching occurrence is promoted, mirroring upb's
// upb_MiniTable_FindUnknown (and the spec's singular "the unknown bytes for
// the given field", not "every occurrence"). Calling PromoteUnknown again
// after a successful promotion finds nothing left to match and reports
// (Ok, false): promotion is idempotent when mt's sub-table is unchanged.
func PromoteUnknown(msg *message.Message, mt *minitable.MiniTable, f *minitable.Field, reg *minitable.ExtensionRegistry, opts Options) (status Status, found bool) {
	defer func() { logPromotion("promote-unknown", f.Number, status, found) }()
	raw, ok := msg.FindUnknown(f.Number)
	if !ok {
		return Ok, false
	}
	subMT, hasSub := mt.GetSubMessageTable(f)
	if !hasSub {
		return Unlinked, true
	}
	payload, group, ok := extractFieldPayload(raw)
	if !ok || group != isGroupField(f) {
		return Malformed, true
	}

	target := message.New(subMT, msg.Arena())
	status = Decode(payload, target, subMT, reg, opts, msg.Arena())
	if status != Ok && status != MissingRequired && status != Unlinked {
		return status, true
	}
	msg.DeleteUnknown(raw)
	if f.Mode.Cardinality == minitable.Repeated {
		message.EnsureArray(msg, f, f.Type).AppendMessage(target)
	} else {
		message.SetSubMessage(msg, f, target)
	}
	return status, true
}

// PromoteExtension implements promote_extension: number must already be
// registered in reg against mt (e.g. an extension registered only after msg
// was decoded, whose bytes were filed as unknown at decode time). It finds
// the matching unknown bytes, decodes or unpacks them according to the
// extension's declared type, stores the result as msg's extension value,
// and removes the matched bytes from the unknown list.
//
// found reports whether number is both registered and present in msg's
// unknown bytes; when found is false, status is always Ok. As with
// PromoteUnknown, a second call after a successful promotion finds nothing
// left to match.
func PromoteExtension(msg *message.Message, mt *minitable.MiniTable, reg *minitable.ExtensionRegistry, number int32, opts Options) (status Status, found bool) {
	defer func() { logPromotion("promote-extension", number, status, found) }()
	if reg == nil {
		return Ok, false
	}
	ext, ok := reg.Find(mt, number)
	if !ok {
		return Ok, false
	}
	raw, ok := msg.FindUnknown(number)
	if !ok {
		return Ok, false
	}
	f := &ext.Field

	if f.Type == minitable.Message || f.Type == minitable.Group {
		if ext.Sub.Message == nil {
			return Unlinked, true
		}
		payload, group, ok := extractFieldPayload(raw)
		if !ok || group != isGroupField(f) {
			return Malformed, true
		}
		target := message.New(ext.Sub.Message, msg.Arena())
		status = Decode(payload, target, ext.Sub.Message, reg, opts, msg.Arena())
		if status != Ok && status != MissingRequired && status != Unlinked {
			return status, true
		}
		msg.DeleteUnknown(raw)
		msg.SetExtension(ext, target)
		return status, true
	}

	value, status, ok := promoteScalarOrString(f, raw, opts)
	if !ok {
		return status, true
	}
	msg.DeleteUnknown(raw)
	msg.SetExtension(ext, value)
	return status, true
}

// extractFieldPayload strips raw — a self-delimited unknown-chunk occurrence
// of exactly one [tag, value] — down to just the value bytes a recursive
// Decode call expects: the bytes after a Bytes-wire-type tag's length
// prefix, or the bytes between a StartGroup tag and its matching EndGroup
// tag. group reports which case applied.
func extractFieldPayload(raw []byte) (payload []byte, group bool, ok bool) {
	num, typ, tagLen := protowire.ConsumeTag(raw)
	if tagLen < 0 {
		return nil, false, false
	}
	rest := raw[tagLen:]
	switch typ {
	case protowire.BytesType:
		v, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return nil, false, false
		}
		return v, false, true
	case protowire.StartGroupType:
		n := protowire.ConsumeFieldValue(num, typ, rest)
		if n < 0 {
			return nil, false, false
		}
		inner, ok := stripEndGroupTag(rest[:n], int32(num))
		return inner, true, ok
	default:
		return nil, false, false
	}
}

// stripEndGroupTag trims the trailing EndGroup(number) tag that
// [decoder.captureSubBytes] leaves at the end of a captured group's raw
// bytes (it has to consume that tag itself to know where the group ends).
// Decode expects a plain message body with no such trailer.
func stripEndGroupTag(raw []byte, number int32) ([]byte, bool) {
	endTag := protowire.AppendTag(nil, protowire.Number(number), protowire.EndGroupType)
	if len(raw) < len(endTag) {
		return nil, false
	}
	body, tail := raw[:len(raw)-len(endTag)], raw[len(raw)-len(endTag):]
	for i := range endTag {
		if tail[i] != endTag[i] {
			return nil, false
		}
	}
	return body, true
}

// promoteScalarOrString decodes raw's value according to f's scalar/string
// type, matching the coercions [decoder.readExtension] applies at initial
// decode time.
func promoteScalarOrString(f *minitable.Field, raw []byte, opts Options) (value any, status Status, ok bool) {
	_, typ, tagLen := protowire.ConsumeTag(raw)
	if tagLen < 0 {
		return nil, Malformed, false
	}
	rest := raw[tagLen:]

	if f.Type == minitable.String || f.Type == minitable.Bytes {
		if typ != protowire.BytesType {
			return nil, Malformed, false
		}
		v, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return nil, Malformed, false
		}
		s := string(v)
		if f.Type == minitable.String && !validateUTF8(f, opts, s) {
			return nil, BadUTF8, false
		}
		return s, Ok, true
	}

	switch wireTypeForScalar(f.Type) {
	case wire.WireVarint:
		if typ != protowire.VarintType {
			return nil, Malformed, false
		}
		v, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return nil, Malformed, false
		}
		return varintScalarValue(f.Type, v), Ok, true
	case wire.WireFixed32:
		if typ != protowire.Fixed32Type {
			return nil, Malformed, false
		}
		v, n := protowire.ConsumeFixed32(rest)
		if n < 0 {
			return nil, Malformed, false
		}
		return v, Ok, true
	default: // wire.WireFixed64
		if typ != protowire.Fixed64Type {
			return nil, Malformed, false
		}
		v, n := protowire.ConsumeFixed64(rest)
		if n < 0 {
			return nil, Malformed, false
		}
		return v, Ok, true
	}
}
