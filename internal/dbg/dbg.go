// Package dbg provides the ambient logging and assertion helpers used across
// the module.
//
// Logging is gated behind the "debug" build tag, exactly as in the teacher
// package: production builds pay nothing for it, while a `-tags debug` build
// gets per-goroutine-tagged trace lines for the arena and decoder hot paths.
package dbg

import "fmt"

// Assert panics if cond is false. In production builds it checks nothing
// (the debug variant is stripped by build tag); cond is still evaluated at
// the call site, like any function argument.
//
// Use this only for invariants that indicate a bug in this module; never for
// validating untrusted input, which must always go through an ordinary error
// return.
func Assert(cond bool, format string, args ...any) {
	assert(cond, format, args...)
}

// Log prints a formatted trace line tagged with the calling package, file,
// line, and goroutine id.
//
// context, when non-empty, is a printf-style (format, args...) pair rendered
// before the operation name; this lets a caller stamp identifying
// information (such as an arena pointer) onto every line it logs, without
// having to repeat it at each call site.
func Log(context []any, operation, format string, args ...any) {
	logf(context, operation, format, args...)
}

// Errorf is a convenience wrapper around fmt.Errorf that prefixes messages
// with the module's error namespace, matching the teacher's "fastpb: ..."
// convention.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("mintable: "+format, args...)
}
