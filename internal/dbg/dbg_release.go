//go:build !debug

package dbg

// Enabled is false in ordinary (non -tags debug) builds.
const Enabled = false

func assert(cond bool, format string, args ...any) {}

func logf(context []any, operation, format string, args ...any) {}
