//go:build debug

package dbg

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/timandy/routine"
)

// Enabled is true when this binary was built with -tags debug.
const Enabled = true

func assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("mintable: internal assertion failed: "+format, args...))
	}
}

func logf(context []any, operation, format string, args ...any) {
	pc, file, line, _ := runtime.Caller(2)
	fn := runtime.FuncForPC(pc)
	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	file = filepath.Base(file)

	buf := new(strings.Builder)
	fmt.Fprintf(buf, "%s:%d [g%04d", file, line, routine.Goid())
	if len(context) >= 1 {
		fmt.Fprintf(buf, ", "+context[0].(string), context[1:]...)
	}
	fmt.Fprintf(buf, "] %s: ", operation)
	fmt.Fprintf(buf, format, args...)
	buf.WriteByte('\n')

	_, _ = os.Stderr.WriteString(buf.String())
}
