// Package telemetry is the shared logging helper used across the Grove/Forest
// subsystem. It mirrors the teacher's own log texture ("[BufferPool] HIT
// pageID=%d...") instead of pulling in a structured logging library the
// teacher never used.
package telemetry

import (
	"log"

	"github.com/dustin/go-humanize"
)

// Logger writes terse "[Component] verb key=value" lines, matching the
// DaemonDB bufferpool/heapfile_manager log style.
type Logger struct {
	component string
}

// New returns a Logger scoped to the given component name, e.g. "Grove" or
// "Forest".
func New(component string) Logger {
	return Logger{component: component}
}

func (l Logger) Printf(format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{l.component}, args...)...)
}

// Bytes formats a byte count the way operational capacity lines do
// elsewhere in this codebase, e.g. "2.1 MB".
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
