//go:build !unix

package grid

import "os"

// durableSync falls back to the portable file.Sync() on non-unix
// platforms, matching the teacher's wal_segment.go behavior exactly.
func durableSync(f *os.File) error {
	return f.Sync()
}
