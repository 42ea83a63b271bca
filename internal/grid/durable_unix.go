//go:build unix

package grid

import (
	"os"

	"golang.org/x/sys/unix"
)

// durableSync forces a segment's writes to stable storage. On unix we
// reach for fdatasync directly (skips flushing file metadata that hasn't
// changed), the way a production grid would rather than the teacher's
// plain file.Sync().
func durableSync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
