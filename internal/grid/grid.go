// Package grid is the stand-in for the spec's "block grid" collaborator:
// an async block reader/writer with a logical clock, shared by every tree
// in a Forest. The grid itself is explicitly out of scope as a design
// concern (spec.md §1), but a concrete implementation is required for the
// rest of the subsystem to run and be tested against.
//
// Adapted from storage_engine/disk_manager (file handles keyed by file
// ID, page allocation) and storage_engine/wal_manager/wal_segment.go
// (append + fsync durability), merged into one component because the
// spec treats "grid" as the single I/O collaborator every tree submits
// through.
package grid

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlockID identifies one block of storage. Trees mint their own IDs; the
// grid only stores and retrieves bytes by ID.
type BlockID uint64

// Callback is invoked once a submitted write completes.
type Callback func(err error)

// ReadCallback is invoked once a submitted read completes.
type ReadCallback func(data []byte, err error)

// Grid is a single-threaded, cooperative block store. Submissions never
// block the caller and never complete inline — they complete on a later
// Tick(), which is this subsystem's concrete realization of spec.md §5's
// "complete by invoking the registered callback on a later tick."
type Grid struct {
	dir     string
	segment *os.File
	clock   uint64
	blocks  map[BlockID][]byte
	pending []func()
}

// Open creates (or reuses) a grid backed by dir. Each Grid instance opens
// one append-only segment file named after a fresh uuid rather than the
// teacher's sequential "wal_%016x.log" counter, so two Forests opened
// against the same dir never collide on a shared counter file.
func Open(dir string) (*Grid, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("grid: create dir: %w", err)
	}
	segPath := filepath.Join(dir, fmt.Sprintf("grid-%s.seg", uuid.NewString()))
	f, err := os.OpenFile(segPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("grid: open segment: %w", err)
	}
	return &Grid{
		dir:     dir,
		segment: f,
		blocks:  make(map[BlockID][]byte),
	}, nil
}

// Close releases the grid's segment file handle.
func (g *Grid) Close() error {
	if g.segment == nil {
		return nil
	}
	err := g.segment.Close()
	g.segment = nil
	return err
}

// Clock returns the grid's logical clock, advanced only by Tick.
func (g *Grid) Clock() uint64 { return g.clock }

// SubmitWrite durably appends data under id and queues cb to fire on the
// next Tick. The append+fsync happens synchronously (Go has no true async
// disk I/O without spinning up goroutines, and spec.md §5 rules out
// thread-shared memory for this subsystem); only the *completion callback*
// is deferred, which is what the spec's "suspension point" actually means
// here.
func (g *Grid) SubmitWrite(id BlockID, data []byte, cb Callback) {
	buf := make([]byte, len(data))
	copy(buf, data)

	if err := g.appendRecord(id, buf); err != nil {
		g.pending = append(g.pending, func() { cb(err) })
		return
	}
	g.blocks[id] = buf
	g.pending = append(g.pending, func() { cb(nil) })
}

// SubmitRead queues a lookup of id to complete on the next Tick.
func (g *Grid) SubmitRead(id BlockID, cb ReadCallback) {
	g.pending = append(g.pending, func() {
		data, ok := g.blocks[id]
		if !ok {
			cb(nil, fmt.Errorf("grid: block %d not found", id))
			return
		}
		out := make([]byte, len(data))
		copy(out, data)
		cb(out, nil)
	})
}

// Tick advances the grid's logical clock by one and drains every
// completion queued so far. Callbacks queued by other callbacks running
// during this Tick are drained on the *next* Tick, matching the spec's
// single-outstanding-phase expectations (a callback firing mid-drain
// cannot observe a clock tick that hasn't happened yet).
func (g *Grid) Tick() {
	g.clock++
	batch := g.pending
	g.pending = nil
	for _, fn := range batch {
		fn()
	}
}

// appendRecord writes a length-prefixed (id, data) record to the segment
// and forces it to stable storage, mirroring wal_segment.go's
// Append-then-Sync pattern.
func (g *Grid) appendRecord(id BlockID, data []byte) error {
	header := make([]byte, 12)
	binary.LittleEndian.PutUint64(header[0:8], uint64(id))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(data)))

	if _, err := g.segment.Write(header); err != nil {
		return fmt.Errorf("grid: write header: %w", err)
	}
	if _, err := g.segment.Write(data); err != nil {
		return fmt.Errorf("grid: write block: %w", err)
	}
	if err := durableSync(g.segment); err != nil {
		return fmt.Errorf("grid: sync segment: %w", err)
	}
	return nil
}
