// Package forest implements spec.md §4.6's Forest: a fixed tuple of
// Groves sharing one grid and one node pool, with a single tick() driving
// time forward and async phases fanning out across every Grove.
//
// Grounded on storage_engine/catalog's all-tables-in-one-registry shape
// (construct each table in declaration order, tear down in reverse on
// failure) and on internal/join for the same fan-out/fan-in discipline
// grove uses one level up.
package forest

import (
	"fmt"

	"grovedb/internal/checkpointmeta"
	"grovedb/internal/grid"
	"grovedb/internal/join"
	"grovedb/internal/nodepool"
	"grovedb/internal/telemetry"
	"grovedb/internal/tree"
	"grovedb/registry"
)

// phase tags Forest's three async operations, mirroring grove's.
type phase int

const (
	phaseOpen phase = iota + 1
	phaseCompact
	phaseCheckpoint
)

// namedHandle is the subset of grove.Grove[R]'s API that Forest needs
// without committing to any particular record type R: its async/lifecycle
// surface plus the tree names it needs registered. grove.Grove[R]
// satisfies this for every R.
type namedHandle interface {
	Open(cb func(error))
	CompactIO(cb func(error))
	CompactCPU()
	Checkpoint(cb func(error))
	Close()
	TreeNames() []string
}

// Forest owns the shared grid and node pool every Grove draws from, plus
// the registry asserting every constituent tree's identity digest is
// unique.
type Forest struct {
	g    *grid.Grid
	pool *nodepool.Pool[tree.NodeBlock]
	reg  *registry.Registry
	meta *checkpointmeta.Manager

	order  []string
	byName map[string]namedHandle
	log    telemetry.Logger

	j        join.Join[phase]
	phaseErr error
}

// Options configures the shared resources a Forest allocates for its
// Groves to draw from.
type Options struct {
	// NodePoolCapacity is the number of fixed-size node blocks available
	// across every tree in every Grove (spec.md §9 "Node pool stable
	// address" — one pool, Forest-wide).
	NodePoolCapacity int
}

// Open constructs an empty Forest backed by a grid rooted at dir, ready
// for Groves to be added via Add. Grove construction order is the order
// Add is called in, matching spec.md §4.6 "Groves are built in schema
// declaration order."
func Open(dir string, opts Options) (*Forest, error) {
	g, err := grid.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("forest: %w", err)
	}
	f := &Forest{
		g:      g,
		pool:   nodepool.New[tree.NodeBlock](opts.NodePoolCapacity),
		reg:    registry.New(),
		meta:   checkpointmeta.New(dir),
		byName: make(map[string]namedHandle),
		log:    telemetry.New("Forest"),
	}
	f.log.Printf("opened dir=%s pool_capacity=%d", dir, opts.NodePoolCapacity)
	return f, nil
}

// Grid exposes the shared grid so Add's caller (which must construct a
// grove.Grove[R] with generic type parameters Forest itself can't name)
// can wire it into grove.New.
func (f *Forest) Grid() *grid.Grid { return f.g }

// Pool exposes the shared node pool for the same reason.
func (f *Forest) Pool() *nodepool.Pool[tree.NodeBlock] { return f.pool }

// Add registers an already-constructed Grove under name, assigning and
// checking a registry digest for each of its constituent trees. If any
// digest collides with one already registered in this Forest, the Grove
// is closed and an error returned — the caller must not use it further.
func Add[G namedHandle](f *Forest, name string, g G) (G, error) {
	var zero G
	for _, treeName := range g.TreeNames() {
		if _, err := f.reg.Assign(name, treeName); err != nil {
			g.Close()
			return zero, fmt.Errorf("forest: %w", err)
		}
	}
	if _, exists := f.byName[name]; exists {
		g.Close()
		return zero, fmt.Errorf("forest: grove %q already registered", name)
	}
	f.order = append(f.order, name)
	f.byName[name] = g
	f.log.Printf("grove registered name=%s trees=%d", name, len(g.TreeNames()))
	return g, nil
}

// Close tears down every Grove in reverse registration order, then the
// shared grid.
func (f *Forest) Close() {
	for i := len(f.order) - 1; i >= 0; i-- {
		f.byName[f.order[i]].Close()
	}
	f.g.Close()
}

// Tick advances the shared grid's clock by one step, draining whatever
// async completions were queued before this call (spec.md §5). Forest has
// no state of its own beyond the grid to advance.
func (f *Forest) Tick() {
	f.g.Tick()
}

// Open loads every Grove's persisted state, fanning out to one child per
// Grove and invoking cb once all have completed.
func (f *Forest) Open(cb func(error)) {
	f.startPhase(phaseOpen, cb)
	for _, name := range f.order {
		f.byName[name].Open(f.childDone(phaseOpen))
	}
}

// CompactIO flushes every Grove's memtables to durable runs, fanning out
// the same way Open does.
func (f *Forest) CompactIO(cb func(error)) {
	f.startPhase(phaseCompact, cb)
	for _, name := range f.order {
		f.byName[name].CompactIO(f.childDone(phaseCompact))
	}
}

// CompactCPU synchronously merges runs across every Grove.
func (f *Forest) CompactCPU() {
	for _, name := range f.order {
		f.byName[name].CompactCPU()
	}
}

// Checkpoint persists a manifest for every Grove, fanning out the same
// way Open and CompactIO do. Once every Grove's checkpoint completes
// successfully, it additionally persists a small crash-durable record of
// which tree digests this checkpoint covers and the grid clock at that
// moment (see internal/checkpointmeta).
func (f *Forest) Checkpoint(cb func(error)) {
	f.startPhase(phaseCheckpoint, func(err error) {
		if err == nil {
			if merr := f.meta.Save(f.reg.Digests(), f.g.Clock()); merr != nil {
				err = fmt.Errorf("forest: checkpoint metadata: %w", merr)
			}
		}
		cb(err)
	})
	for _, name := range f.order {
		f.byName[name].Checkpoint(f.childDone(phaseCheckpoint))
	}
}

func (f *Forest) startPhase(p phase, cb func(error)) {
	f.phaseErr = nil
	f.j.Start(p, len(f.order), func(phase) { cb(f.phaseErr) })
}

// Stats reports the shared node pool's current usage, in the same
// operational-visibility style as the teacher's buffer pool logging
// (capacity/usage counts, human-readable where it helps an operator).
func (f *Forest) Stats() string {
	return fmt.Sprintf("groves=%d node_pool=%d/%d", len(f.order), f.pool.InUse(), f.pool.Capacity())
}

func (f *Forest) childDone(p phase) func(error) {
	return func(err error) {
		if err != nil && f.phaseErr == nil {
			f.phaseErr = err
		}
		f.j.Complete(p)
	}
}
