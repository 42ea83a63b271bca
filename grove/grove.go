// Package grove implements spec.md §4.5's Grove: one object tree plus a
// fixed tuple of index trees, one per schema field, kept consistent as
// records are inserted, updated and removed.
//
// Grounded on storage_engine/catalog's per-table construction shape
// (build a table's primary storage, then its secondary indexes, tearing
// down in reverse order on partial failure) and on internal/join for the
// async fan-out/fan-in spec.md §4.5 requires of open/compact_io/checkpoint.
package grove

import (
	"fmt"
	"reflect"

	"grovedb/indextree"
	"grovedb/internal/grid"
	"grovedb/internal/join"
	"grovedb/internal/key"
	"grovedb/internal/nodepool"
	"grovedb/internal/schema"
	"grovedb/internal/telemetry"
	"grovedb/internal/tree"
	"grovedb/objecttree"
)

// phase tags Grove's three async operations so internal/join can reject an
// out-of-phase completion as a programming error rather than a silent hang.
type phase int

const (
	phaseOpen phase = iota + 1
	phaseCompactIO
	phaseCheckpoint
)

// Options configures a Grove's value cache and batch sizing, per spec.md
// §4.3/§4.5 ("object tree prefetch_count_max = 2 * commit_count_max").
type Options struct {
	CacheSize      int
	CommitCountMax int
}

// Grove is one record type's object tree plus its index trees.
type Grove[R any] struct {
	name    string
	cfg     objecttree.Config[R]
	schema  *schema.Schema[R]
	object  *objecttree.ObjectTree[R]
	indexes []*boundIndex[R]
	log     telemetry.Logger

	j        join.Join[phase]
	phaseErr error
}

// New constructs a Grove named name for record type R, building the object
// tree first and then one index tree per schema.Indexes entry, in
// declaration order. If any index tree fails to construct, every
// already-built piece (indexes built so far, then the object tree) is torn
// down in reverse order before returning the error — a Grove is never left
// half-built.
func New[R any](name string, sch *schema.Schema[R], cfg objecttree.Config[R], g *grid.Grid, pool *nodepool.Pool[tree.NodeBlock], opts Options) (grv *Grove[R], err error) {
	object, err := objecttree.New[R](name+".object", cfg, g, pool, opts.CacheSize, opts.CommitCountMax)
	if err != nil {
		return nil, fmt.Errorf("grove %s: object tree: %w", name, err)
	}
	defer func() {
		if err != nil {
			object.Close()
		}
	}()

	built := make([]*boundIndex[R], 0, len(sch.Indexes))
	defer func() {
		if err != nil {
			for i := len(built) - 1; i >= 0; i-- {
				built[i].Close()
			}
		}
	}()

	for _, h := range sch.Indexes {
		bi, ierr := newBoundIndex(name, h, g, pool, opts.CommitCountMax)
		if ierr != nil {
			return nil, fmt.Errorf("grove %s: index %s: %w", name, h.Name, ierr)
		}
		built = append(built, bi)
	}

	log := telemetry.New("Grove")
	log.Printf("built name=%s indexes=%d", name, len(built))
	return &Grove[R]{
		name:    name,
		cfg:     cfg,
		schema:  sch,
		object:  object,
		indexes: built,
		log:     log,
	}, nil
}

// TreeNames lists this Grove's constituent tree names ("object" plus one
// per index, in schema declaration order), for Forest to assign registry
// digests against.
func (gr *Grove[R]) TreeNames() []string {
	names := make([]string, 0, 1+len(gr.indexes))
	names = append(names, "object")
	for _, idx := range gr.indexes {
		names = append(names, idx.helper.Name)
	}
	return names
}

// Close releases every tree's node-pool claim, indexes first, matching
// construction's reverse-order teardown discipline.
func (gr *Grove[R]) Close() {
	for i := len(gr.indexes) - 1; i >= 0; i-- {
		gr.indexes[i].Close()
	}
	gr.object.Close()
}

// Get is a pure, non-blocking read of the live record at timestamp ts
// (spec.md §4.5).
func (gr *Grove[R]) Get(ts uint64) (R, bool) {
	return gr.object.Get(ts)
}

// Insert adds a brand-new record: writes it into the object tree and
// inserts a membership entry into every index for which the record
// produces a present value (spec.md §4.2 "Absence vs. zero").
func (gr *Grove[R]) Insert(r R) {
	ts := gr.cfg.Timestamp(r)
	gr.object.Put(r)
	for _, idx := range gr.indexes {
		hi, lo, present := idx.helper.Derive(r)
		if present {
			idx.Insert(hi, lo, ts)
		}
	}
}

// Put writes r as the live record at its timestamp: if no record is
// currently live there, it is an Insert; otherwise it is an Update
// against whatever record Get currently returns (spec.md §4.5/§6 "put").
func (gr *Grove[R]) Put(r R) {
	ts := gr.cfg.Timestamp(r)
	if old, ok := gr.Get(ts); ok {
		gr.Update(old, r)
		return
	}
	gr.Insert(r)
}

// Update replaces old with updated (both carrying the same timestamp,
// spec.md §4.5 step 2). If old and updated are byte-identical, no tree
// operation is issued at all. Otherwise, for each index whose derived
// value changes — including a present/absent transition — the old
// membership entry is removed before the new one is inserted, so a
// field that derives to the same composite key before and after never
// observes a transient absence.
func (gr *Grove[R]) Update(old, updated R) {
	if reflect.DeepEqual(old, updated) {
		return
	}
	ts := gr.cfg.Timestamp(updated)
	gr.object.Put(updated)
	for _, idx := range gr.indexes {
		oh, ol, opresent := idx.helper.Derive(old)
		nh, nl, npresent := idx.helper.Derive(updated)
		changed := opresent != npresent || oh != nh || ol != nl
		if !changed {
			continue
		}
		if opresent {
			idx.Remove(oh, ol, ts)
		}
		if npresent {
			idx.Insert(nh, nl, ts)
		}
	}
}

// Remove deletes old's record: it checks that old is byte-identical to the
// currently-live record at its timestamp, returning an error and touching
// no tree if there is no live record there or it differs (it does not
// panic), then tombstones the object tree entry and every index membership
// entry old is present in.
func (gr *Grove[R]) Remove(old R) error {
	ts := gr.cfg.Timestamp(old)
	cur, ok := gr.Get(ts)
	if !ok {
		return fmt.Errorf("grove %s: remove: no live record at timestamp %d", gr.name, ts)
	}
	if !reflect.DeepEqual(cur, old) {
		return fmt.Errorf("grove %s: remove: caller's record does not match the live record at timestamp %d", gr.name, ts)
	}
	gr.object.Remove(ts)
	for _, idx := range gr.indexes {
		hi, lo, present := idx.helper.Derive(old)
		if present {
			idx.Remove(hi, lo, ts)
		}
	}
	return nil
}

// Open loads the object tree and every index tree's manifest, fanning out
// to 1+len(indexes) children and invoking cb once every child has
// completed (spec.md §4.5).
func (gr *Grove[R]) Open(cb func(error)) {
	gr.startPhase(phaseOpen, cb)
	gr.object.Open(gr.childDone(phaseOpen))
	for _, idx := range gr.indexes {
		idx.Open(gr.childDone(phaseOpen))
	}
}

// CompactIO flushes the object tree's and every index's memtable into a
// durable run, fanning out the same way Open does.
func (gr *Grove[R]) CompactIO(cb func(error)) {
	gr.startPhase(phaseCompactIO, cb)
	gr.object.CompactIO(gr.childDone(phaseCompactIO))
	for _, idx := range gr.indexes {
		idx.CompactIO(gr.childDone(phaseCompactIO))
	}
}

// CompactCPU synchronously merges runs in the object tree and every index
// tree. It never touches the grid, so it needs no join fan-in.
func (gr *Grove[R]) CompactCPU() {
	gr.object.CompactCPU()
	for _, idx := range gr.indexes {
		idx.CompactCPU()
	}
}

// Checkpoint persists a manifest for the object tree and every index tree,
// fanning out the same way Open and CompactIO do.
func (gr *Grove[R]) Checkpoint(cb func(error)) {
	gr.startPhase(phaseCheckpoint, cb)
	gr.object.Checkpoint(gr.childDone(phaseCheckpoint))
	for _, idx := range gr.indexes {
		idx.Checkpoint(gr.childDone(phaseCheckpoint))
	}
}

// Stats reports this Grove's index count, for the same operational
// visibility the teacher's buffer pool/heapfile log lines give.
func (gr *Grove[R]) Stats() string {
	return fmt.Sprintf("grove=%s indexes=%d", gr.name, len(gr.indexes))
}

func (gr *Grove[R]) startPhase(p phase, cb func(error)) {
	gr.phaseErr = nil
	gr.j.Start(p, 1+len(gr.indexes), func(phase) {
		if gr.phaseErr != nil {
			gr.log.Printf("phase failed name=%s phase=%d err=%v", gr.name, p, gr.phaseErr)
		}
		cb(gr.phaseErr)
	})
}

func (gr *Grove[R]) childDone(p phase) func(error) {
	return func(err error) {
		if err != nil && gr.phaseErr == nil {
			gr.phaseErr = err
		}
		gr.j.Complete(p)
	}
}

// boundIndex adapts one schema.IndexHelper[R] to the concrete 64- or
// 128-bit index tree its Width selects, so Grove can hold a single
// uniformly-typed slice regardless of how many distinct payload widths a
// schema uses (spec.md §9 "Two widths, not N").
type boundIndex[R any] struct {
	helper schema.IndexHelper[R]
	t64    *indextree.Tree64
	t128   *indextree.Tree128
}

func newBoundIndex[R any](groveName string, h schema.IndexHelper[R], g *grid.Grid, pool *nodepool.Pool[tree.NodeBlock], commitCountMax int) (*boundIndex[R], error) {
	treeName := groveName + "." + h.Name
	switch h.Width {
	case 64:
		t, err := indextree.NewTree64(treeName, g, pool, commitCountMax)
		if err != nil {
			return nil, err
		}
		return &boundIndex[R]{helper: h, t64: t}, nil
	case 128:
		t, err := indextree.NewTree128(treeName, g, pool, commitCountMax)
		if err != nil {
			return nil, err
		}
		return &boundIndex[R]{helper: h, t128: t}, nil
	default:
		return nil, fmt.Errorf("index %s: unsupported width %d", h.Name, h.Width)
	}
}

func (b *boundIndex[R]) Close() {
	if b.t64 != nil {
		b.t64.Close()
		return
	}
	b.t128.Close()
}

func (b *boundIndex[R]) Insert(hi, lo, ts uint64) {
	if b.t64 != nil {
		b.t64.Insert(key.Value64{Payload: lo, Timestamp: ts})
		return
	}
	b.t128.Insert(key.Value128{PayloadHi: hi, PayloadLo: lo, Timestamp: ts})
}

func (b *boundIndex[R]) Remove(hi, lo, ts uint64) {
	if b.t64 != nil {
		b.t64.Remove(key.Value64{Payload: lo, Timestamp: ts})
		return
	}
	b.t128.Remove(key.Value128{PayloadHi: hi, PayloadLo: lo, Timestamp: ts})
}

func (b *boundIndex[R]) Open(cb func(error)) {
	if b.t64 != nil {
		b.t64.Open(cb)
		return
	}
	b.t128.Open(cb)
}

func (b *boundIndex[R]) CompactIO(cb func(error)) {
	if b.t64 != nil {
		b.t64.CompactIO(cb)
		return
	}
	b.t128.CompactIO(cb)
}

func (b *boundIndex[R]) CompactCPU() {
	if b.t64 != nil {
		b.t64.CompactCPU()
		return
	}
	b.t128.CompactCPU()
}

func (b *boundIndex[R]) Checkpoint(cb func(error)) {
	if b.t64 != nil {
		b.t64.Checkpoint(cb)
		return
	}
	b.t128.Checkpoint(cb)
}
