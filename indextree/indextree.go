// Package indextree implements spec.md §4.4's IndexTree: a membership-only
// tree over a composite key, one per indexed field. Two specializations
// exist — Tree64 and Tree128 — monomorphizing internal/tree exactly twice,
// per spec.md §9 "Two widths, not N... specialize the composite-key
// machinery exactly twice."
//
// Grounded on storage_engine/access/indexfile_manager/bplustree, the
// teacher's secondary-index structure, adapted here to composite
// (payload, timestamp) keys and membership-only values instead of
// pointer-to-record values.
package indextree

import (
	"grovedb/internal/grid"
	"grovedb/internal/key"
	"grovedb/internal/nodepool"
	"grovedb/internal/tree"
)

func table64() tree.Table[key.Value64, key.Value64] {
	return tree.Table[key.Value64, key.Value64]{
		Compare: key.Compare64,
		KeyFromValue: func(v key.Value64) key.Value64 {
			v.Deleted = false
			return v
		},
		Tombstone:        key.IsTombstone64,
		TombstoneFromKey: key.Tombstone64,
	}
}

func table128() tree.Table[key.Value128, key.Value128] {
	return tree.Table[key.Value128, key.Value128]{
		Compare: key.Compare128,
		KeyFromValue: func(v key.Value128) key.Value128 {
			v.Deleted = false
			return v
		},
		Tombstone:        key.IsTombstone128,
		TombstoneFromKey: key.Tombstone128,
	}
}

// Tree64 is an index tree over 64-bit payload composite keys (e.g. a
// ledger or flags index).
type Tree64 struct {
	tr *tree.Tree[key.Value64, key.Value64]
}

// NewTree64 constructs a 64-bit index tree. prefetch_count_max is always
// 0 (spec.md §4.4: index trees are never pre-read on the hot path).
func NewTree64(name string, g *grid.Grid, pool *nodepool.Pool[tree.NodeBlock], commitCountMax int) (*Tree64, error) {
	tr, err := tree.New[key.Value64, key.Value64](name, table64(), g, pool, 0, commitCountMax)
	if err != nil {
		return nil, err
	}
	return &Tree64{tr: tr}, nil
}

func (x *Tree64) Close() { x.tr.Close() }

// Has reports whether the composite key (payload, timestamp) is present
// and live.
func (x *Tree64) Has(k key.Value64) bool {
	k.Deleted = false
	_, ok := x.tr.Get(k)
	return ok
}

// Insert records membership of k.
func (x *Tree64) Insert(k key.Value64) {
	k.Deleted = false
	x.tr.Put(k)
}

// Remove tombstones k's membership.
func (x *Tree64) Remove(k key.Value64) {
	k.Deleted = false
	x.tr.Remove(k)
}

func (x *Tree64) Open(cb func(error))       { x.tr.Open(cb) }
func (x *Tree64) CompactIO(cb func(error))  { x.tr.CompactIO(cb) }
func (x *Tree64) CompactCPU()               { x.tr.CompactCPU() }
func (x *Tree64) Checkpoint(cb func(error)) { x.tr.Checkpoint(cb) }

// Tree128 is an index tree over 128-bit payload composite keys (e.g. an
// account-id index), per spec.md §4.1's second specialization.
type Tree128 struct {
	tr *tree.Tree[key.Value128, key.Value128]
}

func NewTree128(name string, g *grid.Grid, pool *nodepool.Pool[tree.NodeBlock], commitCountMax int) (*Tree128, error) {
	tr, err := tree.New[key.Value128, key.Value128](name, table128(), g, pool, 0, commitCountMax)
	if err != nil {
		return nil, err
	}
	return &Tree128{tr: tr}, nil
}

func (x *Tree128) Close() { x.tr.Close() }

func (x *Tree128) Has(k key.Value128) bool {
	k.Deleted = false
	_, ok := x.tr.Get(k)
	return ok
}

func (x *Tree128) Insert(k key.Value128) {
	k.Deleted = false
	x.tr.Put(k)
}

func (x *Tree128) Remove(k key.Value128) {
	k.Deleted = false
	x.tr.Remove(k)
}

func (x *Tree128) Open(cb func(error))       { x.tr.Open(cb) }
func (x *Tree128) CompactIO(cb func(error))  { x.tr.CompactIO(cb) }
func (x *Tree128) CompactCPU()               { x.tr.CompactCPU() }
func (x *Tree128) Checkpoint(cb func(error)) { x.tr.Checkpoint(cb) }
