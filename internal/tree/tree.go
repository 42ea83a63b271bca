// Package tree is the generic stand-in for spec.md §6's external "Tree"
// collaborator: a single LSM-style tree with the lifecycle the spec
// demands (Open/CompactIO/CompactCPU/Checkpoint/Get/Put/Remove). The
// concrete table/tree implementation is explicitly out of scope as a
// design concern (spec.md §1), but Grove/Forest need something real to
// drive, so this package adapts two teacher pieces into one:
// bplustree's in-memory sorted-node structure (kept as the mutable
// table / "memtable") and storage_engine/access/heapfile_manager's
// slotted persistence idiom (kept, in spirit, as the immutable run
// format persisted through internal/grid).
//
// Tombstone garbage collection (dropping a superseded tombstone once no
// reader can observe it) is not implemented — it is a property of the
// real tree's compaction policy, which spec.md §1 calls out of scope.
// Correctness of Get/T1 does not depend on it; it only affects how much
// space a long-lived Tree retains.
package tree

import (
	"encoding/json"
	"fmt"
	"sort"

	"grovedb/internal/grid"
	"grovedb/internal/nodepool"
)

// Table supplies the per-type comparison/tombstone behavior the spec
// assigns to the tree's Key/Value traits (spec.md §6 "Tree (external)...
// exposes Table.Key/Value/compare_keys/key_from_value/tombstone").
type Table[K any, V any] struct {
	Compare          func(a, b K) int
	KeyFromValue     func(v V) K
	Tombstone        func(v V) bool
	TombstoneFromKey func(k K) V
}

// entry is one (key, value) pair as stored in the memtable and in runs.
type entry[K any, V any] struct {
	Key   K
	Value V
}

// NodeSize is the fixed size of one node-pool block. Spec.md describes
// the node pool as a fixed-capacity allocator for tree *internal* nodes,
// shared across every tree in a Forest regardless of what record/field
// type that tree indexes — so, unlike the memtable (which is typed per
// tree), the pool itself must not be generic over K/V. Each Tree acquires
// one fixed-size block from the shared pool at construction and releases
// it in Close; the block's bytes are not read or written, since CompactIO
// and Checkpoint encode with encoding/json.
const NodeSize = 4096

// NodeBlock is the node pool's element type.
type NodeBlock [NodeSize]byte

// run is one immutable, sorted epoch of the tree, identified by the grid
// block it's persisted under. Fields are exported so the manifest that
// describes them round-trips through encoding/json.
type run[K any, V any] struct {
	Entries []entry[K, V]
	BlockID grid.BlockID
}

// Tree is one LSM-style tree: a mutable table plus zero or more immutable
// runs, all ultimately backed by a shared grid and node pool.
type Tree[K any, V any] struct {
	name             string
	table            Table[K, V]
	g                *grid.Grid
	pool             *nodepool.Pool[NodeBlock]
	nodeIdx          int32
	entries          []entry[K, V]
	commitCountMax   int
	prefetchCountMax int
	runs             []run[K, V]
	manifestBlockID  grid.BlockID
	nextRunBlockID   grid.BlockID
}

// New constructs a tree named name, acquiring one scratch node block from
// pool — the pool is shared Forest-wide (spec.md §4.6, §9 "Node pool
// stable address"), so a tree with no room left in the pool fails to
// construct with a resource-exhaustion error (spec.md §7), not a panic.
// prefetchCountMax and commitCountMax follow spec.md §4.3/§4.4 sizing (2x
// for the object tree to cover old+new versions within a batch, 0 for
// index trees since they are never pre-read on the hot path).
func New[K any, V any](name string, table Table[K, V], g *grid.Grid, pool *nodepool.Pool[NodeBlock], prefetchCountMax, commitCountMax int) (*Tree[K, V], error) {
	_, idx, err := pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("tree %s: acquire node-pool block: %w", name, err)
	}

	return &Tree[K, V]{
		name:             name,
		table:            table,
		g:                g,
		pool:             pool,
		nodeIdx:          idx,
		entries:          make([]entry[K, V], 0, commitCountMax),
		commitCountMax:   commitCountMax,
		prefetchCountMax: prefetchCountMax,
		manifestBlockID:  manifestBlockFor(name),
		nextRunBlockID:   manifestBlockFor(name) + 1,
	}, nil
}

// manifestBlockFor derives a stable block id for a tree name using an
// FNV-1a fold (registry itself hashes with xxhash); kept local and dependency-free here since a Tree must be
// constructible without importing registry (which itself sits above
// Forest, not below Tree).
func manifestBlockFor(name string) grid.BlockID {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return grid.BlockID(h)
}

// Close releases the tree's node-pool block back to the pool.
func (t *Tree[K, V]) Close() {
	t.pool.Release(t.nodeIdx)
}

// Get returns the live (non-tombstone) value for k, if any. The memtable
// shadows runs, and runs are searched newest-first, matching the spec's
// invariant that the most recent write for a key is authoritative.
func (t *Tree[K, V]) Get(k K) (V, bool) {
	var zero V
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.table.Compare(t.entries[i].Key, k) == 0 {
			if t.table.Tombstone(t.entries[i].Value) {
				return zero, false
			}
			return t.entries[i].Value, true
		}
	}
	for i := len(t.runs) - 1; i >= 0; i-- {
		entries := t.runs[i].Entries
		j := sort.Search(len(entries), func(idx int) bool {
			return t.table.Compare(entries[idx].Key, k) >= 0
		})
		if j < len(entries) && t.table.Compare(entries[j].Key, k) == 0 {
			if t.table.Tombstone(entries[j].Value) {
				return zero, false
			}
			return entries[j].Value, true
		}
	}
	return zero, false
}

// Put writes v under key KeyFromValue(v) into the memtable, overwriting
// any prior value for the same key already buffered in this generation.
func (t *Tree[K, V]) Put(v V) {
	k := t.table.KeyFromValue(v)
	for i := range t.entries {
		if t.table.Compare(t.entries[i].Key, k) == 0 {
			t.entries[i].Value = v
			return
		}
	}
	t.entries = append(t.entries, entry[K, V]{Key: k, Value: v})
}

// Remove writes a tombstone for k into the memtable.
func (t *Tree[K, V]) Remove(k K) {
	t.Put(t.table.TombstoneFromKey(k))
}

// Open loads this tree's persisted manifest, if one exists, and invokes
// cb once the grid completes the read on a later Tick. A tree with no
// prior checkpoint (a fresh Forest) opens as empty — that is not an
// error.
func (t *Tree[K, V]) Open(cb func(error)) {
	t.g.SubmitRead(t.manifestBlockID, func(data []byte, err error) {
		if err != nil {
			cb(nil) // no manifest yet: tree starts empty.
			return
		}
		var m manifest[K, V]
		if uerr := json.Unmarshal(data, &m); uerr != nil {
			cb(fmt.Errorf("tree %s: open: decode manifest: %w", t.name, uerr))
			return
		}
		t.runs = m.Runs
		t.nextRunBlockID = m.NextRunBlockID
		cb(nil)
	})
}

// CompactIO flushes the current memtable into a new immutable run and
// durably persists it through the grid, invoking cb on a later Tick. The
// memtable is cleared and the new run installed synchronously, so new
// writes land in a fresh generation immediately and the flushed entries
// stay readable; only the durability callback is deferred, matching
// spec.md §5's suspension-point model.
func (t *Tree[K, V]) CompactIO(cb func(error)) {
	snapshot := make([]entry[K, V], len(t.entries))
	copy(snapshot, t.entries)
	sort.Slice(snapshot, func(i, j int) bool {
		return t.table.Compare(snapshot[i].Key, snapshot[j].Key) < 0
	})
	t.entries = t.entries[:0]

	blockID := t.nextRunBlockID
	t.nextRunBlockID++
	t.runs = append(t.runs, run[K, V]{Entries: snapshot, BlockID: blockID})

	data, err := json.Marshal(snapshot)
	if err != nil {
		cb(fmt.Errorf("tree %s: compact_io: encode run: %w", t.name, err))
		return
	}

	t.g.SubmitWrite(grid.BlockID(blockID), data, func(err error) {
		if err != nil {
			cb(fmt.Errorf("tree %s: compact_io: %w", t.name, err))
			return
		}
		cb(nil)
	})
}

// CompactCPU synchronously merges all immutable runs into one, keeping
// the newest value for any key duplicated across runs. It never touches
// the grid and never queues work, per spec.md §5.
func (t *Tree[K, V]) CompactCPU() {
	if len(t.runs) <= 1 {
		return
	}
	merged := make(map[string]entry[K, V])
	order := make([]K, 0)
	keyString := func(k K) string {
		b, _ := json.Marshal(k)
		return string(b)
	}
	for _, r := range t.runs {
		for _, e := range r.Entries {
			ks := keyString(e.Key)
			if _, exists := merged[ks]; !exists {
				order = append(order, e.Key)
			}
			merged[ks] = e
		}
	}
	out := make([]entry[K, V], 0, len(order))
	for _, k := range order {
		out = append(out, merged[keyString(k)])
	}
	sort.Slice(out, func(i, j int) bool {
		return t.table.Compare(out[i].Key, out[j].Key) < 0
	})
	t.runs = []run[K, V]{{Entries: out, BlockID: t.runs[len(t.runs)-1].BlockID}}
}

// Checkpoint persists a manifest describing every current run and
// invokes cb once the grid durably commits it.
func (t *Tree[K, V]) Checkpoint(cb func(error)) {
	m := manifest[K, V]{Runs: t.runs, NextRunBlockID: t.nextRunBlockID}
	data, err := json.Marshal(m)
	if err != nil {
		cb(fmt.Errorf("tree %s: checkpoint: encode manifest: %w", t.name, err))
		return
	}
	t.g.SubmitWrite(t.manifestBlockID, data, func(err error) {
		if err != nil {
			cb(fmt.Errorf("tree %s: checkpoint: %w", t.name, err))
			return
		}
		cb(nil)
	})
}

// manifest is the on-disk description of a tree's immutable runs,
// spec.md §6's "persisted state layout" as it applies to this package.
type manifest[K any, V any] struct {
	Runs           []run[K, V]
	NextRunBlockID grid.BlockID
}
