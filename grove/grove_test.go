package grove

import (
	"path/filepath"
	"testing"

	"grovedb/internal/grid"
	"grovedb/internal/key"
	"grovedb/internal/nodepool"
	"grovedb/internal/schema"
	"grovedb/internal/tree"
	"grovedb/objecttree"
)

func keyValue64(payload, ts uint64) key.Value64 {
	return key.Value64{Payload: payload, Timestamp: ts}
}

type account struct {
	Timestamp uint64
	ID        [2]uint64
	Ledger    uint32
	Flags     uint16
}

const tombstoneBit = uint64(1) << 63

func accountSchema(t *testing.T) *schema.Schema[account] {
	t.Helper()
	sch, err := schema.NewBuilder[account]().
		Ignore("Flags").
		Derived("category", 64, func(a account) (uint64, uint64, bool) {
			if a.Ledger == 0 {
				return 0, 0, false
			}
			return 0, uint64(a.Ledger % 10), true
		}).
		Build()
	if err != nil {
		t.Fatalf("schema.Build: %v", err)
	}
	return sch
}

func accountConfig() objecttree.Config[account] {
	return objecttree.Config[account]{
		Timestamp:         func(a account) uint64 { return a.Timestamp },
		ZeroWithTimestamp: func(ts uint64) account { return account{Timestamp: ts} },
	}
}

func newTestGrove(t *testing.T) (*Grove[account], *grid.Grid) {
	t.Helper()
	g, err := grid.Open(filepath.Join(t.TempDir(), "grid"))
	if err != nil {
		t.Fatalf("grid.Open: %v", err)
	}
	pool := nodepool.New[tree.NodeBlock](64)
	gr, err := New[account]("account", accountSchema(t), accountConfig(), g, pool, Options{CacheSize: 64, CommitCountMax: 16})
	if err != nil {
		t.Fatalf("grove.New: %v", err)
	}
	return gr, g
}

// Scenario 1: single insert + lookup, and the inserted record is visible
// through the object tree and through the Ledger and category indexes it
// derives a present value for.
func TestInsertThenGet(t *testing.T) {
	gr, _ := newTestGrove(t)
	a := account{Timestamp: 1, ID: [2]uint64{0, 42}, Ledger: 7}
	gr.Insert(a)

	got, ok := gr.Get(1)
	if !ok || got != a {
		t.Fatalf("expected to find inserted record, got %+v ok=%v", got, ok)
	}

	var idLedger, idCategory *boundIndex[account]
	for _, idx := range gr.indexes {
		switch idx.helper.Name {
		case "Ledger":
			idLedger = idx
		case "category":
			idCategory = idx
		}
	}
	if idLedger == nil || !idLedger.t64.Has(mustKey64(t, idLedger, a)) {
		t.Fatalf("expected Ledger index to contain the inserted record")
	}
	if idCategory == nil || !idCategory.t64.Has(mustKey64(t, idCategory, a)) {
		t.Fatalf("expected category index to contain the derived value")
	}
}

func mustKey64(t *testing.T, idx *boundIndex[account], a account) key.Value64 {
	t.Helper()
	_, lo, present := idx.helper.Derive(a)
	if !present {
		t.Fatalf("expected index %s to be present for %+v", idx.helper.Name, a)
	}
	return keyValue64(lo, a.Timestamp)
}

// Scenario: derived index absence/presence. A record with Ledger == 0
// produces no "category" entry at all, and a later update that changes
// Ledger away from zero must cause the entry to appear.
func TestDerivedIndexAbsencePresence(t *testing.T) {
	gr, _ := newTestGrove(t)
	a := account{Timestamp: 2, ID: [2]uint64{0, 1}, Ledger: 0}
	gr.Insert(a)

	var category *boundIndex[account]
	for _, idx := range gr.indexes {
		if idx.helper.Name == "category" {
			category = idx
		}
	}
	if category == nil {
		t.Fatalf("expected a category index to exist")
	}
	if _, _, present := category.helper.Derive(a); present {
		t.Fatalf("expected category to be absent for Ledger=0")
	}

	updated := a
	updated.Ledger = 23
	gr.Update(a, updated)

	hi, lo, present := category.helper.Derive(updated)
	_ = hi
	if !present {
		t.Fatalf("expected category to be present after Ledger becomes non-zero")
	}
	if !category.t64.Has(keyValue64(lo, updated.Timestamp)) {
		t.Fatalf("expected category index entry after update")
	}
}

// Scenario: update that changes an index value removes the old membership
// entry and inserts the new one.
func TestUpdateChangesIndexMembership(t *testing.T) {
	gr, _ := newTestGrove(t)
	a := account{Timestamp: 3, ID: [2]uint64{0, 9}, Ledger: 1}
	gr.Insert(a)

	updated := a
	updated.Ledger = 2
	gr.Update(a, updated)

	var ledger *boundIndex[account]
	for _, idx := range gr.indexes {
		if idx.helper.Name == "Ledger" {
			ledger = idx
		}
	}
	if ledger.t64.Has(keyValue64(uint64(a.Ledger), a.Timestamp)) {
		t.Fatalf("expected old Ledger membership to be removed")
	}
	if !ledger.t64.Has(keyValue64(uint64(updated.Ledger), updated.Timestamp)) {
		t.Fatalf("expected new Ledger membership to be present")
	}

	got, ok := gr.Get(3)
	if !ok || got.Ledger != 2 {
		t.Fatalf("expected object tree to reflect the update, got %+v", got)
	}
}

// Scenario: remove round-trip, including the byte-equality assertion.
func TestRemoveRoundTrip(t *testing.T) {
	gr, _ := newTestGrove(t)
	a := account{Timestamp: 4, ID: [2]uint64{0, 5}, Ledger: 3}
	gr.Insert(a)

	if err := gr.Remove(a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := gr.Get(4); ok {
		t.Fatalf("expected record to be gone after remove")
	}

	var ledger *boundIndex[account]
	for _, idx := range gr.indexes {
		if idx.helper.Name == "Ledger" {
			ledger = idx
		}
	}
	if ledger.t64.Has(keyValue64(uint64(a.Ledger), a.Timestamp)) {
		t.Fatalf("expected Ledger membership to be removed")
	}
}

func TestRemoveRejectsMismatchedRecord(t *testing.T) {
	gr, _ := newTestGrove(t)
	a := account{Timestamp: 5, ID: [2]uint64{0, 1}, Ledger: 1}
	gr.Insert(a)

	stale := a
	stale.Ledger = 999
	if err := gr.Remove(stale); err == nil {
		t.Fatalf("expected remove to reject a record that doesn't match the live one")
	}
}

// Open/CompactIO/Checkpoint fan out across the object tree and every
// index, firing their callback only after all children complete. A record
// flushed by CompactIO and covered by Checkpoint is restored by Open.
func TestOpenFansOutAcrossObjectAndIndexes(t *testing.T) {
	gr, g := newTestGrove(t)
	a := account{Timestamp: 6, ID: [2]uint64{0, 1}, Ledger: 4}
	gr.Insert(a)

	var compactErr error
	gr.CompactIO(func(err error) { compactErr = err })
	g.Tick()
	if compactErr != nil {
		t.Fatalf("compact_io: %v", compactErr)
	}

	var checkpointErr error
	gr.Checkpoint(func(err error) { checkpointErr = err })
	g.Tick()
	if checkpointErr != nil {
		t.Fatalf("checkpoint: %v", checkpointErr)
	}

	gr2, err := New[account]("account", accountSchema(t), accountConfig(), g, nodepool.New[tree.NodeBlock](64), Options{CacheSize: 64, CommitCountMax: 16})
	if err != nil {
		t.Fatalf("grove.New (reopen): %v", err)
	}
	var openErr error
	gr2.Open(func(err error) { openErr = err })
	g.Tick()
	if openErr != nil {
		t.Fatalf("open: %v", openErr)
	}
	if _, ok := gr2.Get(6); !ok {
		t.Fatalf("expected reopened grove to restore the checkpointed record")
	}
}

// Put dispatches to Insert when no record is currently live at the
// timestamp, and to Update otherwise.
func TestPutDispatchesInsertOrUpdate(t *testing.T) {
	gr, _ := newTestGrove(t)
	a := account{Timestamp: 7, ID: [2]uint64{0, 1}, Ledger: 1}
	gr.Put(a)

	got, ok := gr.Get(7)
	if !ok || got != a {
		t.Fatalf("expected Put to insert a new record, got %+v ok=%v", got, ok)
	}

	updated := a
	updated.Ledger = 2
	gr.Put(updated)

	got, ok = gr.Get(7)
	if !ok || got != updated {
		t.Fatalf("expected Put to update the existing record, got %+v ok=%v", got, ok)
	}

	var ledger *boundIndex[account]
	for _, idx := range gr.indexes {
		if idx.helper.Name == "Ledger" {
			ledger = idx
		}
	}
	if ledger.t64.Has(keyValue64(uint64(a.Ledger), a.Timestamp)) {
		t.Fatalf("expected old Ledger membership to be removed by Put's Update path")
	}
	if !ledger.t64.Has(keyValue64(uint64(updated.Ledger), updated.Timestamp)) {
		t.Fatalf("expected new Ledger membership to be present")
	}
}

// A byte-identical Update is a no-op: the live record and its index
// memberships are unchanged.
func TestUpdateNoOpWhenByteIdentical(t *testing.T) {
	gr, _ := newTestGrove(t)
	a := account{Timestamp: 8, ID: [2]uint64{0, 1}, Ledger: 5}
	gr.Insert(a)

	gr.Update(a, a)

	got, ok := gr.Get(8)
	if !ok || got != a {
		t.Fatalf("expected record to be unchanged after a no-op update, got %+v ok=%v", got, ok)
	}

	var ledger *boundIndex[account]
	for _, idx := range gr.indexes {
		if idx.helper.Name == "Ledger" {
			ledger = idx
		}
	}
	if !ledger.t64.Has(keyValue64(uint64(a.Ledger), a.Timestamp)) {
		t.Fatalf("expected Ledger membership to remain present after a no-op update")
	}
}

func TestOverlappingPhaseStartPanics(t *testing.T) {
	gr, _ := newTestGrove(t)
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected overlapping phase start to panic")
		}
	}()
	gr.Checkpoint(func(error) {})
	gr.Checkpoint(func(error) {})
}
