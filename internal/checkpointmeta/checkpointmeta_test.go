package checkpointmeta

import (
	"testing"

	"grovedb/registry"
)

func TestLoadWithNoPriorCheckpointReturnsZeroRecord(t *testing.T) {
	m := New(t.TempDir())
	rec, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.GridClock != 0 || len(rec.Digests) != 0 {
		t.Fatalf("expected a zero record, got %+v", rec)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	digests := []registry.Digest{
		registry.Compute("account", "object"),
		registry.Compute("account", "ledger_index"),
	}
	if err := m.Save(digests, 42); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.GridClock != 42 {
		t.Fatalf("expected grid_clock=42, got %d", rec.GridClock)
	}
	if len(rec.Digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(rec.Digests))
	}
}

func TestSaveOverwritesPriorCheckpoint(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	if err := m.Save([]registry.Digest{registry.Compute("a", "b")}, 1); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := m.Save([]registry.Digest{registry.Compute("c", "d")}, 2); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	rec, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.GridClock != 2 {
		t.Fatalf("expected the latest checkpoint to win, got grid_clock=%d", rec.GridClock)
	}
}
