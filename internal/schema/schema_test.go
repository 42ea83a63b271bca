package schema

import "testing"

type testAccount struct {
	Timestamp uint64
	ID        [2]uint64
	Ledger    uint32
	Flags     uint16
}

type badRecordSigned struct {
	Timestamp uint64
	Amount    int64
}

type badRecordNoTimestamp struct {
	ID uint64
}

func TestBuildDirectIndexes(t *testing.T) {
	s, err := NewBuilder[testAccount]().Ignore("Flags").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(s.Indexes) != 2 {
		t.Fatalf("expected 2 indexes (ID, Ledger), got %d: %+v", len(s.Indexes), s.Indexes)
	}

	byName := map[string]IndexHelper[testAccount]{}
	for _, idx := range s.Indexes {
		byName[idx.Name] = idx
	}

	if _, ok := byName["Flags"]; ok {
		t.Fatalf("Flags should have been ignored")
	}
	idIdx, ok := byName["ID"]
	if !ok {
		t.Fatalf("expected ID index")
	}
	if idIdx.Width != 128 {
		t.Fatalf("expected ID width 128, got %d", idIdx.Width)
	}

	rec := testAccount{Timestamp: 1, ID: [2]uint64{0, 0xAA}, Ledger: 7, Flags: 0}
	hi, lo, present := idIdx.Derive(rec)
	if !present || hi != 0 || lo != 0xAA {
		t.Fatalf("unexpected ID derive: hi=%d lo=%d present=%v", hi, lo, present)
	}

	ledgerIdx := byName["Ledger"]
	if ledgerIdx.Width != 64 {
		t.Fatalf("expected Ledger width 64, got %d", ledgerIdx.Width)
	}
	_, lo, present = ledgerIdx.Derive(rec)
	if !present || lo != 7 {
		t.Fatalf("unexpected Ledger derive: lo=%d present=%v", lo, present)
	}
}

func TestBuildDerivedIndexAbsence(t *testing.T) {
	s, err := NewBuilder[testAccount]().
		Ignore("Flags").
		Derived("category", 64, func(r testAccount) (uint64, uint64, bool) {
			if r.Flags&1 == 0 {
				return 0, 0, false
			}
			return 0, 5, true
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var cat IndexHelper[testAccount]
	for _, idx := range s.Indexes {
		if idx.Name == "category" {
			cat = idx
		}
	}
	if !cat.IsDerived() {
		t.Fatalf("expected category to be derived")
	}

	_, _, present := cat.Derive(testAccount{Flags: 0})
	if present {
		t.Fatalf("expected category absent when flags&1==0")
	}
	_, lo, present := cat.Derive(testAccount{Flags: 1})
	if !present || lo != 5 {
		t.Fatalf("expected category present with value 5, got lo=%d present=%v", lo, present)
	}
}

func TestBuildRejectsSignedField(t *testing.T) {
	_, err := NewBuilder[badRecordSigned]().Build()
	if err == nil {
		t.Fatalf("expected error for signed index field")
	}
}

func TestBuildRejectsMissingTimestamp(t *testing.T) {
	_, err := NewBuilder[badRecordNoTimestamp]().Build()
	if err == nil {
		t.Fatalf("expected error for missing Timestamp field")
	}
}
