package join

import "testing"

func TestJoinFiresOnceAfterNCompletions(t *testing.T) {
	var j Join[string]
	fired := 0
	j.Start("checkpoint", 3, func(op string) {
		fired++
		if op != "checkpoint" {
			t.Fatalf("unexpected op in callback: %v", op)
		}
	})
	j.Complete("checkpoint")
	if fired != 0 {
		t.Fatalf("callback fired early after 1/3 completions")
	}
	j.Complete("checkpoint")
	j.Complete("checkpoint")
	if fired != 1 {
		t.Fatalf("expected callback to fire exactly once, fired=%d", fired)
	}
	if j.Active() {
		t.Fatalf("join should be inactive after completion")
	}
}

func TestJoinZeroChildrenFiresImmediately(t *testing.T) {
	var j Join[int]
	fired := false
	j.Start(1, 0, func(int) { fired = true })
	if !fired {
		t.Fatalf("expected immediate fire for n=0")
	}
	if j.Active() {
		t.Fatalf("join should not remain active after immediate fire")
	}
}

func TestOverlappingStartPanics(t *testing.T) {
	var j Join[int]
	j.Start(1, 2, func(int) {})
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on overlapping Start")
		}
	}()
	j.Start(2, 1, func(int) {})
}

func TestWrongOpCompletePanics(t *testing.T) {
	var j Join[int]
	j.Start(1, 1, func(int) {})
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on wrong-op completion")
		}
	}()
	j.Complete(2)
}

func TestCompleteWithNoPhasePanics(t *testing.T) {
	var j Join[int]
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic completing with no phase in flight")
		}
	}()
	j.Complete(1)
}

func TestCanStartNewPhaseAfterCompletion(t *testing.T) {
	var j Join[string]
	j.Start("open", 1, func(string) {})
	j.Complete("open")

	fired := false
	j.Start("checkpoint", 1, func(string) { fired = true })
	j.Complete("checkpoint")
	if !fired {
		t.Fatalf("expected second phase to run to completion")
	}
}
