// Package join implements the one-shot counter + callback slot + op-tag
// fan-in primitive shared by Grove and Forest (spec.md §4.5/§4.6,
// GLOSSARY "Join"). It enforces "exactly one outstanding async phase at a
// time" (spec.md invariant I4) across N child completions.
//
// The teacher has no async fan-in of its own — DaemonDB is synchronous
// and mutex-protected throughout — so this is new code built directly
// from the spec's documented algorithm. Its shape (a small struct handed
// a callback it calls back into) mirrors the *kind* of collaborator
// storage_engine/bufferpool hands its WALFlushedLSNGetter, even though
// the bookkeeping itself is new.
package join

import "fmt"

// Join coalesces N child completions, each tagged with an Op, into one
// parent completion. Op distinguishes phases so that a completion
// arriving for the wrong phase is a programming-error panic, not a
// silent hang (spec.md §4.6).
type Join[Op comparable] struct {
	active   bool
	op       Op
	pending  int
	callback func(Op)
}

// Start begins a new phase tagged op, expecting n child completions
// before callback fires. Panics if a phase is already in flight — two
// overlapping async phases on the same Grove/Forest violate invariant I4
// and are a programming error (spec.md §7), not a recoverable condition.
func (j *Join[Op]) Start(op Op, n int, callback func(Op)) {
	if j.active {
		panic(fmt.Sprintf("join: cannot start phase %v: phase %v already in flight", op, j.op))
	}
	j.active = true
	j.op = op
	j.pending = n
	j.callback = callback
	if n <= 0 {
		j.finish()
	}
}

// Complete records one child completion for op. Once the Nth completion
// for the in-flight op arrives, invokes the registered callback exactly
// once and clears the join so a new phase may Start.
func (j *Join[Op]) Complete(op Op) {
	if !j.active {
		panic(fmt.Sprintf("join: completion for op %v with no phase in flight", op))
	}
	if op != j.op {
		panic(fmt.Sprintf("join: completion for wrong phase: got %v, want %v", op, j.op))
	}
	j.pending--
	if j.pending < 0 {
		panic(fmt.Sprintf("join: more completions than Start(n=...) expected for op %v", op))
	}
	if j.pending == 0 {
		j.finish()
	}
}

func (j *Join[Op]) finish() {
	cb := j.callback
	op := j.op
	j.active = false
	j.callback = nil
	cb(op)
}

// Active reports whether a phase is currently in flight.
func (j *Join[Op]) Active() bool { return j.active }
