package progress

import (
	"testing"

	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/contract"
)

func mustTracker(t *testing.T, steps ...capability.Capability) *Tracker {
	t.Helper()
	tr, err := NewTracker(Plan(steps))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func TestTrackerEmptyPlan(t *testing.T) {
	if _, err := NewTracker(nil); err != ErrEmptyPlan {
		t.Fatalf("expected ErrEmptyPlan, got %v", err)
	}
}

func TestTrackerHappyPath(t *testing.T) {
	tr := mustTracker(t, "research", "create_document", "gmail")

	for _, step := range []capability.Capability{"research", "create_document", "gmail"} {
		cur, ok := tr.Current()
		if !ok || cur != step {
			t.Fatalf("Current() = %q, %t; want %q", cur, ok, step)
		}
		if tr.Directive() != Directive(step) {
			t.Fatalf("Directive() = %q, want %q", tr.Directive(), step)
		}
		if !tr.ObserveCompletion(contract.Contract{CompletedCapability: string(step)}) {
			t.Fatalf("expected advance on %q", step)
		}
	}

	if !tr.Done() {
		t.Fatalf("expected done after all steps")
	}
	if tr.Directive() != Finish {
		t.Fatalf("expected FINISH directive, got %q", tr.Directive())
	}
	completed := tr.Completed()
	if len(completed) != 3 || completed[0] != "research" || completed[2] != "gmail" {
		t.Fatalf("completion order wrong: %v", completed)
	}
}

func TestTrackerMismatchedContract(t *testing.T) {
	tr := mustTracker(t, "research", "create_document")

	// A contract for a non-current capability must not advance the plan
	// and must count against the named capability, not the current step.
	if tr.ObserveCompletion(contract.Contract{CompletedCapability: "create_document"}) {
		t.Fatalf("stale contract should not advance")
	}
	if tr.Index() != 0 {
		t.Fatalf("index moved on mismatch: %d", tr.Index())
	}
	if got := tr.Retries("create_document"); got != 1 {
		t.Fatalf("mismatched token retries = %d, want 1", got)
	}
	if got := tr.Retries("research"); got != 0 {
		t.Fatalf("current step retries = %d, want 0", got)
	}
}

func TestTrackerRecordMiss(t *testing.T) {
	tr := mustTracker(t, "research")

	tr.RecordMiss()
	tr.RecordMiss()
	if got := tr.Retries("research"); got != 2 {
		t.Fatalf("retries = %d, want 2", got)
	}

	// Completing resets the counter for that capability.
	if !tr.ObserveCompletion(contract.Contract{CompletedCapability: "research"}) {
		t.Fatalf("expected advance")
	}
	if got := tr.Retries("research"); got != 0 {
		t.Fatalf("retries after completion = %d, want 0", got)
	}

	// Misses after done are no-ops.
	tr.RecordMiss()
	if got := tr.Retries("research"); got != 0 {
		t.Fatalf("retries after done = %d, want 0", got)
	}
}

func TestTrackerIndexMonotonic(t *testing.T) {
	tr := mustTracker(t, "a", "b")
	if !tr.ObserveCompletion(contract.Contract{CompletedCapability: "a"}) {
		t.Fatalf("expected advance")
	}
	// Re-observing an already-completed step never rewinds.
	tr.ObserveCompletion(contract.Contract{CompletedCapability: "a"})
	if tr.Index() != 1 {
		t.Fatalf("index = %d, want 1", tr.Index())
	}
}

func TestTrackerDuplicateStepTokens(t *testing.T) {
	// The same capability may appear at several positions; each
	// occurrence completes independently.
	tr := mustTracker(t, "research", "research")
	tr.ObserveCompletion(contract.Contract{CompletedCapability: "research"})
	if tr.Done() {
		t.Fatalf("one completion should not finish a two-step plan")
	}
	tr.ObserveCompletion(contract.Contract{CompletedCapability: "research"})
	if !tr.Done() {
		t.Fatalf("expected done after second completion")
	}
}
