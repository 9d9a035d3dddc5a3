// Package progress owns plan state across the lifetime of one request:
// the ordered steps, the current index, the completion order, and the
// per-capability retry counters. The tracker only counts; deciding when
// a retry count crosses an operational threshold belongs to the
// supervisor loop.
package progress

import (
	"errors"

	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/contract"
)

// Plan is the ordered list of capabilities chosen for one request.
// Immutable once created; re-planning mid-run is not supported.
type Plan []capability.Capability

// ErrEmptyPlan signals that the caller should answer directly instead
// of entering the dispatch loop.
var ErrEmptyPlan = errors.New("empty plan")

// Tracker is the plan state machine for a single request. It is owned
// by one supervisor run and never shared across requests.
type Tracker struct {
	plan      Plan
	index     int
	completed []capability.Capability
	retries   map[capability.Capability]int
}

// NewTracker starts tracking a non-empty plan at step zero.
func NewTracker(plan Plan) (*Tracker, error) {
	if len(plan) == 0 {
		return nil, ErrEmptyPlan
	}
	return &Tracker{
		plan:    plan,
		retries: make(map[capability.Capability]int),
	}, nil
}

// Done reports whether every step has completed.
func (t *Tracker) Done() bool { return t.index >= len(t.plan) }

// Current returns the capability the run is waiting on. Only valid
// while not done.
func (t *Tracker) Current() (capability.Capability, bool) {
	if t.Done() {
		return "", false
	}
	return t.plan[t.index], true
}

// Directive returns what the router should act on next: the current
// capability, or the FINISH sentinel once the plan is exhausted.
func (t *Tracker) Directive() Directive {
	if t.Done() {
		return Finish
	}
	return Directive(t.plan[t.index])
}

// ObserveCompletion feeds a decoded contract into the tracker. The
// index advances only when the contract names the current step; its
// retry counter resets and the capability is appended to the completion
// order. A contract for any other capability (stale or wrong) leaves
// the index unchanged and increments that capability's own counter;
// the current step's counter is untouched. Returns whether the plan
// advanced. The index never decreases.
func (t *Tracker) ObserveCompletion(c contract.Contract) bool {
	token := capability.Capability(c.CompletedCapability)
	if cur, ok := t.Current(); ok && token == cur {
		t.index++
		t.completed = append(t.completed, token)
		delete(t.retries, token)
		return true
	}
	t.retries[token]++
	return false
}

// RecordMiss counts a dispatch cycle that produced no usable contract
// against the current step.
func (t *Tracker) RecordMiss() {
	if cur, ok := t.Current(); ok {
		t.retries[cur]++
	}
}

// Retries returns how many times a capability has failed to complete.
func (t *Tracker) Retries(c capability.Capability) int { return t.retries[c] }

// Completed returns the capabilities finished so far, in completion order.
func (t *Tracker) Completed() []capability.Capability {
	out := make([]capability.Capability, len(t.completed))
	copy(out, t.completed)
	return out
}

// Index returns the current step index (== Len when done).
func (t *Tracker) Index() int { return t.index }

// Len returns the number of steps in the plan.
func (t *Tracker) Len() int { return len(t.plan) }

// Steps returns a copy of the plan.
func (t *Tracker) Steps() Plan {
	out := make(Plan, len(t.plan))
	copy(out, t.plan)
	return out
}
