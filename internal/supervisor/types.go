package supervisor

import (
	"errors"
	"time"

	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/dispatch"
	"github.com/mohammad-safakhou/crew/internal/progress"
)

// ErrStalledWorkflow means the dispatch loop exhausted its cycle cap
// without finishing the plan. The cap bounds total work so a confused
// worker cannot spin the loop forever.
var ErrStalledWorkflow = errors.New("workflow stalled: cycle cap exhausted")

// ErrStuckStep means one plan step failed to complete more times than
// the configured per-step retry threshold.
var ErrStuckStep = errors.New("step stuck: retry threshold exceeded")

// ErrInvalidPlan means the planner emitted a step outside the
// advertised capability vocabulary.
var ErrInvalidPlan = errors.New("invalid plan")

// Result is the terminal outcome of one orchestration run.
type Result struct {
	RunID     string                  `json:"run_id"`
	Request   string                  `json:"request"`
	Plan      progress.Plan           `json:"plan"`
	Direct    bool                    `json:"direct"` // answered without dispatching
	Answer    string                  `json:"answer"`
	State     dispatch.RunState       `json:"state"`
	Completed []capability.Capability `json:"completed"`
	Duration  time.Duration           `json:"duration"`
	Cost      float64                 `json:"cost"`
	Tokens    int64                   `json:"tokens"`
}

// StepEvent is a progress notification emitted once per dispatch cycle.
type StepEvent struct {
	RunID     string                  `json:"run_id"`
	Cycle     int                     `json:"cycle"`
	Step      string                  `json:"step"`
	Agent     string                  `json:"agent"`
	Advanced  bool                    `json:"advanced"`
	Completed []capability.Capability `json:"completed"`
	Error     string                  `json:"error,omitempty"`
}

// StepObserver receives step events as a run progresses. Observers must
// not block; slow consumers should buffer on their side.
type StepObserver func(StepEvent)
