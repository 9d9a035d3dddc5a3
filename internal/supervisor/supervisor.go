// Package supervisor owns the orchestration loop: plan a request once,
// then repeatedly route the current step to its agent, dispatch, and
// feed the observed contract back into the tracker until the plan
// finishes or a safety cap trips.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/crew/config"
	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/dispatch"
	"github.com/mohammad-safakhou/crew/internal/progress"
	"github.com/mohammad-safakhou/crew/internal/telemetry"
)

// Supervisor coordinates one or more orchestration runs against a fixed
// capability directory. It is safe for concurrent Process calls; all
// per-run state lives on the stack of each call.
type Supervisor struct {
	directory *capability.Directory
	planner   *Planner
	dispatch  *dispatch.Dispatcher
	telemetry *telemetry.Telemetry
	cfg       config.SupervisorConfig
	logger    *log.Logger
}

// New creates a supervisor over a discovered directory.
func New(dir *capability.Directory, planner *Planner, d *dispatch.Dispatcher, tel *telemetry.Telemetry, cfg config.SupervisorConfig, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUPERVISOR] ", log.LstdFlags)
	}
	return &Supervisor{
		directory: dir,
		planner:   planner,
		dispatch:  d,
		telemetry: tel,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process runs one request end to end: plan, then dispatch step by step
// until the tracker emits FINISH. The observer may be nil.
func (s *Supervisor) Process(ctx context.Context, request string, observer StepObserver) (Result, error) {
	return s.ProcessWithID(ctx, uuid.New().String(), request, observer)
}

// ProcessWithID runs a request under a caller-assigned run ID, so the
// API layer can hand the ID to the client before the run completes.
func (s *Supervisor) ProcessWithID(ctx context.Context, runID, request string, observer StepObserver) (Result, error) {
	start := time.Now()

	result, err := s.process(ctx, runID, request, observer)
	result.RunID = runID
	result.Request = request
	result.Duration = time.Since(start)

	if s.telemetry != nil {
		agents := make([]string, 0, len(result.Completed))
		for _, c := range result.Completed {
			if a, ok := s.directory.Resolve(c); ok {
				agents = append(agents, string(a))
			}
		}
		event := telemetry.RunEvent{
			ID:         runID,
			Request:    request,
			StartTime:  start,
			EndTime:    time.Now(),
			Duration:   result.Duration,
			Success:    err == nil,
			AgentsUsed: agents,
		}
		if err != nil {
			event.Error = err.Error()
		}
		s.telemetry.RecordRunEvent(event)
	}

	return result, err
}

func (s *Supervisor) process(ctx context.Context, runID, request string, observer StepObserver) (Result, error) {
	plannerCtx := ctx
	if s.cfg.PlannerTimeout > 0 {
		var cancel context.CancelFunc
		plannerCtx, cancel = context.WithTimeout(ctx, s.cfg.PlannerTimeout)
		defer cancel()
	}

	outcome, err := s.planner.Plan(plannerCtx, request, s.directory.Capabilities())
	if err != nil {
		return Result{}, err
	}

	state := dispatch.RunState{
		Messages: []dispatch.Message{{Role: "user", Content: request}},
	}

	if outcome.Direct {
		s.logger.Printf("[%s] answered directly, no dispatches", runID)
		state.Messages = append(state.Messages, dispatch.Message{Role: "assistant", Content: outcome.DirectAnswer})
		return Result{Direct: true, Answer: outcome.DirectAnswer, State: state}, nil
	}

	tracker, err := progress.NewTracker(outcome.Steps)
	if err != nil {
		return Result{Plan: outcome.Steps}, err
	}

	// The cap bounds total loop iterations: every cycle either advances
	// the plan or burns one retry, so a finishing run fits within it.
	maxRetries := s.cfg.MaxRetriesPerStep
	if maxRetries < 1 {
		maxRetries = 3
	}
	maxCycles := tracker.Len()*maxRetries + 1

	transportFailures := make(map[capability.Capability]int)

	for cycle := 1; cycle <= maxCycles; cycle++ {
		agent, finished, err := progress.Route(tracker.Directive(), s.directory)
		if err != nil {
			return s.resultFromState(tracker, outcome.Steps, state), err
		}
		if finished {
			return s.finish(runID, tracker, outcome.Steps, state), nil
		}

		current, _ := tracker.Current()
		address, ok := s.directory.AddressOf(agent)
		if !ok {
			return s.resultFromState(tracker, outcome.Steps, state),
				fmt.Errorf("no address for agent %s providing %s", agent, current)
		}

		s.logger.Printf("[%s] cycle %d/%d: step %s -> %s", runID, cycle, maxCycles, current, agent)

		dispatchCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.DispatchTimeout > 0 {
			dispatchCtx, cancel = context.WithTimeout(ctx, s.cfg.DispatchTimeout)
		}
		dispatchStart := time.Now()
		newState, c, err := s.dispatch.Dispatch(dispatchCtx, agent, address, state)
		if cancel != nil {
			cancel()
		}

		if s.telemetry != nil {
			s.telemetry.RecordDispatchEvent(telemetry.DispatchEvent{
				RunID:      runID,
				Agent:      string(agent),
				Capability: string(current),
				Duration:   time.Since(dispatchStart),
				Success:    err == nil,
			})
		}

		if err != nil {
			var te *dispatch.TransportError
			if errors.As(err, &te) {
				// Transport failures are counted separately from contract
				// misses: the worker never saw the state, so the tracker
				// stays untouched.
				transportFailures[current]++
				s.logger.Printf("[%s] transport failure %d/%d for %s: %v",
					runID, transportFailures[current], maxRetries, current, err)
				s.notify(observer, StepEvent{
					RunID: runID, Cycle: cycle, Step: string(current),
					Agent: string(agent), Completed: tracker.Completed(), Error: err.Error(),
				})
				if transportFailures[current] >= maxRetries {
					return s.resultFromState(tracker, outcome.Steps, state),
						fmt.Errorf("%w: %s unreachable after %d attempts: %v", ErrStuckStep, current, maxRetries, err)
				}
				if ctx.Err() != nil {
					return s.resultFromState(tracker, outcome.Steps, state), ctx.Err()
				}
				continue
			}
			return s.resultFromState(tracker, outcome.Steps, state), err
		}

		state = newState
		delete(transportFailures, current)

		advanced := false
		if c == nil {
			tracker.RecordMiss()
			s.logger.Printf("[%s] no contract from %s for step %s (retry %d)",
				runID, agent, current, tracker.Retries(current))
		} else {
			advanced = tracker.ObserveCompletion(*c)
			if !advanced {
				s.logger.Printf("[%s] contract for %q does not match current step %s",
					runID, c.CompletedCapability, current)
			}
		}

		s.notify(observer, StepEvent{
			RunID: runID, Cycle: cycle, Step: string(current),
			Agent: string(agent), Advanced: advanced, Completed: tracker.Completed(),
		})

		if !advanced && tracker.Retries(current) >= maxRetries {
			return s.resultFromState(tracker, outcome.Steps, state),
				fmt.Errorf("%w: %s failed %d times", ErrStuckStep, current, tracker.Retries(current))
		}

		if tracker.Done() {
			return s.finish(runID, tracker, outcome.Steps, state), nil
		}

		if ctx.Err() != nil {
			return s.resultFromState(tracker, outcome.Steps, state), ctx.Err()
		}
	}

	return s.resultFromState(tracker, outcome.Steps, state),
		fmt.Errorf("%w: %d cycles", ErrStalledWorkflow, maxCycles)
}

func (s *Supervisor) finish(runID string, tracker *progress.Tracker, plan progress.Plan, state dispatch.RunState) Result {
	answer, _ := state.LastAssistant()
	s.logger.Printf("[%s] finished: %d/%d steps completed", runID, tracker.Index(), tracker.Len())
	return Result{
		Plan:      plan,
		Answer:    answer,
		State:     state,
		Completed: tracker.Completed(),
	}
}

func (s *Supervisor) resultFromState(tracker *progress.Tracker, plan progress.Plan, state dispatch.RunState) Result {
	return Result{
		Plan:      plan,
		State:     state,
		Completed: tracker.Completed(),
	}
}

func (s *Supervisor) notify(observer StepObserver, event StepEvent) {
	if observer != nil {
		observer(event)
	}
}
