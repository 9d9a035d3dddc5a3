package progress

import (
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/crew/internal/capability"
)

// Directive is what the tracker tells the router to do next: a
// capability token to dispatch, or the FINISH sentinel.
type Directive string

// Finish is the distinguished "no more work" directive ending a run.
const Finish Directive = "FINISH"

// ErrUnknownCapability indicates the planner produced a token the
// directory cannot resolve. This is a configuration/consistency bug
// between the planner vocabulary and discovery, never a transient
// condition, and must not be swallowed.
var ErrUnknownCapability = errors.New("unknown capability")

// Route maps a directive to the agent providing it. The directory is
// read-only here; routing is deterministic and has no side effects.
// The boolean result reports termination.
func Route(d Directive, dir *capability.Directory) (capability.AgentName, bool, error) {
	if d == Finish {
		return "", true, nil
	}
	agent, ok := dir.Resolve(capability.Capability(d))
	if !ok {
		return "", false, fmt.Errorf("%w: %q", ErrUnknownCapability, string(d))
	}
	return agent, false, nil
}
