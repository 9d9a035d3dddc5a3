package dispatch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/crew/internal/capability"
	"github.com/mohammad-safakhou/crew/internal/contract"
)

// TransportError is a typed network failure on a worker call: timeout,
// connection refused, or a non-success status. The dispatcher never
// retries; the supervisor loop owns retry policy.
type TransportError struct {
	Agent   capability.AgentName
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch to %s (%s): %v", e.Agent, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Dispatcher executes one plan step: it sends the run state snapshot to
// the worker's /invoke endpoint, blocks until the worker responds, and
// decodes any completion contract from the worker's newest output.
type Dispatcher struct {
	http   *HTTPClient
	logger *log.Logger
}

// NewDispatcher creates a dispatcher with the given per-call timeout.
func NewDispatcher(timeout time.Duration, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags)
	}
	return &Dispatcher{
		http:   NewHTTPClient(timeout, 0, 0),
		logger: logger,
	}
}

// Dispatch calls one worker with the current state and returns the
// worker's updated state plus the decoded contract, which is nil when
// the worker produced no parseable contract, meaning not complete yet;
// the caller applies its retry policy. Transport failures surface as a
// *TransportError.
func (d *Dispatcher) Dispatch(ctx context.Context, agent capability.AgentName, address string, state RunState) (RunState, *contract.Contract, error) {
	var updated RunState
	err := d.http.DoJSON(ctx, http.MethodPost, address+"/invoke", nil, state, &updated)
	if err != nil {
		return state, nil, &TransportError{Agent: agent, Address: address, Err: err}
	}

	if len(updated.Messages) == 0 {
		d.logger.Printf("agent %s returned no messages; keeping previous state", agent)
		return state, nil, nil
	}

	latest, ok := updated.LastAssistant()
	if !ok {
		d.logger.Printf("agent %s returned no assistant message", agent)
		return updated, nil, nil
	}
	c, ok := contract.Decode(latest)
	if !ok {
		return updated, nil, nil
	}
	return updated, &c, nil
}
