// Package store persists run archives and user accounts in Postgres and
// live run status in Redis. The orchestration loop itself never touches
// storage; the server layer records what the loop reports.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses persisted while a run moves through the loop.
const (
	RunStatusPending   = "pending"
	RunStatusPlanning  = "planning"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunRecord is the durable archive of one orchestration run.
type RunRecord struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id,omitempty"`
	Request    string          `json:"request"`
	Status     string          `json:"status"`
	Plan       []string        `json:"plan,omitempty"`
	Answer     string          `json:"answer,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunStatus is the live, frequently-updated view of an in-flight run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Cycle     int       `json:"cycle,omitempty"`
	Step      string    `json:"step,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Completed []string  `json:"completed,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStore archives runs.
type RunStore interface {
	CreateRun(ctx context.Context, rec RunRecord) error
	FinishRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, userID string, limit int) ([]RunRecord, error)
}

// UserStore manages user accounts for the run API.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (string, error)
	GetUserByEmail(ctx context.Context, email string) (id string, passwordHash string, err error)
}

// StatusStore tracks live run status with a bounded lifetime.
type StatusStore interface {
	SetStatus(ctx context.Context, status RunStatus) error
	GetStatus(ctx context.Context, runID string) (RunStatus, error)
}
