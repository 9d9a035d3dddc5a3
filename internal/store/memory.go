package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process implementation of RunStore, UserStore and
// StatusStore, used when no Postgres/Redis is configured and in tests.
type Memory struct {
	mu       sync.RWMutex
	runs     map[string]RunRecord
	users    map[string]memoryUser // keyed by email
	statuses map[string]RunStatus
}

type memoryUser struct {
	id   string
	hash string
}

func NewMemory() *Memory {
	return &Memory{
		runs:     make(map[string]RunRecord),
		users:    make(map[string]memoryUser),
		statuses: make(map[string]RunStatus),
	}
}

func (m *Memory) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[email]; exists {
		return "", &duplicateError{email: email}
	}
	id := uuid.New().String()
	m.users[email] = memoryUser{id: id, hash: passwordHash}
	return id, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	if !ok {
		return "", "", ErrNotFound
	}
	return u.id, u.hash, nil
}

func (m *Memory) CreateRun(ctx context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rec.ID] = rec
	return nil
}

func (m *Memory) FinishRun(ctx context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.runs[rec.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = rec.Status
	existing.Plan = rec.Plan
	existing.Answer = rec.Answer
	existing.State = rec.State
	existing.Error = rec.Error
	if rec.FinishedAt != nil {
		existing.FinishedAt = rec.FinishedAt
	} else {
		now := time.Now().UTC()
		existing.FinishedAt = &now
	}
	m.runs[rec.ID] = existing
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListRuns(ctx context.Context, userID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RunRecord
	for _, rec := range m.runs {
		if userID != "" && rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SetStatus(ctx context.Context, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status.UpdatedAt = time.Now().UTC()
	m.statuses[status.RunID] = status
	return nil
}

func (m *Memory) GetStatus(ctx context.Context, runID string) (RunStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[runID]
	if !ok {
		return RunStatus{}, ErrNotFound
	}
	return status, nil
}

type duplicateError struct{ email string }

func (e *duplicateError) Error() string { return "user already exists: " + e.email }

// IsDuplicate reports whether err is a duplicate-user error from the
// memory store. Postgres callers should use IsUniqueViolation.
func IsDuplicate(err error) bool {
	_, ok := err.(*duplicateError)
	return ok
}
