package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Postgres implements RunStore and UserStore over a lib/pq connection.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens and pings a Postgres connection.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{DB: db}, nil
}

func (s *Postgres) Close() error { return s.DB.Close() }

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func (s *Postgres) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`,
		email, passwordHash).Scan(&id)
	return id, err
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (id string, passwordHash string, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &passwordHash)
	if err == sql.ErrNoRows {
		err = ErrNotFound
	}
	return
}

func (s *Postgres) CreateRun(ctx context.Context, rec RunRecord) error {
	var userID interface{}
	if rec.UserID != "" {
		userID = rec.UserID
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, user_id, request, status, started_at) VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, userID, rec.Request, rec.Status, rec.StartedAt)
	return err
}

func (s *Postgres) FinishRun(ctx context.Context, rec RunRecord) error {
	finished := rec.FinishedAt
	if finished == nil {
		now := time.Now().UTC()
		finished = &now
	}
	var state interface{}
	if len(rec.State) > 0 {
		state = []byte(rec.State)
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET status=$2, plan=$3, answer=$4, state=$5, error=$6, finished_at=$7 WHERE id=$1`,
		rec.ID, rec.Status, pq.Array(rec.Plan), rec.Answer, state, rec.Error, finished)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, COALESCE(user_id::text,''), request, status, COALESCE(plan,'{}'), COALESCE(answer,''), state, COALESCE(error,''), started_at, finished_at
FROM runs
WHERE id=$1
`, id)
	var rec RunRecord
	var state []byte
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Request, &rec.Status, pq.Array(&rec.Plan),
		&rec.Answer, &state, &rec.Error, &rec.StartedAt, &rec.FinishedAt); err != nil {
		if err == sql.ErrNoRows {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, err
	}
	if len(state) > 0 {
		rec.State = append(json.RawMessage{}, state...)
	}
	return rec, nil
}

func (s *Postgres) ListRuns(ctx context.Context, userID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, COALESCE(user_id::text,''), request, status, COALESCE(plan,'{}'), COALESCE(answer,''), COALESCE(error,''), started_at, finished_at
FROM runs
WHERE ($1 = '' OR user_id::text = $1)
ORDER BY started_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Request, &rec.Status, pq.Array(&rec.Plan),
			&rec.Answer, &rec.Error, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
