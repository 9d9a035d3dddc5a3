package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// statusTTL bounds how long a live status record outlives its last
// update. Finished runs live in Postgres; Redis only serves polling.
const statusTTL = 24 * time.Hour

// Conn opens and pings a Redis connection.
func Conn(ctx context.Context, host, port, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    password,
		DB:          db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisStatusStore implements StatusStore over Redis.
type RedisStatusStore struct {
	client *redis.Client
}

func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{client: client}
}

func statusKey(runID string) string { return "crew:run:" + runID + ":status" }

func (s *RedisStatusStore) SetStatus(ctx context.Context, status RunStatus) error {
	status.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, statusKey(status.RunID), b, statusTTL).Err()
}

func (s *RedisStatusStore) GetStatus(ctx context.Context, runID string) (RunStatus, error) {
	b, err := s.client.Get(ctx, statusKey(runID)).Bytes()
	if err == redis.Nil {
		return RunStatus{}, ErrNotFound
	}
	if err != nil {
		return RunStatus{}, err
	}
	var status RunStatus
	if err := json.Unmarshal(b, &status); err != nil {
		return RunStatus{}, err
	}
	return status, nil
}
