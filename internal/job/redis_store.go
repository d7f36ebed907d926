package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps job records in Redis: one JSON value per job plus a
// per-session list of recent job ids. Terminal transitions are guarded
// with WATCH so two racing writers cannot both finish the same job.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStoreConfig holds Redis connection configuration.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// TTL bounds how long records persist; zero means no expiry.
	TTL time.Duration
}

const sessionIndexLen = 50

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: "fileforge:", ttl: cfg.TTL}, nil
}

func (s *RedisStore) jobKey(id string) string {
	return s.prefix + "job:" + id
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

// Create stores a new job record and indexes it under its session.
func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.jobKey(j.ID), data, s.ttl)
	pipe.LPush(ctx, s.sessionKey(j.SessionID), j.ID)
	pipe.LTrim(ctx, s.sessionKey(j.SessionID), 0, sessionIndexLen-1)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.sessionKey(j.SessionID), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves a job record by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}

// Complete transitions a processing job to completed.
func (s *RedisStore) Complete(ctx context.Context, id, downloadPath string, warnings []string) (*Job, error) {
	return s.finish(ctx, id, func(j *Job) {
		j.Status = StatusCompleted
		j.DownloadPath = &downloadPath
		j.Warnings = append([]string(nil), warnings...)
	})
}

// Fail transitions a processing job to failed.
func (s *RedisStore) Fail(ctx context.Context, id, errorMessage string, warnings []string) (*Job, error) {
	return s.finish(ctx, id, func(j *Job) {
		j.Status = StatusFailed
		j.ErrorMessage = &errorMessage
		j.Warnings = append([]string(nil), warnings...)
	})
}

func (s *RedisStore) finish(ctx context.Context, id string, mutate func(*Job)) (*Job, error) {
	key := s.jobKey(id)
	var updated *Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("decode job: %w", err)
		}
		if j.Status.Terminal() {
			return ErrTerminal
		}

		mutate(&j)
		now := time.Now().UTC()
		j.CompletedAt = &now

		encoded, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		updated = &j
		return nil
	}

	// Retry on WATCH conflicts; ErrNotFound/ErrTerminal pass through.
	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("finish job %s: too many watch conflicts", id)
}

// ClearDownloadPath nulls the artifact location after reaping.
func (s *RedisStore) ClearDownloadPath(ctx context.Context, id string) error {
	key := s.jobKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("decode job: %w", err)
		}
		j.DownloadPath = nil

		encoded, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("clear download path for %s: too many watch conflicts", id)
}

// ListBySession returns the most recent jobs for a session, newest first.
func (s *RedisStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 10
	}

	ids, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Record expired; skip the stale index entry.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
