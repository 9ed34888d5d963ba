package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Serph91P/streamvault/internal/domain"
	"github.com/Serph91P/streamvault/internal/metrics"
	"github.com/Serph91P/streamvault/internal/redis"
)

const (
	queueKey     = "jobs:queue"
	statusKeyFmt = "jobs:status:%s"
	resultTTL    = time.Hour
	popWait      = 5 * time.Second
)

// store is the slice of the Redis client the queue needs.
type store interface {
	PushQueue(ctx context.Context, queue string, payload []byte) error
	PopQueue(ctx context.Context, queue string, wait time.Duration) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Queue enqueues jobs into Redis and tracks their results.
type Queue struct {
	store store
}

func NewQueue(store store) *Queue {
	return &Queue{store: store}
}

// Enqueue pushes a job and records it as pending. Returns the job ID the
// client polls for the result.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, username string) (uuid.UUID, error) {
	job := Job{
		ID:         uuid.New(),
		Kind:       kind,
		Username:   username,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := q.setResult(ctx, job.ID, Result{Status: StatusPending}); err != nil {
		return uuid.Nil, fmt.Errorf("failed to record pending job: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.store.PushQueue(ctx, queueKey, payload); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.JobsEnqueuedTotal.WithLabelValues(string(kind)).Inc()
	return job.ID, nil
}

// GetResult fetches the stored outcome of a job. Returns
// domain.ErrJobNotFound for unknown or expired IDs.
func (q *Queue) GetResult(ctx context.Context, id uuid.UUID) (*Result, error) {
	raw, err := q.store.Get(ctx, fmt.Sprintf(statusKeyFmt, id))
	if errors.Is(err, redis.ErrMissing) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job result: %w", err)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode job result: %w", err)
	}
	return &result, nil
}

func (q *Queue) setResult(ctx context.Context, id uuid.UUID, result Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, fmt.Sprintf(statusKeyFmt, id), raw, resultTTL)
}

// pop blocks for the next job, returning redis.ErrEmpty on an idle queue.
func (q *Queue) pop(ctx context.Context) (*Job, error) {
	raw, err := q.store.PopQueue(ctx, queueKey, popWait)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}
