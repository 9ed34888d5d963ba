package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Serph91P/streamvault/internal/logging"
	"github.com/Serph91P/streamvault/internal/metrics"
	"github.com/Serph91P/streamvault/internal/redis"
)

// handlers is the subset of the eventsub service the worker executes.
type handlers interface {
	TrackStreamer(ctx context.Context, username string) (string, error)
	ResubscribeAll(ctx context.Context) (string, error)
}

// Worker drains the job queue and runs each job under a bounded timeout.
type Worker struct {
	queue      *Queue
	service    handlers
	jobTimeout time.Duration
}

func NewWorker(queue *Queue, service handlers, jobTimeout time.Duration) *Worker {
	return &Worker{
		queue:      queue,
		service:    service,
		jobTimeout: jobTimeout,
	}
}

// Run blocks until ctx is cancelled, processing jobs one at a time.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("Job worker started", "timeout", w.jobTimeout)
	for {
		job, err := w.queue.pop(ctx)
		if errors.Is(err, redis.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Job worker stopped")
				return
			}
			slog.Error("Failed to pop job", "error", err)
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	log := logging.WithJob(job.ID.String())

	start := time.Now()
	message, err := w.execute(jobCtx, job)
	metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	result := Result{Status: StatusSuccess, Message: message}
	if err != nil {
		result = Result{Status: StatusFailure, Message: err.Error()}
		log.Error("Job failed", "kind", job.Kind, "error", err)
	} else {
		log.Info("Job completed", "kind", job.Kind)
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(job.Kind), string(result.Status)).Inc()

	// Result writes use a fresh context so a timed-out job still reports.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer storeCancel()
	if err := w.queue.setResult(storeCtx, job.ID, result); err != nil {
		log.Error("Failed to store job result", "error", err)
	}
}

func (w *Worker) execute(ctx context.Context, job *Job) (string, error) {
	switch job.Kind {
	case KindAddStreamer:
		return w.service.TrackStreamer(ctx, job.Username)
	case KindResubscribeAll:
		return w.service.ResubscribeAll(ctx)
	default:
		return "", fmt.Errorf("unknown job kind %q", job.Kind)
	}
}
