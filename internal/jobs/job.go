package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a queued job does.
type Kind string

const (
	KindAddStreamer    Kind = "add_streamer"
	KindResubscribeAll Kind = "resubscribe_all"
)

// Status of a job as reported to API clients.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Job is the unit of work pushed onto the queue.
type Job struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	Username   string    `json:"username,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Result is the stored outcome of a job, polled via the API.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}
