package domain

import (
	"context"
	"time"
)

// EventLog is an audit row for one accepted webhook notification. The unique
// message ID doubles as the durable dedupe key for provider redeliveries.
type EventLog struct {
	MessageID  string    `db:"message_id"`
	EventType  string    `db:"event_type"`
	Payload    []byte    `db:"payload"`
	ReceivedAt time.Time `db:"received_at"`
}

// EventLogRepository abstracts event audit persistence.
type EventLogRepository interface {
	// Insert records an event. Returns (false, nil) if the message ID was
	// already recorded, (true, nil) if this is the first delivery.
	Insert(ctx context.Context, event EventLog) (bool, error)
	// Delete removes a recorded event so a provider redelivery counts as a
	// first delivery again. Deleting an absent message ID is not an error.
	Delete(ctx context.Context, messageID string) error
}
