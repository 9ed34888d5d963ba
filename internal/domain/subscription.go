package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventSub subscription types this system manages per streamer.
const (
	EventStreamOnline  = "stream.online"
	EventStreamOffline = "stream.offline"
	EventChannelUpdate = "channel.update"
)

// DefaultEventTypes returns the full set of subscription types created for a
// tracked streamer.
func DefaultEventTypes() []string {
	return []string{EventStreamOnline, EventStreamOffline, EventChannelUpdate}
}

type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionRevoked SubscriptionStatus = "revoked"
	SubscriptionFailed  SubscriptionStatus = "failed"
)

// SubscriptionRecord is the local view of one upstream EventSub subscription.
// The provider's subscription list is authoritative; records are reconciled
// against it and flipped to revoked rather than deleted, so the history of a
// subscription stays auditable.
type SubscriptionRecord struct {
	ID             uuid.UUID          `db:"id"`
	StreamerID     uuid.UUID          `db:"streamer_id"`
	TwitchID       string             `db:"twitch_id"`
	EventType      string             `db:"event_type"`
	SubscriptionID string             `db:"subscription_id"`
	Status         SubscriptionStatus `db:"status"`
	CreatedAt      time.Time          `db:"created_at"`
	RevokedAt      *time.Time         `db:"revoked_at"`
}

// SubscriptionRepository abstracts subscription record persistence.
// At most one active record may exist per (twitch_id, event_type).
type SubscriptionRepository interface {
	Create(ctx context.Context, rec SubscriptionRecord) error
	CreateBatch(ctx context.Context, recs []SubscriptionRecord) error
	GetActive(ctx context.Context, twitchID, eventType string) (*SubscriptionRecord, error)
	ListActive(ctx context.Context) ([]SubscriptionRecord, error)
	ListByStreamer(ctx context.Context, streamerID uuid.UUID) ([]SubscriptionRecord, error)
	MarkRevoked(ctx context.Context, subscriptionID string, revokedAt time.Time) error
	MarkRevokedByStreamer(ctx context.Context, streamerID uuid.UUID, revokedAt time.Time) error
}
