package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Streamer is a tracked Twitch channel. TwitchID is empty until the channel
// has been resolved via a login lookup against the Helix API.
type Streamer struct {
	ID          uuid.UUID  `db:"id"`
	Username    string     `db:"username"`
	TwitchID    string     `db:"twitch_id"`
	IsLive      bool       `db:"is_live"`
	StreamTitle string     `db:"stream_title"`
	GameName    string     `db:"game_name"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Stream is one live session of a streamer, opened by a stream.online
// notification and closed by stream.offline.
type Stream struct {
	ID         string     `db:"id"` // provider-assigned stream ID
	StreamerID uuid.UUID  `db:"streamer_id"`
	Type       string     `db:"type"`
	StartedAt  time.Time  `db:"started_at"`
	EndedAt    *time.Time `db:"ended_at"`
}

// StreamerRepository abstracts streamer persistence.
type StreamerRepository interface {
	Create(ctx context.Context, username string) (*Streamer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Streamer, error)
	GetByTwitchID(ctx context.Context, twitchID string) (*Streamer, error)
	GetByUsername(ctx context.Context, username string) (*Streamer, error)
	List(ctx context.Context) ([]Streamer, error)
	SetTwitchID(ctx context.Context, id uuid.UUID, twitchID string) error
	SetLive(ctx context.Context, twitchID string, live bool) error
	UpdateChannelInfo(ctx context.Context, twitchID, title, gameName string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// StreamRepository abstracts stream history persistence.
type StreamRepository interface {
	// OpenStream records the start of a live session. Idempotent on the
	// provider stream ID: re-inserting the same ID is a no-op.
	OpenStream(ctx context.Context, stream Stream) error
	// CloseOpenStream sets ended_at on the streamer's open session, if any.
	CloseOpenStream(ctx context.Context, streamerID uuid.UUID, endedAt time.Time) error
	GetOpenStream(ctx context.Context, streamerID uuid.UUID) (*Stream, error)
}
