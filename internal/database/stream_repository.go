package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Serph91P/streamvault/internal/domain"
)

// StreamRepo implements domain.StreamRepository backed by PostgreSQL.
type StreamRepo struct {
	pool *pgxpool.Pool
}

func NewStreamRepo(pool *pgxpool.Pool) *StreamRepo {
	return &StreamRepo{pool: pool}
}

func (r *StreamRepo) OpenStream(ctx context.Context, stream domain.Stream) error {
	// ON CONFLICT DO NOTHING makes redelivered online notifications a no-op.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO streams (id, streamer_id, type, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, stream.ID, stream.StreamerID, stream.Type, stream.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	return nil
}

func (r *StreamRepo) CloseOpenStream(ctx context.Context, streamerID uuid.UUID, endedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE streams
		SET ended_at = $1
		WHERE streamer_id = $2 AND ended_at IS NULL
	`, endedAt, streamerID)
	if err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

func (r *StreamRepo) GetOpenStream(ctx context.Context, streamerID uuid.UUID) (*domain.Stream, error) {
	var s domain.Stream
	err := r.pool.QueryRow(ctx, `
		SELECT id, streamer_id, type, started_at, ended_at
		FROM streams
		WHERE streamer_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, streamerID).Scan(&s.ID, &s.StreamerID, &s.Type, &s.StartedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open stream: %w", err)
	}
	return &s, nil
}
