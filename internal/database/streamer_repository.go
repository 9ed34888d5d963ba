package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Serph91P/streamvault/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint conflicts.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// streamerColumns must match the Scan order in scanStreamer.
const streamerColumns = `id, username, COALESCE(twitch_id, ''), is_live, stream_title, game_name, created_at, updated_at`

// StreamerRepo implements domain.StreamerRepository backed by PostgreSQL.
type StreamerRepo struct {
	pool *pgxpool.Pool
}

func NewStreamerRepo(pool *pgxpool.Pool) *StreamerRepo {
	return &StreamerRepo{pool: pool}
}

func scanStreamer(row pgx.Row) (*domain.Streamer, error) {
	var s domain.Streamer
	err := row.Scan(
		&s.ID, &s.Username, &s.TwitchID, &s.IsLive,
		&s.StreamTitle, &s.GameName, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StreamerRepo) Create(ctx context.Context, username string) (*domain.Streamer, error) {
	streamer, err := scanStreamer(r.pool.QueryRow(ctx, `
		INSERT INTO streamers (username, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING `+streamerColumns,
		username))
	if isUniqueViolation(err) {
		return nil, domain.ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create streamer: %w", err)
	}
	return streamer, nil
}

func (r *StreamerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Streamer, error) {
	return scanStreamer(r.pool.QueryRow(ctx,
		`SELECT `+streamerColumns+` FROM streamers WHERE id = $1`, id))
}

func (r *StreamerRepo) GetByTwitchID(ctx context.Context, twitchID string) (*domain.Streamer, error) {
	return scanStreamer(r.pool.QueryRow(ctx,
		`SELECT `+streamerColumns+` FROM streamers WHERE twitch_id = $1`, twitchID))
}

func (r *StreamerRepo) GetByUsername(ctx context.Context, username string) (*domain.Streamer, error) {
	return scanStreamer(r.pool.QueryRow(ctx,
		`SELECT `+streamerColumns+` FROM streamers WHERE username = $1`, username))
}

func (r *StreamerRepo) List(ctx context.Context) ([]domain.Streamer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streamerColumns+` FROM streamers ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list streamers: %w", err)
	}
	defer rows.Close()

	var streamers []domain.Streamer
	for rows.Next() {
		var s domain.Streamer
		if err := rows.Scan(
			&s.ID, &s.Username, &s.TwitchID, &s.IsLive,
			&s.StreamTitle, &s.GameName, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan streamer: %w", err)
		}
		streamers = append(streamers, s)
	}
	return streamers, rows.Err()
}

func (r *StreamerRepo) SetTwitchID(ctx context.Context, id uuid.UUID, twitchID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE streamers
		SET twitch_id = $1, updated_at = NOW()
		WHERE id = $2
	`, twitchID, id)
	if err != nil {
		return fmt.Errorf("failed to set twitch ID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepo) SetLive(ctx context.Context, twitchID string, live bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE streamers
		SET is_live = $1, updated_at = NOW()
		WHERE twitch_id = $2
	`, live, twitchID)
	if err != nil {
		return fmt.Errorf("failed to set live status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepo) UpdateChannelInfo(ctx context.Context, twitchID, title, gameName string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE streamers
		SET stream_title = $1, game_name = $2, updated_at = NOW()
		WHERE twitch_id = $3
	`, title, gameName, twitchID)
	if err != nil {
		return fmt.Errorf("failed to update channel info: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM streamers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete streamer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}
