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

const subscriptionColumns = `id, streamer_id, twitch_id, event_type, subscription_id, status, created_at, revoked_at`

const insertSubscriptionSQL = `
	INSERT INTO subscription_records (streamer_id, twitch_id, event_type, subscription_id, status, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())`

// SubscriptionRepo implements domain.SubscriptionRepository backed by PostgreSQL.
type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func scanSubscription(row pgx.Row) (*domain.SubscriptionRecord, error) {
	var rec domain.SubscriptionRecord
	err := row.Scan(
		&rec.ID, &rec.StreamerID, &rec.TwitchID, &rec.EventType,
		&rec.SubscriptionID, &rec.Status, &rec.CreatedAt, &rec.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SubscriptionRepo) Create(ctx context.Context, rec domain.SubscriptionRecord) error {
	_, err := r.pool.Exec(ctx, insertSubscriptionSQL,
		rec.StreamerID, rec.TwitchID, rec.EventType, rec.SubscriptionID, rec.Status)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription record: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) CreateBatch(ctx context.Context, recs []domain.SubscriptionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(insertSubscriptionSQL,
			rec.StreamerID, rec.TwitchID, rec.EventType, rec.SubscriptionID, rec.Status)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range recs {
		if _, err := results.Exec(); err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("failed to create subscription records: %w", err)
		}
	}
	return nil
}

func (r *SubscriptionRepo) GetActive(ctx context.Context, twitchID, eventType string) (*domain.SubscriptionRecord, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscription_records
		WHERE twitch_id = $1 AND event_type = $2 AND status = 'active'
	`, twitchID, eventType))
}

func (r *SubscriptionRepo) ListActive(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscription_records
		WHERE status = 'active'
		ORDER BY created_at`)
}

func (r *SubscriptionRepo) ListByStreamer(ctx context.Context, streamerID uuid.UUID) ([]domain.SubscriptionRecord, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscription_records
		WHERE streamer_id = $1
		ORDER BY created_at`, streamerID)
}

func (r *SubscriptionRepo) list(ctx context.Context, query string, args ...any) ([]domain.SubscriptionRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription records: %w", err)
	}
	defer rows.Close()

	var recs []domain.SubscriptionRecord
	for rows.Next() {
		var rec domain.SubscriptionRecord
		if err := rows.Scan(
			&rec.ID, &rec.StreamerID, &rec.TwitchID, &rec.EventType,
			&rec.SubscriptionID, &rec.Status, &rec.CreatedAt, &rec.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *SubscriptionRepo) MarkRevoked(ctx context.Context, subscriptionID string, revokedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscription_records
		SET status = 'revoked', revoked_at = $1
		WHERE subscription_id = $2 AND status = 'active'
	`, revokedAt, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to mark subscription revoked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *SubscriptionRepo) MarkRevokedByStreamer(ctx context.Context, streamerID uuid.UUID, revokedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE subscription_records
		SET status = 'revoked', revoked_at = $1
		WHERE streamer_id = $2 AND status = 'active'
	`, revokedAt, streamerID)
	if err != nil {
		return fmt.Errorf("failed to mark streamer subscriptions revoked: %w", err)
	}
	return nil
}
