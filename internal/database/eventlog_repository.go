package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Serph91P/streamvault/internal/domain"
)

// EventLogRepo implements domain.EventLogRepository backed by PostgreSQL.
type EventLogRepo struct {
	pool *pgxpool.Pool
}

func NewEventLogRepo(pool *pgxpool.Pool) *EventLogRepo {
	return &EventLogRepo{pool: pool}
}

func (r *EventLogRepo) Insert(ctx context.Context, event domain.EventLog) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO event_log (message_id, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO NOTHING
	`, event.MessageID, event.EventType, event.Payload, event.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert event log: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EventLogRepo) Delete(ctx context.Context, messageID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM event_log WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete event log entry: %w", err)
	}
	return nil
}
