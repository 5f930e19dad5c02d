package repository

import (
	"context"
	"database/sql"
)

// ProcessedEventRepository is the durable idempotency gate for inbound
// payment notifications: existence of an event id means already handled.
type ProcessedEventRepository struct {
	db *sql.DB
}

func NewProcessedEventRepository(db *sql.DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

func (r *ProcessedEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`,
		eventID).Scan(&exists)
	return exists, err
}

// MarkProcessed records the event id; false means another delivery of the
// same event won the race.
func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, processed_at)
		VALUES ($1, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	return execGuarded(ctx, r.db, query, eventID)
}
