package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) ListActiveSubscribers(ctx context.Context) ([]*domain.Subscriber, error) {
	query := `
		SELECT id, url, secret, event_filters, status, created_at
		FROM webhook_subscribers WHERE status = 'active'
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("subscriber query error: %w", err)
	}
	defer rows.Close()

	var subscribers []*domain.Subscriber
	for rows.Next() {
		sub := &domain.Subscriber{}
		if err := rows.Scan(
			&sub.ID,
			&sub.URL,
			&sub.Secret,
			pq.Array(&sub.EventFilters),
			&sub.Status,
			&sub.CreatedAt,
		); err != nil {
			return nil, err
		}
		subscribers = append(subscribers, sub)
	}
	return subscribers, rows.Err()
}

func (r *WebhookRepository) GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	query := `
		SELECT id, url, secret, event_filters, status, created_at
		FROM webhook_subscribers WHERE id = $1
	`
	sub := &domain.Subscriber{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sub.ID,
		&sub.URL,
		&sub.Secret,
		pq.Array(&sub.EventFilters),
		&sub.Status,
		&sub.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Resource: "subscriber", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *WebhookRepository) CreateDelivery(ctx context.Context, d *domain.Delivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, subscriber_id, event_id, event_type, payload, status,
			attempts, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.SubscriberID, d.EventID, d.EventType, []byte(d.Payload),
		d.Status, d.Attempts, d.LastError, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("delivery insert error: %w", err)
	}
	return nil
}

func (r *WebhookRepository) UpdateDelivery(ctx context.Context, d *domain.Delivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.Status, d.Attempts, d.LastError)
	return err
}

// ListFailed returns terminally failed deliveries for operator requeue.
func (r *WebhookRepository) ListFailed(ctx context.Context, limit int) ([]*domain.Delivery, error) {
	query := `
		SELECT id, subscriber_id, event_id, event_type, payload, status,
		       attempts, last_error, created_at, updated_at
		FROM webhook_deliveries
		WHERE status = 'failed'
		ORDER BY updated_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed delivery query error: %w", err)
	}
	defer rows.Close()

	var deliveries []*domain.Delivery
	for rows.Next() {
		d := &domain.Delivery{}
		var payload []byte
		if err := rows.Scan(
			&d.ID, &d.SubscriberID, &d.EventID, &d.EventType, &payload,
			&d.Status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		d.Payload = payload
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
