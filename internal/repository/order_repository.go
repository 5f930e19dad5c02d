package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its items. The unique payment_session_id
// makes the insert a no-op on redelivery; false means an order for this
// session already exists.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (bool, error) {
	query := `
		INSERT INTO orders (
			id, cart_id, customer_email, status, subtotal, discount_amount,
			total, payment_session_id, payment_intent_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (payment_session_id) DO NOTHING
	`
	created, err := execGuarded(ctx, r.db, query,
		order.ID,
		order.CartID,
		order.CustomerEmail,
		order.Status,
		order.Subtotal,
		order.DiscountAmount,
		order.Total,
		order.PaymentSessionID,
		order.PaymentIntentID,
		order.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("order insert error: %w", err)
	}
	if !created {
		return false, nil
	}

	itemQuery := `
		INSERT INTO order_items (order_id, sku, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, sku) DO NOTHING
	`
	for _, item := range order.Items {
		if _, err := r.db.ExecContext(ctx, itemQuery,
			item.OrderID, item.SKU, item.Name, item.Quantity, item.UnitPrice); err != nil {
			return false, fmt.Errorf("order item insert error: %w", err)
		}
	}
	return true, nil
}

func (r *OrderRepository) GetByPaymentSession(ctx context.Context, sessionID string) (*domain.Order, error) {
	query := `
		SELECT id, cart_id, customer_email, status, subtotal, discount_amount,
		       total, payment_session_id, payment_intent_id, created_at
		FROM orders WHERE payment_session_id = $1
	`
	order := &domain.Order{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&order.ID,
		&order.CartID,
		&order.CustomerEmail,
		&order.Status,
		&order.Subtotal,
		&order.DiscountAmount,
		&order.Total,
		&order.PaymentSessionID,
		&order.PaymentIntentID,
		&order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "order", ID: sessionID}
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, sku, name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY sku
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.SKU, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}
