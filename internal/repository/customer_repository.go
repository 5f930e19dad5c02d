package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

type CustomerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// UpsertOnOrder creates or refreshes the customer row for a settled order:
// order_count and total_spent are incremented, name and phone refreshed
// when the notification carries them.
func (r *CustomerRepository) UpsertOnOrder(ctx context.Context, email, name, phone string, orderTotal float64) (uuid.UUID, error) {
	query := `
		INSERT INTO customers (id, email, name, phone, order_count, total_spent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			order_count = customers.order_count + 1,
			total_spent = customers.total_spent + EXCLUDED.total_spent,
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), customers.phone),
			updated_at = NOW()
		RETURNING id
	`
	var customerID uuid.UUID
	err := r.db.QueryRowContext(ctx, query, uuid.New(), email, name, phone, orderTotal).Scan(&customerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("customer upsert error: %w", err)
	}
	return customerID, nil
}

// EnsureDefaultAddress persists the shipping address as the customer's
// default only when no default exists yet.
func (r *CustomerRepository) EnsureDefaultAddress(ctx context.Context, customerID uuid.UUID, address *domain.Address) error {
	if address.IsZero() {
		return nil
	}
	query := `
		INSERT INTO customer_addresses (id, customer_id, line1, line2, city, postal_code, country, is_default, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, TRUE, NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM customer_addresses WHERE customer_id = $2 AND is_default
		)
	`
	_, err := r.db.ExecContext(ctx, query,
		uuid.New(), customerID,
		address.Line1, address.Line2, address.City, address.PostalCode, address.Country)
	if err != nil {
		return fmt.Errorf("default address insert error: %w", err)
	}
	return nil
}
