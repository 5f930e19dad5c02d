package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

const cartColumns = `
	id, customer_email, customer_name, customer_phone, status,
	discount_id, discount_amount, discount_reserved, inventory_reserved,
	payment_session_id, expires_at, created_at, updated_at
`

func (r *CartRepository) GetByID(ctx context.Context, cartID uuid.UUID) (*domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`

	cart, err := r.scanCart(r.db.QueryRowContext(ctx, query, cartID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "cart", ID: cartID.String()}
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *CartRepository) GetByPaymentSession(ctx context.Context, sessionID string) (*domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE payment_session_id = $1`

	cart, err := r.scanCart(r.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "cart", ID: sessionID}
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// MarkCheckedOut flips open -> checked_out. The conditional update is the
// sole mutual exclusion between concurrent checkouts of the same cart.
func (r *CartRepository) MarkCheckedOut(ctx context.Context, cartID uuid.UUID) (bool, error) {
	query := `
		UPDATE carts SET status = 'checked_out', updated_at = NOW()
		WHERE id = $1 AND status = 'open'
	`
	return execGuarded(ctx, r.db, query, cartID)
}

// Reopen is the compensating inverse of MarkCheckedOut.
func (r *CartRepository) Reopen(ctx context.Context, cartID uuid.UUID) error {
	query := `
		UPDATE carts SET status = 'open', updated_at = NOW()
		WHERE id = $1 AND status = 'checked_out'
	`
	_, err := r.db.ExecContext(ctx, query, cartID)
	return err
}

func (r *CartRepository) StripDiscount(ctx context.Context, cartID uuid.UUID) error {
	query := `
		UPDATE carts
		SET discount_id = NULL, discount_amount = 0, discount_reserved = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, cartID)
	return err
}

// SetDiscountReserved tracks whether the cart holds a provisional
// usage_count increment that settlement has not yet converted. The sweeper
// only releases the count when this flag is still set.
func (r *CartRepository) SetDiscountReserved(ctx context.Context, cartID uuid.UUID, reserved bool) error {
	query := `UPDATE carts SET discount_reserved = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, cartID, reserved)
	return err
}

// SetInventoryReserved tracks whether the cart's line-item reservations
// are live. Set after checkout reserves every item, cleared by rollback and
// settlement; the sweeper only returns stock while the flag is set.
func (r *CartRepository) SetInventoryReserved(ctx context.Context, cartID uuid.UUID, reserved bool) error {
	query := `UPDATE carts SET inventory_reserved = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, cartID, reserved)
	return err
}

func (r *CartRepository) SetPaymentSession(ctx context.Context, cartID uuid.UUID, sessionID string, discountAmount float64) error {
	query := `
		UPDATE carts
		SET payment_session_id = $2, discount_amount = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, cartID, sessionID, discountAmount)
	return err
}

// ExpireIfOpen is the sweeper's claim on an expired cart. Zero rows
// affected means a checkout flipped the cart away from open since it was
// listed, and the sweeper must leave it alone.
func (r *CartRepository) ExpireIfOpen(ctx context.Context, cartID uuid.UUID) (bool, error) {
	query := `
		UPDATE carts SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'open'
	`
	return execGuarded(ctx, r.db, query, cartID)
}

// ExpireIfCheckedOut is settlement's terminal flip.
func (r *CartRepository) ExpireIfCheckedOut(ctx context.Context, cartID uuid.UUID) (bool, error) {
	query := `
		UPDATE carts SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'checked_out'
	`
	return execGuarded(ctx, r.db, query, cartID)
}

func (r *CartRepository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}

// ListExpiredOpen returns open carts whose expiry has passed, items
// included, for the sweeper.
func (r *CartRepository) ListExpiredOpen(ctx context.Context, limit int) ([]*domain.Cart, error) {
	query := `SELECT ` + cartColumns + `
		FROM carts
		WHERE status = 'open' AND expires_at < NOW()
		ORDER BY expires_at
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("expired cart query error: %w", err)
	}
	defer rows.Close()

	var carts []*domain.Cart
	for rows.Next() {
		cart, err := r.scanCart(rows)
		if err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cart := range carts {
		if err := r.loadItems(ctx, cart); err != nil {
			return nil, err
		}
	}
	return carts, nil
}

func (r *CartRepository) loadItems(ctx context.Context, cart *domain.Cart) error {
	query := `
		SELECT cart_id, sku, name, quantity, unit_price
		FROM cart_items WHERE cart_id = $1 ORDER BY sku
	`
	rows, err := r.db.QueryContext(ctx, query, cart.ID)
	if err != nil {
		return fmt.Errorf("cart items query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.CartID, &item.SKU, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		cart.Items = append(cart.Items, item)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *CartRepository) scanCart(row rowScanner) (*domain.Cart, error) {
	cart := &domain.Cart{}
	err := row.Scan(
		&cart.ID,
		&cart.CustomerEmail,
		&cart.CustomerName,
		&cart.CustomerPhone,
		&cart.Status,
		&cart.DiscountID,
		&cart.DiscountAmount,
		&cart.DiscountReserved,
		&cart.InventoryReserved,
		&cart.PaymentSessionID,
		&cart.ExpiresAt,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cart, nil
}
