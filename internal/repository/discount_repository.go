package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

type DiscountRepository struct {
	db *sql.DB
}

func NewDiscountRepository(db *sql.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

const discountColumns = `
	id, code, type, value, status, starts_at, ends_at, min_purchase,
	usage_limit, usage_limit_per_customer, usage_count, created_at, updated_at
`

func (r *DiscountRepository) GetByID(ctx context.Context, discountID uuid.UUID) (*domain.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`
	return r.scanDiscount(r.db.QueryRowContext(ctx, query, discountID), discountID.String())
}

func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE code = $1`
	return r.scanDiscount(r.db.QueryRowContext(ctx, query, code), code)
}

// ReserveUsage atomically claims one unit of a limited discount's
// allowance. The increment only lands while the discount is active, inside
// its date window, and below its limit; zero rows affected means some
// concurrent checkout got there first.
func (r *DiscountRepository) ReserveUsage(ctx context.Context, discountID uuid.UUID) (bool, error) {
	query := `
		UPDATE discounts
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND (starts_at IS NULL OR starts_at <= NOW())
		  AND (ends_at IS NULL OR ends_at >= NOW())
		  AND (usage_limit IS NULL OR usage_count < usage_limit)
	`
	return execGuarded(ctx, r.db, query, discountID)
}

// ReleaseUsage undoes a provisional ReserveUsage. Guarded so a counter
// already at zero is never driven negative.
func (r *DiscountRepository) ReleaseUsage(ctx context.Context, discountID uuid.UUID) (bool, error) {
	query := `
		UPDATE discounts
		SET usage_count = usage_count - 1, updated_at = NOW()
		WHERE id = $1 AND usage_count > 0
	`
	return execGuarded(ctx, r.db, query, discountID)
}

func (r *DiscountRepository) CustomerUsageCount(ctx context.Context, discountID uuid.UUID, customerEmail string) (int, error) {
	query := `
		SELECT COUNT(*) FROM discount_usages
		WHERE discount_id = $1 AND customer_email = $2
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, discountID, customerEmail).Scan(&count); err != nil {
		return 0, fmt.Errorf("customer usage count error: %w", err)
	}
	return count, nil
}

// InsertUsage records a settled redemption. The (order_id, discount_id)
// primary key absorbs redelivery, and when the discount carries a
// per-customer limit the insert only lands while the customer's settled
// count is still below it. False with no error means nothing was written:
// either the row already exists or the per-customer guard failed; the
// caller distinguishes via UsageExists.
func (r *DiscountRepository) InsertUsage(ctx context.Context, usage *domain.DiscountUsage, perCustomerLimit *int) (bool, error) {
	query := `
		INSERT INTO discount_usages (discount_id, order_id, customer_email, amount, created_at)
		SELECT $1, $2, $3, $4, NOW()
		WHERE $5::INT IS NULL
		   OR (SELECT COUNT(*) FROM discount_usages WHERE discount_id = $1 AND customer_email = $3) < $5
		ON CONFLICT (order_id, discount_id) DO NOTHING
	`
	var limit sql.NullInt64
	if perCustomerLimit != nil {
		limit = sql.NullInt64{Int64: int64(*perCustomerLimit), Valid: true}
	}
	return execGuarded(ctx, r.db, query,
		usage.DiscountID, usage.OrderID, usage.CustomerEmail, usage.Amount, limit)
}

func (r *DiscountRepository) UsageExists(ctx context.Context, orderID, discountID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM discount_usages WHERE order_id = $1 AND discount_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, orderID, discountID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *DiscountRepository) scanDiscount(row rowScanner, id string) (*domain.Discount, error) {
	d := &domain.Discount{}
	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.Type,
		&d.Value,
		&d.Status,
		&d.StartsAt,
		&d.EndsAt,
		&d.MinPurchase,
		&d.UsageLimit,
		&d.UsageLimitPerCustomer,
		&d.UsageCount,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "discount", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
