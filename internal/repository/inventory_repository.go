package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetBySKU(ctx context.Context, sku string) (*domain.InventoryItem, error) {
	query := `
		SELECT sku, name, active, on_hand, reserved, unit_price, updated_at
		FROM inventory WHERE sku = $1
	`
	item := &domain.InventoryItem{}
	err := r.db.QueryRowContext(ctx, query, sku).Scan(
		&item.SKU,
		&item.Name,
		&item.Active,
		&item.OnHand,
		&item.Reserved,
		&item.UnitPrice,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "sku", ID: sku}
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Reserve increments reserved only while on_hand - reserved still covers
// the quantity. Zero rows affected means the guard failed.
func (r *InventoryRepository) Reserve(ctx context.Context, sku string, quantity int) (bool, error) {
	query := `
		UPDATE inventory
		SET reserved = reserved + $2, updated_at = NOW()
		WHERE sku = $1 AND on_hand - reserved >= $2
	`
	return execGuarded(ctx, r.db, query, sku, quantity)
}

// ReleaseReserved is the compensating inverse of Reserve.
func (r *InventoryRepository) ReleaseReserved(ctx context.Context, sku string, quantity int) (bool, error) {
	query := `
		UPDATE inventory
		SET reserved = reserved - $2, updated_at = NOW()
		WHERE sku = $1 AND reserved >= $2
	`
	return execGuarded(ctx, r.db, query, sku, quantity)
}

// CommitSale converts a reservation into a permanent deduction.
func (r *InventoryRepository) CommitSale(ctx context.Context, sku string, quantity int) (bool, error) {
	query := `
		UPDATE inventory
		SET on_hand = on_hand - $2, reserved = reserved - $2, updated_at = NOW()
		WHERE sku = $1 AND on_hand >= $2 AND reserved >= $2
	`
	return execGuarded(ctx, r.db, query, sku, quantity)
}

// AppendLedger writes an immutable movement row. Sale rows conflict on
// (order_id, sku, reason), so a false return on a sale means this movement
// was already recorded by a previous delivery of the same notification.
func (r *InventoryRepository) AppendLedger(ctx context.Context, entry *domain.LedgerEntry) (bool, error) {
	query := `
		INSERT INTO inventory_ledger_entries (id, sku, order_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, sku, reason) WHERE order_id IS NOT NULL DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SKU, entry.OrderID, entry.Delta, entry.Reason, entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("ledger insert error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func execGuarded(ctx context.Context, db *sql.DB, query string, args ...interface{}) (bool, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
