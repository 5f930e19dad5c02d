package domain

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is a shared mutable counter pair. Reserved only moves
// through guarded writes issued by checkout, settlement or the sweeper;
// on_hand - reserved never goes below zero.
type InventoryItem struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	UnitPrice float64   `json:"unit_price"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *InventoryItem) Available() int {
	return i.OnHand - i.Reserved
}

func (i *InventoryItem) CanReserve(quantity int) bool {
	return i.Available() >= quantity
}

type LedgerReason string

const (
	LedgerReasonSale    LedgerReason = "sale"
	LedgerReasonRelease LedgerReason = "release"
	LedgerReasonRestock LedgerReason = "restock"
)

// LedgerEntry is an immutable record of an inventory movement. Sale rows
// carry the order id and a unique (order_id, sku, reason) key, which makes
// the settlement-time stock decrement replay-safe.
type LedgerEntry struct {
	ID        uuid.UUID    `json:"id"`
	SKU       string       `json:"sku"`
	OrderID   *uuid.UUID   `json:"order_id,omitempty"`
	Delta     int          `json:"delta"`
	Reason    LedgerReason `json:"reason"`
	CreatedAt time.Time    `json:"created_at"`
}

func NewSaleLedgerEntry(sku string, orderID uuid.UUID, quantity int) *LedgerEntry {
	return &LedgerEntry{
		ID:        uuid.New(),
		SKU:       sku,
		OrderID:   &orderID,
		Delta:     -quantity,
		Reason:    LedgerReasonSale,
		CreatedAt: time.Now(),
	}
}

func NewReleaseLedgerEntry(sku string, quantity int) *LedgerEntry {
	return &LedgerEntry{
		ID:        uuid.New(),
		SKU:       sku,
		Delta:     quantity,
		Reason:    LedgerReasonRelease,
		CreatedAt: time.Now(),
	}
}
