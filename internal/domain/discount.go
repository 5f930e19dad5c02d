package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
)

type DiscountStatus string

const (
	DiscountStatusActive   DiscountStatus = "active"
	DiscountStatusDisabled DiscountStatus = "disabled"
)

// Discount usage_count is a contended counter; it only moves through the
// guarded increment/decrement in the discount repository.
type Discount struct {
	ID                    uuid.UUID      `json:"id"`
	Code                  string         `json:"code"`
	Type                  DiscountType   `json:"type"`
	Value                 float64        `json:"value"`
	Status                DiscountStatus `json:"status"`
	StartsAt              *time.Time     `json:"starts_at,omitempty"`
	EndsAt                *time.Time     `json:"ends_at,omitempty"`
	MinPurchase           float64        `json:"min_purchase"`
	UsageLimit            *int           `json:"usage_limit,omitempty"`
	UsageLimitPerCustomer *int           `json:"usage_limit_per_customer,omitempty"`
	UsageCount            int            `json:"usage_count"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

func (d *Discount) WithinWindow(now time.Time) bool {
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// AmountFor computes the discount against the given subtotal, capped so it
// never exceeds the subtotal itself.
func (d *Discount) AmountFor(subtotal float64) float64 {
	var amount float64
	switch d.Type {
	case DiscountTypePercentage:
		amount = subtotal * d.Value / 100
	default:
		amount = d.Value
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}

// ValidateFor is the soft pre-reservation check: an expired or no longer
// applicable discount is a recoverable event at this stage, the caller
// strips it and continues without it.
func (d *Discount) ValidateFor(subtotal float64, customerUsage int, now time.Time) error {
	if d.Status != DiscountStatusActive {
		return fmt.Errorf("discount %s is not active", d.Code)
	}
	if !d.WithinWindow(now) {
		return fmt.Errorf("discount %s is outside its date window", d.Code)
	}
	if subtotal < d.MinPurchase {
		return fmt.Errorf("discount %s requires a minimum purchase of %.2f", d.Code, d.MinPurchase)
	}
	if d.UsageLimitPerCustomer != nil && customerUsage >= *d.UsageLimitPerCustomer {
		return fmt.Errorf("discount %s per-customer limit reached", d.Code)
	}
	return nil
}

// DiscountUsage is keyed on (order_id, discount_id) so settlement replay
// never double-counts a redemption.
type DiscountUsage struct {
	DiscountID    uuid.UUID `json:"discount_id"`
	OrderID       uuid.UUID `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	Amount        float64   `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}
