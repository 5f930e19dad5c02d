package domain

import (
	"time"

	"github.com/google/uuid"
)

type CartStatus string

const (
	CartStatusOpen       CartStatus = "open"
	CartStatusCheckedOut CartStatus = "checked_out"
	CartStatusExpired    CartStatus = "expired"
)

// Cart is the checkout working set. A cart is never physically deleted;
// terminal carts are flipped to expired so audit history survives.
type Cart struct {
	ID                uuid.UUID  `json:"id"`
	CustomerEmail     string     `json:"customer_email"`
	CustomerName      string     `json:"customer_name"`
	CustomerPhone     string     `json:"customer_phone"`
	Status            CartStatus `json:"status"`
	DiscountID        *uuid.UUID `json:"discount_id,omitempty"`
	DiscountAmount    float64    `json:"discount_amount"`
	DiscountReserved  bool       `json:"discount_reserved"`
	InventoryReserved bool       `json:"inventory_reserved"`
	PaymentSessionID  *string    `json:"payment_session_id,omitempty"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Items             []CartItem `json:"items"`
}

// CartItem snapshots the unit price at add-time; later catalog price
// changes never alter it.
type CartItem struct {
	CartID    uuid.UUID `json:"cart_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

func (c *Cart) Subtotal() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

func (c *Cart) Total() float64 {
	total := c.Subtotal() - c.DiscountAmount
	if total < 0 {
		return 0
	}
	return total
}

func (c *Cart) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}
