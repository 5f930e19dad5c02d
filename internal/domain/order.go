package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order is created exactly once per settled payment session; the unique
// payment_session_id column is the guard.
type Order struct {
	ID               uuid.UUID   `json:"id"`
	CartID           uuid.UUID   `json:"cart_id"`
	CustomerEmail    string      `json:"customer_email"`
	Status           OrderStatus `json:"status"`
	Subtotal         float64     `json:"subtotal"`
	DiscountAmount   float64     `json:"discount_amount"`
	Total            float64     `json:"total"`
	PaymentSessionID string      `json:"payment_session_id"`
	PaymentIntentID  string      `json:"payment_intent_id"`
	CreatedAt        time.Time   `json:"created_at"`
	Items            []OrderItem `json:"items"`
}

// OrderItem rows are immutable once written.
type OrderItem struct {
	OrderID   uuid.UUID `json:"order_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

// NewOrderFromCart materializes an order using the cart's item snapshot,
// not the catalog's current prices.
func NewOrderFromCart(cart *Cart, sessionID, intentID string) *Order {
	order := &Order{
		ID:               uuid.New(),
		CartID:           cart.ID,
		CustomerEmail:    cart.CustomerEmail,
		Status:           OrderStatusPaid,
		Subtotal:         cart.Subtotal(),
		DiscountAmount:   cart.DiscountAmount,
		Total:            cart.Total(),
		PaymentSessionID: sessionID,
		PaymentIntentID:  intentID,
		CreatedAt:        time.Now(),
	}
	for _, item := range cart.Items {
		order.Items = append(order.Items, OrderItem{
			OrderID:   order.ID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return order
}
