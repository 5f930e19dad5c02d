package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

type EventType string

const (
	OrderCreatedEvent    EventType = "order.created"
	CartExpiredEvent     EventType = "cart.expired"
	PaymentRefundedEvent EventType = "payment.refunded"
)

// DomainEvent is the envelope published on the internal bus and, serialized
// as-is, the body delivered to webhook subscribers:
// { id, type, created_at, data }.
type DomainEvent struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Data      interface{} `json:"data"`
}

func (e DomainEvent) Marshal() (json.RawMessage, error) {
	return json.Marshal(e)
}

type OrderCreatedData struct {
	Order domain.Order `json:"order"`
}

type CartExpiredData struct {
	CartID        uuid.UUID `json:"cart_id"`
	CustomerEmail string    `json:"customer_email"`
	ReleasedItems int       `json:"released_items"`
}

type PaymentRefundedData struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          float64   `json:"amount"`
}

func NewOrderCreated(order *domain.Order) DomainEvent {
	return DomainEvent{
		ID:        uuid.New(),
		Type:      OrderCreatedEvent,
		CreatedAt: time.Now(),
		Data:      OrderCreatedData{Order: *order},
	}
}

func NewCartExpired(cart *domain.Cart, releasedItems int) DomainEvent {
	return DomainEvent{
		ID:        uuid.New(),
		Type:      CartExpiredEvent,
		CreatedAt: time.Now(),
		Data: CartExpiredData{
			CartID:        cart.ID,
			CustomerEmail: cart.CustomerEmail,
			ReleasedItems: releasedItems,
		},
	}
}
