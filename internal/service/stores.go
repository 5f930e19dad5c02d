package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/events"
)

// Store interfaces cover exactly the conditional-write surface the
// pipeline needs. The Postgres repositories implement them; tests use
// in-memory stands-in with the same guarded semantics.

type CartStore interface {
	GetByID(ctx context.Context, cartID uuid.UUID) (*domain.Cart, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*domain.Cart, error)
	MarkCheckedOut(ctx context.Context, cartID uuid.UUID) (bool, error)
	Reopen(ctx context.Context, cartID uuid.UUID) error
	StripDiscount(ctx context.Context, cartID uuid.UUID) error
	SetDiscountReserved(ctx context.Context, cartID uuid.UUID, reserved bool) error
	SetInventoryReserved(ctx context.Context, cartID uuid.UUID, reserved bool) error
	SetPaymentSession(ctx context.Context, cartID uuid.UUID, sessionID string, discountAmount float64) error
	ExpireIfOpen(ctx context.Context, cartID uuid.UUID) (bool, error)
	ExpireIfCheckedOut(ctx context.Context, cartID uuid.UUID) (bool, error)
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	ListExpiredOpen(ctx context.Context, limit int) ([]*domain.Cart, error)
}

type InventoryStore interface {
	GetBySKU(ctx context.Context, sku string) (*domain.InventoryItem, error)
	Reserve(ctx context.Context, sku string, quantity int) (bool, error)
	ReleaseReserved(ctx context.Context, sku string, quantity int) (bool, error)
	CommitSale(ctx context.Context, sku string, quantity int) (bool, error)
	AppendLedger(ctx context.Context, entry *domain.LedgerEntry) (bool, error)
}

type DiscountStore interface {
	GetByID(ctx context.Context, discountID uuid.UUID) (*domain.Discount, error)
	ReserveUsage(ctx context.Context, discountID uuid.UUID) (bool, error)
	ReleaseUsage(ctx context.Context, discountID uuid.UUID) (bool, error)
	CustomerUsageCount(ctx context.Context, discountID uuid.UUID, customerEmail string) (int, error)
	InsertUsage(ctx context.Context, usage *domain.DiscountUsage, perCustomerLimit *int) (bool, error)
	UsageExists(ctx context.Context, orderID, discountID uuid.UUID) (bool, error)
}

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) (bool, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*domain.Order, error)
}

type CustomerStore interface {
	UpsertOnOrder(ctx context.Context, email, name, phone string, orderTotal float64) (uuid.UUID, error)
	EnsureDefaultAddress(ctx context.Context, customerID uuid.UUID, address *domain.Address) error
}

type WebhookStore interface {
	ListActiveSubscribers(ctx context.Context) ([]*domain.Subscriber, error)
	CreateDelivery(ctx context.Context, d *domain.Delivery) error
	UpdateDelivery(ctx context.Context, d *domain.Delivery) error
	ListFailed(ctx context.Context, limit int) ([]*domain.Delivery, error)
}

type ProcessedEventStore interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// EventPublisher decouples settlement and the sweeper from the bus; the
// AMQP publisher satisfies it in production.
type EventPublisher interface {
	PublishDomainEvent(event events.DomainEvent) error
}
