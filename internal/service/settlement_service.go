package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reekob/mendmyinewshop/internal/cache"
	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/events"
	"github.com/reekob/mendmyinewshop/internal/gateway"
)

// SettlementService consumes payment-completion notifications and
// materializes the order exactly once. Providers redeliver, so every step
// is individually guarded and the handler is safe to re-run from the top;
// post-payment anomalies are logged rather than raised because the money
// has already moved.
type SettlementService struct {
	carts     CartStore
	inventory InventoryStore
	discounts DiscountStore
	orders    OrderStore
	customers CustomerStore
	processed ProcessedEventStore
	publisher EventPublisher
	idcache   cache.Cache
}

func NewSettlementService(
	carts CartStore,
	inventory InventoryStore,
	discounts DiscountStore,
	orders OrderStore,
	customers CustomerStore,
	processed ProcessedEventStore,
	publisher EventPublisher,
	idcache cache.Cache,
) *SettlementService {
	return &SettlementService{
		carts:     carts,
		inventory: inventory,
		discounts: discounts,
		orders:    orders,
		customers: customers,
		processed: processed,
		publisher: publisher,
		idcache:   idcache,
	}
}

// HandleSessionCompleted processes one verified completion notification.
// A nil return acknowledges the delivery to the provider.
func (s *SettlementService) HandleSessionCompleted(ctx context.Context, event *gateway.WebhookEvent) error {
	// Idempotency gate: Redis fast path first, then the durable table.
	cacheKey := s.idcache.GenerateKey("processed", event.ID)
	if hit, err := s.idcache.Get(ctx, cacheKey); err == nil && hit != "" {
		log.Printf("Settlement skipped, event already processed (cache): %s", event.ID)
		return nil
	}
	done, err := s.processed.IsProcessed(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("processed event lookup error: %w", err)
	}
	if done {
		log.Printf("Settlement skipped, event already processed: %s", event.ID)
		return nil
	}

	// Locate the cart by the provider session. A missing cart means a
	// prior delivery already settled and expired it: no-op success.
	cart, err := s.carts.GetByPaymentSession(ctx, event.Data.SessionID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			log.Printf("Settlement no-op, no cart for session %s", event.Data.SessionID)
			return s.finish(ctx, event.ID, cacheKey)
		}
		return err
	}
	if len(cart.Items) == 0 {
		log.Printf("Settlement no-op, cart %s has no items", cart.ID)
		return s.finish(ctx, event.ID, cacheKey)
	}

	email := event.Data.CustomerEmail
	if email == "" {
		email = cart.CustomerEmail
	}

	// Order creation from the cart's price snapshot. The unique session id
	// means a replay reuses the already-created order.
	order := domain.NewOrderFromCart(cart, event.Data.SessionID, event.Data.PaymentIntentID)
	order.CustomerEmail = email
	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return err
	}
	if !created {
		existing, lookupErr := s.orders.GetByPaymentSession(ctx, event.Data.SessionID)
		if lookupErr != nil {
			return lookupErr
		}
		order = existing
	}

	// Customer counters move only on the delivery that created the order;
	// a redelivery after a failure further down must not count the order
	// again. The address insert is guarded by its own not-exists check.
	if created {
		customerID, upsertErr := s.customers.UpsertOnOrder(ctx, email,
			event.Data.CustomerName, event.Data.CustomerPhone, order.Total)
		if upsertErr != nil {
			return upsertErr
		}
		if event.Data.ShippingAddress != nil {
			if err := s.customers.EnsureDefaultAddress(ctx, customerID, event.Data.ShippingAddress); err != nil {
				return err
			}
		}
	}

	if cart.DiscountID != nil {
		s.commitDiscountUsage(ctx, cart, order)
	}

	// Convert each reservation into a permanent deduction. The ledger row
	// is the per-(order, sku) guard: only its first insert performs the
	// stock movement, so replays never double-decrement.
	// TODO: wrap the ledger insert and CommitSale in one transaction; a
	// failure between them currently loses the decrement on replay.
	for _, item := range cart.Items {
		entry := domain.NewSaleLedgerEntry(item.SKU, order.ID, item.Quantity)
		recorded, ledgerErr := s.inventory.AppendLedger(ctx, entry)
		if ledgerErr != nil {
			return ledgerErr
		}
		if !recorded {
			continue
		}
		committed, commitErr := s.inventory.CommitSale(ctx, item.SKU, item.Quantity)
		if commitErr != nil {
			return commitErr
		}
		if !committed {
			anomaly := &domain.RaceAnomaly{
				Resource: "inventory",
				Detail:   fmt.Sprintf("sale commit guard failed for sku %s qty %d order %s", item.SKU, item.Quantity, order.ID),
			}
			log.Printf("WARNING: %s", anomaly)
		}
	}

	// Terminal cart state: cleared flags record that the discount claim
	// and the reservations are now settled, and the checked_out -> expired
	// flip is guarded so it never collides with the sweeper's own claim on
	// open carts.
	if cart.DiscountReserved {
		if err := s.carts.SetDiscountReserved(ctx, cart.ID, false); err != nil {
			return err
		}
	}
	if cart.InventoryReserved {
		if err := s.carts.SetInventoryReserved(ctx, cart.ID, false); err != nil {
			return err
		}
	}
	if _, err := s.carts.ExpireIfCheckedOut(ctx, cart.ID); err != nil {
		return err
	}

	if err := s.finish(ctx, event.ID, cacheKey); err != nil {
		return err
	}

	// Notification fan-out is decoupled from the financial path: a
	// publish failure never rolls back the settlement.
	if err := s.publisher.PublishDomainEvent(events.NewOrderCreated(order)); err != nil {
		log.Printf("Order created event publish error: %v", err)
	}

	log.Printf("Settlement complete: order=%s session=%s total=%.2f", order.ID, event.Data.SessionID, order.Total)
	return nil
}

// commitDiscountUsage converts the checkout-time reservation into a
// permanent DiscountUsage row. A per-customer cap failure at this point
// can only stem from a race between checkouts that both passed the soft
// check; the order still completes because payment is already captured.
func (s *SettlementService) commitDiscountUsage(ctx context.Context, cart *domain.Cart, order *domain.Order) {
	discount, err := s.discounts.GetByID(ctx, *cart.DiscountID)
	if err != nil {
		log.Printf("Discount lookup error during settlement: %v", err)
		return
	}

	usage := &domain.DiscountUsage{
		DiscountID:    discount.ID,
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		Amount:        cart.DiscountAmount,
		CreatedAt:     time.Now(),
	}
	inserted, err := s.discounts.InsertUsage(ctx, usage, discount.UsageLimitPerCustomer)
	if err != nil {
		log.Printf("Discount usage insert error: %v", err)
		return
	}
	if inserted {
		return
	}

	exists, err := s.discounts.UsageExists(ctx, order.ID, discount.ID)
	if err != nil {
		log.Printf("Discount usage lookup error: %v", err)
		return
	}
	if !exists {
		anomaly := &domain.RaceAnomaly{
			Resource: "discount",
			Detail: fmt.Sprintf("per-customer limit guard failed for discount %s customer %s order %s",
				discount.Code, order.CustomerEmail, order.ID),
		}
		log.Printf("WARNING: %s", anomaly)
	}
}

func (s *SettlementService) finish(ctx context.Context, eventID, cacheKey string) error {
	if _, err := s.processed.MarkProcessed(ctx, eventID); err != nil {
		return fmt.Errorf("processed event record error: %w", err)
	}
	if err := s.idcache.Set(ctx, cacheKey, "1", 24*time.Hour); err != nil {
		log.Printf("Processed event cache set error: %v", err)
	}
	return nil
}
