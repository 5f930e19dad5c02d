package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/events"
)

// Sweeper reclaims reservations held by open carts whose expiry passed
// without a completed checkout. It claims each cart with a guarded status
// flip before touching anything, releases reserved stock (never on_hand)
// only while the cart's reservation flag is set, returns the provisional
// discount claim when one is still pending, and leaves the cart expired
// with no line items.
type Sweeper struct {
	carts     CartStore
	inventory InventoryStore
	discounts DiscountStore
	publisher EventPublisher
	interval  time.Duration
	batchSize int
}

func NewSweeper(carts CartStore, inventory InventoryStore, discounts DiscountStore, publisher EventPublisher, interval time.Duration) *Sweeper {
	return &Sweeper{
		carts:     carts,
		inventory: inventory,
		discounts: discounts,
		publisher: publisher,
		interval:  interval,
		batchSize: 100,
	}
}

// Run sweeps on a fixed schedule until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Expiration sweeper started, interval=%s", s.interval)

	for {
		select {
		case <-ticker.C:
			if swept, err := s.Sweep(ctx); err != nil {
				log.Printf("Sweep error: %v", err)
			} else if swept > 0 {
				log.Printf("Sweep reclaimed %d expired carts", swept)
			}
		case <-ctx.Done():
			log.Println("Expiration sweeper stopped")
			return
		}
	}
}

// Sweep processes one batch of expired open carts. Per-cart failures are
// logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	carts, err := s.carts.ListExpiredOpen(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, cart := range carts {
		claimed, err := s.sweepCart(ctx, cart.ID)
		if err != nil {
			log.Printf("Failed to sweep cart %s: %v", cart.ID, err)
			continue
		}
		if claimed {
			swept++
		}
	}
	return swept, nil
}

// sweepCart claims the cart with a guarded open -> expired flip and only
// then releases what it holds. A failed claim means a checkout flipped the
// cart between the listing and now; the cart is skipped untouched. After
// the claim no checkout can start, so the re-read below sees settled flags.
func (s *Sweeper) sweepCart(ctx context.Context, cartID uuid.UUID) (bool, error) {
	claimed, err := s.carts.ExpireIfOpen(ctx, cartID)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	// Re-read after the claim; the listed snapshot may predate a checkout
	// attempt that came and rolled back.
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return false, err
	}

	// Post-claim steps are best-effort: the cart is already expired, so a
	// transient failure here is logged rather than retried.
	released := 0
	if cart.InventoryReserved {
		for _, item := range cart.Items {
			ok, releaseErr := s.inventory.ReleaseReserved(ctx, item.SKU, item.Quantity)
			if releaseErr != nil {
				log.Printf("CRITICAL: release error for sku %s on cart %s: %v", item.SKU, cart.ID, releaseErr)
				continue
			}
			if !ok {
				log.Printf("Release guard failed for sku %s on cart %s, skipping", item.SKU, cart.ID)
				continue
			}
			if _, err := s.inventory.AppendLedger(ctx, domain.NewReleaseLedgerEntry(item.SKU, item.Quantity)); err != nil {
				log.Printf("Release ledger entry error for sku %s: %v", item.SKU, err)
			}
			released += item.Quantity
		}
		if err := s.carts.SetInventoryReserved(ctx, cart.ID, false); err != nil {
			log.Printf("Inventory flag clear error for cart %s: %v", cart.ID, err)
		}
	}

	// A set discount_reserved flag means the provisional usage_count
	// increment was never settled into a DiscountUsage row; release it
	// exactly once. Counts already consumed by an order keep the flag
	// cleared and are never touched here.
	if cart.DiscountReserved && cart.DiscountID != nil {
		if _, err := s.discounts.ReleaseUsage(ctx, *cart.DiscountID); err != nil {
			log.Printf("CRITICAL: discount release error for cart %s: %v", cart.ID, err)
		} else if err := s.carts.SetDiscountReserved(ctx, cart.ID, false); err != nil {
			log.Printf("Discount flag clear error for cart %s: %v", cart.ID, err)
		}
	}

	if err := s.carts.DeleteItems(ctx, cart.ID); err != nil {
		log.Printf("Cart item cleanup error for cart %s: %v", cart.ID, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishDomainEvent(events.NewCartExpired(cart, released)); err != nil {
			log.Printf("Cart expired event publish error: %v", err)
		}
	}

	return true, nil
}
