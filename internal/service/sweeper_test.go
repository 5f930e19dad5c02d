package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/events"
)

func expiredCart(items ...domain.CartItem) *domain.Cart {
	cart := openCart(items...)
	cart.ExpiresAt = time.Now().Add(-time.Minute)
	return cart
}

func TestSweepReleasesHeldReservations(t *testing.T) {
	cart := expiredCart(
		domain.CartItem{SKU: "SKU-A", Quantity: 2, UnitPrice: 10},
		domain.CartItem{SKU: "SKU-B", Quantity: 1, UnitPrice: 30},
	)
	cart.InventoryReserved = true
	carts := newMemCarts(cart)
	inventory := newMemInventory(
		&domain.InventoryItem{SKU: "SKU-A", Active: true, OnHand: 10, Reserved: 2},
		&domain.InventoryItem{SKU: "SKU-B", Active: true, OnHand: 5, Reserved: 1},
	)
	publisher := &stubPublisher{}
	sweeper := NewSweeper(carts, inventory, newMemDiscounts(), publisher, time.Minute)

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	// Reserved returns to the pool; on_hand is untouched.
	assert.Equal(t, 0, inventory.get("SKU-A").Reserved)
	assert.Equal(t, 10, inventory.get("SKU-A").OnHand)
	assert.Equal(t, 0, inventory.get("SKU-B").Reserved)

	stored := carts.get(cart.ID)
	assert.Equal(t, domain.CartStatusExpired, stored.Status)
	assert.False(t, stored.InventoryReserved)
	assert.Empty(t, stored.Items)

	require.Equal(t, 1, publisher.count())
	assert.Equal(t, events.CartExpiredEvent, publisher.published[0].Type)
}

// A cleared reservation flag means this cart holds nothing: a checkout
// rollback already returned its units. The sweep must not touch the
// counter, which may be entirely owned by other carts.
func TestSweepLeavesUnheldReservationsAlone(t *testing.T) {
	cart := expiredCart(domain.CartItem{SKU: "SKU-X", Quantity: 2, UnitPrice: 15})
	carts := newMemCarts(cart)
	// Both reserved units belong to a concurrent cart mid-checkout.
	inventory := newMemInventory(&domain.InventoryItem{SKU: "SKU-X", Active: true, OnHand: 2, Reserved: 2})
	sweeper := NewSweeper(carts, inventory, newMemDiscounts(), &stubPublisher{}, time.Minute)

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	assert.Equal(t, 2, inventory.get("SKU-X").Reserved)
	assert.Equal(t, domain.CartStatusExpired, carts.get(cart.ID).Status)
	assert.Empty(t, carts.get(cart.ID).Items)
}

// A cart listed while open can complete checkout before its turn in the
// batch. The guarded claim must fail and leave the cart, its items, and
// its live reservation alone, so settlement still finds everything.
func TestSweepSkipsCartCheckedOutAfterListing(t *testing.T) {
	cart := expiredCart(domain.CartItem{SKU: "SKU-A", Name: "Widget", Quantity: 1, UnitPrice: 40})
	carts := newMemCarts(cart)
	inventory := newMemInventory(&domain.InventoryItem{SKU: "SKU-A", Active: true, OnHand: 3})
	discounts := newMemDiscounts()
	sweeper := NewSweeper(carts, inventory, discounts, &stubPublisher{}, time.Minute)

	// The sweeper sees the cart while it is still open.
	listed, err := carts.ListExpiredOpen(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// Checkout completes before the sweeper reaches the cart.
	checkout := NewCheckoutService(carts, inventory, discounts, &stubGateway{})
	result, err := checkout.Checkout(context.Background(), cart.ID)
	require.NoError(t, err)

	claimed, err := sweeper.sweepCart(context.Background(), listed[0].ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	stored := carts.get(cart.ID)
	assert.Equal(t, domain.CartStatusCheckedOut, stored.Status)
	assert.Len(t, stored.Items, 1)
	assert.Equal(t, 1, inventory.get("SKU-A").Reserved)

	// Settlement of the captured payment still produces the order.
	f := newSettlementFixture(carts, inventory, discounts)
	require.NoError(t, f.svc.HandleSessionCompleted(context.Background(), completedEvent(result.SessionID)))
	assert.Equal(t, 1, f.orders.count())
	assert.Equal(t, 2, inventory.get("SKU-A").OnHand)
	assert.Equal(t, 0, inventory.get("SKU-A").Reserved)
}

func TestSweepIgnoresLiveAndCheckedOutCarts(t *testing.T) {
	live := openCart(domain.CartItem{SKU: "SKU-A", Quantity: 1, UnitPrice: 10})
	live.InventoryReserved = true

	awaiting := expiredCart(domain.CartItem{SKU: "SKU-B", Quantity: 1, UnitPrice: 20})
	awaiting.Status = domain.CartStatusCheckedOut
	awaiting.InventoryReserved = true

	carts := newMemCarts(live, awaiting)
	inventory := newMemInventory(
		&domain.InventoryItem{SKU: "SKU-A", Active: true, OnHand: 5, Reserved: 1},
		&domain.InventoryItem{SKU: "SKU-B", Active: true, OnHand: 5, Reserved: 1},
	)
	sweeper := NewSweeper(carts, inventory, newMemDiscounts(), &stubPublisher{}, time.Minute)

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	assert.Equal(t, 1, inventory.get("SKU-A").Reserved)
	assert.Equal(t, 1, inventory.get("SKU-B").Reserved)
}

// A pending discount claim (reserved at checkout, never settled) is
// returned exactly once; a second sweep finds the flag cleared.
func TestSweepReleasesPendingDiscountOnce(t *testing.T) {
	discount := activeDiscount("SAVE10", 10)
	discount.UsageLimit = intPtr(10)
	discount.UsageCount = 3

	cart := expiredCart(domain.CartItem{SKU: "SKU-A", Quantity: 1, UnitPrice: 10})
	cart.DiscountID = &discount.ID
	cart.DiscountReserved = true
	cart.InventoryReserved = true

	carts := newMemCarts(cart)
	inventory := newMemInventory(&domain.InventoryItem{SKU: "SKU-A", Active: true, OnHand: 5, Reserved: 1})
	discounts := newMemDiscounts(discount)
	sweeper := NewSweeper(carts, inventory, discounts, &stubPublisher{}, time.Minute)

	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, discounts.get(discount.ID).UsageCount)
	assert.False(t, carts.get(cart.ID).DiscountReserved)

	// The swept cart is expired now, a second pass never selects it.
	_, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, discounts.get(discount.ID).UsageCount)
}

// A cleared flag means an order consumed the claim; the count must stay.
func TestSweepLeavesSettledDiscountAlone(t *testing.T) {
	discount := activeDiscount("SAVE10", 10)
	discount.UsageLimit = intPtr(10)
	discount.UsageCount = 3

	cart := expiredCart(domain.CartItem{SKU: "SKU-A", Quantity: 1, UnitPrice: 10})
	cart.DiscountID = &discount.ID
	cart.DiscountReserved = false
	cart.InventoryReserved = true

	carts := newMemCarts(cart)
	inventory := newMemInventory(&domain.InventoryItem{SKU: "SKU-A", Active: true, OnHand: 5, Reserved: 1})
	discounts := newMemDiscounts(discount)
	sweeper := NewSweeper(carts, inventory, discounts, &stubPublisher{}, time.Minute)

	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, discounts.get(discount.ID).UsageCount)
}

// Release guard failures on individual lines are skipped without failing
// the cart's sweep.
func TestSweepSkipsAlreadyReleasedLines(t *testing.T) {
	cart := expiredCart(
		domain.CartItem{SKU: "SKU-A", Quantity: 2, UnitPrice: 10},
		domain.CartItem{SKU: "SKU-B", Quantity: 1, UnitPrice: 20},
	)
	cart.InventoryReserved = true
	carts := newMemCarts(cart)
	inventory := newMemInventory(
		&domain.InventoryItem{SKU: "SKU-A", Active: true, OnHand: 10, Reserved: 0},
		&domain.InventoryItem{SKU: "SKU-B", Active: true, OnHand: 5, Reserved: 1},
	)
	sweeper := NewSweeper(carts, inventory, newMemDiscounts(), &stubPublisher{}, time.Minute)

	swept, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	assert.Equal(t, 0, inventory.get("SKU-A").Reserved)
	assert.Equal(t, 0, inventory.get("SKU-B").Reserved)
	assert.Equal(t, domain.CartStatusExpired, carts.get(cart.ID).Status)
}
