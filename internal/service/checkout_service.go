package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/gateway"
)

// CheckoutService transitions an open cart into a payment-pending state:
// it claims inventory and discount allowance through guarded writes, then
// obtains a hosted checkout session from the payment provider. The
// external call cannot join a transaction, so every forward step pairs
// with a compensating action and any failure unwinds the stack.
type CheckoutService struct {
	carts     CartStore
	inventory InventoryStore
	discounts DiscountStore
	gateway   gateway.PaymentGateway
}

func NewCheckoutService(carts CartStore, inventory InventoryStore, discounts DiscountStore, pg gateway.PaymentGateway) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		inventory: inventory,
		discounts: discounts,
		gateway:   pg,
	}
}

type CheckoutResult struct {
	CartID         uuid.UUID `json:"cart_id"`
	SessionID      string    `json:"session_id"`
	RedirectURL    string    `json:"redirect_url"`
	Subtotal       float64   `json:"subtotal"`
	DiscountAmount float64   `json:"discount_amount"`
	Total          float64   `json:"total"`
}

func (s *CheckoutService) Checkout(ctx context.Context, cartID uuid.UUID) (result *CheckoutResult, err error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, &domain.ConflictError{Resource: "cart", Reason: "cart is empty"}
	}

	saga := &compensationStack{}
	defer func() {
		if err != nil {
			saga.unwind(ctx)
		}
	}()

	// Step 1: conditional open -> checked_out flip. This compare-and-swap
	// is the only mutual exclusion between concurrent checkout attempts.
	flipped, err := s.carts.MarkCheckedOut(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("cart status flip error: %w", err)
	}
	if !flipped {
		return nil, &domain.ConflictError{Resource: "cart", Reason: "cart is not open"}
	}
	saga.push("reopen_cart", func(ctx context.Context) error {
		return s.carts.Reopen(ctx, cartID)
	})

	// Step 2: every line item must still exist and be active.
	for _, item := range cart.Items {
		stock, lookupErr := s.inventory.GetBySKU(ctx, item.SKU)
		if lookupErr != nil {
			err = lookupErr
			return nil, err
		}
		if !stock.Active {
			err = &domain.NotFoundError{Resource: "sku", ID: item.SKU}
			return nil, err
		}
	}

	// Step 3: soft re-validation of the discount. A discount that expired
	// mid-session is recoverable: strip it and continue without it.
	discount, err := s.revalidateDiscount(ctx, cart)
	if err != nil {
		return nil, err
	}

	// Step 4: limited discounts need a provisional usage_count claim. A
	// failed guard here aborts the checkout; the limit being exhausted
	// between steps 3 and 4 means another checkout won the allowance. The
	// stale discount is dropped so the client's retry proceeds at full
	// price instead of re-failing on the same conflict.
	if discount != nil && discount.UsageLimit != nil {
		reserved, reserveErr := s.discounts.ReserveUsage(ctx, discount.ID)
		if reserveErr != nil {
			err = fmt.Errorf("discount reservation error: %w", reserveErr)
			return nil, err
		}
		if !reserved {
			if stripErr := s.carts.StripDiscount(ctx, cartID); stripErr != nil {
				log.Printf("Discount strip error after exhausted limit on cart %s: %v", cartID, stripErr)
			}
			err = &domain.ConflictError{Resource: "discount", Reason: "usage limit exhausted"}
			return nil, err
		}
		if flagErr := s.carts.SetDiscountReserved(ctx, cartID, true); flagErr != nil {
			err = fmt.Errorf("discount reservation flag error: %w", flagErr)
			saga.push("release_discount_usage", func(ctx context.Context) error {
				_, releaseErr := s.discounts.ReleaseUsage(ctx, discount.ID)
				return releaseErr
			})
			return nil, err
		}
		saga.push("release_discount_usage", func(ctx context.Context) error {
			if _, releaseErr := s.discounts.ReleaseUsage(ctx, discount.ID); releaseErr != nil {
				return releaseErr
			}
			return s.carts.SetDiscountReserved(ctx, cartID, false)
		})
	}

	// Step 5: reserve inventory item by item. Each success pushes its own
	// release, so a failure at item k only ever unwinds items 1..k-1.
	for _, item := range cart.Items {
		item := item
		reserved, reserveErr := s.inventory.Reserve(ctx, item.SKU, item.Quantity)
		if reserveErr != nil {
			err = fmt.Errorf("inventory reservation error for %s: %w", item.SKU, reserveErr)
			return nil, err
		}
		if !reserved {
			err = &domain.InsufficientInventoryError{SKU: item.SKU, Requested: item.Quantity}
			return nil, err
		}
		saga.push("release_inventory_"+item.SKU, func(ctx context.Context) error {
			_, releaseErr := s.inventory.ReleaseReserved(ctx, item.SKU, item.Quantity)
			return releaseErr
		})
	}

	// The set flag records that this cart's line-item reservations are
	// live. The sweeper only returns stock while it is set, so a cart whose
	// rollback already released everything is never double-released. The
	// flag clears first during unwind, before the releases themselves.
	if err = s.carts.SetInventoryReserved(ctx, cartID, true); err != nil {
		err = fmt.Errorf("inventory reservation flag error: %w", err)
		return nil, err
	}
	saga.push("clear_inventory_flag", func(ctx context.Context) error {
		return s.carts.SetInventoryReserved(ctx, cartID, false)
	})

	// Step 6: totals. Tax and shipping are left to the provider.
	subtotal := cart.Subtotal()
	var discountAmount float64
	if discount != nil {
		discountAmount = discount.AmountFor(subtotal)
	}

	// Step 7: external session creation, the only step outside our store.
	session, err := s.createSession(ctx, cart, discount)
	if err != nil {
		return nil, err
	}

	// Step 8: persist the provider handle. Failure here still unwinds;
	// the orphaned provider session simply expires on the provider side.
	if err = s.carts.SetPaymentSession(ctx, cartID, session.ID, discountAmount); err != nil {
		err = fmt.Errorf("payment session persist error: %w", err)
		return nil, err
	}

	log.Printf("Checkout reserved: cart=%s session=%s total=%.2f", cartID, session.ID, subtotal-discountAmount)

	return &CheckoutResult{
		CartID:         cartID,
		SessionID:      session.ID,
		RedirectURL:    session.RedirectURL,
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		Total:          subtotal - discountAmount,
	}, nil
}

// revalidateDiscount returns the cart's discount when it still applies, or
// strips it from the cart and returns nil when it no longer does.
func (s *CheckoutService) revalidateDiscount(ctx context.Context, cart *domain.Cart) (*domain.Discount, error) {
	if cart.DiscountID == nil {
		return nil, nil
	}

	strip := func(reason string) error {
		log.Printf("Dropping discount from cart %s: %s", cart.ID, reason)
		if err := s.carts.StripDiscount(ctx, cart.ID); err != nil {
			return fmt.Errorf("discount strip error: %w", err)
		}
		cart.DiscountID = nil
		cart.DiscountAmount = 0
		return nil
	}

	discount, err := s.discounts.GetByID(ctx, *cart.DiscountID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, strip("discount no longer exists")
		}
		return nil, err
	}

	customerUsage, err := s.discounts.CustomerUsageCount(ctx, discount.ID, cart.CustomerEmail)
	if err != nil {
		return nil, fmt.Errorf("customer usage lookup error: %w", err)
	}

	if validationErr := discount.ValidateFor(cart.Subtotal(), customerUsage, time.Now()); validationErr != nil {
		return nil, strip(validationErr.Error())
	}

	return discount, nil
}

func (s *CheckoutService) createSession(ctx context.Context, cart *domain.Cart, discount *domain.Discount) (*gateway.CheckoutSession, error) {
	request := gateway.SessionRequest{
		CartID:        cart.ID,
		CustomerEmail: cart.CustomerEmail,
		Metadata: map[string]string{
			"cart_id": cart.ID.String(),
		},
	}
	for _, item := range cart.Items {
		request.Items = append(request.Items, gateway.SessionLineItem{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	if discount != nil {
		coupon, err := s.gateway.CreateCoupon(ctx, gateway.CouponRequest{
			Code:       discount.Code,
			Percentage: discount.Type == domain.DiscountTypePercentage,
			Value:      discount.Value,
		})
		if err != nil {
			return nil, &domain.PaymentProviderError{Op: "create_coupon", Err: err}
		}
		request.CouponID = coupon.ID
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, request)
	if err != nil {
		return nil, &domain.PaymentProviderError{Op: "create_session", Err: err}
	}
	return session, nil
}
