package gateway

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// PaymentGateway is the contract the checkout pipeline requires of the
// external payment provider: hosted checkout session creation, on-the-fly
// coupon creation, and idempotent refunds. Completion arrives out of band
// through the signed webhook.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, request SessionRequest) (*CheckoutSession, error)
	CreateCoupon(ctx context.Context, request CouponRequest) (*Coupon, error)
	Refund(ctx context.Context, request RefundRequest) (*RefundResponse, error)
}

type SessionRequest struct {
	CartID        uuid.UUID         `json:"cart_id"`
	CustomerEmail string            `json:"customer_email"`
	Items         []SessionLineItem `json:"items"`
	CouponID      string            `json:"coupon_id,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

type SessionLineItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type CheckoutSession struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

type CouponRequest struct {
	Code       string  `json:"code"`
	Percentage bool    `json:"percentage"`
	Value      float64 `json:"value"`
}

type Coupon struct {
	ID string `json:"id"`
}

type RefundRequest struct {
	PaymentIntentID string  `json:"payment_intent_id"`
	Amount          float64 `json:"amount"`
	Reason          string  `json:"reason"`
}

type RefundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// MockPaymentGateway simulates the provider with a configurable failure
// rate, for tests and local runs.
type MockPaymentGateway struct {
	FailureRate float64
	BaseURL     string
}

func NewMockPaymentGateway(failureRate float64) *MockPaymentGateway {
	return &MockPaymentGateway{
		FailureRate: failureRate,
		BaseURL:     "https://pay.example.test",
	}
}

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, request SessionRequest) (*CheckoutSession, error) {
	log.Printf("Mock Payment Gateway: creating session for cart %s (%d items)",
		request.CartID, len(request.Items))

	if rand.Float64() < m.FailureRate {
		return nil, fmt.Errorf("provider unavailable")
	}

	sessionID := fmt.Sprintf("cs_%s", uuid.New().String()[:8])
	return &CheckoutSession{
		ID:          sessionID,
		RedirectURL: fmt.Sprintf("%s/checkout/%s", m.BaseURL, sessionID),
	}, nil
}

func (m *MockPaymentGateway) CreateCoupon(ctx context.Context, request CouponRequest) (*Coupon, error) {
	log.Printf("Mock Payment Gateway: creating coupon for code %s", request.Code)

	if rand.Float64() < m.FailureRate {
		return nil, fmt.Errorf("provider unavailable")
	}

	return &Coupon{ID: fmt.Sprintf("coup_%s", uuid.New().String()[:8])}, nil
}

func (m *MockPaymentGateway) Refund(ctx context.Context, request RefundRequest) (*RefundResponse, error) {
	log.Printf("Mock Payment Gateway: refunding intent %s, amount %.2f",
		request.PaymentIntentID, request.Amount)

	if rand.Float64() < (m.FailureRate * 0.5) {
		return nil, fmt.Errorf("refund not allowed for this transaction")
	}

	return &RefundResponse{
		ID:     fmt.Sprintf("re_%d", time.Now().Unix()),
		Status: "succeeded",
	}, nil
}
