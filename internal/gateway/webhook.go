package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/reekob/mendmyinewshop/internal/domain"
)

// Event types the provider delivers over the signed webhook.
const (
	EventSessionCompleted = "checkout.session.completed"
)

// WebhookEvent is the provider's completion notification, parsed only
// after the raw body passed signature verification.
type WebhookEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	SessionID       string          `json:"session_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	AmountTotal     float64         `json:"amount_total"`
	ShippingAddress *domain.Address `json:"shipping_address,omitempty"`
}

// Sign computes the hex HMAC-SHA256 of body under secret. The same scheme
// signs outbound subscriber deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the exact raw
// request body. It must run before any parsing or state mutation.
func VerifySignature(secret string, body []byte, signature string) error {
	if signature == "" {
		return &domain.SignatureError{Reason: "missing signature header"}
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &domain.SignatureError{Reason: "signature mismatch"}
	}
	return nil
}

// ParseWebhookEvent decodes a verified body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
