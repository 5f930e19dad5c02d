package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/reekob/mendmyinewshop/internal/gateway"
	"github.com/reekob/mendmyinewshop/internal/service"
)

const signatureHeader = "X-Payment-Signature"

// PaymentWebhookHandler is the inbound boundary for the payment provider's
// asynchronous completion notifications.
type PaymentWebhookHandler struct {
	settlementService *service.SettlementService
	webhookSecret     string
}

func NewPaymentWebhookHandler(settlementService *service.SettlementService, webhookSecret string) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		settlementService: settlementService,
		webhookSecret:     webhookSecret,
	}
}

// HandleNotification verifies the HMAC signature over the exact raw body
// before anything is parsed or any state is touched. Unverifiable input
// gets 401 with no side effects; anything verified and processed gets 200
// so the provider stops redelivering.
func (h *PaymentWebhookHandler) HandleNotification(c *fiber.Ctx) error {
	body := c.Body()

	if err := gateway.VerifySignature(h.webhookSecret, body, c.Get(signatureHeader)); err != nil {
		log.Printf("Rejected payment notification: %v", err)
		return ErrorResponse(c, fiber.StatusUnauthorized, "invalid_signature", "Signature verification failed", nil)
	}

	event, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		return BadRequestResponse(c, "Malformed notification body", nil)
	}

	switch event.Type {
	case gateway.EventSessionCompleted:
		if err := h.settlementService.HandleSessionCompleted(c.Context(), event); err != nil {
			log.Printf("Settlement error for event %s: %v", event.ID, err)
			// Non-2xx makes the provider redeliver; settlement is
			// replay-safe from the top.
			return ErrorResponse(c, fiber.StatusInternalServerError, "settlement_error", "Settlement failed", nil)
		}
	default:
		log.Printf("Ignoring unhandled provider event type: %s", event.Type)
	}

	return SuccessResponse(c, "Notification processed", nil)
}
