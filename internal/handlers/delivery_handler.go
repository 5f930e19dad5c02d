package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/reekob/mendmyinewshop/internal/service"
)

type DeliveryHandler struct {
	dispatcher *service.DispatcherService
}

func NewDeliveryHandler(dispatcher *service.DispatcherService) *DeliveryHandler {
	return &DeliveryHandler{dispatcher: dispatcher}
}

// RequeueFailed re-enqueues terminally failed webhook deliveries under a
// fresh attempt budget.
func (h *DeliveryHandler) RequeueFailed(c *fiber.Ctx) error {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return BadRequestResponse(c, "Invalid limit", map[string]interface{}{
				"limit": raw,
			})
		}
		limit = parsed
	}

	requeued, err := h.dispatcher.RequeueFailed(c.Context(), limit)
	if err != nil {
		return ErrorResponse(c, fiber.StatusInternalServerError, "requeue_error", "Failed to requeue deliveries", nil)
	}

	return SuccessResponse(c, "Deliveries requeued", map[string]interface{}{
		"requeued": requeued,
	})
}
