package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/service"
)

type CheckoutHandler struct {
	checkoutService *service.CheckoutService
}

func NewCheckoutHandler(checkoutService *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func (h *CheckoutHandler) HealthCheck(c *fiber.Ctx) error {
	return SuccessResponse(c, "Service is healthy", map[string]interface{}{
		"status": "healthy",
	})
}

// Checkout initiates the reservation pipeline for a cart and returns the
// provider redirect target on success.
func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	cartIDStr := c.Params("cart_id")
	cartID, err := uuid.Parse(cartIDStr)
	if err != nil {
		return BadRequestResponse(c, "Invalid cart ID", map[string]interface{}{
			"cart_id": cartIDStr,
		})
	}

	result, err := h.checkoutService.Checkout(c.Context(), cartID)
	if err != nil {
		return h.mapCheckoutError(c, err)
	}

	return SuccessResponse(c, "Checkout session created", result)
}

// mapCheckoutError translates the domain error taxonomy into structured
// responses with stable codes clients can branch on.
func (h *CheckoutHandler) mapCheckoutError(c *fiber.Ctx, err error) error {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return ErrorResponse(c, fiber.StatusConflict, conflict.Code(), conflict.Error(), map[string]interface{}{
			"resource": conflict.Resource,
		})
	}

	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return ErrorResponse(c, fiber.StatusNotFound, notFound.Code(), notFound.Error(), map[string]interface{}{
			"resource": notFound.Resource,
			"id":       notFound.ID,
		})
	}

	var insufficient *domain.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		return ErrorResponse(c, fiber.StatusConflict, insufficient.Code(), insufficient.Error(), map[string]interface{}{
			"sku":       insufficient.SKU,
			"requested": insufficient.Requested,
		})
	}

	var provider *domain.PaymentProviderError
	if errors.As(err, &provider) {
		return ErrorResponse(c, fiber.StatusBadGateway, provider.Code(), "Payment provider request failed", nil)
	}

	log.Printf("Checkout error: %v", err)
	return ErrorResponse(c, fiber.StatusInternalServerError, "internal_error", "Checkout failed", nil)
}
