package domain

import "fmt"

// Stable error codes surfaced to API clients.
const (
	CodeConflict              = "conflict"
	CodeNotFound              = "not_found"
	CodeInsufficientInventory = "insufficient_inventory"
	CodePaymentProvider       = "payment_provider_error"
	CodeInvalidSignature      = "invalid_signature"
)

// ConflictError means the target was not in the phase the operation
// required, e.g. a cart that is no longer open.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
}

func (e *ConflictError) Code() string { return CodeConflict }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }

// InsufficientInventoryError reports the first SKU whose reservation guard
// failed during checkout.
type InsufficientInventoryError struct {
	SKU       string
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for sku %s (requested %d)", e.SKU, e.Requested)
}

func (e *InsufficientInventoryError) Code() string { return CodeInsufficientInventory }

type PaymentProviderError struct {
	Op  string
	Err error
}

func (e *PaymentProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *PaymentProviderError) Unwrap() error { return e.Err }

func (e *PaymentProviderError) Code() string { return CodePaymentProvider }

// SignatureError rejects an inbound notification whose signature does not
// verify against the raw request body. No state is touched when it fires.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed: %s", e.Reason)
}

func (e *SignatureError) Code() string { return CodeInvalidSignature }

// RaceAnomaly records a guard that found its invariant already violated by
// a concurrent actor after payment was captured. It is logged for operator
// review, never returned to the settlement caller.
type RaceAnomaly struct {
	Resource string
	Detail   string
}

func (a *RaceAnomaly) String() string {
	return fmt.Sprintf("race anomaly on %s: %s", a.Resource, a.Detail)
}
