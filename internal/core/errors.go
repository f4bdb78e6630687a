package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidID rejects identifiers outside the canonical hyphen-delimited
// format. Wrapped by ValidateID with the offending value.
var ErrInvalidID = errors.New("invalid identifier")

// ErrConditionFailed is returned by ProductStore.AdjustStock when the
// non-negative stock guard rejects the change. The ledger classifies it as
// either insufficient stock or a lost race against a concurrent reservation.
var ErrConditionFailed = errors.New("stock condition failed")

// Shortfall reports one line item that could not be fully reserved.
type Shortfall struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError carries per-item requested/available figures so the
// caller can adjust quantities instead of retrying blindly.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

// NewInsufficientStock builds a single-item insufficiency error, the shape
// StockLedger.Reserve fails with.
func NewInsufficientStock(productID string, requested, available int) *InsufficientStockError {
	return &InsufficientStockError{Shortfalls: []Shortfall{{ProductID: productID, Requested: requested, Available: available}}}
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s: requested %d, available %d", s.ProductID, s.Requested, s.Available)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// ProductNotFoundError signals a missing or deactivated product reference.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found or deactivated", e.ProductID)
}

// InvalidRateConfigurationError rejects a GST rate outside the fixed slab set
// at data-entry time, never at order time.
type InvalidRateConfigurationError struct {
	Rate decimal.Decimal
}

func (e *InvalidRateConfigurationError) Error() string {
	return fmt.Sprintf("GST rate %s%% is not a valid slab (allowed: 0, 5, 12, 18, 28)", e.Rate.String())
}

// ReservationConflictError means the atomic reserve lost a race against a
// concurrent reservation. Distinguished from InsufficientStockError so the
// coordinator can retry once with a fresh stock read before failing outward.
type ReservationConflictError struct {
	ProductID string
}

func (e *ReservationConflictError) Error() string {
	return fmt.Sprintf("concurrent reservation conflict on product %s", e.ProductID)
}

// PaymentTimeoutError is terminal: the payment window elapsed and the
// coordinator released the order's reservations.
type PaymentTimeoutError struct {
	OrderID string
}

func (e *PaymentTimeoutError) Error() string {
	return fmt.Sprintf("payment confirmation for order %s timed out", e.OrderID)
}
