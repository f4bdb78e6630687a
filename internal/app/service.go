package app

import (
	"context"
	"time"

	"commerce-engine/internal/core"
)

// ApplicationService is the single interface the transport adapters call. It
// decouples presentation from business logic; implementations contain no
// display logic of any kind.
type ApplicationService interface {
	// Quote prices a cart without touching stock.
	Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error)

	// PlaceOrder runs the full order lifecycle. The result carries the order
	// even when it was cancelled; Err explains the disposal.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error)

	// GetOrder returns a single order by ID.
	GetOrder(ctx context.Context, orderID string) (*OrderResult, error)

	// ConfirmPayment applies a payment gateway callback to an order awaiting
	// online payment.
	ConfirmPayment(ctx context.Context, orderID string, success bool) (*OrderResult, error)

	// CancelOrder cancels a confirmed order with an audited stock restoration.
	CancelOrder(ctx context.Context, orderID, requestedBy string) (*OrderResult, error)

	// ExpireStalePayments sweeps orders whose payment window elapsed.
	ExpireStalePayments(ctx context.Context) (int, error)

	// GetAvailability answers whether qty of a product can be sold right now.
	GetAvailability(ctx context.Context, productID string, qty int) (*core.Availability, error)

	// GetBadge returns the catalog display state for a product.
	GetBadge(ctx context.Context, productID string) (core.StockBadge, error)

	// GetMovements returns the full audit trail for a product.
	GetMovements(ctx context.Context, productID string) (*MovementListResult, error)

	// ReplayStock re-derives current stock from the movement log and reports
	// any divergence from the cached quantity.
	ReplayStock(ctx context.Context, productID string) (*core.ReplayResult, error)

	// ReceiveStock records an inbound goods receipt.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*MovementResult, error)

	// AdjustStock records a manual correction (damage, shrinkage, recount).
	AdjustStock(ctx context.Context, req AdjustStockRequest) (*MovementResult, error)

	CreateProduct(ctx context.Context, in core.ProductInput) (*ProductResult, error)
	UpdateProduct(ctx context.Context, id string, in core.ProductInput) (*ProductResult, error)
	DeactivateProduct(ctx context.Context, id string) (*ProductResult, error)
	GetProduct(ctx context.Context, id string) (*ProductResult, error)

	// UpsertCategory creates or corrects a GST category and invalidates the
	// affected rate cache entries.
	UpsertCategory(ctx context.Context, cat core.GSTCategory) (*core.GSTCategory, error)

	// SetRateOverride installs a store-specific price/rate override; it takes
	// effect on the next pricing run.
	SetRateOverride(ctx context.Context, ov core.RateOverride) error

	// ClearRateOverride removes a store-specific override.
	ClearRateOverride(ctx context.Context, storeID, productID string) error

	// TaxReport aggregates confirmed orders of a period into slab-wise filing
	// figures.
	TaxReport(ctx context.Context, storeID string, from, to time.Time) (*core.TaxFilingReport, error)
}
