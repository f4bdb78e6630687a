package core

import (
	"context"
	"time"
)

// The engine depends on four persistence access patterns, not on any
// particular storage engine. internal/store/postgres and internal/store/memory
// provide the two backends.

// ProductStore is get/put access to Product records plus the storage-level
// atomicity primitive the stock ledger is built on.
type ProductStore interface {
	// GetProduct returns *ProductNotFoundError when id is unknown.
	GetProduct(ctx context.Context, id string) (*Product, error)
	PutProduct(ctx context.Context, p *Product) error

	// AdjustStock applies delta to the product's stock quantity if and only if
	// the resulting quantity stays non-negative, returning stock before and
	// after. The guard and the write must be a single atomic step with respect
	// to concurrent callers (conditional UPDATE, mutex, or equivalent) — never
	// a read followed by a separate write. Returns ErrConditionFailed when the
	// guard rejects the change and *ProductNotFoundError when id is unknown.
	AdjustStock(ctx context.Context, id string, delta int) (before, after int, err error)
}

// MovementStore is append/scan access to the immutable stock movement log.
type MovementStore interface {
	AppendMovement(ctx context.Context, m *StockMovement) error
	GetMovement(ctx context.Context, id string) (*StockMovement, error)
	// ScanMovements returns all movements for a product in append order.
	ScanMovements(ctx context.Context, productID string) ([]StockMovement, error)
	// MovementsByReference returns movements whose Reference equals ref
	// (an order ID, or a movement ID for releases).
	MovementsByReference(ctx context.Context, ref string) ([]StockMovement, error)
}

// OrderStore is get/put access to Order records plus the two scans the
// coordinator and the filing report need.
type OrderStore interface {
	// GetOrder fails with a descriptive error when id is unknown.
	GetOrder(ctx context.Context, id string) (*Order, error)
	PutOrder(ctx context.Context, o *Order) error
	// OrdersByStatus returns orders for a store in the given status whose
	// CreatedAt falls within [from, to).
	OrdersByStatus(ctx context.Context, storeID string, status OrderStatus, from, to time.Time) ([]Order, error)
	// StaleAwaitingPayment returns orders stuck in AWAITING_PAYMENT since
	// before the cutoff, for the payment-timeout sweep.
	StaleAwaitingPayment(ctx context.Context, cutoff time.Time) ([]Order, error)
}

// CategoryStore is get/put access to GST category records, looked up by the
// HSN codes mapped to them.
type CategoryStore interface {
	// GetCategoryByHSN returns (nil, nil) when no category is mapped to hsn.
	GetCategoryByHSN(ctx context.Context, hsn string) (*GSTCategory, error)
	PutCategory(ctx context.Context, c *GSTCategory) error
}

// CategoryLookup is the read path the rate resolver consults for dynamic
// category rates. Implementations cache with a short TTL; Invalidate drops an
// entry immediately after an administrative rate edit instead of waiting for
// expiry.
type CategoryLookup interface {
	Category(ctx context.Context, hsn string) (*GSTCategory, error)
	Invalidate(ctx context.Context, hsn string) error
}
