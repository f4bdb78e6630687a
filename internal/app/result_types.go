package app

import "commerce-engine/internal/core"

// QuoteResult wraps a priced cart.
type QuoteResult struct {
	Quote *core.PricedOrder `json:"quote"`
}

// OrderResult wraps an order after a lifecycle operation.
type OrderResult struct {
	Order *core.Order `json:"order"`
}

// ProductResult wraps a catalog record.
type ProductResult struct {
	Product *core.Product `json:"product"`
}

// MovementResult wraps a single audit movement.
type MovementResult struct {
	Movement *core.StockMovement `json:"movement"`
}

// MovementListResult is a product's full audit trail in append order.
type MovementListResult struct {
	ProductID string               `json:"product_id"`
	Movements []core.StockMovement `json:"movements"`
}
