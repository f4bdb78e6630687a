package app

import "commerce-engine/internal/core"

// QuoteRequest prices a prospective cart for a store.
type QuoteRequest struct {
	StoreID string                `json:"store_id"`
	Items   []core.OrderItemInput `json:"items"`
}

// PlaceOrderRequest is the boundary shape for creating an order.
type PlaceOrderRequest struct {
	StoreID         string                `json:"store_id"`
	CustomerID      string                `json:"customer_id,omitempty"`
	CustomerContact string                `json:"customer_contact,omitempty"`
	Items           []core.OrderItemInput `json:"items"`
	Payment         core.PaymentMethod    `json:"payment,omitempty"`
}

// ReceiveStockRequest records an inbound goods receipt.
type ReceiveStockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AdjustStockRequest records a signed manual stock correction.
type AdjustStockRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
}
