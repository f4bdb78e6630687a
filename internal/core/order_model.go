package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus progresses through the state machine:
//
//	DRAFT → VALIDATING → STOCK_RESERVED → PRICED → AWAITING_PAYMENT → CONFIRMED
//	                                              └───────(COD)────→ CONFIRMED
//	any non-terminal state → CANCELLED
//
// CONFIRMED and CANCELLED are terminal, except that a CONFIRMED order may be
// explicitly cancelled through the audited post-confirmation path.
type OrderStatus string

const (
	OrderDraft           OrderStatus = "DRAFT"
	OrderValidating      OrderStatus = "VALIDATING"
	OrderStockReserved   OrderStatus = "STOCK_RESERVED"
	OrderPriced          OrderStatus = "PRICED"
	OrderAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	OrderConfirmed       OrderStatus = "CONFIRMED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// Terminal reports whether the status ends the ordinary lifecycle.
func (s OrderStatus) Terminal() bool {
	return s == OrderConfirmed || s == OrderCancelled
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderDraft:           {OrderValidating, OrderCancelled},
	OrderValidating:      {OrderStockReserved, OrderCancelled},
	OrderStockReserved:   {OrderPriced, OrderCancelled},
	OrderPriced:          {OrderAwaitingPayment, OrderConfirmed, OrderCancelled},
	OrderAwaitingPayment: {OrderConfirmed, OrderCancelled},
	OrderConfirmed:       {OrderCancelled}, // post-confirmation cancellation only
}

// CanTransition reports whether from → to is a defined transition.
func CanTransition(from, to OrderStatus) bool {
	for _, t := range orderTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// PaymentMethod selects the path after pricing: COD confirms immediately,
// online capture waits for the payment callback.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

// PaymentStatus tracks the payment leg independently of the order status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentTimedOut PaymentStatus = "TIMED_OUT"
)

// CancelReason distinguishes why an order ended CANCELLED, so a payment
// timeout reads differently from a stock conflict.
type CancelReason string

const (
	CancelStockShortfall   CancelReason = "STOCK_SHORTFALL"
	CancelReservationRace  CancelReason = "RESERVATION_RACE"
	CancelValidationFailed CancelReason = "VALIDATION_FAILED"
	CancelPricingFailure   CancelReason = "PRICING_FAILURE"
	CancelPaymentFailed    CancelReason = "PAYMENT_FAILED"
	CancelPaymentTimeout   CancelReason = "PAYMENT_TIMEOUT"
	CancelRequested        CancelReason = "REQUESTED"
)

// OrderLine is one line item with its unit price and tax breakdown captured
// at order time. Once the order confirms these figures are frozen; later rate
// edits never alter a placed order.
type OrderLine struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
	HSNCode      string          `json:"hsn_code"`
	GSTRate      decimal.Decimal `json:"gst_rate"`
	CessRate     decimal.Decimal `json:"cess_rate"`
	Exempt       bool            `json:"exempt"`
	Tax          TaxBreakup      `json:"tax"`
}

// Order is a customer purchase request. Never deleted; CANCELLED is the
// terminal disposal state.
type Order struct {
	ID              string          `json:"id"`
	StoreID         string          `json:"store_id"`
	CustomerID      string          `json:"customer_id"`
	CustomerContact string          `json:"customer_contact"`
	Lines           []OrderLine     `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxSummary      []SlabSummary   `json:"tax_summary"`
	TotalTax        decimal.Decimal `json:"total_tax"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	CancelReason    CancelReason    `json:"cancel_reason,omitempty"`
	Shortfalls      []Shortfall     `json:"shortfalls,omitempty"`
	// ReservationIDs is the explicit rollback set: movement IDs committed for
	// this order attempt, released in reverse order on any failure.
	ReservationIDs []string   `json:"reservation_ids,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// transition moves the order to the next status, enforcing the state machine.
func (o *Order) transition(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("order %s: illegal transition %s → %s", o.ID, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}
