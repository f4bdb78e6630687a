package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// OrderRequest is a customer purchase request as it arrives from the boundary.
// The store and customer identifiers are supplied by the authentication layer,
// already verified.
type OrderRequest struct {
	StoreID         string           `json:"store_id"`
	CustomerID      string           `json:"customer_id"`
	CustomerContact string           `json:"customer_contact"`
	Items           []OrderItemInput `json:"items"`
	Payment         PaymentMethod    `json:"payment"`
}

// StoreContextFunc supplies the pricing context for a store: seller state,
// rate overrides, delivery policy. Provided by the application layer from
// configuration and store settings.
type StoreContextFunc func(storeID string) StoreContext

// OrderCoordinator orchestrates one order's lifecycle: validate availability,
// reserve stock, price, await payment, confirm — rolling back every
// reservation made so far on any failure. It never returns an error while
// leaving stock reserved with no corresponding order.
type OrderCoordinator interface {
	// CreateOrder runs the order through the state machine. The returned
	// order is persisted even when the run ends CANCELLED, carrying the
	// structured per-item shortfall report; the error explains the failure.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// Quote prices items without reserving stock, for cart previews.
	Quote(ctx context.Context, storeID string, items []OrderItemInput) (*PricedOrder, error)
	// HandlePaymentResult applies an external payment callback to an order
	// in AWAITING_PAYMENT.
	HandlePaymentResult(ctx context.Context, orderID string, success bool) (*Order, error)
	// ExpireStalePayments cancels orders stuck in AWAITING_PAYMENT beyond the
	// configured window, releasing their reservations. Returns the number of
	// orders cancelled.
	ExpireStalePayments(ctx context.Context) (int, error)
	// CancelConfirmed is the distinct, audited post-confirmation cancellation:
	// it releases the reserved stock through compensating movements.
	CancelConfirmed(ctx context.Context, orderID, requestedBy string) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

type orderCoordinator struct {
	orders        OrderStore
	ledger        StockLedger
	pricing       PricingEngine
	storeCtx      StoreContextFunc
	paymentWindow time.Duration
}

func NewOrderCoordinator(orders OrderStore, ledger StockLedger, pricing PricingEngine, storeCtx StoreContextFunc, paymentWindow time.Duration) OrderCoordinator {
	return &orderCoordinator{
		orders:        orders,
		ledger:        ledger,
		pricing:       pricing,
		storeCtx:      storeCtx,
		paymentWindow: paymentWindow,
	}
}

func (c *orderCoordinator) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ValidateID(req.StoreID, IDPrefixStore); err != nil {
		return nil, err
	}
	if req.CustomerID != "" {
		if err := ValidateID(req.CustomerID, IDPrefixCustomer); err != nil {
			return nil, err
		}
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order must have at least one item")
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: quantity must be positive, got %d", i+1, item.Quantity)
		}
		if err := ValidateID(item.ProductID, IDPrefixProduct); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	payment := req.Payment
	if payment == "" {
		payment = PaymentCOD
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              NewID(IDPrefixOrder),
		StoreID:         req.StoreID,
		CustomerID:      req.CustomerID,
		CustomerContact: req.CustomerContact,
		Status:          OrderDraft,
		PaymentMethod:   payment,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.orders.PutOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persist draft order: %w", err)
	}

	// DRAFT → VALIDATING: read-only availability pass. If anything is short,
	// cancel before a single reservation is made.
	if err := c.step(ctx, o, OrderValidating); err != nil {
		return nil, err
	}
	var shortfalls []Shortfall
	for _, item := range req.Items {
		av, err := c.ledger.CheckAvailability(ctx, item.ProductID, item.Quantity)
		if err != nil {
			// Not a shortfall: unknown or deactivated product, storage trouble.
			c.cancel(ctx, o, CancelValidationFailed)
			return o, err
		}
		if !av.Available {
			shortfalls = append(shortfalls, Shortfall{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: av.CurrentStock,
			})
		}
	}
	if len(shortfalls) > 0 {
		o.Shortfalls = shortfalls
		c.cancel(ctx, o, CancelStockShortfall)
		return o, &InsufficientStockError{Shortfalls: shortfalls}
	}

	// VALIDATING → STOCK_RESERVED: reserve item by item, tracking committed
	// movement IDs as the explicit rollback set.
	for _, item := range req.Items {
		m, conflict, err := c.reserveWithRetry(ctx, item, o.ID)
		if err != nil {
			c.rollback(ctx, o)
			var insufficient *InsufficientStockError
			reason := CancelValidationFailed
			if errors.As(err, &insufficient) {
				o.Shortfalls = insufficient.Shortfalls
				reason = CancelStockShortfall
			}
			if conflict {
				reason = CancelReservationRace
			}
			c.cancel(ctx, o, reason)
			return o, err
		}
		o.ReservationIDs = append(o.ReservationIDs, m.ID)
	}
	if err := c.step(ctx, o, OrderStockReserved); err != nil {
		c.rollback(ctx, o)
		return nil, err
	}

	// STOCK_RESERVED → PRICED. The rate resolver never fails, so a pricing
	// error here means a missing product or storage trouble; either way the
	// reservations come back.
	priced, err := c.pricing.Price(ctx, req.Items, c.storeCtx(req.StoreID))
	if err != nil {
		c.rollback(ctx, o)
		c.cancel(ctx, o, CancelPricingFailure)
		return o, fmt.Errorf("pricing failed: %w", err)
	}
	c.capture(o, priced)
	if err := c.step(ctx, o, OrderPriced); err != nil {
		c.rollback(ctx, o)
		return nil, err
	}

	// PRICED → AWAITING_PAYMENT, or straight to CONFIRMED when the payment
	// method needs no online capture.
	if o.PaymentMethod == PaymentOnline {
		if err := c.step(ctx, o, OrderAwaitingPayment); err != nil {
			c.rollback(ctx, o)
			return nil, err
		}
		return o, nil
	}
	return c.confirm(ctx, o)
}

func (c *orderCoordinator) Quote(ctx context.Context, storeID string, items []OrderItemInput) (*PricedOrder, error) {
	if err := ValidateID(storeID, IDPrefixStore); err != nil {
		return nil, err
	}
	return c.pricing.Price(ctx, items, c.storeCtx(storeID))
}

func (c *orderCoordinator) HandlePaymentResult(ctx context.Context, orderID string, success bool) (*Order, error) {
	o, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != OrderAwaitingPayment {
		return nil, fmt.Errorf("order %s is not awaiting payment (status %s)", orderID, o.Status)
	}

	if !success {
		o.PaymentStatus = PaymentFailed
		c.rollback(ctx, o)
		c.cancel(ctx, o, CancelPaymentFailed)
		return o, nil
	}
	o.PaymentStatus = PaymentPaid
	return c.confirm(ctx, o)
}

func (c *orderCoordinator) ExpireStalePayments(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-c.paymentWindow)
	stale, err := c.orders.StaleAwaitingPayment(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan stale payments: %w", err)
	}

	expired := 0
	for i := range stale {
		// Re-fetch before acting: a payment callback may have confirmed the
		// order between the scan and this iteration, and a confirmed order
		// must never be clobbered by the timeout path.
		o, err := c.orders.GetOrder(ctx, stale[i].ID)
		if err != nil {
			log.Error().Err(err).Str("order_id", stale[i].ID).Msg("re-fetch stale order failed")
			continue
		}
		if o.Status != OrderAwaitingPayment || !o.UpdatedAt.Before(cutoff) {
			continue
		}
		o.PaymentStatus = PaymentTimedOut
		c.rollback(ctx, o)
		c.cancel(ctx, o, CancelPaymentTimeout)
		expired++
		log.Warn().
			Str("order_id", o.ID).
			Dur("window", c.paymentWindow).
			Err(&PaymentTimeoutError{OrderID: o.ID}).
			Msg("payment window elapsed, order cancelled and stock released")
	}
	return expired, nil
}

func (c *orderCoordinator) CancelConfirmed(ctx context.Context, orderID, requestedBy string) (*Order, error) {
	o, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != OrderConfirmed {
		return nil, fmt.Errorf("order %s is not confirmed (status %s)", orderID, o.Status)
	}

	// Distinct from the pre-confirmation rollback path: each release is an
	// explicitly audited compensating movement.
	for i := len(o.ReservationIDs) - 1; i >= 0; i-- {
		if err := c.ledger.ReleaseAs(ctx, o.ReservationIDs[i], ReasonPostConfirmCancel); err != nil {
			return nil, fmt.Errorf("release reservation %s: %w", o.ReservationIDs[i], err)
		}
	}
	c.cancel(ctx, o, CancelRequested)
	log.Info().
		Str("order_id", o.ID).
		Str("requested_by", requestedBy).
		Msg("confirmed order cancelled, stock restored")
	return o, nil
}

func (c *orderCoordinator) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if err := ValidateID(orderID, IDPrefixOrder); err != nil {
		return nil, err
	}
	return c.orders.GetOrder(ctx, orderID)
}

// reserveWithRetry reserves one item, retrying exactly once on a lost race.
// A conflict that persists is reported as insufficient stock with fresh
// figures; conflict reports whether the failure path involved a race.
func (c *orderCoordinator) reserveWithRetry(ctx context.Context, item OrderItemInput, orderID string) (*StockMovement, bool, error) {
	m, err := c.ledger.Reserve(ctx, item.ProductID, item.Quantity, orderID)
	var conflict *ReservationConflictError
	if !errors.As(err, &conflict) {
		return m, false, err
	}

	log.Info().
		Str("product_id", item.ProductID).
		Str("order_id", orderID).
		Msg("reservation lost a race, retrying once with fresh stock")
	m, err = c.ledger.Reserve(ctx, item.ProductID, item.Quantity, orderID)
	if err == nil {
		return m, false, nil
	}
	if errors.As(err, &conflict) {
		av, aerr := c.ledger.CheckAvailability(ctx, item.ProductID, item.Quantity)
		if aerr != nil {
			return nil, true, aerr
		}
		return nil, true, NewInsufficientStock(item.ProductID, item.Quantity, av.CurrentStock)
	}
	return nil, true, err
}

// rollback releases every reservation committed for this order attempt, in
// reverse order. Failures are logged and the remaining releases still run:
// leaving stock reserved for a dead order is the worse outcome.
func (c *orderCoordinator) rollback(ctx context.Context, o *Order) {
	for i := len(o.ReservationIDs) - 1; i >= 0; i-- {
		if err := c.ledger.Release(ctx, o.ReservationIDs[i]); err != nil {
			log.Error().Err(err).
				Str("order_id", o.ID).
				Str("movement_id", o.ReservationIDs[i]).
				Msg("rollback release failed")
		}
	}
}

func (c *orderCoordinator) step(ctx context.Context, o *Order, to OrderStatus) error {
	if err := o.transition(to); err != nil {
		return err
	}
	if err := c.orders.PutOrder(ctx, o); err != nil {
		return fmt.Errorf("persist order %s at %s: %w", o.ID, to, err)
	}
	return nil
}

func (c *orderCoordinator) cancel(ctx context.Context, o *Order, reason CancelReason) {
	o.CancelReason = reason
	if err := o.transition(OrderCancelled); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("cancel transition rejected")
		return
	}
	now := time.Now().UTC()
	o.CancelledAt = &now
	ordersCancelled.WithLabelValues(string(reason)).Inc()
	if err := c.orders.PutOrder(ctx, o); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("persist cancelled order failed")
	}
	log.Info().
		Str("order_id", o.ID).
		Str("reason", string(reason)).
		Msg("order cancelled")
}

func (c *orderCoordinator) confirm(ctx context.Context, o *Order) (*Order, error) {
	if err := o.transition(OrderConfirmed); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o.ConfirmedAt = &now
	if err := c.orders.PutOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persist confirmed order %s: %w", o.ID, err)
	}
	ordersConfirmed.Inc()
	log.Info().
		Str("order_id", o.ID).
		Str("store_id", o.StoreID).
		Str("total", o.TotalAmount.StringFixed(2)).
		Msg("order confirmed")
	return o, nil
}

// capture copies the pricing result onto the order, freezing unit prices and
// tax figures at order time.
func (c *orderCoordinator) capture(o *Order, priced *PricedOrder) {
	o.Lines = o.Lines[:0]
	for _, pl := range priced.Lines {
		o.Lines = append(o.Lines, OrderLine{
			ProductID:    pl.ProductID,
			ProductName:  pl.ProductName,
			Quantity:     pl.Quantity,
			UnitPrice:    pl.UnitPrice,
			LineSubtotal: pl.LineSubtotal,
			HSNCode:      pl.HSNCode,
			GSTRate:      pl.GSTRate,
			CessRate:     pl.CessRate,
			Exempt:       pl.Exempt,
			Tax:          pl.Tax,
		})
	}
	o.Subtotal = priced.Subtotal
	o.TaxSummary = priced.TaxSummary
	o.TotalTax = priced.TotalTax
	o.DeliveryFee = priced.DeliveryFee
	o.TotalAmount = priced.TotalAmount
}
