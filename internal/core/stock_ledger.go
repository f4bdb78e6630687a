package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Availability is the read-only answer to "can I sell qty of this right now".
type Availability struct {
	ProductID    string `json:"product_id"`
	Available    bool   `json:"available"`
	CurrentStock int    `json:"current_stock"`
}

// StockBadge is the catalog/search display state, derived from the same
// ledger the order path uses.
type StockBadge string

const (
	BadgeInStock    StockBadge = "IN_STOCK"
	BadgeLowStock   StockBadge = "LOW_STOCK"
	BadgeOutOfStock StockBadge = "OUT_OF_STOCK"
)

// ReplayResult reports whether replaying the movement log reproduces the
// product's cached stock quantity.
type ReplayResult struct {
	ProductID     string `json:"product_id"`
	CachedStock   int    `json:"cached_stock"`
	DerivedStock  int    `json:"derived_stock"`
	Consistent    bool   `json:"consistent"`
	MovementCount int    `json:"movement_count"`
}

// StockLedger is the authoritative record of stock movements per product.
// It holds exclusive write access to Product.StockQty; the order coordinator
// touches stock only through Reserve/Release.
type StockLedger interface {
	// CheckAvailability is read-only, no side effect.
	CheckAvailability(ctx context.Context, productID string, qty int) (*Availability, error)
	// Reserve atomically checks and decrements stock, appending an outbound
	// movement. Fails with *InsufficientStockError or, when it lost a race
	// against a concurrent reservation, *ReservationConflictError.
	Reserve(ctx context.Context, productID string, qty int, reference string) (*StockMovement, error)
	// Release reverses a prior reservation with a compensating inbound
	// movement referencing it. Idempotent: releasing an already-released
	// movement is a no-op.
	Release(ctx context.Context, movementID string) error
	// ReleaseAs is Release with an explicit audit reason, used by the
	// post-confirmation cancellation path.
	ReleaseAs(ctx context.Context, movementID, reason string) error
	// RecordAdjustment applies a manual correction outside the order path.
	RecordAdjustment(ctx context.Context, productID string, delta int, reason string) (*StockMovement, error)

	Movements(ctx context.Context, productID string) ([]StockMovement, error)
	// Replay recomputes current stock from the movement log and reports any
	// divergence from the cached quantity.
	Replay(ctx context.Context, productID string) (*ReplayResult, error)
	// Badge derives the catalog display state for a product.
	Badge(ctx context.Context, productID string) (StockBadge, error)
}

type stockLedger struct {
	products  ProductStore
	movements MovementStore

	// Serializes release paths in this process so the already-released check
	// and the compensating append cannot interleave for the same movement.
	// Across processes the movement store enforces release-at-most-once
	// (unique reference for release movements); a losing append is
	// compensated and surfaces as an error, never a double credit.
	releaseMu sync.Mutex
}

func NewStockLedger(products ProductStore, movements MovementStore) StockLedger {
	return &stockLedger{products: products, movements: movements}
}

func (l *stockLedger) CheckAvailability(ctx context.Context, productID string, qty int) (*Availability, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	p, err := l.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &Availability{
		ProductID:    productID,
		Available:    p.StockQty >= qty,
		CurrentStock: p.StockQty,
	}, nil
}

func (l *stockLedger) Reserve(ctx context.Context, productID string, qty int, reference string) (*StockMovement, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("reservation quantity must be positive, got %d", qty)
	}
	if _, err := l.activeProduct(ctx, productID); err != nil {
		return nil, err
	}

	before, after, err := l.products.AdjustStock(ctx, productID, -qty)
	if errors.Is(err, ErrConditionFailed) {
		// Classify with a fresh read: if stock now covers the request, the
		// conditional write lost a race and a retry may succeed; otherwise
		// it is a genuine shortfall.
		p, rerr := l.products.GetProduct(ctx, productID)
		if rerr != nil {
			return nil, rerr
		}
		if p.StockQty >= qty {
			reservationConflicts.Inc()
			return nil, &ReservationConflictError{ProductID: productID}
		}
		return nil, NewInsufficientStock(productID, qty, p.StockQty)
	}
	if err != nil {
		return nil, err
	}

	m := &StockMovement{
		ID:          NewID(IDPrefixMovement),
		ProductID:   productID,
		Type:        MovementOutbound,
		Delta:       -qty,
		StockBefore: before,
		StockAfter:  after,
		Reason:      ReasonReservation,
		Reference:   reference,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.movements.AppendMovement(ctx, m); err != nil {
		// The decrement landed but the audit record did not: compensate so the
		// ledger and the cached quantity cannot diverge.
		if _, _, cerr := l.products.AdjustStock(ctx, productID, qty); cerr != nil {
			log.Error().Err(cerr).
				Str("product_id", productID).
				Int("qty", qty).
				Msg("failed to compensate stock after movement append failure")
		}
		return nil, fmt.Errorf("append reservation movement: %w", err)
	}

	log.Info().
		Str("movement_id", m.ID).
		Str("product_id", productID).
		Int("qty", qty).
		Str("reference", reference).
		Int("stock_after", after).
		Msg("stock reserved")
	return m, nil
}

func (l *stockLedger) Release(ctx context.Context, movementID string) error {
	return l.ReleaseAs(ctx, movementID, ReasonRelease)
}

func (l *stockLedger) ReleaseAs(ctx context.Context, movementID, reason string) error {
	l.releaseMu.Lock()
	defer l.releaseMu.Unlock()

	orig, err := l.movements.GetMovement(ctx, movementID)
	if err != nil {
		return err
	}
	if orig == nil {
		return fmt.Errorf("movement %s not found", movementID)
	}
	if orig.Type != MovementOutbound || orig.Reason != ReasonReservation {
		return fmt.Errorf("movement %s is not a reservation and cannot be released", movementID)
	}

	// Idempotency: a compensating movement referencing the original already
	// exists, so this release is a no-op, not an error.
	existing, err := l.movements.MovementsByReference(ctx, movementID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	qty := -orig.Delta
	before, after, err := l.products.AdjustStock(ctx, orig.ProductID, qty)
	if err != nil {
		return fmt.Errorf("restore stock for release of %s: %w", movementID, err)
	}

	comp := &StockMovement{
		ID:          NewID(IDPrefixMovement),
		ProductID:   orig.ProductID,
		Type:        MovementInbound,
		Delta:       qty,
		StockBefore: before,
		StockAfter:  after,
		Reason:      reason,
		Reference:   movementID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.movements.AppendMovement(ctx, comp); err != nil {
		if _, _, cerr := l.products.AdjustStock(ctx, orig.ProductID, -qty); cerr != nil {
			log.Error().Err(cerr).
				Str("product_id", orig.ProductID).
				Msg("failed to compensate stock after release append failure")
		}
		return fmt.Errorf("append release movement: %w", err)
	}

	log.Info().
		Str("movement_id", comp.ID).
		Str("releases", movementID).
		Str("product_id", orig.ProductID).
		Str("reason", reason).
		Int("stock_after", after).
		Msg("reservation released")
	return nil
}

func (l *stockLedger) RecordAdjustment(ctx context.Context, productID string, delta int, reason string) (*StockMovement, error) {
	if delta == 0 {
		return nil, fmt.Errorf("adjustment delta must be non-zero")
	}
	if _, err := l.activeProduct(ctx, productID); err != nil {
		return nil, err
	}

	before, after, err := l.products.AdjustStock(ctx, productID, delta)
	if errors.Is(err, ErrConditionFailed) {
		p, rerr := l.products.GetProduct(ctx, productID)
		if rerr != nil {
			return nil, rerr
		}
		return nil, NewInsufficientStock(productID, -delta, p.StockQty)
	}
	if err != nil {
		return nil, err
	}

	mtype := MovementAdjustment
	if reason == ReasonReceipt {
		mtype = MovementInbound
	}
	m := &StockMovement{
		ID:          NewID(IDPrefixMovement),
		ProductID:   productID,
		Type:        mtype,
		Delta:       delta,
		StockBefore: before,
		StockAfter:  after,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.movements.AppendMovement(ctx, m); err != nil {
		if _, _, cerr := l.products.AdjustStock(ctx, productID, -delta); cerr != nil {
			log.Error().Err(cerr).
				Str("product_id", productID).
				Msg("failed to compensate stock after adjustment append failure")
		}
		return nil, fmt.Errorf("append adjustment movement: %w", err)
	}
	return m, nil
}

func (l *stockLedger) Movements(ctx context.Context, productID string) ([]StockMovement, error) {
	if err := ValidateID(productID, IDPrefixProduct); err != nil {
		return nil, err
	}
	return l.movements.ScanMovements(ctx, productID)
}

func (l *stockLedger) Replay(ctx context.Context, productID string) (*ReplayResult, error) {
	p, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	moves, err := l.movements.ScanMovements(ctx, productID)
	if err != nil {
		return nil, err
	}

	// The stock write and the log append are two steps, so under concurrent
	// reservations append order can trail adjustment order. Anchor on the
	// movement whose StockBefore is no other movement's StockAfter: that one
	// saw the true initial quantity regardless of where it landed in the log.
	derived := p.StockQty
	if len(moves) > 0 {
		initial := moves[0].StockBefore
		afters := make(map[int]int, len(moves))
		for _, m := range moves {
			afters[m.StockAfter]++
		}
		for _, m := range moves {
			if afters[m.StockBefore] == 0 {
				initial = m.StockBefore
				break
			}
		}
		derived = initial
		for _, m := range moves {
			derived += m.Delta
		}
	}

	res := &ReplayResult{
		ProductID:     productID,
		CachedStock:   p.StockQty,
		DerivedStock:  derived,
		Consistent:    derived == p.StockQty,
		MovementCount: len(moves),
	}
	if !res.Consistent {
		log.Error().
			Str("product_id", productID).
			Int("cached", res.CachedStock).
			Int("derived", res.DerivedStock).
			Msg("stock ledger divergence detected")
	}
	return res, nil
}

func (l *stockLedger) Badge(ctx context.Context, productID string) (StockBadge, error) {
	p, err := l.activeProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	switch {
	case p.StockQty == 0:
		return BadgeOutOfStock, nil
	case p.StockQty <= p.MinStock:
		return BadgeLowStock, nil
	default:
		return BadgeInStock, nil
	}
}

// activeProduct fetches a product and rejects deactivated ones.
func (l *stockLedger) activeProduct(ctx context.Context, productID string) (*Product, error) {
	if err := ValidateID(productID, IDPrefixProduct); err != nil {
		return nil, err
	}
	p, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	return p, nil
}
