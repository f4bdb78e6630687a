// Package memory is the in-process storage backend. It backs unit tests and
// single-node deployments where Postgres would be overkill; a single mutex
// makes every access pattern atomic, including the conditional stock guard.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"commerce-engine/internal/core"
)

// Store implements core.ProductStore, core.MovementStore, core.OrderStore and
// core.CategoryStore over plain maps.
type Store struct {
	mu         sync.Mutex
	products   map[string]core.Product
	movements  []core.StockMovement
	movementIx map[string]int
	orders     map[string]core.Order
	categories map[string]core.GSTCategory
	hsnToCode  map[string]string
}

func New() *Store {
	return &Store{
		products:   make(map[string]core.Product),
		movementIx: make(map[string]int),
		orders:     make(map[string]core.Order),
		categories: make(map[string]core.GSTCategory),
		hsnToCode:  make(map[string]string),
	}
}

// ── ProductStore ──────────────────────────────────────────────────────────────

func (s *Store) GetProduct(_ context.Context, id string) (*core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, &core.ProductNotFoundError{ProductID: id}
	}
	cp := p
	return &cp, nil
}

func (s *Store) PutProduct(_ context.Context, p *core.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = *p
	return nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, 0, &core.ProductNotFoundError{ProductID: id}
	}
	next := p.StockQty + delta
	if next < 0 {
		return 0, 0, core.ErrConditionFailed
	}
	before := p.StockQty
	p.StockQty = next
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return before, next, nil
}

// ── MovementStore ─────────────────────────────────────────────────────────────

func (s *Store) AppendMovement(_ context.Context, m *core.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.movementIx[m.ID]; exists {
		return fmt.Errorf("movement %s already recorded", m.ID)
	}
	// Mirrors the idx_movements_release_once unique index: a movement
	// referencing another movement is a release, and a reservation may be
	// released at most once.
	if strings.HasPrefix(m.Reference, "mov-") {
		for _, prev := range s.movements {
			if prev.Reference == m.Reference {
				return fmt.Errorf("movement %s already released by %s", m.Reference, prev.ID)
			}
		}
	}
	s.movementIx[m.ID] = len(s.movements)
	s.movements = append(s.movements, *m)
	return nil
}

func (s *Store) GetMovement(_ context.Context, id string) (*core.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, ok := s.movementIx[id]
	if !ok {
		return nil, fmt.Errorf("movement %s not found", id)
	}
	m := s.movements[ix]
	return &m, nil
}

func (s *Store) ScanMovements(_ context.Context, productID string) ([]core.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.StockMovement
	for _, m := range s.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) MovementsByReference(_ context.Context, ref string) ([]core.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.StockMovement
	for _, m := range s.movements {
		if m.Reference == ref {
			out = append(out, m)
		}
	}
	return out, nil
}

// ── OrderStore ────────────────────────────────────────────────────────────────

func (s *Store) GetOrder(_ context.Context, id string) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s not found", id)
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (s *Store) PutOrder(_ context.Context, o *core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) OrdersByStatus(_ context.Context, storeID string, status core.OrderStatus, from, to time.Time) ([]core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Order
	for _, o := range s.orders {
		if o.StoreID != storeID || o.Status != status {
			continue
		}
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (s *Store) StaleAwaitingPayment(_ context.Context, cutoff time.Time) ([]core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Order
	for _, o := range s.orders {
		if o.Status == core.OrderAwaitingPayment && o.UpdatedAt.Before(cutoff) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

// ── CategoryStore ─────────────────────────────────────────────────────────────

func (s *Store) GetCategoryByHSN(_ context.Context, hsn string) (*core.GSTCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.hsnToCode[hsn]
	if !ok {
		return nil, nil
	}
	c := s.categories[code]
	cp := c
	cp.HSNCodes = append([]string(nil), c.HSNCodes...)
	return &cp, nil
}

func (s *Store) PutCategory(_ context.Context, c *core.GSTCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Drop HSN mappings that pointed at this category before the update.
	for hsn, code := range s.hsnToCode {
		if code == c.Code {
			delete(s.hsnToCode, hsn)
		}
	}
	cp := *c
	cp.HSNCodes = append([]string(nil), c.HSNCodes...)
	s.categories[c.Code] = cp
	for _, hsn := range c.HSNCodes {
		s.hsnToCode[hsn] = c.Code
	}
	return nil
}

func cloneOrder(o core.Order) core.Order {
	o.Lines = append([]core.OrderLine(nil), o.Lines...)
	o.TaxSummary = append([]core.SlabSummary(nil), o.TaxSummary...)
	o.Shortfalls = append([]core.Shortfall(nil), o.Shortfalls...)
	o.ReservationIDs = append([]string(nil), o.ReservationIDs...)
	return o
}
