package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"commerce-engine/internal/core"
)

// StorePolicy is the per-deployment pricing context: seller/buyer states and
// the delivery fee rule, sourced from configuration.
type StorePolicy struct {
	SellerState string
	BuyerState  string
	Delivery    core.DeliveryPolicy
}

type appService struct {
	coordinator core.OrderCoordinator
	ledger      core.StockLedger
	catalog     core.CatalogService
	reporting   core.ReportingService
	overrides   *OverrideRegistry
}

// NewAppService wires the core services behind ApplicationService. The
// returned StoreContextFunc must be handed to the order coordinator so both
// see the same override registry.
func NewAppService(
	coordinator core.OrderCoordinator,
	ledger core.StockLedger,
	catalog core.CatalogService,
	reporting core.ReportingService,
	overrides *OverrideRegistry,
) ApplicationService {
	return &appService{
		coordinator: coordinator,
		ledger:      ledger,
		catalog:     catalog,
		reporting:   reporting,
		overrides:   overrides,
	}
}

func (s *appService) Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	priced, err := s.coordinator.Quote(ctx, req.StoreID, req.Items)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{Quote: priced}, nil
}

func (s *appService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	order, err := s.coordinator.CreateOrder(ctx, core.OrderRequest{
		StoreID:         req.StoreID,
		CustomerID:      req.CustomerID,
		CustomerContact: req.CustomerContact,
		Items:           req.Items,
		Payment:         req.Payment,
	})
	if order == nil && err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, err
}

func (s *appService) GetOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	order, err := s.coordinator.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

func (s *appService) ConfirmPayment(ctx context.Context, orderID string, success bool) (*OrderResult, error) {
	order, err := s.coordinator.HandlePaymentResult(ctx, orderID, success)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

func (s *appService) CancelOrder(ctx context.Context, orderID, requestedBy string) (*OrderResult, error) {
	order, err := s.coordinator.CancelConfirmed(ctx, orderID, requestedBy)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

func (s *appService) ExpireStalePayments(ctx context.Context) (int, error) {
	return s.coordinator.ExpireStalePayments(ctx)
}

func (s *appService) GetAvailability(ctx context.Context, productID string, qty int) (*core.Availability, error) {
	return s.ledger.CheckAvailability(ctx, productID, qty)
}

func (s *appService) GetBadge(ctx context.Context, productID string) (core.StockBadge, error) {
	return s.ledger.Badge(ctx, productID)
}

func (s *appService) GetMovements(ctx context.Context, productID string) (*MovementListResult, error) {
	moves, err := s.ledger.Movements(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &MovementListResult{ProductID: productID, Movements: moves}, nil
}

func (s *appService) ReplayStock(ctx context.Context, productID string) (*core.ReplayResult, error) {
	return s.ledger.Replay(ctx, productID)
}

func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*MovementResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("receipt quantity must be positive, got %d", req.Quantity)
	}
	m, err := s.ledger.RecordAdjustment(ctx, req.ProductID, req.Quantity, core.ReasonReceipt)
	if err != nil {
		return nil, err
	}
	return &MovementResult{Movement: m}, nil
}

func (s *appService) AdjustStock(ctx context.Context, req AdjustStockRequest) (*MovementResult, error) {
	reason := req.Reason
	if reason == "" {
		reason = core.ReasonAdjustment
	}
	m, err := s.ledger.RecordAdjustment(ctx, req.ProductID, req.Delta, reason)
	if err != nil {
		return nil, err
	}
	return &MovementResult{Movement: m}, nil
}

func (s *appService) CreateProduct(ctx context.Context, in core.ProductInput) (*ProductResult, error) {
	p, err := s.catalog.CreateProduct(ctx, in)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Product: p}, nil
}

func (s *appService) UpdateProduct(ctx context.Context, id string, in core.ProductInput) (*ProductResult, error) {
	p, err := s.catalog.UpdateProduct(ctx, id, in)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Product: p}, nil
}

func (s *appService) DeactivateProduct(ctx context.Context, id string) (*ProductResult, error) {
	p, err := s.catalog.DeactivateProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Product: p}, nil
}

func (s *appService) GetProduct(ctx context.Context, id string) (*ProductResult, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Product: p}, nil
}

func (s *appService) UpsertCategory(ctx context.Context, cat core.GSTCategory) (*core.GSTCategory, error) {
	return s.catalog.UpsertCategory(ctx, cat)
}

func (s *appService) SetRateOverride(_ context.Context, ov core.RateOverride) error {
	if err := core.ValidateID(ov.StoreID, core.IDPrefixStore); err != nil {
		return err
	}
	if err := core.ValidateID(ov.ProductID, core.IDPrefixProduct); err != nil {
		return err
	}
	if ov.GSTRate != nil && !core.ValidGSTRate(*ov.GSTRate) {
		return &core.InvalidRateConfigurationError{Rate: *ov.GSTRate}
	}
	s.overrides.set(ov)
	return nil
}

func (s *appService) ClearRateOverride(_ context.Context, storeID, productID string) error {
	if err := core.ValidateID(storeID, core.IDPrefixStore); err != nil {
		return err
	}
	if err := core.ValidateID(productID, core.IDPrefixProduct); err != nil {
		return err
	}
	s.overrides.clear(storeID, productID)
	return nil
}

func (s *appService) TaxReport(ctx context.Context, storeID string, from, to time.Time) (*core.TaxFilingReport, error) {
	return s.reporting.TaxFiling(ctx, storeID, from, to)
}

// ── Override registry ─────────────────────────────────────────────────────────

// OverrideRegistry holds store-specific rate overrides in memory. Overrides
// are operational knobs, not durable records: they reset on restart by design.
type OverrideRegistry struct {
	mu      sync.RWMutex
	byStore map[string]map[string]*core.RateOverride
}

func NewOverrideRegistry() *OverrideRegistry {
	return &OverrideRegistry{byStore: make(map[string]map[string]*core.RateOverride)}
}

func (r *OverrideRegistry) set(ov core.RateOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byStore[ov.StoreID]
	if !ok {
		m = make(map[string]*core.RateOverride)
		r.byStore[ov.StoreID] = m
	}
	cp := ov
	m[ov.ProductID] = &cp
}

func (r *OverrideRegistry) clear(storeID, productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byStore[storeID], productID)
}

func (r *OverrideRegistry) forStore(storeID string) map[string]*core.RateOverride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.byStore[storeID]
	if !ok {
		return nil
	}
	out := make(map[string]*core.RateOverride, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// StoreContextFunc builds the coordinator's pricing context from the policy
// and the live override registry.
func StoreContextFunc(policy StorePolicy, overrides *OverrideRegistry) core.StoreContextFunc {
	return func(storeID string) core.StoreContext {
		return core.StoreContext{
			StoreID:     storeID,
			SellerState: policy.SellerState,
			BuyerState:  policy.BuyerState,
			Overrides:   overrides.forStore(storeID),
			Delivery:    policy.Delivery,
		}
	}
}
