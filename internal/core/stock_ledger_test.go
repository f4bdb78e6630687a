package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"commerce-engine/internal/core"
	"commerce-engine/internal/store/memory"
)

func seedProduct(t *testing.T, store *memory.Store, stock int) *core.Product {
	t.Helper()
	p := testProduct("8517", dp("18"))
	p.StockQty = stock
	p.MinStock = 2
	if err := store.PutProduct(context.Background(), p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func TestStockLedger_ReserveDecrementsAndRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 10)

	m, err := ledger.Reserve(ctx, p.ID, 3, "ord-abc")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if m.Type != core.MovementOutbound || m.Delta != -3 {
		t.Errorf("movement: got type=%s delta=%d, want OUTBOUND -3", m.Type, m.Delta)
	}
	if m.StockBefore != 10 || m.StockAfter != 7 {
		t.Errorf("movement stock figures: got %d→%d, want 10→7", m.StockBefore, m.StockAfter)
	}
	if m.Reason != core.ReasonReservation || m.Reference != "ord-abc" {
		t.Errorf("movement audit fields: reason=%q reference=%q", m.Reason, m.Reference)
	}

	got, err := store.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.StockQty != 7 {
		t.Errorf("stock after reserve: got %d, want 7", got.StockQty)
	}
}

func TestStockLedger_ReserveExactStock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 5)

	if _, err := ledger.Reserve(ctx, p.ID, 5, "ord-exact"); err != nil {
		t.Fatalf("reserving exactly the available stock must succeed: %v", err)
	}
	badge, err := ledger.Badge(ctx, p.ID)
	if err != nil {
		t.Fatalf("badge: %v", err)
	}
	if badge != core.BadgeOutOfStock {
		t.Errorf("badge after draining stock: got %s, want OUT_OF_STOCK", badge)
	}
}

func TestStockLedger_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 2)

	_, err := ledger.Reserve(ctx, p.ID, 5, "ord-big")
	var insufficient *core.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	sf := insufficient.Shortfalls[0]
	if sf.Requested != 5 || sf.Available != 2 {
		t.Errorf("shortfall figures: requested=%d available=%d, want 5/2", sf.Requested, sf.Available)
	}

	// The failed attempt must leave no trace: no decrement, no movement.
	got, _ := store.GetProduct(ctx, p.ID)
	if got.StockQty != 2 {
		t.Errorf("stock after failed reserve: got %d, want 2", got.StockQty)
	}
	moves, _ := ledger.Movements(ctx, p.ID)
	if len(moves) != 0 {
		t.Errorf("expected no movements after failed reserve, got %d", len(moves))
	}
}

func TestStockLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 5)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(ctx, p.ID, 1, "ord-race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 5 {
		t.Errorf("exactly 5 of %d unit reservations should succeed, got %d", attempts, succeeded)
	}

	got, _ := store.GetProduct(ctx, p.ID)
	if got.StockQty != 0 {
		t.Errorf("final stock: got %d, want 0", got.StockQty)
	}
	replay, err := ledger.Replay(ctx, p.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Consistent {
		t.Errorf("replay divergence: cached=%d derived=%d", replay.CachedStock, replay.DerivedStock)
	}
}

func TestStockLedger_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 10)

	m, err := ledger.Reserve(ctx, p.ID, 4, "ord-rel")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Release(ctx, m.ID); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := ledger.Release(ctx, m.ID); err != nil {
		t.Fatalf("second release must be a no-op, got: %v", err)
	}

	got, _ := store.GetProduct(ctx, p.ID)
	if got.StockQty != 10 {
		t.Errorf("stock after double release: got %d, want 10", got.StockQty)
	}
	moves, _ := ledger.Movements(ctx, p.ID)
	if len(moves) != 2 {
		t.Errorf("expected reservation + one compensating movement, got %d", len(moves))
	}
}

func TestStockLedger_ReleaseRejectsNonReservations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 10)

	m, err := ledger.RecordAdjustment(ctx, p.ID, 5, core.ReasonReceipt)
	if err != nil {
		t.Fatalf("record receipt: %v", err)
	}
	if err := ledger.Release(ctx, m.ID); err == nil {
		t.Error("releasing an inbound receipt must be rejected")
	}
}

func TestStockLedger_RecordAdjustment(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 10)

	receipt, err := ledger.RecordAdjustment(ctx, p.ID, 20, core.ReasonReceipt)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt.Type != core.MovementInbound {
		t.Errorf("receipt type: got %s, want INBOUND", receipt.Type)
	}

	shrinkage, err := ledger.RecordAdjustment(ctx, p.ID, -3, core.ReasonAdjustment)
	if err != nil {
		t.Fatalf("shrinkage: %v", err)
	}
	if shrinkage.Type != core.MovementAdjustment {
		t.Errorf("shrinkage type: got %s, want ADJUSTMENT", shrinkage.Type)
	}

	got, _ := store.GetProduct(ctx, p.ID)
	if got.StockQty != 27 {
		t.Errorf("stock after adjustments: got %d, want 27", got.StockQty)
	}

	// An adjustment can never push stock negative.
	if _, err := ledger.RecordAdjustment(ctx, p.ID, -100, core.ReasonAdjustment); err == nil {
		t.Error("adjustment below zero must be rejected")
	}
}

func TestStockLedger_BadgeThresholds(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)

	tests := []struct {
		stock int
		want  core.StockBadge
	}{
		{stock: 10, want: core.BadgeInStock},
		{stock: 2, want: core.BadgeLowStock}, // MinStock is 2: at threshold counts as low
		{stock: 1, want: core.BadgeLowStock},
		{stock: 0, want: core.BadgeOutOfStock},
	}
	for _, tc := range tests {
		p := seedProduct(t, store, tc.stock)
		badge, err := ledger.Badge(ctx, p.ID)
		if err != nil {
			t.Fatalf("badge at stock %d: %v", tc.stock, err)
		}
		if badge != tc.want {
			t.Errorf("badge at stock %d: got %s, want %s", tc.stock, badge, tc.want)
		}
	}
}

func TestStockLedger_DeactivatedProductRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 10)
	p.IsActive = false
	if err := store.PutProduct(ctx, p); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	var notFound *core.ProductNotFoundError
	if _, err := ledger.Reserve(ctx, p.ID, 1, "ord-x"); !errors.As(err, &notFound) {
		t.Errorf("reserve on deactivated product: got %v, want ProductNotFoundError", err)
	}
	if _, err := ledger.CheckAvailability(ctx, p.ID, 1); !errors.As(err, &notFound) {
		t.Errorf("availability on deactivated product: got %v, want ProductNotFoundError", err)
	}
	// History stays readable after deactivation.
	if _, err := ledger.Movements(ctx, p.ID); err != nil {
		t.Errorf("movements on deactivated product: %v", err)
	}
}

func TestStockLedger_ReplayDetectsDivergence(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 10)

	if _, err := ledger.Reserve(ctx, p.ID, 4, "ord-rep"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Corrupt the cached quantity behind the ledger's back.
	broken, _ := store.GetProduct(ctx, p.ID)
	broken.StockQty = 99
	if err := store.PutProduct(ctx, broken); err != nil {
		t.Fatalf("corrupt product: %v", err)
	}

	replay, err := ledger.Replay(ctx, p.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Consistent {
		t.Error("replay must flag the divergence")
	}
	if replay.DerivedStock != 6 {
		t.Errorf("derived stock: got %d, want 6", replay.DerivedStock)
	}
}

func TestStockLedger_ReplayToleratesInterleavedAppends(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := core.NewStockLedger(store, store)
	p := seedProduct(t, store, 5)

	// Two concurrent reservations adjust stock in one order but can land in
	// the log in the other. Rebuild that interleaving by hand: the second
	// adjustment's movement is appended first.
	b1, a1, err := store.AdjustStock(ctx, p.ID, -1)
	if err != nil {
		t.Fatalf("first adjust: %v", err)
	}
	b2, a2, err := store.AdjustStock(ctx, p.ID, -1)
	if err != nil {
		t.Fatalf("second adjust: %v", err)
	}
	second := &core.StockMovement{
		ID: "mov-second", ProductID: p.ID, Type: core.MovementOutbound,
		Delta: -1, StockBefore: b2, StockAfter: a2,
		Reason: core.ReasonReservation, Reference: "ord-two",
	}
	first := &core.StockMovement{
		ID: "mov-first", ProductID: p.ID, Type: core.MovementOutbound,
		Delta: -1, StockBefore: b1, StockAfter: a1,
		Reason: core.ReasonReservation, Reference: "ord-one",
	}
	if err := store.AppendMovement(ctx, second); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendMovement(ctx, first); err != nil {
		t.Fatalf("append: %v", err)
	}

	res, err := ledger.Replay(ctx, p.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Consistent {
		t.Fatalf("healthy ledger reported divergent: cached=%d derived=%d",
			res.CachedStock, res.DerivedStock)
	}
	if res.DerivedStock != 3 {
		t.Errorf("derived stock: got %d, want 3", res.DerivedStock)
	}
}
