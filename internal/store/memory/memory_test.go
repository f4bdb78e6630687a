package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-engine/internal/core"
	"commerce-engine/internal/store/memory"
)

func TestAdjustStockGuard(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := &core.Product{ID: "prd-guard", Name: "Guarded", StockQty: 3, IsActive: true}
	require.NoError(t, s.PutProduct(ctx, p))

	before, after, err := s.AdjustStock(ctx, "prd-guard", -2)
	require.NoError(t, err)
	assert.Equal(t, 3, before)
	assert.Equal(t, 1, after)

	_, _, err = s.AdjustStock(ctx, "prd-guard", -2)
	assert.ErrorIs(t, err, core.ErrConditionFailed)

	// The failed adjustment must not have moved anything.
	got, err := s.GetProduct(ctx, "prd-guard")
	require.NoError(t, err)
	assert.Equal(t, 1, got.StockQty)

	_, _, err = s.AdjustStock(ctx, "prd-missing", 1)
	var notFound *core.ProductNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestProductCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.PutProduct(ctx, &core.Product{ID: "prd-iso", Name: "Original", IsActive: true}))

	got, err := s.GetProduct(ctx, "prd-iso")
	require.NoError(t, err)
	got.Name = "Mutated"

	again, err := s.GetProduct(ctx, "prd-iso")
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Name)
}

func TestMovementLog(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	m1 := &core.StockMovement{ID: "mov-a", ProductID: "prd-x", Type: core.MovementOutbound, Delta: -2, Reference: "ord-1"}
	m2 := &core.StockMovement{ID: "mov-b", ProductID: "prd-x", Type: core.MovementInbound, Delta: 2, Reference: "mov-a"}
	m3 := &core.StockMovement{ID: "mov-c", ProductID: "prd-y", Type: core.MovementInbound, Delta: 5, Reference: "ord-2"}
	for _, m := range []*core.StockMovement{m1, m2, m3} {
		require.NoError(t, s.AppendMovement(ctx, m))
	}
	assert.Error(t, s.AppendMovement(ctx, m1), "duplicate movement id must be rejected")

	scan, err := s.ScanMovements(ctx, "prd-x")
	require.NoError(t, err)
	require.Len(t, scan, 2)
	assert.Equal(t, "mov-a", scan[0].ID, "scan must preserve append order")

	byRef, err := s.MovementsByReference(ctx, "mov-a")
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.Equal(t, "mov-b", byRef[0].ID)
}

func TestReleaseReferenceUniqueness(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	res := &core.StockMovement{ID: "mov-res", ProductID: "prd-x", Type: core.MovementOutbound, Delta: -3, Reference: "ord-1"}
	require.NoError(t, s.AppendMovement(ctx, res))
	rel := &core.StockMovement{ID: "mov-rel", ProductID: "prd-x", Type: core.MovementInbound, Delta: 3, Reference: "mov-res"}
	require.NoError(t, s.AppendMovement(ctx, rel))

	// A second credit against the same reservation must be refused, as the
	// partial unique index does on the SQL backend.
	again := &core.StockMovement{ID: "mov-rel2", ProductID: "prd-x", Type: core.MovementInbound, Delta: 3, Reference: "mov-res"}
	assert.Error(t, s.AppendMovement(ctx, again))

	// Order references stay non-unique: many movements share one order.
	other := &core.StockMovement{ID: "mov-res2", ProductID: "prd-y", Type: core.MovementOutbound, Delta: -1, Reference: "ord-1"}
	require.NoError(t, s.AppendMovement(ctx, other))
}

func TestOrderScans(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	put := func(id string, status core.OrderStatus, createdAt, updatedAt time.Time) {
		require.NoError(t, s.PutOrder(ctx, &core.Order{
			ID: id, StoreID: "str-a", Status: status,
			CreatedAt: createdAt, UpdatedAt: updatedAt,
		}))
	}
	put("ord-1", core.OrderConfirmed, now.Add(-2*time.Hour), now.Add(-2*time.Hour))
	put("ord-2", core.OrderConfirmed, now.Add(-30*time.Minute), now.Add(-30*time.Minute))
	put("ord-3", core.OrderCancelled, now.Add(-30*time.Minute), now.Add(-30*time.Minute))
	put("ord-4", core.OrderAwaitingPayment, now.Add(-time.Hour), now.Add(-time.Hour))
	put("ord-5", core.OrderAwaitingPayment, now, now)

	confirmed, err := s.OrdersByStatus(ctx, "str-a", core.OrderConfirmed, now.Add(-time.Hour), now)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "ord-2", confirmed[0].ID)

	stale, err := s.StaleAwaitingPayment(ctx, now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ord-4", stale[0].ID)
}

func TestCategoryHSNMapping(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	rate := decimal.NewFromInt(28)
	require.NoError(t, s.PutCategory(ctx, &core.GSTCategory{
		Code: "BEVERAGES", GSTRate: rate, HSNCodes: []string{"2202", "2203"},
	}))

	cat, err := s.GetCategoryByHSN(ctx, "2202")
	require.NoError(t, err)
	require.NotNil(t, cat)
	assert.Equal(t, "BEVERAGES", cat.Code)

	// Unmapped HSN is (nil, nil), not an error.
	cat, err = s.GetCategoryByHSN(ctx, "9999")
	require.NoError(t, err)
	assert.Nil(t, cat)

	// Re-upserting with a narrower mapping drops the removed HSN.
	require.NoError(t, s.PutCategory(ctx, &core.GSTCategory{
		Code: "BEVERAGES", GSTRate: rate, HSNCodes: []string{"2202"},
	}))
	cat, err = s.GetCategoryByHSN(ctx, "2203")
	require.NoError(t, err)
	assert.Nil(t, cat)
}
