package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"commerce-engine/internal/core"
	"commerce-engine/internal/store/memory"
)

func testInput() core.ProductInput {
	return core.ProductInput{
		StoreID:      "str-test",
		Name:         "Parle-G 250g",
		Category:     "snacks",
		Unit:         "pack",
		SellingPrice: d("25.00"),
		CostPrice:    d("20.00"),
		HSNCode:      "19053100",
		StockQty:     40,
		MinStock:     5,
	}
}

func TestCatalogService_ProductLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := core.NewCatalogService(store, store, nil)

	p, err := svc.CreateProduct(ctx, testInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := core.ValidateID(p.ID, core.IDPrefixProduct); err != nil {
		t.Errorf("minted id %q is not canonical: %v", p.ID, err)
	}
	if !p.IsActive {
		t.Error("new products must start active")
	}

	in := testInput()
	in.SellingPrice = d("27.00")
	in.StockQty = 999 // must be ignored, stock belongs to the ledger
	updated, err := svc.UpdateProduct(ctx, p.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.SellingPrice.Equal(d("27.00")) {
		t.Errorf("price not updated: %s", updated.SellingPrice)
	}
	if updated.StockQty != 40 {
		t.Errorf("update must not touch stock: got %d, want 40", updated.StockQty)
	}

	gone, err := svc.DeactivateProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if gone.IsActive || gone.DeactivatedAt == nil {
		t.Error("deactivation must clear IsActive and stamp DeactivatedAt")
	}
	// Idempotent.
	if _, err := svc.DeactivateProduct(ctx, p.ID); err != nil {
		t.Errorf("second deactivation: %v", err)
	}
	// Record stays readable.
	if _, err := svc.GetProduct(ctx, p.ID); err != nil {
		t.Errorf("get after deactivation: %v", err)
	}
}

func TestCatalogService_RejectsInvalidRates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := core.NewCatalogService(store, store, nil)

	in := testInput()
	in.GSTRate = dp("15") // not a slab
	var invalid *core.InvalidRateConfigurationError
	if _, err := svc.CreateProduct(ctx, in); !errors.As(err, &invalid) {
		t.Errorf("off-slab product rate: got %v, want InvalidRateConfigurationError", err)
	}

	if _, err := svc.UpsertCategory(ctx, core.GSTCategory{
		Code: "WRONG", GSTRate: d("23"),
	}); !errors.As(err, &invalid) {
		t.Errorf("off-slab category rate: got %v, want InvalidRateConfigurationError", err)
	}
	if _, err := svc.UpsertCategory(ctx, core.GSTCategory{
		Code: "NEG", GSTRate: d("5"), CessRate: d("-1"),
	}); !errors.As(err, &invalid) {
		t.Errorf("negative cess: got %v, want InvalidRateConfigurationError", err)
	}
	// Exempt categories bypass the slab check entirely.
	if _, err := svc.UpsertCategory(ctx, core.GSTCategory{
		Code: "FRESH", Exempt: true, HSNCodes: []string{"0702"},
	}); err != nil {
		t.Errorf("exempt category: %v", err)
	}
}

func TestCatalogService_CategoryUpsertInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cache := core.NewCategoryRateCache(store, time.Hour)
	svc := core.NewCatalogService(store, store, cache)

	if _, err := svc.UpsertCategory(ctx, core.GSTCategory{
		Code: "BEVERAGES", GSTRate: d("28"), CessRate: d("12"), HSNCodes: []string{"2202"},
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	cat, err := cache.Category(ctx, "2202")
	if err != nil || cat == nil {
		t.Fatalf("warm cache: cat=%v err=%v", cat, err)
	}

	// The corrected rate must be visible immediately, not after the TTL.
	if _, err := svc.UpsertCategory(ctx, core.GSTCategory{
		Code: "BEVERAGES", GSTRate: d("18"), HSNCodes: []string{"2202"},
	}); err != nil {
		t.Fatalf("correcting upsert: %v", err)
	}
	cat, err = cache.Category(ctx, "2202")
	if err != nil || cat == nil {
		t.Fatalf("post-correction lookup: cat=%v err=%v", cat, err)
	}
	if !cat.GSTRate.Equal(d("18")) {
		t.Errorf("corrected rate not visible: got %s, want 18", cat.GSTRate)
	}
}
