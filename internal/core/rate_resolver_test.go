package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"commerce-engine/internal/core"
	"commerce-engine/internal/store/memory"
)

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func testProduct(hsn string, gstRate *decimal.Decimal) *core.Product {
	return &core.Product{
		ID:           core.NewID(core.IDPrefixProduct),
		StoreID:      "str-test",
		Name:         "Test Product",
		SellingPrice: d("100.00"),
		CostPrice:    d("80.00"),
		HSNCode:      hsn,
		GSTRate:      gstRate,
		IsActive:     true,
	}
}

func TestRateResolver_ChainPriority(t *testing.T) {
	ctx := context.Background()
	exempt := true

	tests := []struct {
		name       string
		product    *core.Product
		override   *core.RateOverride
		wantRate   string
		wantCess   string
		wantExempt bool
		wantSource string
	}{
		{
			name:       "store override beats the product rate",
			product:    testProduct("8517", dp("18")),
			override:   &core.RateOverride{GSTRate: dp("5")},
			wantRate:   "5", wantCess: "0", wantSource: "store-override",
		},
		{
			name:       "override can mark a product exempt",
			product:    testProduct("8517", dp("18")),
			override:   &core.RateOverride{Exempt: &exempt},
			wantRate:   "0", wantCess: "0", wantExempt: true, wantSource: "store-override",
		},
		{
			name:       "product-assigned rate when no override",
			product:    testProduct("8517", dp("12")),
			wantRate:   "12", wantCess: "0", wantSource: "product-assigned",
		},
		{
			name: "product-level exemption",
			product: func() *core.Product {
				p := testProduct("0401", nil)
				p.TaxExempt = true
				return p
			}(),
			wantRate: "0", wantCess: "0", wantExempt: true, wantSource: "product-assigned",
		},
		{
			name:       "static chapter table when nothing assigned",
			product:    testProduct("24021000", nil),
			wantRate:   "28", wantCess: "61", wantSource: "category-static",
		},
		{
			name:       "static table exemption for fresh produce",
			product:    testProduct("0702", nil),
			wantRate:   "0", wantCess: "0", wantExempt: true, wantSource: "category-static",
		},
		{
			name:       "fallback when the HSN chapter is unknown",
			product:    testProduct("9999", nil),
			wantRate:   "18", wantCess: "0", wantSource: "fallback",
		},
		{
			name:       "fallback when there is no HSN at all",
			product:    testProduct("", nil),
			wantRate:   "18", wantCess: "0", wantSource: "fallback",
		},
	}

	resolver := core.NewRateResolver(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eff := resolver.Resolve(ctx, tc.product, tc.override)
			if !eff.GSTRate.Equal(d(tc.wantRate)) {
				t.Errorf("GSTRate: got %s, want %s", eff.GSTRate, tc.wantRate)
			}
			if !eff.CessRate.Equal(d(tc.wantCess)) {
				t.Errorf("CessRate: got %s, want %s", eff.CessRate, tc.wantCess)
			}
			if eff.Exempt != tc.wantExempt {
				t.Errorf("Exempt: got %v, want %v", eff.Exempt, tc.wantExempt)
			}
			if eff.Source != tc.wantSource {
				t.Errorf("Source: got %q, want %q", eff.Source, tc.wantSource)
			}
		})
	}
}

func TestRateResolver_OverridePrices(t *testing.T) {
	resolver := core.NewRateResolver(nil)
	p := testProduct("8517", dp("18"))
	ov := &core.RateOverride{UnitPrice: dp("90.00"), CostPrice: dp("70.00")}

	eff := resolver.Resolve(context.Background(), p, ov)
	if !eff.UnitPrice.Equal(d("90.00")) {
		t.Errorf("UnitPrice: got %s, want 90.00", eff.UnitPrice)
	}
	if !eff.CostPrice.Equal(d("70.00")) {
		t.Errorf("CostPrice: got %s, want 70.00", eff.CostPrice)
	}
	// Price-only overrides leave the tax classification to the rest of
	// the chain.
	if eff.Source != "product-assigned" {
		t.Errorf("Source: got %q, want product-assigned", eff.Source)
	}
}

func TestRateResolver_DynamicCategory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cache := core.NewCategoryRateCache(store, time.Hour)
	resolver := core.NewRateResolver(cache)

	if err := store.PutCategory(ctx, &core.GSTCategory{
		Code:     "ELECTRONICS",
		Name:     "Consumer Electronics",
		GSTRate:  d("18"),
		HSNCodes: []string{"85171300"},
	}); err != nil {
		t.Fatalf("put category: %v", err)
	}

	p := testProduct("85171300", nil)
	eff := resolver.Resolve(ctx, p, nil)
	if eff.Source != "category-dynamic" {
		t.Fatalf("Source: got %q, want category-dynamic", eff.Source)
	}
	if !eff.GSTRate.Equal(d("18")) {
		t.Errorf("GSTRate: got %s, want 18", eff.GSTRate)
	}
}

func TestCategoryRateCache_StaleUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cache := core.NewCategoryRateCache(store, time.Hour)

	put := func(rate string) {
		t.Helper()
		if err := store.PutCategory(ctx, &core.GSTCategory{
			Code:     "FOOTWEAR",
			GSTRate:  d(rate),
			HSNCodes: []string{"6403"},
		}); err != nil {
			t.Fatalf("put category: %v", err)
		}
	}

	put("12")
	cat, err := cache.Category(ctx, "6403")
	if err != nil || cat == nil {
		t.Fatalf("first lookup: cat=%v err=%v", cat, err)
	}
	if !cat.GSTRate.Equal(d("12")) {
		t.Fatalf("first lookup rate: got %s, want 12", cat.GSTRate)
	}

	// A correction in the store is invisible until the entry is dropped.
	put("18")
	cat, err = cache.Category(ctx, "6403")
	if err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if !cat.GSTRate.Equal(d("12")) {
		t.Errorf("expected stale cached rate 12, got %s", cat.GSTRate)
	}

	if err := cache.Invalidate(ctx, "6403"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	cat, err = cache.Category(ctx, "6403")
	if err != nil {
		t.Fatalf("post-invalidate lookup: %v", err)
	}
	if !cat.GSTRate.Equal(d("18")) {
		t.Errorf("expected corrected rate 18 after invalidation, got %s", cat.GSTRate)
	}
}

func TestCategoryRateCache_ExpiresByTTL(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cache := core.NewCategoryRateCache(store, time.Millisecond)

	if err := store.PutCategory(ctx, &core.GSTCategory{
		Code: "SUGAR", GSTRate: d("5"), HSNCodes: []string{"1701"},
	}); err != nil {
		t.Fatalf("put category: %v", err)
	}
	if _, err := cache.Category(ctx, "1701"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	if err := store.PutCategory(ctx, &core.GSTCategory{
		Code: "SUGAR", GSTRate: d("12"), HSNCodes: []string{"1701"},
	}); err != nil {
		t.Fatalf("update category: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	cat, err := cache.Category(ctx, "1701")
	if err != nil {
		t.Fatalf("post-expiry lookup: %v", err)
	}
	if !cat.GSTRate.Equal(d("12")) {
		t.Errorf("expected refreshed rate 12 after TTL, got %s", cat.GSTRate)
	}
}
