package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"commerce-engine/internal/core"
	"commerce-engine/internal/store/memory"
)

func testStoreContext() core.StoreContext {
	return core.StoreContext{
		StoreID:     "str-test",
		SellerState: "KA",
		BuyerState:  "KA",
		Delivery: core.DeliveryPolicy{
			FlatFee:       d("20"),
			FreeThreshold: d("200"),
		},
	}
}

func putProduct(t *testing.T, store *memory.Store, price string, gstRate *decimal.Decimal, stock int) *core.Product {
	t.Helper()
	p := testProduct("8517", gstRate)
	p.SellingPrice = d(price)
	p.StockQty = stock
	if err := store.PutProduct(context.Background(), p); err != nil {
		t.Fatalf("put product: %v", err)
	}
	return p
}

func TestPricingEngine_MultiSlabOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := core.NewPricingEngine(store, core.NewRateResolver(nil))

	milk := putProduct(t, store, "30.00", dp("5"), 100)
	phone := putProduct(t, store, "12000.00", dp("18"), 10)
	soap := putProduct(t, store, "45.00", dp("18"), 50)

	priced, err := engine.Price(ctx, []core.OrderItemInput{
		{ProductID: milk.ID, Quantity: 2},
		{ProductID: phone.ID, Quantity: 1},
		{ProductID: soap.ID, Quantity: 3},
	}, testStoreContext())
	if err != nil {
		t.Fatalf("price: %v", err)
	}

	// 60 + 12000 + 135
	if !priced.Subtotal.Equal(d("12195.00")) {
		t.Errorf("subtotal: got %s, want 12195.00", priced.Subtotal)
	}
	if len(priced.TaxSummary) != 2 {
		t.Fatalf("expected 2 slab buckets, got %d", len(priced.TaxSummary))
	}
	// Buckets sorted ascending by rate.
	five, eighteen := priced.TaxSummary[0], priced.TaxSummary[1]
	if !five.GSTRate.Equal(d("5")) || !five.TaxableValue.Equal(d("60.00")) {
		t.Errorf("5%% bucket: rate=%s taxable=%s", five.GSTRate, five.TaxableValue)
	}
	if !eighteen.GSTRate.Equal(d("18")) || !eighteen.TaxableValue.Equal(d("12135.00")) {
		t.Errorf("18%% bucket: rate=%s taxable=%s", eighteen.GSTRate, eighteen.TaxableValue)
	}

	// Intra-state: 60@5 → 1.50+1.50, 12135@18 → 1092.15+1092.15.
	if !priced.TotalTax.Equal(d("2187.30")) {
		t.Errorf("total tax: got %s, want 2187.30", priced.TotalTax)
	}
	if !priced.DeliveryFee.IsZero() {
		t.Errorf("delivery above threshold must be free, got %s", priced.DeliveryFee)
	}
	if !priced.TotalAmount.Equal(d("14382.30")) {
		t.Errorf("total: got %s, want 14382.30", priced.TotalAmount)
	}
}

func TestPricingEngine_InterStateUsesIGST(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := core.NewPricingEngine(store, core.NewRateResolver(nil))
	p := putProduct(t, store, "100.00", dp("18"), 10)

	sc := testStoreContext()
	sc.BuyerState = "TN"
	priced, err := engine.Price(ctx, []core.OrderItemInput{{ProductID: p.ID, Quantity: 1}}, sc)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	line := priced.Lines[0]
	if !line.Tax.IGST.Equal(d("18")) || !line.Tax.CGST.IsZero() || !line.Tax.SGST.IsZero() {
		t.Errorf("inter-state split wrong: CGST=%s SGST=%s IGST=%s", line.Tax.CGST, line.Tax.SGST, line.Tax.IGST)
	}
	if priced.IntraState {
		t.Error("IntraState must be false for a cross-state sale")
	}
}

func TestPricingEngine_DeliveryFeeBelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := core.NewPricingEngine(store, core.NewRateResolver(nil))
	p := putProduct(t, store, "100.00", dp("18"), 10)

	priced, err := engine.Price(ctx, []core.OrderItemInput{{ProductID: p.ID, Quantity: 1}}, testStoreContext())
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !priced.DeliveryFee.Equal(d("20")) {
		t.Errorf("delivery fee: got %s, want 20", priced.DeliveryFee)
	}
	// 100 + 18 + 20
	if !priced.TotalAmount.Equal(d("138.00")) {
		t.Errorf("total: got %s, want 138.00", priced.TotalAmount)
	}
}

func TestPricingEngine_StoreOverridePrice(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := core.NewPricingEngine(store, core.NewRateResolver(nil))
	p := putProduct(t, store, "100.00", dp("18"), 10)

	sc := testStoreContext()
	sc.Overrides = map[string]*core.RateOverride{
		p.ID: {UnitPrice: dp("80.00"), GSTRate: dp("12")},
	}
	priced, err := engine.Price(ctx, []core.OrderItemInput{{ProductID: p.ID, Quantity: 2}}, sc)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	line := priced.Lines[0]
	if !line.UnitPrice.Equal(d("80.00")) || !line.LineSubtotal.Equal(d("160.00")) {
		t.Errorf("override price not applied: unit=%s subtotal=%s", line.UnitPrice, line.LineSubtotal)
	}
	if !line.GSTRate.Equal(d("12")) || line.RateSource != "store-override" {
		t.Errorf("override rate not applied: rate=%s source=%q", line.GSTRate, line.RateSource)
	}
}

func TestPricingEngine_Rejections(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := core.NewPricingEngine(store, core.NewRateResolver(nil))
	p := putProduct(t, store, "100.00", dp("18"), 10)
	sc := testStoreContext()

	if _, err := engine.Price(ctx, nil, sc); err == nil {
		t.Error("empty order must be rejected")
	}
	if _, err := engine.Price(ctx, []core.OrderItemInput{{ProductID: p.ID, Quantity: 0}}, sc); err == nil {
		t.Error("zero quantity must be rejected")
	}
	if _, err := engine.Price(ctx, []core.OrderItemInput{{ProductID: "prd_bad_id", Quantity: 1}}, sc); err == nil {
		t.Error("underscore identifiers must be rejected, not normalized")
	}

	var notFound *core.ProductNotFoundError
	_, err := engine.Price(ctx, []core.OrderItemInput{{ProductID: "prd-does-not-exist", Quantity: 1}}, sc)
	if !errors.As(err, &notFound) {
		t.Errorf("unknown product: got %v, want ProductNotFoundError", err)
	}

	inactive := putProduct(t, store, "50.00", dp("5"), 10)
	inactive.IsActive = false
	if err := store.PutProduct(ctx, inactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := engine.Price(ctx, []core.OrderItemInput{{ProductID: inactive.ID, Quantity: 1}}, sc); !errors.As(err, &notFound) {
		t.Errorf("inactive product: got %v, want ProductNotFoundError", err)
	}
}
