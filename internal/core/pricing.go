package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// OrderItemInput is one requested line of an order or quote.
type OrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// DeliveryPolicy is the configurable flat-fee/threshold rule. Values come
// from configuration, never from constants in the pricing path.
type DeliveryPolicy struct {
	FlatFee       decimal.Decimal `json:"flat_fee"`
	FreeThreshold decimal.Decimal `json:"free_threshold"`
}

// Fee returns the delivery charge for a subtotal: zero at or above the
// threshold, the flat fee below it.
func (p DeliveryPolicy) Fee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// StoreContext carries everything pricing needs about the selling store:
// its state (for the intra/inter-state decision against the buyer state),
// any store-specific rate overrides, and the delivery fee policy.
type StoreContext struct {
	StoreID     string                   `json:"store_id"`
	SellerState string                   `json:"seller_state"`
	BuyerState  string                   `json:"buyer_state"`
	Overrides   map[string]*RateOverride `json:"overrides,omitempty"` // by product ID
	Delivery    DeliveryPolicy           `json:"delivery"`
}

// IntraState reports whether the sale stays within one state, which decides
// the CGST+SGST vs IGST split.
func (sc StoreContext) IntraState() bool {
	return sc.SellerState == sc.BuyerState
}

// PricedLine is one fully priced order line with its captured rate and tax.
type PricedLine struct {
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
	RateSource   string          `json:"rate_source"`
}

// SlabSummary is one rate-wise tax bucket, as needed for statutory filing.
type SlabSummary struct {
	GSTRate      decimal.Decimal `json:"gst_rate"`
	TaxableValue decimal.Decimal `json:"taxable_value"`
	Tax          TaxBreakup      `json:"tax"`
}

// PricedOrder is the complete pricing result for a set of items.
type PricedOrder struct {
	Lines       []PricedLine    `json:"lines"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxSummary  []SlabSummary   `json:"tax_summary"`
	TotalTax    decimal.Decimal `json:"total_tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	IntraState  bool            `json:"intra_state"`
}

// PricingEngine composes the rate resolver and the tax calculator across all
// line items. It has no side effects and is safe to call for cart previews.
type PricingEngine interface {
	Price(ctx context.Context, items []OrderItemInput, sc StoreContext) (*PricedOrder, error)
}

type pricingEngine struct {
	products ProductStore
	resolver *RateResolver
}

func NewPricingEngine(products ProductStore, resolver *RateResolver) PricingEngine {
	return &pricingEngine{products: products, resolver: resolver}
}

func (e *pricingEngine) Price(ctx context.Context, items []OrderItemInput, sc StoreContext) (*PricedOrder, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("cannot price an order with no items")
	}

	intra := sc.IntraState()
	out := &PricedOrder{
		Subtotal:    decimal.Zero,
		TotalTax:    decimal.Zero,
		DeliveryFee: decimal.Zero,
		TotalAmount: decimal.Zero,
		IntraState:  intra,
	}
	slabs := make(map[string]*SlabSummary)

	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: quantity must be positive, got %d", i+1, item.Quantity)
		}
		if err := ValidateID(item.ProductID, IDPrefixProduct); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		p, err := e.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if !p.IsActive {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}

		eff := e.resolver.Resolve(ctx, p, sc.Overrides[item.ProductID])
		lineSubtotal := eff.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		tax := ComputeGST(lineSubtotal, eff.GSTRate, eff.CessRate, intra, eff.Exempt)

		out.Lines = append(out.Lines, PricedLine{
			ProductID:    p.ID,
			ProductName:  p.Name,
			Quantity:     item.Quantity,
			UnitPrice:    eff.UnitPrice,
			LineSubtotal: lineSubtotal,
			HSNCode:      eff.HSNCode,
			GSTRate:      eff.GSTRate,
			CessRate:     eff.CessRate,
			Exempt:       eff.Exempt,
			Tax:          tax,
			RateSource:   eff.Source,
		})
		out.Subtotal = out.Subtotal.Add(lineSubtotal)
		out.TotalTax = out.TotalTax.Add(tax.TotalTax)

		key := eff.GSTRate.String()
		bucket, ok := slabs[key]
		if !ok {
			bucket = &SlabSummary{
				GSTRate:      eff.GSTRate,
				TaxableValue: decimal.Zero,
				Tax:          TaxBreakup{CGST: decimal.Zero, SGST: decimal.Zero, IGST: decimal.Zero, Cess: decimal.Zero, TotalTax: decimal.Zero},
			}
			slabs[key] = bucket
		}
		bucket.TaxableValue = bucket.TaxableValue.Add(lineSubtotal)
		bucket.Tax = bucket.Tax.Add(tax)
	}

	for _, bucket := range slabs {
		out.TaxSummary = append(out.TaxSummary, *bucket)
	}
	sort.Slice(out.TaxSummary, func(i, j int) bool {
		return out.TaxSummary[i].GSTRate.LessThan(out.TaxSummary[j].GSTRate)
	})

	out.DeliveryFee = sc.Delivery.Fee(out.Subtotal)
	// Grand total assembled from already-rounded components only.
	out.TotalAmount = out.Subtotal.Add(out.TotalTax).Add(out.DeliveryFee)
	return out, nil
}
