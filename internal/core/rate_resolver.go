package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// EffectiveRate is the price and tax classification a line item is billed
// with. Source names the chain link that resolved the classification, for
// operational visibility.
type EffectiveRate struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	HSNCode   string          `json:"hsn_code"`
	GSTRate   decimal.Decimal `json:"gst_rate"`
	CessRate  decimal.Decimal `json:"cess_rate"`
	Exempt    bool            `json:"exempt"`
	Source    string          `json:"source"`
}

// RateOverride is a store-specific rate record for one product. Nil fields
// fall through to the next link in the chain.
type RateOverride struct {
	StoreID   string           `json:"store_id"`
	ProductID string           `json:"product_id"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	GSTRate   *decimal.Decimal `json:"gst_rate,omitempty"`
	CessRate  *decimal.Decimal `json:"cess_rate,omitempty"`
	Exempt    *bool            `json:"exempt,omitempty"`
}

// taxClass is the tax classification part of an effective rate, produced by
// one link of the resolution chain.
type taxClass struct {
	GSTRate  decimal.Decimal
	CessRate decimal.Decimal
	Exempt   bool
}

// RateSource is one link in the strictly ordered resolution chain:
// override → product-assigned → category-dynamic → category-static → fallback.
type RateSource interface {
	Name() string
	Lookup(ctx context.Context, p *Product, ov *RateOverride) (taxClass, bool)
}

// RateResolver resolves the effective unit price, cost price, and tax
// classification for a line item. It never fails: absent data degrades through
// the chain to a conservative default rather than blocking a sale.
type RateResolver struct {
	chain []RateSource
}

// NewRateResolver builds the resolution chain. categories supplies dynamic
// GST-category rates (read-through cached); it may be nil, in which case the
// dynamic link is skipped and the static table takes over.
func NewRateResolver(categories CategoryLookup) *RateResolver {
	chain := []RateSource{overrideSource{}, productSource{}}
	if categories != nil {
		chain = append(chain, &categoryDynamicSource{categories: categories})
	}
	chain = append(chain, categoryStaticSource{}, fallbackSource{})
	return &RateResolver{chain: chain}
}

// Resolve walks the chain, first match wins. Price fields come from the
// override when present, else from the product itself.
func (r *RateResolver) Resolve(ctx context.Context, p *Product, ov *RateOverride) EffectiveRate {
	eff := EffectiveRate{
		UnitPrice: p.SellingPrice,
		CostPrice: p.CostPrice,
		HSNCode:   p.HSNCode,
	}
	if ov != nil {
		if ov.UnitPrice != nil {
			eff.UnitPrice = *ov.UnitPrice
		}
		if ov.CostPrice != nil {
			eff.CostPrice = *ov.CostPrice
		}
	}

	for _, src := range r.chain {
		tc, ok := src.Lookup(ctx, p, ov)
		if !ok {
			continue
		}
		eff.GSTRate = tc.GSTRate
		eff.CessRate = tc.CessRate
		eff.Exempt = tc.Exempt
		eff.Source = src.Name()
		if src.Name() == sourceFallback {
			rateFallbacks.Inc()
			log.Warn().
				Str("product_id", p.ID).
				Str("hsn_code", p.HSNCode).
				Msg("rate resolution degraded to absolute fallback")
		}
		return eff
	}

	// Unreachable: fallbackSource always matches.
	eff.GSTRate = fallbackGSTRate
	eff.Source = sourceFallback
	return eff
}

// Chain link names, reported in EffectiveRate.Source.
const (
	sourceOverride        = "store-override"
	sourceProduct         = "product-assigned"
	sourceCategoryDynamic = "category-dynamic"
	sourceCategoryStatic  = "category-static"
	sourceFallback        = "fallback"
)

// fallbackGSTRate is the absolute last resort: 18%, zero cess, not exempt.
var fallbackGSTRate = decimal.NewFromInt(18)

type overrideSource struct{}

func (overrideSource) Name() string { return sourceOverride }

func (overrideSource) Lookup(_ context.Context, _ *Product, ov *RateOverride) (taxClass, bool) {
	if ov == nil || (ov.GSTRate == nil && ov.Exempt == nil) {
		return taxClass{}, false
	}
	tc := taxClass{GSTRate: decimal.Zero, CessRate: decimal.Zero}
	if ov.GSTRate != nil {
		tc.GSTRate = *ov.GSTRate
	}
	if ov.CessRate != nil {
		tc.CessRate = *ov.CessRate
	}
	if ov.Exempt != nil {
		tc.Exempt = *ov.Exempt
	}
	return tc, true
}

type productSource struct{}

func (productSource) Name() string { return sourceProduct }

func (productSource) Lookup(_ context.Context, p *Product, _ *RateOverride) (taxClass, bool) {
	if p.TaxExempt {
		return taxClass{GSTRate: decimal.Zero, CessRate: decimal.Zero, Exempt: true}, true
	}
	if p.GSTRate == nil {
		return taxClass{}, false
	}
	tc := taxClass{GSTRate: *p.GSTRate, CessRate: decimal.Zero}
	if p.CessRate != nil {
		tc.CessRate = *p.CessRate
	}
	return tc, true
}

// categoryDynamicSource consults the GST category mapped to the product's HSN
// code through a TTL-cached lookup. Lookup failures are swallowed: the chain
// degrades to the static table rather than surfacing an error into pricing.
type categoryDynamicSource struct {
	categories CategoryLookup
}

func (*categoryDynamicSource) Name() string { return sourceCategoryDynamic }

func (s *categoryDynamicSource) Lookup(ctx context.Context, p *Product, _ *RateOverride) (taxClass, bool) {
	if p.HSNCode == "" {
		return taxClass{}, false
	}
	cat, err := s.categories.Category(ctx, p.HSNCode)
	if err != nil || cat == nil {
		if err != nil {
			log.Warn().Err(err).
				Str("product_id", p.ID).
				Str("hsn_code", p.HSNCode).
				Msg("dynamic category lookup unavailable, trying static table")
		}
		return taxClass{}, false
	}
	return taxClass{GSTRate: cat.GSTRate, CessRate: cat.CessRate, Exempt: cat.Exempt}, true
}

// staticSlabRow is a built-in default rate for an HSN chapter (first two
// digits of the code).
type staticSlabRow struct {
	gstRate int64
	cess    string // percent, decimal string; "" means zero
	exempt  bool
}

// staticSlabTable maps HSN chapters to default slabs. Used when the dynamic
// category lookup has no answer; intentionally coarse.
var staticSlabTable = map[string]staticSlabRow{
	"04": {gstRate: 5},               // dairy
	"07": {gstRate: 0, exempt: true}, // fresh vegetables
	"09": {gstRate: 5},               // tea, coffee, spices
	"10": {gstRate: 0, exempt: true}, // cereals
	"17": {gstRate: 5},               // sugar
	"19": {gstRate: 18},              // prepared foods
	"21": {gstRate: 18},              // misc edible preparations
	"22": {gstRate: 28, cess: "12"},  // aerated beverages
	"24": {gstRate: 28, cess: "61"},  // tobacco
	"30": {gstRate: 12},              // pharmaceuticals
	"33": {gstRate: 18},              // cosmetics
	"34": {gstRate: 18},              // soaps
	"48": {gstRate: 12},              // paper
	"61": {gstRate: 5},               // apparel, knitted
	"62": {gstRate: 5},               // apparel, woven
	"64": {gstRate: 12},              // footwear
	"85": {gstRate: 18},              // electronics
	"87": {gstRate: 28, cess: "15"},  // motor vehicles
}

type categoryStaticSource struct{}

func (categoryStaticSource) Name() string { return sourceCategoryStatic }

func (categoryStaticSource) Lookup(_ context.Context, p *Product, _ *RateOverride) (taxClass, bool) {
	if len(p.HSNCode) < 2 {
		return taxClass{}, false
	}
	row, ok := staticSlabTable[p.HSNCode[:2]]
	if !ok {
		return taxClass{}, false
	}
	tc := taxClass{GSTRate: decimal.NewFromInt(row.gstRate), CessRate: decimal.Zero, Exempt: row.exempt}
	if row.cess != "" {
		tc.CessRate = decimal.RequireFromString(row.cess)
	}
	return tc, true
}

type fallbackSource struct{}

func (fallbackSource) Name() string { return sourceFallback }

func (fallbackSource) Lookup(context.Context, *Product, *RateOverride) (taxClass, bool) {
	return taxClass{GSTRate: fallbackGSTRate, CessRate: decimal.Zero}, true
}

// ── TTL cache ─────────────────────────────────────────────────────────────────

// CategoryRateCache is a read-through, in-process TTL cache over a
// CategoryStore. Staleness up to the TTL is an accepted latency tradeoff;
// administrative rate edits call Invalidate for immediate effect.
type CategoryRateCache struct {
	store CategoryStore
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cachedCategory
}

type cachedCategory struct {
	cat       *GSTCategory
	fetchedAt time.Time
}

func NewCategoryRateCache(store CategoryStore, ttl time.Duration) *CategoryRateCache {
	return &CategoryRateCache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]cachedCategory),
	}
}

func (c *CategoryRateCache) Category(ctx context.Context, hsn string) (*GSTCategory, error) {
	c.mu.RLock()
	e, ok := c.entries[hsn]
	c.mu.RUnlock()
	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.cat, nil
	}

	cat, err := c.store.GetCategoryByHSN(ctx, hsn)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[hsn] = cachedCategory{cat: cat, fetchedAt: time.Now()}
	c.mu.Unlock()
	return cat, nil
}

func (c *CategoryRateCache) Invalidate(_ context.Context, hsn string) error {
	c.mu.Lock()
	delete(c.entries, hsn)
	c.mu.Unlock()
	return nil
}
