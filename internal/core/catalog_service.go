package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ProductInput carries the mutable fields of a product. Rate fields are
// pointers: nil means "no product-level rate, resolve through the category".
type ProductInput struct {
	StoreID      string           `json:"store_id"`
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	Brand        string           `json:"brand"`
	Unit         string           `json:"unit"`
	SellingPrice decimal.Decimal  `json:"selling_price"`
	CostPrice    decimal.Decimal  `json:"cost_price"`
	HSNCode      string           `json:"hsn_code"`
	GSTRate      *decimal.Decimal `json:"gst_rate,omitempty"`
	CessRate     *decimal.Decimal `json:"cess_rate,omitempty"`
	TaxExempt    bool             `json:"tax_exempt"`
	StockQty     int              `json:"stock_qty"`
	MinStock     int              `json:"min_stock"`
	MaxStock     int              `json:"max_stock"`
}

// CatalogService manages products and GST categories. Category rate changes
// invalidate the rate cache so the next pricing run sees the correction.
type CatalogService interface {
	CreateProduct(ctx context.Context, in ProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error)
	// DeactivateProduct soft-deletes: the product stops pricing and reserving
	// but its movement history stays readable.
	DeactivateProduct(ctx context.Context, id string) (*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	UpsertCategory(ctx context.Context, cat GSTCategory) (*GSTCategory, error)
}

type catalogService struct {
	products   ProductStore
	categories CategoryStore
	cache      CategoryLookup
}

func NewCatalogService(products ProductStore, categories CategoryStore, cache CategoryLookup) CatalogService {
	return &catalogService{products: products, categories: categories, cache: cache}
}

func (s *catalogService) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &Product{
		ID:        NewID(IDPrefixProduct),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.apply(p, in)
	if err := s.products.PutProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("persist product: %w", err)
	}
	log.Info().Str("product_id", p.ID).Str("store_id", p.StoreID).Str("name", p.Name).Msg("product created")
	return p, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := ValidateID(id, IDPrefixProduct); err != nil {
		return nil, err
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	// Stock is owned by the ledger; an update never touches it.
	in.StockQty = p.StockQty
	s.apply(p, in)
	p.UpdatedAt = time.Now().UTC()
	if err := s.products.PutProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("persist product %s: %w", id, err)
	}
	return p, nil
}

func (s *catalogService) DeactivateProduct(ctx context.Context, id string) (*Product, error) {
	if err := ValidateID(id, IDPrefixProduct); err != nil {
		return nil, err
	}
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return p, nil
	}
	now := time.Now().UTC()
	p.IsActive = false
	p.DeactivatedAt = &now
	p.UpdatedAt = now
	if err := s.products.PutProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("persist product %s: %w", id, err)
	}
	log.Info().Str("product_id", id).Msg("product deactivated")
	return p, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (*Product, error) {
	if err := ValidateID(id, IDPrefixProduct); err != nil {
		return nil, err
	}
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *catalogService) UpsertCategory(ctx context.Context, cat GSTCategory) (*GSTCategory, error) {
	if cat.Code == "" {
		return nil, fmt.Errorf("category code is required")
	}
	if !cat.Exempt && !ValidGSTRate(cat.GSTRate) {
		return nil, &InvalidRateConfigurationError{Rate: cat.GSTRate}
	}
	if cat.CessRate.IsNegative() {
		return nil, &InvalidRateConfigurationError{Rate: cat.CessRate}
	}
	cat.UpdatedAt = time.Now().UTC()
	if err := s.categories.PutCategory(ctx, &cat); err != nil {
		return nil, fmt.Errorf("persist category %s: %w", cat.Code, err)
	}
	// Blow the cached entries so corrected rates apply on the next lookup.
	if s.cache != nil {
		for _, hsn := range cat.HSNCodes {
			if err := s.cache.Invalidate(ctx, hsn); err != nil {
				log.Warn().Err(err).Str("hsn", hsn).Msg("rate cache invalidation failed, entry expires by TTL")
			}
		}
	}
	log.Info().
		Str("category", cat.Code).
		Str("gst_rate", cat.GSTRate.String()).
		Int("hsn_codes", len(cat.HSNCodes)).
		Msg("gst category upserted")
	return &cat, nil
}

func (s *catalogService) validate(in ProductInput) error {
	if err := ValidateID(in.StoreID, IDPrefixStore); err != nil {
		return err
	}
	if in.Name == "" {
		return fmt.Errorf("product name is required")
	}
	if in.SellingPrice.IsNegative() || in.CostPrice.IsNegative() {
		return fmt.Errorf("prices must not be negative")
	}
	if in.StockQty < 0 {
		return fmt.Errorf("stock quantity must not be negative")
	}
	if in.GSTRate != nil && !ValidGSTRate(*in.GSTRate) {
		return &InvalidRateConfigurationError{Rate: *in.GSTRate}
	}
	if in.CessRate != nil && in.CessRate.IsNegative() {
		return &InvalidRateConfigurationError{Rate: *in.CessRate}
	}
	return nil
}

func (s *catalogService) apply(p *Product, in ProductInput) {
	p.StoreID = in.StoreID
	p.Name = in.Name
	p.Category = in.Category
	p.Brand = in.Brand
	p.Unit = in.Unit
	p.SellingPrice = in.SellingPrice
	p.CostPrice = in.CostPrice
	p.HSNCode = in.HSNCode
	p.GSTRate = in.GSTRate
	p.CessRate = in.CessRate
	p.TaxExempt = in.TaxExempt
	p.StockQty = in.StockQty
	p.MinStock = in.MinStock
	p.MaxStock = in.MaxStock
}
