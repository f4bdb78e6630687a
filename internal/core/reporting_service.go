package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// FilingSlabLine is one rate-wise bucket of a tax filing report. Figures come
// from the tax captured on confirmed orders, never recomputed from current
// rates.
type FilingSlabLine struct {
	GSTRate      decimal.Decimal `json:"gst_rate"`
	TaxableValue decimal.Decimal `json:"taxable_value"`
	CGST         decimal.Decimal `json:"cgst"`
	SGST         decimal.Decimal `json:"sgst"`
	IGST         decimal.Decimal `json:"igst"`
	Cess         decimal.Decimal `json:"cess"`
}

// TaxFilingReport aggregates a store's confirmed orders over a period into
// rate-wise buckets, the shape GSTR-1 style filings want.
type TaxFilingReport struct {
	StoreID      string           `json:"store_id"`
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	OrderCount   int              `json:"order_count"`
	Slabs        []FilingSlabLine `json:"slabs"`
	TotalTaxable decimal.Decimal  `json:"total_taxable"`
	TotalTax     decimal.Decimal  `json:"total_tax"`
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService provides read-only reporting queries over orders and stock.
type ReportingService interface {
	// TaxFiling aggregates confirmed orders created within [from, to) into
	// rate-wise slab buckets.
	TaxFiling(ctx context.Context, storeID string, from, to time.Time) (*TaxFilingReport, error)
}

type reportingService struct {
	orders OrderStore
}

func NewReportingService(orders OrderStore) ReportingService {
	return &reportingService{orders: orders}
}

func (s *reportingService) TaxFiling(ctx context.Context, storeID string, from, to time.Time) (*TaxFilingReport, error) {
	if err := ValidateID(storeID, IDPrefixStore); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, fmt.Errorf("report period end must be after start")
	}

	orders, err := s.orders.OrdersByStatus(ctx, storeID, OrderConfirmed, from, to)
	if err != nil {
		return nil, fmt.Errorf("scan confirmed orders: %w", err)
	}

	report := &TaxFilingReport{
		StoreID:      storeID,
		From:         from,
		To:           to,
		OrderCount:   len(orders),
		TotalTaxable: decimal.Zero,
		TotalTax:     decimal.Zero,
	}
	buckets := make(map[string]*FilingSlabLine)
	for _, o := range orders {
		for _, sl := range o.TaxSummary {
			key := sl.GSTRate.String()
			b, ok := buckets[key]
			if !ok {
				b = &FilingSlabLine{
					GSTRate:      sl.GSTRate,
					TaxableValue: decimal.Zero,
					CGST:         decimal.Zero,
					SGST:         decimal.Zero,
					IGST:         decimal.Zero,
					Cess:         decimal.Zero,
				}
				buckets[key] = b
			}
			b.TaxableValue = b.TaxableValue.Add(sl.TaxableValue)
			b.CGST = b.CGST.Add(sl.Tax.CGST)
			b.SGST = b.SGST.Add(sl.Tax.SGST)
			b.IGST = b.IGST.Add(sl.Tax.IGST)
			b.Cess = b.Cess.Add(sl.Tax.Cess)
			report.TotalTaxable = report.TotalTaxable.Add(sl.TaxableValue)
			report.TotalTax = report.TotalTax.Add(sl.Tax.TotalTax)
		}
	}

	for _, b := range buckets {
		report.Slabs = append(report.Slabs, *b)
	}
	sort.Slice(report.Slabs, func(i, j int) bool {
		return report.Slabs[i].GSTRate.LessThan(report.Slabs[j].GSTRate)
	})
	return report, nil
}
