package core

import "github.com/shopspring/decimal"

// GST slab values in percent. Cess is additive on top and may be any
// non-negative percentage.
var gstSlabs = []int64{0, 5, 12, 18, 28}

var (
	hundred    = decimal.NewFromInt(100)
	twoHundred = decimal.NewFromInt(200)
)

// ValidGSTRate reports whether rate is one of the fixed slab values.
func ValidGSTRate(rate decimal.Decimal) bool {
	for _, s := range gstSlabs {
		if rate.Equal(decimal.NewFromInt(s)) {
			return true
		}
	}
	return false
}

// TaxBreakup is the component split of GST for one taxable value. TotalTax is
// always the sum of the rounded components, never a separately rounded figure,
// so it reconciles exactly with what is shown to the buyer.
type TaxBreakup struct {
	CGST     decimal.Decimal `json:"cgst"`
	SGST     decimal.Decimal `json:"sgst"`
	IGST     decimal.Decimal `json:"igst"`
	Cess     decimal.Decimal `json:"cess"`
	TotalTax decimal.Decimal `json:"total_tax"`
}

// roundPaise rounds to currency precision, two decimal places, half away from
// zero (half-up for the non-negative amounts handled here).
func roundPaise(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeGST splits tax for one taxable value. Intra-state: CGST and SGST are
// each taxable×rate/200, rounded independently — not half of a pre-rounded
// total, so CGST always equals SGST exactly. Inter-state: IGST carries the
// full rate. Cess applies regardless of the split.
func ComputeGST(taxable, gstRate, cessRate decimal.Decimal, intraState, exempt bool) TaxBreakup {
	b := TaxBreakup{CGST: decimal.Zero, SGST: decimal.Zero, IGST: decimal.Zero, Cess: decimal.Zero, TotalTax: decimal.Zero}
	if exempt {
		return b
	}

	if intraState {
		half := roundPaise(taxable.Mul(gstRate).Div(twoHundred))
		b.CGST = half
		b.SGST = half
	} else {
		b.IGST = roundPaise(taxable.Mul(gstRate).Div(hundred))
	}
	if cessRate.IsPositive() {
		b.Cess = roundPaise(taxable.Mul(cessRate).Div(hundred))
	}

	b.TotalTax = b.CGST.Add(b.SGST).Add(b.IGST).Add(b.Cess)
	return b
}

// Add accumulates another breakup into b, component-wise. Used by the slab
// summary buckets, which sum already-rounded figures.
func (b TaxBreakup) Add(o TaxBreakup) TaxBreakup {
	return TaxBreakup{
		CGST:     b.CGST.Add(o.CGST),
		SGST:     b.SGST.Add(o.SGST),
		IGST:     b.IGST.Add(o.IGST),
		Cess:     b.Cess.Add(o.Cess),
		TotalTax: b.TotalTax.Add(o.TotalTax),
	}
}
