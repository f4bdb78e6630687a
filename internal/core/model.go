package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Canonical identifier format: a lowercase three-letter type prefix, a hyphen,
// then a lowercase alphanumeric/hyphen body (UUIDs qualify). Underscore-delimited
// identifiers are rejected at every boundary, never normalized.
var validID = regexp.MustCompile(`^[a-z]{3}-[a-z0-9][a-z0-9-]{0,62}$`)

// ID prefixes in use across the engine.
const (
	IDPrefixProduct  = "prd"
	IDPrefixOrder    = "ord"
	IDPrefixMovement = "mov"
	IDPrefixStore    = "str"
	IDPrefixCustomer = "cus"
)

// NewID mints a canonical identifier with the given prefix.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// ValidateID checks that id is in the canonical hyphen-delimited format and
// carries the expected prefix.
func ValidateID(id, prefix string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: %q is not in canonical form (want %s-<lowercase alnum/hyphen>)", ErrInvalidID, id, prefix)
	}
	if !strings.HasPrefix(id, prefix+"-") {
		return fmt.Errorf("%w: %q has wrong prefix (want %s-)", ErrInvalidID, id, prefix)
	}
	return nil
}

// Product is a catalog entry. StockQty is mutated only by the StockLedger;
// every other field changes through explicit catalog edits. Products referenced
// by historical orders are deactivated, never deleted.
type Product struct {
	ID            string           `json:"id"`
	StoreID       string           `json:"store_id"`
	Name          string           `json:"name"`
	Category      string           `json:"category"`
	Brand         string           `json:"brand"`
	Unit          string           `json:"unit"`
	SellingPrice  decimal.Decimal  `json:"selling_price"`
	CostPrice     decimal.Decimal  `json:"cost_price"`
	HSNCode       string           `json:"hsn_code"`
	GSTRate       *decimal.Decimal `json:"gst_rate,omitempty"` // nil = not assigned, resolve via category
	CessRate      *decimal.Decimal `json:"cess_rate,omitempty"`
	TaxExempt     bool             `json:"tax_exempt"`
	StockQty      int              `json:"stock_qty"`
	MinStock      int              `json:"min_stock"`
	MaxStock      int              `json:"max_stock"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeactivatedAt *time.Time       `json:"deactivated_at,omitempty"`
}

// GSTCategory is a named tax classification. Products reference it through
// their HSN code; a rate correction here propagates to future pricing runs
// without touching historical orders.
type GSTCategory struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	GSTRate   decimal.Decimal `json:"gst_rate"`
	CessRate  decimal.Decimal `json:"cess_rate"`
	Exempt    bool            `json:"exempt"`
	HSNCodes  []string        `json:"hsn_codes"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementInbound    MovementType = "INBOUND"
	MovementOutbound   MovementType = "OUTBOUND"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Movement reasons written by the ledger and the order coordinator.
const (
	ReasonReservation       = "reservation"
	ReasonRelease           = "release"
	ReasonAdjustment        = "adjustment"
	ReasonReceipt           = "receipt"
	ReasonPostConfirmCancel = "post-confirmation cancellation"
)

// StockMovement is an immutable, append-only audit record. Replaying all
// movements for a product in order must reproduce its current stock exactly.
type StockMovement struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"product_id"`
	Type        MovementType `json:"type"`
	Delta       int          `json:"delta"` // signed
	StockBefore int          `json:"stock_before"`
	StockAfter  int          `json:"stock_after"`
	Reason      string       `json:"reason"`
	Reference   string       `json:"reference"` // order ID, or the original movement ID for releases
	CreatedAt   time.Time    `json:"created_at"`
}
