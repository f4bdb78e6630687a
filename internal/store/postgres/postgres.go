// Package postgres is the durable storage backend. One Store over a pgxpool
// implements all four core access patterns with raw SQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"commerce-engine/internal/core"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ── ProductStore ──────────────────────────────────────────────────────────────

const productColumns = `id, store_id, name, category, brand, unit, selling_price, cost_price,
	hsn_code, gst_rate, cess_rate, tax_exempt, stock_qty, min_stock, max_stock,
	is_active, created_at, updated_at, deactivated_at`

func scanProduct(row pgx.Row) (*core.Product, error) {
	var p core.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.Category, &p.Brand, &p.Unit,
		&p.SellingPrice, &p.CostPrice, &p.HSNCode, &p.GSTRate, &p.CessRate,
		&p.TaxExempt, &p.StockQty, &p.MinStock, &p.MaxStock,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.DeactivatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*core.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &core.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query product %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) PutProduct(ctx context.Context, p *core.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, store_id, name, category, brand, unit, selling_price, cost_price,
			hsn_code, gst_rate, cess_rate, tax_exempt, stock_qty, min_stock, max_stock,
			is_active, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			brand = EXCLUDED.brand,
			unit = EXCLUDED.unit,
			selling_price = EXCLUDED.selling_price,
			cost_price = EXCLUDED.cost_price,
			hsn_code = EXCLUDED.hsn_code,
			gst_rate = EXCLUDED.gst_rate,
			cess_rate = EXCLUDED.cess_rate,
			tax_exempt = EXCLUDED.tax_exempt,
			stock_qty = EXCLUDED.stock_qty,
			min_stock = EXCLUDED.min_stock,
			max_stock = EXCLUDED.max_stock,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at,
			deactivated_at = EXCLUDED.deactivated_at`,
		p.ID, p.StoreID, p.Name, p.Category, p.Brand, p.Unit, p.SellingPrice, p.CostPrice,
		p.HSNCode, p.GSTRate, p.CessRate, p.TaxExempt, p.StockQty, p.MinStock, p.MaxStock,
		p.IsActive, p.CreatedAt, p.UpdatedAt, p.DeactivatedAt)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

// AdjustStock is the storage-level atomicity primitive: a single conditional
// UPDATE whose WHERE clause carries the non-negative guard, so the check and
// the write cannot interleave with a concurrent caller.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (int, int, error) {
	var after int
	err := s.pool.QueryRow(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $2, updated_at = NOW()
		WHERE id = $1 AND stock_qty + $2 >= 0
		RETURNING stock_qty`, id, delta).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row updated: either the product is unknown or the guard fired.
		var exists bool
		if cerr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); cerr != nil {
			return 0, 0, fmt.Errorf("classify failed stock adjustment for %s: %w", id, cerr)
		}
		if !exists {
			return 0, 0, &core.ProductNotFoundError{ProductID: id}
		}
		return 0, 0, core.ErrConditionFailed
	}
	if err != nil {
		return 0, 0, fmt.Errorf("adjust stock for %s: %w", id, err)
	}
	return after - delta, after, nil
}

// ── MovementStore ─────────────────────────────────────────────────────────────

const movementColumns = `id, product_id, movement_type, delta, stock_before, stock_after, reason, reference, created_at`

func scanMovement(row pgx.Row) (*core.StockMovement, error) {
	var m core.StockMovement
	err := row.Scan(&m.ID, &m.ProductID, &m.Type, &m.Delta, &m.StockBefore,
		&m.StockAfter, &m.Reason, &m.Reference, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) AppendMovement(ctx context.Context, m *core.StockMovement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stock_movements (id, product_id, movement_type, delta, stock_before, stock_after, reason, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ProductID, m.Type, m.Delta, m.StockBefore, m.StockAfter, m.Reason, m.Reference, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append movement %s: %w", m.ID, err)
	}
	return nil
}

func (s *Store) GetMovement(ctx context.Context, id string) (*core.StockMovement, error) {
	m, err := scanMovement(s.pool.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("movement %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query movement %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) ScanMovements(ctx context.Context, productID string) ([]core.StockMovement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE product_id = $1 ORDER BY created_at, id`, productID)
	if err != nil {
		return nil, fmt.Errorf("scan movements for %s: %w", productID, err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

func (s *Store) MovementsByReference(ctx context.Context, ref string) ([]core.StockMovement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE reference = $1 ORDER BY created_at, id`, ref)
	if err != nil {
		return nil, fmt.Errorf("scan movements by reference %s: %w", ref, err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

func collectMovements(rows pgx.Rows) ([]core.StockMovement, error) {
	var out []core.StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement row: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ── OrderStore ────────────────────────────────────────────────────────────────

const orderColumns = `id, store_id, customer_id, customer_contact, lines, subtotal, tax_summary,
	total_tax, delivery_fee, total_amount, status, payment_method, payment_status,
	cancel_reason, shortfalls, reservation_ids, created_at, updated_at, confirmed_at, cancelled_at`

func scanOrder(row pgx.Row) (*core.Order, error) {
	var o core.Order
	err := row.Scan(&o.ID, &o.StoreID, &o.CustomerID, &o.CustomerContact, &o.Lines,
		&o.Subtotal, &o.TaxSummary, &o.TotalTax, &o.DeliveryFee, &o.TotalAmount,
		&o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.CancelReason,
		&o.Shortfalls, &o.ReservationIDs, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.CancelledAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*core.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query order %s: %w", id, err)
	}
	return o, nil
}

func (s *Store) PutOrder(ctx context.Context, o *core.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, store_id, customer_id, customer_contact, lines, subtotal, tax_summary,
			total_tax, delivery_fee, total_amount, status, payment_method, payment_status,
			cancel_reason, shortfalls, reservation_ids, created_at, updated_at, confirmed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			lines = EXCLUDED.lines,
			subtotal = EXCLUDED.subtotal,
			tax_summary = EXCLUDED.tax_summary,
			total_tax = EXCLUDED.total_tax,
			delivery_fee = EXCLUDED.delivery_fee,
			total_amount = EXCLUDED.total_amount,
			status = EXCLUDED.status,
			payment_method = EXCLUDED.payment_method,
			payment_status = EXCLUDED.payment_status,
			cancel_reason = EXCLUDED.cancel_reason,
			shortfalls = EXCLUDED.shortfalls,
			reservation_ids = EXCLUDED.reservation_ids,
			updated_at = EXCLUDED.updated_at,
			confirmed_at = EXCLUDED.confirmed_at,
			cancelled_at = EXCLUDED.cancelled_at`,
		o.ID, o.StoreID, o.CustomerID, o.CustomerContact, o.Lines, o.Subtotal, o.TaxSummary,
		o.TotalTax, o.DeliveryFee, o.TotalAmount, o.Status, o.PaymentMethod, o.PaymentStatus,
		o.CancelReason, o.Shortfalls, o.ReservationIDs, o.CreatedAt, o.UpdatedAt, o.ConfirmedAt, o.CancelledAt)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *Store) OrdersByStatus(ctx context.Context, storeID string, status core.OrderStatus, from, to time.Time) ([]core.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE store_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4
		ORDER BY created_at`, storeID, status, from, to)
	if err != nil {
		return nil, fmt.Errorf("scan orders by status: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) StaleAwaitingPayment(ctx context.Context, cutoff time.Time) ([]core.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at`, core.OrderAwaitingPayment, cutoff)
	if err != nil {
		return nil, fmt.Errorf("scan stale awaiting-payment orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]core.Order, error) {
	var out []core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ── CategoryStore ─────────────────────────────────────────────────────────────

func (s *Store) GetCategoryByHSN(ctx context.Context, hsn string) (*core.GSTCategory, error) {
	var c core.GSTCategory
	err := s.pool.QueryRow(ctx, `
		SELECT c.code, c.name, c.gst_rate, c.cess_rate, c.exempt, c.updated_at
		FROM gst_categories c
		JOIN hsn_category_map h ON h.category_code = c.code
		WHERE h.hsn_code = $1`, hsn).
		Scan(&c.Code, &c.Name, &c.GSTRate, &c.CessRate, &c.Exempt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query category for HSN %s: %w", hsn, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT hsn_code FROM hsn_category_map WHERE category_code = $1 ORDER BY hsn_code`, c.Code)
	if err != nil {
		return nil, fmt.Errorf("query HSN codes for category %s: %w", c.Code, err)
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		c.HSNCodes = append(c.HSNCodes, code)
	}
	return &c, rows.Err()
}

func (s *Store) PutCategory(ctx context.Context, c *core.GSTCategory) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin category upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO gst_categories (code, name, gst_rate, cess_rate, exempt, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			gst_rate = EXCLUDED.gst_rate,
			cess_rate = EXCLUDED.cess_rate,
			exempt = EXCLUDED.exempt,
			updated_at = EXCLUDED.updated_at`,
		c.Code, c.Name, c.GSTRate, c.CessRate, c.Exempt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert category %s: %w", c.Code, err)
	}

	// Replace the HSN mapping wholesale so removed codes stop resolving here.
	if _, err := tx.Exec(ctx,
		`DELETE FROM hsn_category_map WHERE category_code = $1`, c.Code); err != nil {
		return fmt.Errorf("clear HSN mapping for %s: %w", c.Code, err)
	}
	for _, hsn := range c.HSNCodes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO hsn_category_map (hsn_code, category_code)
			VALUES ($1, $2)
			ON CONFLICT (hsn_code) DO UPDATE SET category_code = EXCLUDED.category_code`,
			hsn, c.Code); err != nil {
			return fmt.Errorf("map HSN %s to %s: %w", hsn, c.Code, err)
		}
	}
	return tx.Commit(ctx)
}
