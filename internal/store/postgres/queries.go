package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements store.Tx over one *sql.Tx.
type queries struct {
	q dbtx
}

type scanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, sku, name, base_unit, stock, cost_price, sale_price, is_combo, active, created_at`

func scanProduct(row scanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.BaseUnit, &p.Stock, &p.CostPrice, &p.SalePrice, &p.IsCombo, &p.Active, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (t *queries) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE active = true ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (t *queries) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return scanProduct(t.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (t *queries) LockProduct(ctx context.Context, id string) (*domain.Product, error) {
	return scanProduct(t.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (t *queries) FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return scanProduct(t.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
}

func (t *queries) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, base_unit, stock, cost_price, sale_price, is_combo, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, p.ID, p.SKU, p.Name, p.BaseUnit, p.Stock, p.CostPrice, p.SalePrice, p.IsCombo, p.Active, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateProduct
		}
		return err
	}
	return nil
}

func (t *queries) UpdateProductStock(ctx context.Context, id string, stock decimal.Decimal) error {
	return t.execOne(ctx, domain.ErrProductNotFound, `UPDATE products SET stock = $2 WHERE id = $1`, id, stock)
}

func (t *queries) UpdateProductCost(ctx context.Context, id string, cost decimal.Decimal) error {
	return t.execOne(ctx, domain.ErrProductNotFound, `UPDATE products SET cost_price = $2 WHERE id = $1`, id, cost)
}

// execOne runs a single-row statement and reports notFound when it matched
// nothing.
func (t *queries) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

const unitColumns = `id, product_id, name, conversion_factor, price, barcode, default_sale, active`

func scanUnit(row scanner) (*domain.ProductUnit, error) {
	var (
		u       domain.ProductUnit
		price   decimal.NullDecimal
		barcode sql.NullString
	)
	if err := row.Scan(&u.ID, &u.ProductID, &u.Name, &u.ConversionFactor, &price, &barcode, &u.DefaultSale, &u.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUnitNotFound
		}
		return nil, err
	}
	if price.Valid {
		u.Price = &price.Decimal
	}
	u.Barcode = barcode.String
	return &u, nil
}

func (t *queries) GetProductUnit(ctx context.Context, id string) (*domain.ProductUnit, error) {
	return scanUnit(t.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM product_units WHERE id = $1`, id))
}

func (t *queries) ListProductUnits(ctx context.Context, productID string) ([]domain.ProductUnit, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+unitColumns+` FROM product_units WHERE product_id = $1 ORDER BY conversion_factor, id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.ProductUnit, 0, 4)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

func (t *queries) FindUnitByBarcode(ctx context.Context, barcode string) (*domain.ProductUnit, error) {
	return scanUnit(t.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM product_units WHERE barcode = $1`, barcode))
}

func (t *queries) CreateProductUnit(ctx context.Context, u domain.ProductUnit) error {
	var price any
	if u.Price != nil {
		price = *u.Price
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO product_units (id, product_id, name, conversion_factor, price, barcode, default_sale, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.ProductID, u.Name, u.ConversionFactor, price, nullIfEmpty(u.Barcode), u.DefaultSale, u.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateBarcode
		}
		return err
	}
	return nil
}

func (t *queries) ListComboItems(ctx context.Context, comboID string) ([]domain.ComboItem, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT combo_id, child_id, quantity, child_unit_id
		FROM combo_items
		WHERE combo_id = $1
		ORDER BY child_id
	`, comboID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ComboItem, 0, 4)
	for rows.Next() {
		var (
			item   domain.ComboItem
			unitID sql.NullString
		)
		if err := rows.Scan(&item.ComboID, &item.ChildID, &item.Quantity, &unitID); err != nil {
			return nil, err
		}
		item.ChildUnitID = unitID.String
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *queries) ReplaceComboItems(ctx context.Context, comboID string, items []domain.ComboItem) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM combo_items WHERE combo_id = $1`, comboID); err != nil {
		return err
	}
	for _, item := range items {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO combo_items (combo_id, child_id, quantity, child_unit_id)
			VALUES ($1,$2,$3,$4)
		`, comboID, item.ChildID, item.Quantity, nullIfEmpty(item.ChildUnitID)); err != nil {
			if isUniqueViolation(err) {
				return domain.Invalid("combo child %s listed twice", item.ChildID)
			}
			return err
		}
	}
	return nil
}

func (t *queries) AppendKardex(ctx context.Context, entry domain.KardexEntry) (*domain.KardexEntry, error) {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO kardex (product_id, type, quantity, balance, description, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, entry.ProductID, string(entry.Type), entry.Quantity, entry.Balance, entry.Description, nullIfEmpty(entry.Reference), entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *queries) ListKardex(ctx context.Context, productID string, limit int) ([]domain.KardexEntry, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, product_id, type, quantity, balance, description, reference, created_at
		FROM kardex
		WHERE product_id = $1
		ORDER BY id DESC
		LIMIT NULLIF($2, 0)
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.KardexEntry, 0, 32)
	for rows.Next() {
		var (
			entry     domain.KardexEntry
			reference sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.Type, &entry.Quantity, &entry.Balance, &entry.Description, &reference, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Reference = reference.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

const customerColumns = `id, name, credit_limit, payment_term_days, blocked, created_at`

func scanCustomer(row scanner) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.CreditLimit, &c.PaymentTermDays, &c.Blocked, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (t *queries) CreateCustomer(ctx context.Context, c domain.Customer) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO customers (id, name, credit_limit, payment_term_days, blocked, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, c.ID, c.Name, c.CreditLimit, c.PaymentTermDays, c.Blocked, c.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return domain.Invalid("customer %s already exists", c.ID)
	}
	return err
}

func (t *queries) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return scanCustomer(t.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (t *queries) LockCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return scanCustomer(t.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id))
}

func (t *queries) SetCustomerBlocked(ctx context.Context, id string, blocked bool) error {
	return t.execOne(ctx, domain.ErrCustomerNotFound, `UPDATE customers SET blocked = $2 WHERE id = $1`, id, blocked)
}

func (t *queries) CustomerCredit(ctx context.Context, customerID string, now time.Time) (decimal.Decimal, int, error) {
	var (
		unpaid  decimal.Decimal
		overdue int
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pending_balance), 0), COUNT(*) FILTER (WHERE due_date < $2)
		FROM sales
		WHERE customer_id = $1 AND is_credit AND NOT paid
	`, customerID, now).Scan(&unpaid, &overdue)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return unpaid, overdue, nil
}

func (t *queries) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (t *queries) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT NULLIF($3, 0)
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 32)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
