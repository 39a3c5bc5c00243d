package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

func (t *queries) CreateSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sales (
			id, created_at, total, currency, exchange_rate, customer_id,
			is_credit, paid, status, due_date, pending_balance, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.CreatedAt, sale.Total, sale.Currency, sale.ExchangeRate, nullIfEmpty(sale.CustomerID),
		sale.IsCredit, sale.Paid, string(sale.Status), nullTime(sale.DueDate), sale.PendingBalance, nullIfEmpty(sale.CreatedBy))
	if err != nil {
		return err
	}

	for _, d := range sale.Details {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO sale_details (
				id, sale_id, line_no, product_id, quantity, unit_label,
				unit_price, discount, discount_type, subtotal
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, d.ID, sale.ID, d.LineNo, d.ProductID, d.Quantity, d.UnitLabel, d.UnitPrice, d.Discount, nullIfEmpty(string(d.DiscountType)), d.Subtotal); err != nil {
			return err
		}
		for i, c := range d.Components {
			if _, err := t.q.ExecContext(ctx, `
				INSERT INTO sale_detail_components (sale_detail_id, position, product_id, quantity)
				VALUES ($1,$2,$3,$4)
			`, d.ID, i, c.ProductID, c.Quantity); err != nil {
				return err
			}
		}
	}
	for _, p := range sale.Payments {
		p.SaleID = sale.ID
		if err := t.AddSalePayment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (t *queries) AddSalePayment(ctx context.Context, p domain.SalePayment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sale_payments (id, sale_id, amount, change_amount, currency, method, exchange_rate, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.SaleID, p.Amount, p.Change, p.Currency, string(p.Method), p.ExchangeRate, p.CreatedAt)
	return err
}

func (t *queries) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.loadSale(ctx, id, false)
}

func (t *queries) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.loadSale(ctx, id, true)
}

func (t *queries) loadSale(ctx context.Context, id string, lock bool) (*domain.Sale, error) {
	query := `
		SELECT id, created_at, total, currency, exchange_rate, customer_id,
			is_credit, paid, status, due_date, pending_balance, created_by
		FROM sales
		WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		sale       domain.Sale
		customerID sql.NullString
		createdBy  sql.NullString
		dueDate    sql.NullTime
	)
	err := t.q.QueryRowContext(ctx, query, id).Scan(
		&sale.ID, &sale.CreatedAt, &sale.Total, &sale.Currency, &sale.ExchangeRate, &customerID,
		&sale.IsCredit, &sale.Paid, &sale.Status, &dueDate, &sale.PendingBalance, &createdBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSaleNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.CustomerID = customerID.String
	sale.CreatedBy = createdBy.String
	sale.DueDate = timePtr(dueDate)

	if sale.Details, err = t.saleDetails(ctx, id); err != nil {
		return nil, err
	}
	if sale.Payments, err = t.salePayments(ctx, id); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (t *queries) saleDetails(ctx context.Context, saleID string) ([]domain.SaleDetail, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, sale_id, line_no, product_id, quantity, unit_label, unit_price, discount, discount_type, subtotal
		FROM sale_details
		WHERE sale_id = $1
		ORDER BY line_no
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]domain.SaleDetail, 0, 8)
	for rows.Next() {
		var (
			d            domain.SaleDetail
			discountType sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.SaleID, &d.LineNo, &d.ProductID, &d.Quantity, &d.UnitLabel, &d.UnitPrice, &d.Discount, &discountType, &d.Subtotal); err != nil {
			return nil, err
		}
		d.DiscountType = domain.DiscountType(discountType.String)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	components, err := t.saleDetailComponents(ctx, saleID)
	if err != nil {
		return nil, err
	}
	for i := range details {
		details[i].Components = components[details[i].ID]
	}
	return details, nil
}

func (t *queries) saleDetailComponents(ctx context.Context, saleID string) (map[string][]domain.SaleDetailComponent, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT c.sale_detail_id, c.product_id, c.quantity
		FROM sale_detail_components c
		JOIN sale_details d ON d.id = c.sale_detail_id
		WHERE d.sale_id = $1
		ORDER BY c.sale_detail_id, c.position
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.SaleDetailComponent)
	for rows.Next() {
		var (
			detailID string
			c        domain.SaleDetailComponent
		)
		if err := rows.Scan(&detailID, &c.ProductID, &c.Quantity); err != nil {
			return nil, err
		}
		out[detailID] = append(out[detailID], c)
	}
	return out, rows.Err()
}

func (t *queries) salePayments(ctx context.Context, saleID string) ([]domain.SalePayment, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, sale_id, amount, change_amount, currency, method, exchange_rate, created_at
		FROM sale_payments
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.SalePayment, 0, 2)
	for rows.Next() {
		var p domain.SalePayment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Amount, &p.Change, &p.Currency, &p.Method, &p.ExchangeRate, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (t *queries) UpdateSaleBalance(ctx context.Context, id string, pending decimal.Decimal, status domain.SaleStatus) error {
	return t.execOne(ctx, domain.ErrSaleNotFound, `
		UPDATE sales SET pending_balance = $2, status = $3, paid = $4 WHERE id = $1
	`, id, pending, string(status), status == domain.SaleStatusPaid)
}

func (t *queries) CreateSaleReturn(ctx context.Context, ret domain.SaleReturn) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sale_returns (id, sale_id, sale_detail_id, product_id, quantity, amount, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ret.ID, ret.SaleID, ret.SaleDetailID, ret.ProductID, ret.Quantity, ret.Amount, nullIfEmpty(ret.Reason), ret.CreatedAt)
	return err
}

func (t *queries) ReturnedQuantities(ctx context.Context, saleID string) (map[string]decimal.Decimal, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT sale_detail_id, SUM(quantity)
		FROM sale_returns
		WHERE sale_id = $1
		GROUP BY sale_detail_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			detailID string
			qty      decimal.Decimal
		)
		if err := rows.Scan(&detailID, &qty); err != nil {
			return nil, err
		}
		out[detailID] = qty
	}
	return out, rows.Err()
}

func (t *queries) SumCashPayments(ctx context.Context, from time.Time, to time.Time) (map[string]decimal.Decimal, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT currency, SUM(amount)
		FROM sale_payments
		WHERE method = $1 AND created_at >= $2 AND created_at <= $3
		GROUP BY currency
	`, string(domain.PaymentCash), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			currency string
			total    decimal.Decimal
		)
		if err := rows.Scan(&currency, &total); err != nil {
			return nil, err
		}
		sums[currency] = total
	}
	return sums, rows.Err()
}
