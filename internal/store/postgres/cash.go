package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"kasirledger/backend/internal/domain"
)

func (t *queries) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier, status, created_at)
		VALUES ($1,$2,$3,$4)
	`, po.ID, po.Supplier, string(po.Status), po.CreatedAt); err != nil {
		return err
	}
	for _, d := range po.Details {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO purchase_order_details (id, order_id, product_id, quantity, unit_cost)
			VALUES ($1,$2,$3,$4,$5)
		`, d.ID, po.ID, d.ProductID, d.Quantity, d.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func (t *queries) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return t.loadPurchaseOrder(ctx, id, false)
}

func (t *queries) LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return t.loadPurchaseOrder(ctx, id, true)
}

func scanPurchaseOrder(row scanner) (*domain.PurchaseOrder, error) {
	var (
		po         domain.PurchaseOrder
		receivedAt sql.NullTime
	)
	if err := row.Scan(&po.ID, &po.Supplier, &po.Status, &po.CreatedAt, &receivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPurchaseOrderNotFound
		}
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	po.ReceivedAt = timePtr(receivedAt)
	return &po, nil
}

func (t *queries) loadPurchaseOrder(ctx context.Context, id string, lock bool) (*domain.PurchaseOrder, error) {
	query := `SELECT id, supplier, status, created_at, received_at FROM purchase_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	po, err := scanPurchaseOrder(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	details, err := t.purchaseOrderDetails(ctx, []string{po.ID})
	if err != nil {
		return nil, err
	}
	po.Details = details[po.ID]
	return po, nil
}

func (t *queries) purchaseOrderDetails(ctx context.Context, orderIDs []string) (map[string][]domain.PurchaseOrderDetail, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_cost
		FROM purchase_order_details
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.PurchaseOrderDetail, len(orderIDs))
	for rows.Next() {
		var d domain.PurchaseOrderDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity, &d.UnitCost); err != nil {
			return nil, err
		}
		out[d.OrderID] = append(out[d.OrderID], d)
	}
	return out, rows.Err()
}

func (t *queries) ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, supplier, status, created_at, received_at
		FROM purchase_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	details, err := t.purchaseOrderDetails(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Details = details[orders[i].ID]
	}
	return orders, nil
}

func (t *queries) UpdatePurchaseOrderStatus(ctx context.Context, id string, status domain.PurchaseOrderStatus, at time.Time) error {
	var receivedAt *time.Time
	if status == domain.PurchaseOrderReceived {
		receivedAt = &at
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_at = COALESCE($3, received_at)
		WHERE id = $1 AND status = $4
	`, id, string(status), nullTime(receivedAt), string(domain.PurchaseOrderPending))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := t.GetPurchaseOrder(ctx, id); err != nil {
			return err
		}
		return domain.ErrOrderAlreadyProcessed
	}
	return nil
}

const sessionColumns = `id, status, opened_at, closed_at, opened_by,
	reported_usd, expected_usd, difference_usd, reported_local, expected_local, difference_local`

func scanSession(row scanner) (*domain.CashSession, error) {
	var (
		s        domain.CashSession
		closedAt sql.NullTime
		openedBy sql.NullString
	)
	err := row.Scan(&s.ID, &s.Status, &s.OpenedAt, &closedAt, &openedBy,
		&s.ReportedUSD, &s.ExpectedUSD, &s.DifferenceUSD, &s.ReportedLocal, &s.ExpectedLocal, &s.DifferenceLocal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCashSessionNotFound
		}
		return nil, err
	}
	s.OpenedAt = s.OpenedAt.UTC()
	s.ClosedAt = timePtr(closedAt)
	s.OpenedBy = openedBy.String
	return &s, nil
}

func (t *queries) CreateCashSession(ctx context.Context, session domain.CashSession) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, status, opened_at, opened_by)
		VALUES ($1,$2,$3,$4)
	`, session.ID, string(domain.CashSessionOpen), session.OpenedAt, nullIfEmpty(session.OpenedBy))
	if err != nil {
		if isUniqueViolation(err) && violatedConstraint(err) == "cash_sessions_single_open" {
			return domain.ErrSessionAlreadyOpen
		}
		return err
	}
	for _, c := range session.Currencies {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO cash_session_currencies (session_id, currency, initial)
			VALUES ($1,$2,$3)
		`, session.ID, c.Currency, c.Initial); err != nil {
			return err
		}
	}
	return nil
}

func (t *queries) GetOpenCashSession(ctx context.Context) (*domain.CashSession, error) {
	s, err := scanSession(t.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE status = $1`, string(domain.CashSessionOpen)))
	if err != nil {
		if errors.Is(err, domain.ErrCashSessionNotFound) {
			return nil, domain.ErrNoActiveSession
		}
		return nil, err
	}
	return t.withCurrencies(ctx, s)
}

func (t *queries) GetCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	s, err := scanSession(t.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return t.withCurrencies(ctx, s)
}

func (t *queries) LockCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	s, err := scanSession(t.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	return t.withCurrencies(ctx, s)
}

func (t *queries) withCurrencies(ctx context.Context, s *domain.CashSession) (*domain.CashSession, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT session_id, currency, initial, reported, expected, difference
		FROM cash_session_currencies
		WHERE session_id = $1
		ORDER BY currency
	`, s.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.CashSessionCurrency
		if err := rows.Scan(&c.SessionID, &c.Currency, &c.Initial, &c.Reported, &c.Expected, &c.Difference); err != nil {
			return nil, err
		}
		s.Currencies = append(s.Currencies, c)
	}
	return s, rows.Err()
}

func (t *queries) CloseCashSession(ctx context.Context, session domain.CashSession) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = $2, closed_at = $3,
			reported_usd = $4, expected_usd = $5, difference_usd = $6,
			reported_local = $7, expected_local = $8, difference_local = $9
		WHERE id = $1 AND status = $10
	`, session.ID, string(domain.CashSessionClosed), nullTime(session.ClosedAt),
		session.ReportedUSD, session.ExpectedUSD, session.DifferenceUSD,
		session.ReportedLocal, session.ExpectedLocal, session.DifferenceLocal,
		string(domain.CashSessionOpen))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := t.GetCashSession(ctx, session.ID); err != nil {
			return err
		}
		return domain.ErrSessionNotOpen
	}

	for _, c := range session.Currencies {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO cash_session_currencies (session_id, currency, initial, reported, expected, difference)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (session_id, currency)
			DO UPDATE SET reported = EXCLUDED.reported, expected = EXCLUDED.expected, difference = EXCLUDED.difference
		`, session.ID, c.Currency, c.Initial, c.Reported, c.Expected, c.Difference); err != nil {
			return err
		}
	}
	return nil
}

func (t *queries) ListClosedCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE status = $1
		ORDER BY opened_at DESC
		LIMIT NULLIF($2, 0)
	`, string(domain.CashSessionClosed), limit)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.CashSession, 0, 16)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range sessions {
		if _, err := t.withCurrencies(ctx, &sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (t *queries) CreateCashMovement(ctx context.Context, m domain.CashMovement) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO cash_movements (id, session_id, amount, currency, type, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, m.ID, m.SessionID, m.Amount, m.Currency, string(m.Type), m.Description, m.CreatedAt)
	return err
}

func (t *queries) ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, session_id, amount, currency, type, description, created_at
		FROM cash_movements
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 16)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Amount, &m.Currency, &m.Type, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
