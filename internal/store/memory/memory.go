package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/store"
)

// Store keeps everything in process memory. Writers are serialized by one
// mutex and work on a copy of the state that replaces the live one only on
// commit, so a failed unit of work leaves no trace.
type Store struct {
	mu    sync.RWMutex
	data  *state
	users map[string]domain.UserAccount
}

type state struct {
	products       map[string]domain.Product
	units          map[string]domain.ProductUnit
	combos         map[string][]domain.ComboItem
	kardex         []domain.KardexEntry
	kardexSeq      int64
	customers      map[string]domain.Customer
	sales          map[string]domain.Sale
	returns        []domain.SaleReturn
	purchaseOrders map[string]domain.PurchaseOrder
	sessions       map[string]domain.CashSession
	movements      []domain.CashMovement
	auditLogs      []domain.AuditLog
}

func New() *Store {
	return &Store{
		data: &state{
			products:       make(map[string]domain.Product),
			units:          make(map[string]domain.ProductUnit),
			combos:         make(map[string][]domain.ComboItem),
			customers:      make(map[string]domain.Customer),
			sales:          make(map[string]domain.Sale),
			purchaseOrders: make(map[string]domain.PurchaseOrder),
			sessions:       make(map[string]domain.CashSession),
		},
		users: make(map[string]domain.UserAccount),
	}
}

// clone copies the maps and clips the slices; nested slices inside rows are
// never mutated in place, so sharing them is safe.
func (st *state) clone() *state {
	return &state{
		products:       maps.Clone(st.products),
		units:          maps.Clone(st.units),
		combos:         maps.Clone(st.combos),
		kardex:         slices.Clip(st.kardex),
		kardexSeq:      st.kardexSeq,
		customers:      maps.Clone(st.customers),
		sales:          maps.Clone(st.sales),
		returns:        slices.Clip(st.returns),
		purchaseOrders: maps.Clone(st.purchaseOrders),
		sessions:       maps.Clone(st.sessions),
		movements:      slices.Clip(st.movements),
		auditLogs:      slices.Clip(st.auditLogs),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return &domain.TransientError{Op: "begin", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&txn{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &domain.TransientError{Op: "commit", Err: err}
	}
	s.data = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return &domain.TransientError{Op: "begin", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&txn{st: s.data})
}

func (s *Store) Close() error {
	return nil
}

type txn struct {
	st *state
}

func (t *txn) ListProducts(_ context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(t.st.products))
	for _, p := range t.st.products {
		if p.Active {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (t *txn) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (t *txn) LockProduct(ctx context.Context, id string) (*domain.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *txn) FindProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	for _, p := range t.st.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

func (t *txn) CreateProduct(_ context.Context, product domain.Product) error {
	for _, existing := range t.st.products {
		if existing.ID == product.ID || existing.SKU == product.SKU || strings.EqualFold(existing.Name, product.Name) {
			return domain.ErrDuplicateProduct
		}
	}
	t.st.products[product.ID] = product
	return nil
}

func (t *txn) UpdateProductStock(_ context.Context, id string, stock decimal.Decimal) error {
	p, ok := t.st.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock = stock
	t.st.products[id] = p
	return nil
}

func (t *txn) UpdateProductCost(_ context.Context, id string, cost decimal.Decimal) error {
	p, ok := t.st.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.CostPrice = cost
	t.st.products[id] = p
	return nil
}

func (t *txn) GetProductUnit(_ context.Context, id string) (*domain.ProductUnit, error) {
	u, ok := t.st.units[id]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	return &u, nil
}

func (t *txn) ListProductUnits(_ context.Context, productID string) ([]domain.ProductUnit, error) {
	units := make([]domain.ProductUnit, 0, 4)
	for _, u := range t.st.units {
		if u.ProductID == productID {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].ConversionFactor.LessThan(units[j].ConversionFactor)
	})
	return units, nil
}

func (t *txn) FindUnitByBarcode(_ context.Context, barcode string) (*domain.ProductUnit, error) {
	for _, u := range t.st.units {
		if u.Barcode != "" && u.Barcode == barcode {
			return &u, nil
		}
	}
	return nil, domain.ErrUnitNotFound
}

func (t *txn) CreateProductUnit(_ context.Context, unit domain.ProductUnit) error {
	if _, ok := t.st.products[unit.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	for _, existing := range t.st.units {
		if unit.Barcode != "" && existing.Barcode == unit.Barcode {
			return domain.ErrDuplicateBarcode
		}
	}
	t.st.units[unit.ID] = unit
	return nil
}

func (t *txn) ListComboItems(_ context.Context, comboID string) ([]domain.ComboItem, error) {
	return slices.Clone(t.st.combos[comboID]), nil
}

func (t *txn) ReplaceComboItems(_ context.Context, comboID string, items []domain.ComboItem) error {
	if _, ok := t.st.products[comboID]; !ok {
		return domain.ErrProductNotFound
	}
	t.st.combos[comboID] = slices.Clone(items)
	return nil
}

func (t *txn) AppendKardex(_ context.Context, entry domain.KardexEntry) (*domain.KardexEntry, error) {
	t.st.kardexSeq++
	entry.ID = t.st.kardexSeq
	t.st.kardex = append(t.st.kardex, entry)
	return &entry, nil
}

func (t *txn) ListKardex(_ context.Context, productID string, limit int) ([]domain.KardexEntry, error) {
	entries := make([]domain.KardexEntry, 0, 16)
	for _, entry := range t.st.kardex {
		if entry.ProductID == productID {
			entries = append(entries, entry)
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (t *txn) CreateCustomer(_ context.Context, customer domain.Customer) error {
	if _, exists := t.st.customers[customer.ID]; exists {
		return domain.Invalid("customer %s already exists", customer.ID)
	}
	t.st.customers[customer.ID] = customer
	return nil
}

func (t *txn) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &c, nil
}

func (t *txn) LockCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return t.GetCustomer(ctx, id)
}

func (t *txn) SetCustomerBlocked(_ context.Context, id string, blocked bool) error {
	c, ok := t.st.customers[id]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	c.Blocked = blocked
	t.st.customers[id] = c
	return nil
}

func (t *txn) CustomerCredit(_ context.Context, customerID string, now time.Time) (decimal.Decimal, int, error) {
	unpaid := decimal.Zero
	overdue := 0
	for _, sale := range t.st.sales {
		if sale.CustomerID != customerID || !sale.IsCredit || sale.Paid {
			continue
		}
		unpaid = unpaid.Add(sale.PendingBalance)
		if sale.DueDate != nil && sale.DueDate.Before(now) {
			overdue++
		}
	}
	return unpaid, overdue, nil
}

func (t *txn) CreateSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.st.sales[sale.ID]; exists {
		return domain.Invalid("sale %s already exists", sale.ID)
	}
	sale.Details = slices.Clone(sale.Details)
	sale.Payments = slices.Clone(sale.Payments)
	t.st.sales[sale.ID] = sale
	return nil
}

func (t *txn) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := t.st.sales[id]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	sale.Details = slices.Clone(sale.Details)
	sale.Payments = slices.Clone(sale.Payments)
	return &sale, nil
}

func (t *txn) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return t.GetSale(ctx, id)
}

func (t *txn) AddSalePayment(_ context.Context, payment domain.SalePayment) error {
	sale, ok := t.st.sales[payment.SaleID]
	if !ok {
		return domain.ErrSaleNotFound
	}
	payments := slices.Clone(sale.Payments)
	sale.Payments = append(payments, payment)
	t.st.sales[sale.ID] = sale
	return nil
}

func (t *txn) UpdateSaleBalance(_ context.Context, id string, pending decimal.Decimal, status domain.SaleStatus) error {
	sale, ok := t.st.sales[id]
	if !ok {
		return domain.ErrSaleNotFound
	}
	sale.PendingBalance = pending
	sale.Status = status
	sale.Paid = status == domain.SaleStatusPaid
	t.st.sales[id] = sale
	return nil
}

func (t *txn) CreateSaleReturn(_ context.Context, ret domain.SaleReturn) error {
	if _, ok := t.st.sales[ret.SaleID]; !ok {
		return domain.ErrSaleNotFound
	}
	t.st.returns = append(t.st.returns, ret)
	return nil
}

func (t *txn) ReturnedQuantities(_ context.Context, saleID string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, ret := range t.st.returns {
		if ret.SaleID == saleID {
			out[ret.SaleDetailID] = out[ret.SaleDetailID].Add(ret.Quantity)
		}
	}
	return out, nil
}

func (t *txn) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	if _, exists := t.st.purchaseOrders[po.ID]; exists {
		return domain.Invalid("purchase order %s already exists", po.ID)
	}
	po.Details = slices.Clone(po.Details)
	t.st.purchaseOrders[po.ID] = po
	return nil
}

func (t *txn) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	po, ok := t.st.purchaseOrders[id]
	if !ok {
		return nil, domain.ErrPurchaseOrderNotFound
	}
	po.Details = slices.Clone(po.Details)
	return &po, nil
}

func (t *txn) LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return t.GetPurchaseOrder(ctx, id)
}

func (t *txn) ListPurchaseOrders(_ context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error) {
	out := make([]domain.PurchaseOrder, 0, len(t.st.purchaseOrders))
	for _, po := range t.st.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		po.Details = slices.Clone(po.Details)
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *txn) UpdatePurchaseOrderStatus(_ context.Context, id string, status domain.PurchaseOrderStatus, at time.Time) error {
	po, ok := t.st.purchaseOrders[id]
	if !ok {
		return domain.ErrPurchaseOrderNotFound
	}
	if po.Status != domain.PurchaseOrderPending {
		return domain.ErrOrderAlreadyProcessed
	}
	po.Status = status
	if status == domain.PurchaseOrderReceived {
		receivedAt := at
		po.ReceivedAt = &receivedAt
	}
	t.st.purchaseOrders[id] = po
	return nil
}

func (t *txn) CreateCashSession(_ context.Context, session domain.CashSession) error {
	for _, existing := range t.st.sessions {
		if existing.Status == domain.CashSessionOpen {
			return domain.ErrSessionAlreadyOpen
		}
	}
	session.Currencies = slices.Clone(session.Currencies)
	t.st.sessions[session.ID] = session
	return nil
}

func (t *txn) GetOpenCashSession(_ context.Context) (*domain.CashSession, error) {
	for _, session := range t.st.sessions {
		if session.Status == domain.CashSessionOpen {
			session.Currencies = slices.Clone(session.Currencies)
			return &session, nil
		}
	}
	return nil, domain.ErrNoActiveSession
}

func (t *txn) GetCashSession(_ context.Context, id string) (*domain.CashSession, error) {
	session, ok := t.st.sessions[id]
	if !ok {
		return nil, domain.ErrCashSessionNotFound
	}
	session.Currencies = slices.Clone(session.Currencies)
	return &session, nil
}

func (t *txn) LockCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	return t.GetCashSession(ctx, id)
}

func (t *txn) CloseCashSession(_ context.Context, session domain.CashSession) error {
	existing, ok := t.st.sessions[session.ID]
	if !ok {
		return domain.ErrCashSessionNotFound
	}
	if existing.Status != domain.CashSessionOpen {
		return domain.ErrSessionNotOpen
	}
	session.Status = domain.CashSessionClosed
	session.Currencies = slices.Clone(session.Currencies)
	t.st.sessions[session.ID] = session
	return nil
}

func (t *txn) ListClosedCashSessions(_ context.Context, limit int) ([]domain.CashSession, error) {
	out := make([]domain.CashSession, 0, len(t.st.sessions))
	for _, session := range t.st.sessions {
		if session.Status != domain.CashSessionClosed {
			continue
		}
		session.Currencies = slices.Clone(session.Currencies)
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *txn) CreateCashMovement(_ context.Context, movement domain.CashMovement) error {
	if _, ok := t.st.sessions[movement.SessionID]; !ok {
		return domain.ErrCashSessionNotFound
	}
	t.st.movements = append(t.st.movements, movement)
	return nil
}

func (t *txn) ListCashMovements(_ context.Context, sessionID string) ([]domain.CashMovement, error) {
	out := make([]domain.CashMovement, 0, 8)
	for _, m := range t.st.movements {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *txn) SumCashPayments(_ context.Context, from time.Time, to time.Time) (map[string]decimal.Decimal, error) {
	sums := make(map[string]decimal.Decimal)
	for _, sale := range t.st.sales {
		for _, p := range sale.Payments {
			if !p.Method.IsCash() || p.CreatedAt.Before(from) || p.CreatedAt.After(to) {
				continue
			}
			sums[p.Currency] = sums[p.Currency].Add(p.Amount)
		}
	}
	return sums, nil
}

func (t *txn) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	t.st.auditLogs = append(t.st.auditLogs, entry)
	return nil
}

func (t *txn) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	out := make([]domain.AuditLog, 0, 16)
	for _, entry := range t.st.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return domain.Invalid("username is required")
	}
	if _, exists := s.users[username]; exists {
		return domain.Invalid("username already exists")
	}
	user.Username = username
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return domain.ErrNotFound
	}
	user.Password = password
	s.users[user.Username] = user
	return nil
}
