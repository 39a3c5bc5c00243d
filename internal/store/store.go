package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

// Repository hands out units of work. WithTx commits only when fn returns nil
// and rolls back on every other exit, panics included. View runs fn without
// write intent; fn must not mutate through the Tx it receives.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of row operations available inside one unit of work. Lock*
// methods take an exclusive row lock held until the unit of work ends.
type Tx interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	LockProduct(ctx context.Context, id string) (*domain.Product, error)
	FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProductStock(ctx context.Context, id string, stock decimal.Decimal) error
	UpdateProductCost(ctx context.Context, id string, cost decimal.Decimal) error

	GetProductUnit(ctx context.Context, id string) (*domain.ProductUnit, error)
	ListProductUnits(ctx context.Context, productID string) ([]domain.ProductUnit, error)
	FindUnitByBarcode(ctx context.Context, barcode string) (*domain.ProductUnit, error)
	CreateProductUnit(ctx context.Context, unit domain.ProductUnit) error

	ListComboItems(ctx context.Context, comboID string) ([]domain.ComboItem, error)
	ReplaceComboItems(ctx context.Context, comboID string, items []domain.ComboItem) error

	AppendKardex(ctx context.Context, entry domain.KardexEntry) (*domain.KardexEntry, error)
	ListKardex(ctx context.Context, productID string, limit int) ([]domain.KardexEntry, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) error
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	LockCustomer(ctx context.Context, id string) (*domain.Customer, error)
	SetCustomerBlocked(ctx context.Context, id string, blocked bool) error
	CustomerCredit(ctx context.Context, customerID string, now time.Time) (unpaid decimal.Decimal, overdue int, err error)

	CreateSale(ctx context.Context, sale domain.Sale) error
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	LockSale(ctx context.Context, id string) (*domain.Sale, error)
	AddSalePayment(ctx context.Context, payment domain.SalePayment) error
	UpdateSaleBalance(ctx context.Context, id string, pending decimal.Decimal, status domain.SaleStatus) error
	CreateSaleReturn(ctx context.Context, ret domain.SaleReturn) error
	ReturnedQuantities(ctx context.Context, saleID string) (map[string]decimal.Decimal, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	LockPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus, limit int) ([]domain.PurchaseOrder, error)
	UpdatePurchaseOrderStatus(ctx context.Context, id string, status domain.PurchaseOrderStatus, at time.Time) error

	// CreateCashSession returns domain.ErrSessionAlreadyOpen when another
	// session is OPEN; the check is enforced by the store itself.
	CreateCashSession(ctx context.Context, session domain.CashSession) error
	GetOpenCashSession(ctx context.Context) (*domain.CashSession, error)
	GetCashSession(ctx context.Context, id string) (*domain.CashSession, error)
	LockCashSession(ctx context.Context, id string) (*domain.CashSession, error)
	CloseCashSession(ctx context.Context, session domain.CashSession) error
	ListClosedCashSessions(ctx context.Context, limit int) ([]domain.CashSession, error)
	CreateCashMovement(ctx context.Context, movement domain.CashMovement) error
	ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error)
	// SumCashPayments totals cash-method sale payments per currency with
	// from <= created_at <= to.
	SumCashPayments(ctx context.Context, from time.Time, to time.Time) (map[string]decimal.Decimal, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
