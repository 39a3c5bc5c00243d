package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	QuantityPlaces int32 = 3
	MoneyPlaces    int32 = 2
	CostPlaces     int32 = 4
)

type MovementType string

const (
	MovementPurchase      MovementType = "PURCHASE"
	MovementSale          MovementType = "SALE"
	MovementReturn        MovementType = "RETURN"
	MovementAdjustment    MovementType = "ADJUSTMENT"
	MovementAdjustmentIn  MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
)

// Direction is +1 for movements that only add stock, -1 for movements that
// only remove it and 0 for ADJUSTMENT, which carries its own sign.
func (m MovementType) Direction() int {
	switch m {
	case MovementPurchase, MovementReturn, MovementAdjustmentIn:
		return 1
	case MovementSale, MovementAdjustmentOut:
		return -1
	case MovementAdjustment:
		return 0
	}
	return 0
}

func (m MovementType) Valid() bool {
	switch m {
	case MovementPurchase, MovementSale, MovementReturn, MovementAdjustment, MovementAdjustmentIn, MovementAdjustmentOut:
		return true
	}
	return false
}

func ParseMovementType(raw string) (MovementType, bool) {
	m := MovementType(raw)
	return m, m.Valid()
}

type CashMovementType string

const (
	CashIn      CashMovementType = "IN"
	CashOut     CashMovementType = "OUT"
	CashDeposit CashMovementType = "DEPOSIT"
	CashExpense CashMovementType = "EXPENSE"
)

// Sign reports how a movement affects the expected drawer amount.
func (c CashMovementType) Sign() int {
	switch c {
	case CashIn, CashDeposit:
		return 1
	case CashOut, CashExpense:
		return -1
	}
	return 0
}

func (c CashMovementType) Valid() bool {
	return c.Sign() != 0
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentMobile   PaymentMethod = "mobile"
)

func (p PaymentMethod) IsCash() bool {
	switch p {
	case PaymentCash:
		return true
	case PaymentCard, PaymentTransfer, PaymentMobile:
		return false
	}
	return false
}

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentMobile:
		return true
	}
	return false
}

type DiscountType string

const (
	DiscountNone    DiscountType = ""
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

type SaleStatus string

const (
	SaleStatusPaid    SaleStatus = "PAID"
	SaleStatusPending SaleStatus = "PENDING"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderPending   PurchaseOrderStatus = "PENDING"
	PurchaseOrderReceived  PurchaseOrderStatus = "RECEIVED"
	PurchaseOrderCancelled PurchaseOrderStatus = "CANCELLED"
)

type CashSessionStatus string

const (
	CashSessionOpen   CashSessionStatus = "OPEN"
	CashSessionClosed CashSessionStatus = "CLOSED"
)

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	BaseUnit  string          `json:"base_unit"`
	Stock     decimal.Decimal `json:"stock"`
	CostPrice decimal.Decimal `json:"cost_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	IsCombo   bool            `json:"is_combo"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

type ProductUnit struct {
	ID               string           `json:"id"`
	ProductID        string           `json:"product_id"`
	Name             string           `json:"name"`
	ConversionFactor decimal.Decimal  `json:"conversion_factor"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	Barcode          string           `json:"barcode,omitempty"`
	DefaultSale      bool             `json:"default_sale"`
	Active           bool             `json:"active"`
}

type ComboItem struct {
	ComboID     string          `json:"combo_id"`
	ChildID     string          `json:"child_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ChildUnitID string          `json:"child_unit_id,omitempty"`
}

type KardexEntry struct {
	ID          int64           `json:"id"`
	ProductID   string          `json:"product_id"`
	Type        MovementType    `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Balance     decimal.Decimal `json:"balance"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Customer struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	PaymentTermDays int             `json:"payment_term_days"`
	Blocked         bool            `json:"blocked"`
	CreatedAt       time.Time       `json:"created_at"`
}

type CreditSummary struct {
	CustomerID    string          `json:"customer_id"`
	CreditLimit   decimal.Decimal `json:"credit_limit"`
	UnpaidBalance decimal.Decimal `json:"unpaid_balance"`
	Available     decimal.Decimal `json:"available"`
	OverdueCount  int             `json:"overdue_count"`
	Blocked       bool            `json:"blocked"`
}

type Sale struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	CustomerID     string          `json:"customer_id,omitempty"`
	IsCredit       bool            `json:"is_credit"`
	Paid           bool            `json:"paid"`
	Status         SaleStatus      `json:"status"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	CreatedBy      string          `json:"created_by,omitempty"`
	Details        []SaleDetail    `json:"details"`
	Payments       []SalePayment   `json:"payments"`
}

type SaleDetail struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	LineNo       int             `json:"line_no"`
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitLabel    string          `json:"unit_label"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountType DiscountType    `json:"discount_type,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`

	// Components is the stock the line consumed, in base units of each
	// product. A combo line lists its children as they were at sale time.
	Components []SaleDetailComponent `json:"components,omitempty"`
}

type SaleDetailComponent struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// SalePayment.Amount is what the sale kept. Change handed back from a cash
// tender is recorded separately, so Amount+Change is what was tendered.
type SalePayment struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	Amount       decimal.Decimal `json:"amount"`
	Change       decimal.Decimal `json:"change"`
	Currency     string          `json:"currency"`
	Method       PaymentMethod   `json:"method"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Tendered is the amount handed over before change.
func (p SalePayment) Tendered() decimal.Decimal {
	return p.Amount.Add(p.Change)
}

// ReferenceAmount converts the tender into the reference currency.
func (p SalePayment) ReferenceAmount() decimal.Decimal {
	if p.ExchangeRate.IsZero() {
		return p.Amount
	}
	return p.Amount.Div(p.ExchangeRate)
}

type SaleReturn struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	SaleDetailID string          `json:"sale_detail_id"`
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type PurchaseOrder struct {
	ID         string                `json:"id"`
	Supplier   string                `json:"supplier"`
	Status     PurchaseOrderStatus   `json:"status"`
	CreatedAt  time.Time             `json:"created_at"`
	ReceivedAt *time.Time            `json:"received_at,omitempty"`
	Details    []PurchaseOrderDetail `json:"details"`
}

type PurchaseOrderDetail struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type CashSession struct {
	ID         string                `json:"id"`
	Status     CashSessionStatus     `json:"status"`
	OpenedAt   time.Time             `json:"opened_at"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
	OpenedBy   string                `json:"opened_by,omitempty"`
	Currencies []CashSessionCurrency `json:"currencies"`

	// Aggregates kept for clients that predate per-currency rows.
	ReportedUSD     decimal.Decimal `json:"reported_usd"`
	ExpectedUSD     decimal.Decimal `json:"expected_usd"`
	DifferenceUSD   decimal.Decimal `json:"difference_usd"`
	ReportedLocal   decimal.Decimal `json:"reported_local"`
	ExpectedLocal   decimal.Decimal `json:"expected_local"`
	DifferenceLocal decimal.Decimal `json:"difference_local"`
}

type CashSessionCurrency struct {
	SessionID  string          `json:"session_id"`
	Currency   string          `json:"currency"`
	Initial    decimal.Decimal `json:"initial"`
	Reported   decimal.Decimal `json:"reported"`
	Expected   decimal.Decimal `json:"expected"`
	Difference decimal.Decimal `json:"difference"`
}

type CashMovement struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Type        CashMovementType `json:"type"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
