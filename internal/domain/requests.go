package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductCreateRequest struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	BaseUnit     string          `json:"base_unit"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	InitialStock decimal.Decimal `json:"initial_stock"`
	IsCombo      bool            `json:"is_combo"`
}

type ProductUnitCreateRequest struct {
	Name             string           `json:"name"`
	ConversionFactor decimal.Decimal  `json:"conversion_factor"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	Barcode          string           `json:"barcode,omitempty"`
	DefaultSale      bool             `json:"default_sale"`
}

type ComboItemInput struct {
	ChildID     string          `json:"child_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ChildUnitID string          `json:"child_unit_id,omitempty"`
}

type ComboItemsRequest struct {
	Items []ComboItemInput `json:"items"`
}

type ProductDetail struct {
	Product    Product       `json:"product"`
	Units      []ProductUnit `json:"units"`
	ComboItems []ComboItem   `json:"combo_items,omitempty"`
}

type BarcodeMatch struct {
	Product Product      `json:"product"`
	Unit    *ProductUnit `json:"unit,omitempty"`
}

type StockAdjustmentRequest struct {
	ProductID string          `json:"product_id"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason"`
}

type StockCountRequest struct {
	ProductID string          `json:"product_id"`
	Counted   decimal.Decimal `json:"counted"`
	Reason    string          `json:"reason"`
}

type StockMovementResponse struct {
	Product Product      `json:"product"`
	Entry   *KardexEntry `json:"entry,omitempty"`
}

type StockAtResponse struct {
	ProductID string          `json:"product_id"`
	At        time.Time       `json:"at"`
	Balance   decimal.Decimal `json:"balance"`
}

type CustomerCreateRequest struct {
	Name            string          `json:"name"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	PaymentTermDays int             `json:"payment_term_days"`
}

type SaleLineRequest struct {
	ProductID        string          `json:"product_id"`
	UnitID           string          `json:"unit_id,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	Discount         decimal.Decimal `json:"discount"`
	DiscountType     DiscountType    `json:"discount_type,omitempty"`
}

type PaymentRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Method       PaymentMethod   `json:"method"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

type SaleRequest struct {
	CustomerID   string            `json:"customer_id,omitempty"`
	IsCredit     bool              `json:"is_credit"`
	Currency     string            `json:"currency"`
	ExchangeRate decimal.Decimal   `json:"exchange_rate"`
	Lines        []SaleLineRequest `json:"lines"`
	Payments     []PaymentRequest  `json:"payments"`
}

type SaleResponse struct {
	SaleID string     `json:"sale_id"`
	Status SaleStatus `json:"status"`
	Sale   Sale       `json:"sale"`
}

type CreditPaymentRequest struct {
	Payment PaymentRequest `json:"payment"`
}

type ReturnLineRequest struct {
	SaleDetailID string          `json:"sale_detail_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type ReturnRequest struct {
	Lines          []ReturnLineRequest `json:"lines"`
	RefundCurrency string              `json:"refund_currency"`
	RefundRate     decimal.Decimal     `json:"refund_rate"`
	Reason         string              `json:"reason"`
}

type ReturnResponse struct {
	SaleID         string          `json:"sale_id"`
	Returns        []SaleReturn    `json:"returns"`
	RefundTotal    decimal.Decimal `json:"refund_total"`
	CreditReduced  decimal.Decimal `json:"credit_reduced"`
	CashMovementID string          `json:"cash_movement_id,omitempty"`
}

type PurchaseOrderLineRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type PurchaseOrderCreateRequest struct {
	Supplier string                     `json:"supplier"`
	Lines    []PurchaseOrderLineRequest `json:"lines"`
}

type CashSessionOpenRequest struct {
	InitialAmounts map[string]decimal.Decimal `json:"initial_amounts"`
}

type CashSessionCloseRequest struct {
	ReportedAmounts map[string]decimal.Decimal `json:"reported_amounts"`
}

type CashSessionCloseResponse struct {
	Session    CashSession           `json:"session"`
	Currencies []CashSessionCurrency `json:"currencies"`
}

type CashMovementRequest struct {
	SessionID   string           `json:"session_id,omitempty"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Type        CashMovementType `json:"type"`
	Description string           `json:"description"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}
