package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrProductNotFound           = fmt.Errorf("product %w", ErrNotFound)
	ErrUnitNotFound              = fmt.Errorf("product unit %w", ErrNotFound)
	ErrCustomerNotFound          = fmt.Errorf("customer %w", ErrNotFound)
	ErrSaleNotFound              = fmt.Errorf("sale %w", ErrNotFound)
	ErrSaleDetailNotFound        = fmt.Errorf("sale detail %w", ErrNotFound)
	ErrPurchaseOrderNotFound     = fmt.Errorf("purchase order %w", ErrNotFound)
	ErrCashSessionNotFound       = fmt.Errorf("cash session %w", ErrNotFound)
	ErrUnitNotOwnedByProduct     = errors.New("unit does not belong to product")
	ErrUnitInactive              = errors.New("unit is inactive")
	ErrComboComponentsMissing    = errors.New("combo has no components")
	ErrNestedCombo               = errors.New("combo cannot contain another combo")
	ErrInvalidRequest            = errors.New("invalid request")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrCustomerBlocked           = errors.New("customer is blocked")
	ErrOverdueInvoices           = errors.New("customer has overdue invoices")
	ErrCreditLimitExceeded       = errors.New("credit limit exceeded")
	ErrPaymentShortfall          = errors.New("payments do not cover sale total")
	ErrReturnExceedsSold         = errors.New("return quantity exceeds sold quantity")
	ErrSessionAlreadyOpen        = errors.New("a cash session is already open")
	ErrSessionNotOpen            = errors.New("cash session is not open")
	ErrNoActiveSession           = errors.New("no active cash session")
	ErrOrderAlreadyProcessed     = errors.New("purchase order already processed")
	ErrCannotCancelReceivedOrder = errors.New("cannot cancel a received purchase order")
	ErrDuplicateProduct          = errors.New("duplicate product")
	ErrDuplicateBarcode          = errors.New("duplicate barcode")
	ErrForbidden                 = errors.New("forbidden")
	ErrTransient                 = errors.New("transient failure")
)

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   decimal.Decimal
	Required    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, required %s", e.label(), e.Available, e.Required)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

func (e *InsufficientStockError) label() string {
	if e.ProductName != "" {
		return e.ProductName
	}
	return e.ProductID
}

type OverdueInvoicesError struct {
	Count int
}

func (e *OverdueInvoicesError) Error() string {
	return fmt.Sprintf("customer has %d overdue invoice(s)", e.Count)
}

func (e *OverdueInvoicesError) Unwrap() error {
	return ErrOverdueInvoices
}

type CreditLimitExceededError struct {
	CurrentDebt decimal.Decimal
	Limit       decimal.Decimal
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded: debt %s, limit %s, available %s, requested %s",
		e.CurrentDebt, e.Limit, e.Available, e.Requested)
}

func (e *CreditLimitExceededError) Unwrap() error {
	return ErrCreditLimitExceeded
}

// TransientError wraps an infrastructure failure the caller may retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transient failure: %v", e.Err)
	}
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindRejected
	KindForbidden
	KindTransient
)

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrUnitNotOwnedByProduct),
		errors.Is(err, ErrUnitInactive),
		errors.Is(err, ErrComboComponentsMissing),
		errors.Is(err, ErrNestedCombo):
		return KindValidation
	case errors.Is(err, ErrSessionAlreadyOpen),
		errors.Is(err, ErrSessionNotOpen),
		errors.Is(err, ErrNoActiveSession),
		errors.Is(err, ErrOrderAlreadyProcessed),
		errors.Is(err, ErrCannotCancelReceivedOrder),
		errors.Is(err, ErrDuplicateProduct),
		errors.Is(err, ErrDuplicateBarcode):
		return KindConflict
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrCustomerBlocked),
		errors.Is(err, ErrOverdueInvoices),
		errors.Is(err, ErrCreditLimitExceeded),
		errors.Is(err, ErrPaymentShortfall),
		errors.Is(err, ErrReturnExceedsSold):
		return KindRejected
	}
	return KindInternal
}

// IsRetryable reports whether the whole operation may be retried as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError reports whether the failure was caused by the request itself.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindValidation, KindConflict, KindRejected, KindForbidden:
		return true
	}
	return false
}

var errorCodes = []struct {
	target error
	code   string
}{
	{ErrTransient, "transient_failure"},
	{ErrProductNotFound, "product_not_found"},
	{ErrUnitNotFound, "unit_not_found"},
	{ErrCustomerNotFound, "customer_not_found"},
	{ErrSaleNotFound, "sale_not_found"},
	{ErrSaleDetailNotFound, "sale_detail_not_found"},
	{ErrPurchaseOrderNotFound, "purchase_order_not_found"},
	{ErrCashSessionNotFound, "cash_session_not_found"},
	{ErrNotFound, "not_found"},
	{ErrUnitNotOwnedByProduct, "unit_not_owned_by_product"},
	{ErrUnitInactive, "unit_inactive"},
	{ErrComboComponentsMissing, "combo_components_missing"},
	{ErrNestedCombo, "nested_combo"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrCustomerBlocked, "customer_blocked"},
	{ErrOverdueInvoices, "overdue_invoices_exist"},
	{ErrCreditLimitExceeded, "credit_limit_exceeded"},
	{ErrPaymentShortfall, "payment_shortfall"},
	{ErrReturnExceedsSold, "return_exceeds_sold"},
	{ErrSessionAlreadyOpen, "session_already_open"},
	{ErrSessionNotOpen, "session_not_open"},
	{ErrNoActiveSession, "no_active_session"},
	{ErrOrderAlreadyProcessed, "order_already_processed"},
	{ErrCannotCancelReceivedOrder, "cannot_cancel_received_order"},
	{ErrDuplicateProduct, "duplicate_product"},
	{ErrDuplicateBarcode, "duplicate_barcode"},
	{ErrForbidden, "forbidden"},
}

// Code returns a stable snake_case identifier for err, or "internal".
func Code(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.target) {
			return ec.code
		}
	}
	return "internal"
}
