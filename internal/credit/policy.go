// Package credit decides whether a credit sale may proceed.
package credit

import (
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

type Snapshot struct {
	Blocked       bool
	CreditLimit   decimal.Decimal
	UnpaidBalance decimal.Decimal
	OverdueCount  int
}

// Evaluate runs the checks in a fixed order: blocked, overdue, limit.
// The first failing check decides the error.
func Evaluate(s Snapshot, total decimal.Decimal) error {
	if s.Blocked {
		return domain.ErrCustomerBlocked
	}
	if s.OverdueCount > 0 {
		return &domain.OverdueInvoicesError{Count: s.OverdueCount}
	}
	if s.UnpaidBalance.Add(total).GreaterThan(s.CreditLimit) {
		return &domain.CreditLimitExceededError{
			CurrentDebt: s.UnpaidBalance,
			Limit:       s.CreditLimit,
			Available:   Available(s),
			Requested:   total,
		}
	}
	return nil
}

// Available never goes below zero.
func Available(s Snapshot) decimal.Decimal {
	available := s.CreditLimit.Sub(s.UnpaidBalance)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// DueDate is the sale date plus the customer's payment term.
func DueDate(saleAt time.Time, termDays int) time.Time {
	if termDays < 0 {
		termDays = 0
	}
	return saleAt.AddDate(0, 0, termDays)
}

func Summary(customer domain.Customer, s Snapshot) domain.CreditSummary {
	return domain.CreditSummary{
		CustomerID:    customer.ID,
		CreditLimit:   s.CreditLimit,
		UnpaidBalance: s.UnpaidBalance,
		Available:     Available(s),
		OverdueCount:  s.OverdueCount,
		Blocked:       s.Blocked,
	}
}
