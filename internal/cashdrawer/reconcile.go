// Package cashdrawer computes expected and reported drawer totals per currency.
package cashdrawer

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

type Result struct {
	Currency   string
	Initial    decimal.Decimal
	CashSales  decimal.Decimal
	Inflows    decimal.Decimal
	Outflows   decimal.Decimal
	Expected   decimal.Decimal
	Reported   decimal.Decimal
	Difference decimal.Decimal
}

// Reconcile computes, per currency,
//
//	expected   = initial + cash sales + IN/DEPOSIT - OUT/EXPENSE
//	difference = reported - expected
//
// over the union of currencies that were opened, reported or moved.
// A currency missing from reported counts as zero.
func Reconcile(initial map[string]decimal.Decimal, cashSales map[string]decimal.Decimal, movements []domain.CashMovement, reported map[string]decimal.Decimal) []Result {
	results := map[string]*Result{}
	get := func(currency string) *Result {
		currency = strings.ToUpper(currency)
		r, ok := results[currency]
		if !ok {
			r = &Result{Currency: currency}
			results[currency] = r
		}
		return r
	}

	for currency, amount := range initial {
		r := get(currency)
		r.Initial = r.Initial.Add(amount)
	}
	for currency, amount := range cashSales {
		r := get(currency)
		r.CashSales = r.CashSales.Add(amount)
	}
	for _, m := range movements {
		r := get(m.Currency)
		switch m.Type.Sign() {
		case 1:
			r.Inflows = r.Inflows.Add(m.Amount)
		case -1:
			r.Outflows = r.Outflows.Add(m.Amount)
		}
	}
	for currency, amount := range reported {
		r := get(currency)
		r.Reported = r.Reported.Add(amount)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		r.Expected = r.Initial.Add(r.CashSales).Add(r.Inflows).Sub(r.Outflows).Round(domain.MoneyPlaces)
		r.Difference = r.Reported.Sub(r.Expected).Round(domain.MoneyPlaces)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// ApplyLegacyTotals copies the reference and local currency results into the
// session's aggregate fields.
func ApplyLegacyTotals(session *domain.CashSession, results []Result, referenceCurrency string, localCurrency string) {
	for _, r := range results {
		switch r.Currency {
		case strings.ToUpper(referenceCurrency):
			session.ReportedUSD = r.Reported
			session.ExpectedUSD = r.Expected
			session.DifferenceUSD = r.Difference
		case strings.ToUpper(localCurrency):
			session.ReportedLocal = r.Reported
			session.ExpectedLocal = r.Expected
			session.DifferenceLocal = r.Difference
		}
	}
}

func SessionCurrencies(sessionID string, results []Result) []domain.CashSessionCurrency {
	rows := make([]domain.CashSessionCurrency, 0, len(results))
	for _, r := range results {
		rows = append(rows, domain.CashSessionCurrency{
			SessionID:  sessionID,
			Currency:   r.Currency,
			Initial:    r.Initial,
			Reported:   r.Reported,
			Expected:   r.Expected,
			Difference: r.Difference,
		})
	}
	return rows
}
