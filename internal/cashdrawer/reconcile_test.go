package cashdrawer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirledger/backend/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReconcileSampleSession(t *testing.T) {
	results := Reconcile(
		map[string]decimal.Decimal{"USD": d("100")},
		map[string]decimal.Decimal{"USD": d("250")},
		[]domain.CashMovement{{Currency: "USD", Type: domain.CashExpense, Amount: d("30")}},
		map[string]decimal.Decimal{"USD": d("310")},
	)

	require.Len(t, results, 1)
	usd := results[0]
	assert.True(t, usd.Expected.Equal(d("320")), "expected %s", usd.Expected)
	assert.True(t, usd.Difference.Equal(d("-10")), "difference %s", usd.Difference)
	assert.True(t, usd.Expected.Sub(usd.Reported).Equal(usd.Difference.Neg()))
}

func TestReconcileMultiCurrencyAndMovementTypes(t *testing.T) {
	results := Reconcile(
		map[string]decimal.Decimal{"USD": d("50"), "ves": d("1000")},
		map[string]decimal.Decimal{"VES": d("250.50")},
		[]domain.CashMovement{
			{Currency: "USD", Type: domain.CashIn, Amount: d("20")},
			{Currency: "USD", Type: domain.CashDeposit, Amount: d("5")},
			{Currency: "USD", Type: domain.CashOut, Amount: d("15")},
			{Currency: "EUR", Type: domain.CashIn, Amount: d("10")},
		},
		map[string]decimal.Decimal{"USD": d("60"), "VES": d("1250.50")},
	)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"EUR", "USD", "VES"}, []string{results[0].Currency, results[1].Currency, results[2].Currency})

	eur, usd, ves := results[0], results[1], results[2]
	assert.True(t, eur.Expected.Equal(d("10")))
	assert.True(t, eur.Difference.Equal(d("-10")), "unreported currency counts as zero")
	assert.True(t, usd.Expected.Equal(d("60")))
	assert.True(t, usd.Difference.IsZero())
	assert.True(t, ves.Expected.Equal(d("1250.5")))
	assert.True(t, ves.Difference.IsZero())
}

func TestApplyLegacyTotals(t *testing.T) {
	results := []Result{
		{Currency: "USD", Reported: d("310"), Expected: d("320"), Difference: d("-10")},
		{Currency: "VES", Reported: d("900"), Expected: d("880"), Difference: d("20")},
		{Currency: "EUR", Reported: d("1"), Expected: d("1"), Difference: d("0")},
	}
	session := &domain.CashSession{ID: "s1"}

	ApplyLegacyTotals(session, results, "usd", "VES")

	assert.True(t, session.ExpectedUSD.Equal(d("320")))
	assert.True(t, session.DifferenceUSD.Equal(d("-10")))
	assert.True(t, session.ReportedLocal.Equal(d("900")))
	assert.True(t, session.DifferenceLocal.Equal(d("20")))

	rows := SessionCurrencies(session.ID, results)
	require.Len(t, rows, 3)
	assert.Equal(t, "s1", rows[0].SessionID)
}
