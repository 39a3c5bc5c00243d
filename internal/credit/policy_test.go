package credit

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirledger/backend/internal/domain"
)

func TestEvaluateOrder(t *testing.T) {
	limit := decimal.NewFromInt(500)

	tests := []struct {
		name  string
		snap  Snapshot
		total decimal.Decimal
		want  error
	}{
		{
			name:  "blocked wins even when everything else is fine",
			snap:  Snapshot{Blocked: true, CreditLimit: limit},
			total: decimal.NewFromInt(10),
			want:  domain.ErrCustomerBlocked,
		},
		{
			name:  "blocked wins over overdue and limit",
			snap:  Snapshot{Blocked: true, CreditLimit: limit, UnpaidBalance: decimal.NewFromInt(490), OverdueCount: 2},
			total: decimal.NewFromInt(100),
			want:  domain.ErrCustomerBlocked,
		},
		{
			name:  "overdue rejects a sale that fits the limit",
			snap:  Snapshot{CreditLimit: limit, UnpaidBalance: decimal.NewFromInt(50), OverdueCount: 1},
			total: decimal.NewFromInt(10),
			want:  domain.ErrOverdueInvoices,
		},
		{
			name:  "limit",
			snap:  Snapshot{CreditLimit: limit, UnpaidBalance: decimal.NewFromInt(450)},
			total: decimal.NewFromInt(60),
			want:  domain.ErrCreditLimitExceeded,
		},
		{
			name:  "exactly at the limit passes",
			snap:  Snapshot{CreditLimit: limit, UnpaidBalance: decimal.NewFromInt(450)},
			total: decimal.NewFromInt(50),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Evaluate(tc.snap, tc.total)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEvaluateCarriesContext(t *testing.T) {
	err := Evaluate(Snapshot{CreditLimit: decimal.NewFromInt(100), UnpaidBalance: decimal.NewFromInt(70)}, decimal.NewFromInt(40))

	var limitErr *domain.CreditLimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.True(t, limitErr.CurrentDebt.Equal(decimal.NewFromInt(70)))
	assert.True(t, limitErr.Limit.Equal(decimal.NewFromInt(100)))
	assert.True(t, limitErr.Available.Equal(decimal.NewFromInt(30)))

	err = Evaluate(Snapshot{CreditLimit: decimal.NewFromInt(100), OverdueCount: 3}, decimal.NewFromInt(1))
	var overdue *domain.OverdueInvoicesError
	require.True(t, errors.As(err, &overdue))
	assert.Equal(t, 3, overdue.Count)
}

func TestAvailableNeverNegative(t *testing.T) {
	assert.True(t, Available(Snapshot{CreditLimit: decimal.NewFromInt(10), UnpaidBalance: decimal.NewFromInt(25)}).IsZero())
}

func TestDueDate(t *testing.T) {
	at := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), DueDate(at, 30))
	assert.Equal(t, at, DueDate(at, -5))
}
