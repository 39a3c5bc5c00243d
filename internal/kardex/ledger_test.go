package kardex

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirledger/backend/internal/domain"
)

type recordingWriter struct {
	entries []domain.KardexEntry
}

func (w *recordingWriter) AppendKardex(_ context.Context, entry domain.KardexEntry) (*domain.KardexEntry, error) {
	entry.ID = int64(len(w.entries) + 1)
	w.entries = append(w.entries, entry)
	return &entry, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAppendRejectsWrongSign(t *testing.T) {
	w := &recordingWriter{}
	ctx := context.Background()

	tests := []struct {
		name  string
		entry domain.KardexEntry
	}{
		{name: "positive sale", entry: domain.KardexEntry{ProductID: "p", Type: domain.MovementSale, Quantity: d("1"), Balance: d("1")}},
		{name: "negative purchase", entry: domain.KardexEntry{ProductID: "p", Type: domain.MovementPurchase, Quantity: d("-1"), Balance: d("1")}},
		{name: "negative return", entry: domain.KardexEntry{ProductID: "p", Type: domain.MovementReturn, Quantity: d("-1"), Balance: d("1")}},
		{name: "zero quantity", entry: domain.KardexEntry{ProductID: "p", Type: domain.MovementAdjustment, Quantity: d("0"), Balance: d("1")}},
		{name: "unknown type", entry: domain.KardexEntry{ProductID: "p", Type: "TRANSFER", Quantity: d("1"), Balance: d("1")}},
		{name: "negative balance", entry: domain.KardexEntry{ProductID: "p", Type: domain.MovementAdjustmentOut, Quantity: d("-3"), Balance: d("-1")}},
		{name: "missing product", entry: domain.KardexEntry{Type: domain.MovementPurchase, Quantity: d("1"), Balance: d("1")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Append(ctx, w, tc.entry)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
	assert.Empty(t, w.entries)
}

func TestAppendAcceptsSignedAdjustment(t *testing.T) {
	w := &recordingWriter{}

	saved, err := Append(context.Background(), w, domain.KardexEntry{ProductID: "p", Type: domain.MovementAdjustment, Quantity: d("-2"), Balance: d("8")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestReplayMatchesFinalBalance(t *testing.T) {
	w := &recordingWriter{}
	ctx := context.Background()
	stock := d("5")
	moves := []struct {
		typ domain.MovementType
		qty string
	}{
		{domain.MovementPurchase, "10"},
		{domain.MovementSale, "-3.5"},
		{domain.MovementReturn, "1.25"},
		{domain.MovementAdjustmentOut, "-2"},
		{domain.MovementAdjustment, "0.75"},
		{domain.MovementSale, "-11.5"},
	}
	for _, m := range moves {
		stock = stock.Add(d(m.qty))
		_, err := Append(ctx, w, domain.KardexEntry{ProductID: "p", Type: m.typ, Quantity: d(m.qty), Balance: stock})
		require.NoError(t, err)
	}

	assert.True(t, Replay(d("5"), w.entries).Equal(stock), "replayed %s, live %s", Replay(d("5"), w.entries), stock)
	assert.True(t, stock.Equal(d("0")))
}

func TestBalanceAt(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []domain.KardexEntry{
		{ID: 2, Quantity: d("-4"), Balance: d("6"), CreatedAt: t0.Add(2 * time.Hour)},
		{ID: 1, Quantity: d("10"), Balance: d("10"), CreatedAt: t0},
		{ID: 3, Quantity: d("5"), Balance: d("11"), CreatedAt: t0.Add(4 * time.Hour)},
	}

	assert.True(t, BalanceAt(entries, t0.Add(-time.Minute)).IsZero())
	assert.True(t, BalanceAt(entries, t0.Add(time.Hour)).Equal(d("10")))
	assert.True(t, BalanceAt(entries, t0.Add(3*time.Hour)).Equal(d("6")))
	assert.True(t, BalanceAt(entries, t0.Add(5*time.Hour)).Equal(d("11")))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]domain.KardexEntry{
		{Type: domain.MovementPurchase, Quantity: d("20")},
		{Type: domain.MovementSale, Quantity: d("-7")},
		{Type: domain.MovementReturn, Quantity: d("2")},
		{Type: domain.MovementAdjustmentIn, Quantity: d("1")},
		{Type: domain.MovementAdjustmentOut, Quantity: d("-3")},
		{Type: domain.MovementAdjustment, Quantity: d("-1")},
	})

	assert.True(t, s.Purchased.Equal(d("20")))
	assert.True(t, s.Sold.Equal(d("7")))
	assert.True(t, s.Returned.Equal(d("2")))
	assert.True(t, s.AdjustedIn.Equal(d("1")))
	assert.True(t, s.AdjustedOut.Equal(d("4")))
	assert.True(t, s.Net.Equal(d("12")))
}
