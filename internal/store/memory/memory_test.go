package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/store"
)

func TestWithTxDiscardsWorkOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.CreateProduct(ctx, domain.Product{ID: "p1", SKU: "S1", Name: "One", Active: true}))
		_, err := tx.AppendKardex(ctx, domain.KardexEntry{ProductID: "p1", Type: domain.MovementAdjustmentIn, Quantity: decimal.NewFromInt(1), Balance: decimal.NewFromInt(1)})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetProduct(ctx, "p1")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		entries, err := tx.ListKardex(ctx, "p1", 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	}))
}

func TestWithTxDiscardsWorkOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(tx store.Tx) error {
			_ = tx.CreateProduct(ctx, domain.Product{ID: "p1", SKU: "S1", Name: "One"})
			panic("mid-transaction")
		})
	})

	// the lock must have been released and nothing committed
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		products, err := tx.ListProducts(ctx)
		require.NoError(t, err)
		assert.Empty(t, products)
		return nil
	}))
}

func TestDuplicateProductAndBarcode(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.CreateProduct(ctx, domain.Product{ID: "p1", SKU: "S1", Name: "Rice"}))
		assert.ErrorIs(t, tx.CreateProduct(ctx, domain.Product{ID: "p2", SKU: "S1", Name: "Beans"}), domain.ErrDuplicateProduct)
		assert.ErrorIs(t, tx.CreateProduct(ctx, domain.Product{ID: "p3", SKU: "S3", Name: "rice"}), domain.ErrDuplicateProduct)

		require.NoError(t, tx.CreateProductUnit(ctx, domain.ProductUnit{ID: "u1", ProductID: "p1", Barcode: "123"}))
		assert.ErrorIs(t, tx.CreateProductUnit(ctx, domain.ProductUnit{ID: "u2", ProductID: "p1", Barcode: "123"}), domain.ErrDuplicateBarcode)
		assert.NoError(t, tx.CreateProductUnit(ctx, domain.ProductUnit{ID: "u3", ProductID: "p1"}))
		return nil
	})
	require.NoError(t, err)
}

func TestOnlyOneOpenCashSession(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateCashSession(ctx, domain.CashSession{ID: "cs1", Status: domain.CashSessionOpen, OpenedAt: now})
	}))
	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateCashSession(ctx, domain.CashSession{ID: "cs2", Status: domain.CashSessionOpen, OpenedAt: now})
	})
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyOpen)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CloseCashSession(ctx, domain.CashSession{ID: "cs1", OpenedAt: now})
	}))
	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CloseCashSession(ctx, domain.CashSession{ID: "cs1", OpenedAt: now})
	})
	assert.ErrorIs(t, err, domain.ErrSessionNotOpen)
}

func TestSumCashPaymentsWindowAndMethod(t *testing.T) {
	s := New()
	ctx := context.Background()
	t0 := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateSale(ctx, domain.Sale{
			ID: "s1",
			Payments: []domain.SalePayment{
				{Amount: decimal.NewFromInt(10), Currency: "USD", Method: domain.PaymentCash, CreatedAt: t0.Add(time.Hour)},
				{Amount: decimal.NewFromInt(7), Currency: "USD", Method: domain.PaymentCard, CreatedAt: t0.Add(time.Hour)},
				{Amount: decimal.NewFromInt(350), Currency: "VES", Method: domain.PaymentCash, CreatedAt: t0.Add(2 * time.Hour)},
				{Amount: decimal.NewFromInt(99), Currency: "USD", Method: domain.PaymentCash, CreatedAt: t0.Add(-time.Minute)},
			},
		})
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		sums, err := tx.SumCashPayments(ctx, t0, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.True(t, sums["USD"].Equal(decimal.NewFromInt(10)))
		assert.True(t, sums["VES"].Equal(decimal.NewFromInt(350)))
		return nil
	}))
}

func TestCustomerCreditCountsOverdue(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 10)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.CreateSale(ctx, domain.Sale{ID: "a", CustomerID: "c1", IsCredit: true, PendingBalance: decimal.NewFromInt(40), DueDate: &past}))
		require.NoError(t, tx.CreateSale(ctx, domain.Sale{ID: "b", CustomerID: "c1", IsCredit: true, PendingBalance: decimal.NewFromInt(25), DueDate: &future}))
		require.NoError(t, tx.CreateSale(ctx, domain.Sale{ID: "c", CustomerID: "c1", IsCredit: true, Paid: true, DueDate: &past}))
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		unpaid, overdue, err := tx.CustomerCredit(ctx, "c1", now)
		require.NoError(t, err)
		assert.True(t, unpaid.Equal(decimal.NewFromInt(65)))
		assert.Equal(t, 1, overdue)
		return nil
	}))
}

func TestSeededCatalog(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-pass")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-pass")
	s := NewSeeded()
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		unit, err := tx.FindUnitByBarcode(ctx, "7591234000012")
		require.NoError(t, err)
		assert.Equal(t, "prd-milk", unit.ProductID)

		items, err := tx.ListComboItems(ctx, "prd-breakfast")
		require.NoError(t, err)
		assert.Len(t, items, 2)
		return nil
	}))
}
