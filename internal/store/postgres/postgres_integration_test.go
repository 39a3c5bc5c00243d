package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/store"
)

func openTestStore(t *testing.T, lockTimeout time.Duration) *Store {
	t.Helper()
	databaseURL := os.Getenv("KASIRLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASIRLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, lockTimeout)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func seedProduct(t *testing.T, s *Store, stock int64) domain.Product {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	p := domain.Product{
		ID:        fmt.Sprintf("prd-it-%d", stamp),
		SKU:       fmt.Sprintf("SKU-IT-%d", stamp),
		Name:      fmt.Sprintf("Integration %d", stamp),
		BaseUnit:  "unit",
		Stock:     decimal.NewFromInt(stock),
		CostPrice: decimal.RequireFromString("1.5000"),
		SalePrice: decimal.RequireFromString("2.00"),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateProduct(ctx, p)
	}))
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kardex WHERE product_id = $1`, p.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, p.ID)
	})
	return p
}

func TestWithTxRollsBackStockAndKardex(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	p := seedProduct(t, s, 10)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockProduct(ctx, p.ID)
		require.NoError(t, err)
		next := locked.Stock.Sub(decimal.NewFromInt(4))
		require.NoError(t, tx.UpdateProductStock(ctx, p.ID, next))
		_, err = tx.AppendKardex(ctx, domain.KardexEntry{ProductID: p.ID, Type: domain.MovementSale, Quantity: decimal.NewFromInt(-4), Balance: next, CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.Stock.Equal(decimal.NewFromInt(10)), "stock %s", got.Stock)
		entries, err := tx.ListKardex(ctx, p.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	}))
}

func TestDuplicateSKUIsDuplicateProduct(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	p := seedProduct(t, s, 0)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		dup := p
		dup.ID = p.ID + "-dup"
		dup.Name = p.Name + " dup"
		return tx.CreateProduct(ctx, dup)
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateProduct)
}

func TestLockTimeoutIsTransient(t *testing.T) {
	s := openTestStore(t, 200*time.Millisecond)
	ctx := context.Background()
	p := seedProduct(t, s, 5)

	locked := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- s.WithTx(ctx, func(tx store.Tx) error {
			if _, err := tx.LockProduct(ctx, p.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockProduct(ctx, p.ID)
		return err
	})
	close(release)
	require.NoError(t, <-holderDone)

	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.True(t, domain.IsRetryable(err))
}

func TestSaleKeepsComponentsAndChange(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	child := seedProduct(t, s, 10)
	now := time.Now().UTC()
	saleID := fmt.Sprintf("sale-it-%d", now.UnixNano())

	sale := domain.Sale{
		ID:           saleID,
		CreatedAt:    now,
		Total:        decimal.RequireFromString("30.00"),
		Currency:     "USD",
		ExchangeRate: decimal.NewFromInt(1),
		Paid:         true,
		Status:       domain.SaleStatusPaid,
		Details: []domain.SaleDetail{{
			ID:        saleID + "-d1",
			LineNo:    1,
			ProductID: child.ID,
			Quantity:  decimal.NewFromInt(1),
			UnitLabel: "unit",
			UnitPrice: decimal.RequireFromString("30.00"),
			Subtotal:  decimal.RequireFromString("30.00"),
			Components: []domain.SaleDetailComponent{
				{ProductID: child.ID, Quantity: decimal.RequireFromString("2.500")},
			},
		}},
		Payments: []domain.SalePayment{{
			ID:           saleID + "-p1",
			Amount:       decimal.RequireFromString("30.00"),
			Change:       decimal.RequireFromString("20.00"),
			Currency:     "USD",
			Method:       domain.PaymentCash,
			ExchangeRate: decimal.NewFromInt(1),
			CreatedAt:    now,
		}},
	}
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateSale(ctx, sale)
	}))
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_detail_components WHERE sale_detail_id = $1`, saleID+"-d1")
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_details WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_payments WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	})

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetSale(ctx, saleID)
		require.NoError(t, err)
		require.Len(t, got.Details, 1)
		require.Len(t, got.Details[0].Components, 1)
		assert.Equal(t, child.ID, got.Details[0].Components[0].ProductID)
		assert.True(t, got.Details[0].Components[0].Quantity.Equal(decimal.RequireFromString("2.5")))
		require.Len(t, got.Payments, 1)
		assert.True(t, got.Payments[0].Change.Equal(decimal.NewFromInt(20)))
		assert.True(t, got.Payments[0].Tendered().Equal(decimal.NewFromInt(50)))
		return nil
	}))
}
