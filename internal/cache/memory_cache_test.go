package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirledger/backend/internal/domain"
)

func TestMemoryCatalogCacheExpiry(t *testing.T) {
	c := NewMemoryCatalogCache()
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "750", &domain.BarcodeMatch{Product: domain.Product{ID: "p1"}}, time.Minute))

	got, ok, err := c.Get(ctx, "750")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", got.Product.ID)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "750")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCatalogCacheDelete(t *testing.T) {
	c := NewMemoryCatalogCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", &domain.BarcodeMatch{}, 0))
	require.NoError(t, c.Set(ctx, "b", &domain.BarcodeMatch{}, 0))
	require.NoError(t, c.Delete(ctx, "a", "b", "missing"))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
}

func TestNoopCatalogCacheAlwaysMisses(t *testing.T) {
	var c CatalogCache = NoopCatalogCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "x", &domain.BarcodeMatch{}, time.Minute))
	_, ok, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}
