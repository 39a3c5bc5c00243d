package cache

import (
	"context"
	"time"

	"kasirledger/backend/internal/domain"
)

// CatalogCache memoizes barcode resolutions. A miss is (nil, false, nil).
type CatalogCache interface {
	Get(ctx context.Context, code string) (*domain.BarcodeMatch, bool, error)
	Set(ctx context.Context, code string, value *domain.BarcodeMatch, ttl time.Duration) error
	Delete(ctx context.Context, codes ...string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) (*domain.BarcodeMatch, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ *domain.BarcodeMatch, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
