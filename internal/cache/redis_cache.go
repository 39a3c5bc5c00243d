package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasirledger/backend/internal/domain"
)

const barcodeKeyPrefix = "kasirledger:barcode:"

type RedisCatalogCache struct {
	client *redis.Client
}

func NewRedisCatalogCache(client *redis.Client) *RedisCatalogCache {
	return &RedisCatalogCache{client: client}
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func barcodeKey(code string) string {
	return barcodeKeyPrefix + code
}

func (c *RedisCatalogCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCatalogCache) Get(ctx context.Context, code string) (*domain.BarcodeMatch, bool, error) {
	val, err := c.client.Get(ctx, barcodeKey(code)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var match domain.BarcodeMatch
	if err := json.Unmarshal([]byte(val), &match); err != nil {
		return nil, false, err
	}
	return &match, true, nil
}

func (c *RedisCatalogCache) Set(ctx context.Context, code string, value *domain.BarcodeMatch, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, barcodeKey(code), payload, ttl).Err()
}

func (c *RedisCatalogCache) Delete(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, barcodeKey(code))
	}
	return c.client.Del(ctx, keys...).Err()
}
