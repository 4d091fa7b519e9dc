package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
)

// RedisInvoiceCache implementa domain.InvoiceCache sobre Redis. Los valores
// se guardan como JSON; un fallo de cache nunca debe tumbar el caso de uso,
// eso lo decide el llamante.
type RedisInvoiceCache struct {
	client *redis.Client
}

func NewRedisInvoiceCache(client *redis.Client) *RedisInvoiceCache {
	return &RedisInvoiceCache{client: client}
}

func (c *RedisInvoiceCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache payload corrupto: %w", err)
	}
	return true, nil
}

func (c *RedisInvoiceCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, time.Duration(ttlSecs)*time.Second).Err()
}

func (c *RedisInvoiceCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Verificación en tiempo de compilación.
var _ domain.InvoiceCache = (*RedisInvoiceCache)(nil)
