package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
)

// InMemoryInvoiceCache es el fallback cuando no hay Redis configurado
// (desarrollo local y tests). Serializa a JSON igual que el backend Redis
// para que ambos tengan la misma semántica de copia.
type InMemoryInvoiceCache struct {
	mu    sync.RWMutex
	items map[string]inMemoryEntry
}

type inMemoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewInMemoryInvoiceCache() *InMemoryInvoiceCache {
	return &InMemoryInvoiceCache{items: make(map[string]inMemoryEntry)}
}

func (c *InMemoryInvoiceCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *InMemoryInvoiceCache) Set(_ context.Context, key string, val interface{}, ttlSecs int) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.items[key] = inMemoryEntry{data: data, expiresAt: time.Now().Add(time.Duration(ttlSecs) * time.Second)}
	c.mu.Unlock()
	return nil
}

func (c *InMemoryInvoiceCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Verificación en tiempo de compilación.
var _ domain.InvoiceCache = (*InMemoryInvoiceCache)(nil)
