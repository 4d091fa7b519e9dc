package events

import (
	"context"
	"sync"

	sharedBus "github.com/davicafu/invoicelab/internal/shared/infra/platform/bus"
)

// InMemoryEventBus implementa el canal de eventos con canales de Go, para
// desarrollo local y tests. Ignora el topic: todos los suscriptores reciben
// todos los payloads.
type InMemoryEventBus struct {
	subscribers []chan []byte
	mu          sync.RWMutex
}

// Verifica en tiempo de compilación que cumple la interfaz
var _ sharedBus.EventPublisher = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{subscribers: make([]chan []byte, 0)}
}

// Publish envía el payload a todos los suscriptores sin bloquear: si el
// buffer de un suscriptor está lleno, ese suscriptor pierde el mensaje.
func (b *InMemoryEventBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, subChan := range b.subscribers {
		select {
		case subChan <- payload:
		default:
		}
	}
	return nil
}

// Subscribe suscribe un nuevo oyente a este bus.
func (b *InMemoryEventBus) Subscribe(bufferSize int) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	subChan := make(chan []byte, bufferSize)
	b.subscribers = append(b.subscribers, subChan)
	return subChan
}
