package utils

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen se devuelve cuando el breaker está abierto y la llamada se
// rechaza sin intentar la operación.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker protege una dependencia externa: tras `threshold` fallos
// consecutivos se abre durante `cooldown` y las llamadas fallan rápido con
// ErrCircuitOpen. Pasado el cooldown se permite una llamada de prueba
// (half-open); si tiene éxito el breaker se cierra y el contador se resetea.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
	now       func() time.Time // inyectable para tests
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Execute ejecuta fn respetando el estado del breaker.
func (b *CircuitBreaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err)
	return err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return true
	}
	// Abierto: solo dejamos pasar la llamada de prueba tras el cooldown.
	return !b.now().Before(b.openUntil)
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
	}
}
