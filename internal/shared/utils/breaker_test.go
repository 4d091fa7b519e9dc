package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_AbreTrasFallosConsecutivos(t *testing.T) {
	fakeNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker(3, 30*time.Second)
	b.now = func() time.Time { return fakeNow }

	boom := errors.New("boom")
	calls := 0
	fail := func() error { calls++; return boom }

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(fail), boom)
	}
	assert.Equal(t, 3, calls)

	// Abierto: falla rápido sin invocar fn.
	assert.ErrorIs(t, b.Execute(fail), ErrCircuitOpen)
	assert.Equal(t, 3, calls)
}

func TestCircuitBreaker_HalfOpenSeCierraConExito(t *testing.T) {
	fakeNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker(2, 30*time.Second)
	b.now = func() time.Time { return fakeNow }

	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return boom })
	assert.ErrorIs(t, b.Execute(func() error { return nil }), ErrCircuitOpen)

	// Pasado el cooldown se permite la llamada de prueba.
	fakeNow = fakeNow.Add(31 * time.Second)
	assert.NoError(t, b.Execute(func() error { return nil }))

	// Cerrado de nuevo: los fallos vuelven a contarse desde cero.
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.NoError(t, b.Execute(func() error { return nil }))
}

func TestCircuitBreaker_ExitoReseteaContador(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute)

	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom })
	assert.NoError(t, b.Execute(func() error { return nil }))

	// Un fallo aislado tras un éxito no llega al umbral: el breaker sigue cerrado.
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.NoError(t, b.Execute(func() error { return nil }))
}
