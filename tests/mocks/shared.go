package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	sharedBus "github.com/davicafu/invoicelab/internal/shared/infra/platform/bus"
)

// stateStore es lo que la unidad de trabajo en memoria necesita de cada
// repo para poder simular el rollback.
type stateStore interface {
	snapshotState() interface{}
	restoreState(interface{})
}

// InMemoryTxManager simula la atomicidad de la unidad de trabajo: antes de
// ejecutar fn fotografía el estado de los stores y, si fn falla, lo restaura.
// Así los tests de aplicación pueden verificar que un fallo a mitad de caso
// de uso no deja escrita ni la factura ni su registro outbox.
type InMemoryTxManager struct {
	mu        sync.Mutex
	stores    []stateStore
	Commits   int
	Rollbacks int
}

func NewInMemoryTxManager(stores ...stateStore) *InMemoryTxManager {
	return &InMemoryTxManager{stores: stores}
}

func (m *InMemoryTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshots := make([]interface{}, len(m.stores))
	for i, s := range m.stores {
		snapshots[i] = s.snapshotState()
	}

	if err := fn(ctx); err != nil {
		for i, s := range m.stores {
			s.restoreState(snapshots[i])
		}
		m.Rollbacks++
		return err
	}
	m.Commits++
	return nil
}

var _ sharedDomain.TransactionManager = (*InMemoryTxManager)(nil)

// FakeDirectory resuelve clientes desde un mapa.
type FakeDirectory struct {
	Customers map[string]domain.CustomerSnapshot
	Err       error // si se fija, GetCustomer falla con este error
}

func NewFakeDirectory(customers ...domain.CustomerSnapshot) *FakeDirectory {
	m := make(map[string]domain.CustomerSnapshot, len(customers))
	for _, c := range customers {
		m[c.ID] = c
	}
	return &FakeDirectory{Customers: m}
}

func (d *FakeDirectory) GetCustomer(_ context.Context, customerID string) (*domain.CustomerSnapshot, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	c, ok := d.Customers[customerID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

var _ domain.CustomerDirectory = (*FakeDirectory)(nil)

// MockPublisher es un publisher basado en testify/mock para asertar sobre
// las publicaciones del relayer.
type MockPublisher struct {
	mock.Mock
}

func (p *MockPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	args := p.Called(ctx, topic, key, payload)
	return args.Error(0)
}

var _ sharedBus.EventPublisher = (*MockPublisher)(nil)
