package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
)

// InMemoryOutboxRepo implementa sharedDomain.OutboxRepository sobre un slice.
// Conserva el orden de inserción (FIFO) y la política de marcado del
// primer-estado-terminal-gana.
type InMemoryOutboxRepo struct {
	mu        sync.Mutex
	records   []sharedDomain.OutboxRecord
	AppendErr error // si se fija, Append falla con este error
	FetchErr  error // si se fija, FetchPending falla con este error
}

func NewInMemoryOutboxRepo() *InMemoryOutboxRepo {
	return &InMemoryOutboxRepo{}
}

func (r *InMemoryOutboxRepo) Append(_ context.Context, rec sharedDomain.OutboxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.AppendErr != nil {
		return r.AppendErr
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *InMemoryOutboxRepo) FetchPending(_ context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FetchErr != nil {
		return nil, r.FetchErr
	}

	var out []sharedDomain.OutboxRecord
	for _, rec := range r.records {
		if rec.Status == sharedDomain.DeliveryPending {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *InMemoryOutboxRepo) MarkDelivered(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].ID == id && r.records[i].Status == sharedDomain.DeliveryPending {
			now := time.Now().UTC()
			r.records[i].Status = sharedDomain.DeliveryDelivered
			r.records[i].DeliveredAt = &now
			r.records[i].ErrorMessage = nil
		}
	}
	return nil
}

func (r *InMemoryOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].ID == id && r.records[i].Status == sharedDomain.DeliveryPending {
			r.records[i].Status = sharedDomain.DeliveryFailed
			r.records[i].ErrorMessage = &errMsg
		}
	}
	return nil
}

// All devuelve una copia de todos los registros, en orden de inserción.
func (r *InMemoryOutboxRepo) All() []sharedDomain.OutboxRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sharedDomain.OutboxRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *InMemoryOutboxRepo) snapshotState() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]sharedDomain.OutboxRecord, len(r.records))
	copy(records, r.records)
	return records
}

func (r *InMemoryOutboxRepo) restoreState(state interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = state.([]sharedDomain.OutboxRecord)
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*InMemoryOutboxRepo)(nil)
