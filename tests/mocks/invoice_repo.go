// Package mocks contiene dobles en memoria para los tests de aplicación y
// del relayer. Replican la semántica de los adaptadores reales (índice único
// de numeración, check optimista de versión, primer-estado-terminal-gana)
// sin base de datos.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	sharedQuery "github.com/davicafu/invoicelab/internal/shared/platform/query"
)

// InMemoryInvoiceRepo implementa domain.InvoiceRepository sobre un mapa.
type InMemoryInvoiceRepo struct {
	mu        sync.Mutex
	invoices  map[uuid.UUID]domain.InvoiceSnapshot
	byNumber  map[string]uuid.UUID
	CreateErr error // si se fija, Create falla con este error
	UpdateErr error // si se fija, Update falla con este error
}

func NewInMemoryInvoiceRepo() *InMemoryInvoiceRepo {
	return &InMemoryInvoiceRepo{
		invoices: make(map[uuid.UUID]domain.InvoiceSnapshot),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryInvoiceRepo) Create(_ context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return r.CreateErr
	}

	s := inv.Snapshot()
	if _, exists := r.byNumber[s.InvoiceNumber]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateInvoiceNumber, s.InvoiceNumber)
	}
	r.invoices[s.ID] = s
	r.byNumber[s.InvoiceNumber] = s.ID
	return nil
}

func (r *InMemoryInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.invoices[id]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	return domain.RehydrateInvoice(s), nil
}

func (r *InMemoryInvoiceRepo) GetByNumber(_ context.Context, number string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byNumber[number]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	return domain.RehydrateInvoice(r.invoices[id]), nil
}

func (r *InMemoryInvoiceRepo) Update(_ context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.UpdateErr != nil {
		return r.UpdateErr
	}

	s := inv.Snapshot()
	stored, ok := r.invoices[s.ID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if stored.Version != s.Version {
		return domain.ErrConcurrentUpdate
	}

	s.Version++
	r.invoices[s.ID] = s
	inv.AdvanceVersion()
	return nil
}

func (r *InMemoryInvoiceRepo) ListByCriteria(_ context.Context, criteria domain.Criteria, pagination sharedQuery.OffsetPagination, sortBy sharedQuery.Sort) ([]*domain.Invoice, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []domain.InvoiceSnapshot
	for _, s := range r.invoices {
		if matches(s, criteria.ToConditions()) {
			matched = append(matched, s)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if sortBy.Desc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	start := pagination.Offset
	if start > total {
		start = total
	}
	end := start + pagination.Limit
	if end > total {
		end = total
	}

	out := make([]*domain.Invoice, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, domain.RehydrateInvoice(s))
	}
	return out, total, nil
}

func matches(s domain.InvoiceSnapshot, conds []domain.Criterion) bool {
	for _, c := range conds {
		switch c.Field {
		case "is_active":
			if s.IsActive != c.Value.(bool) {
				return false
			}
		case "customer_id":
			if s.CustomerID != c.Value.(string) {
				return false
			}
		case "status":
			if int(s.Status) != c.Value.(int) {
				return false
			}
		case "issue_date":
			t := c.Value.(time.Time)
			if c.Op == domain.OpGte && s.IssueDate.Before(t) {
				return false
			}
			if c.Op == domain.OpLte && s.IssueDate.After(t) {
				return false
			}
		}
	}
	return true
}

func (r *InMemoryInvoiceRepo) NextInvoiceNumber(_ context.Context) (domain.InvoiceNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	year := time.Now().UTC().Year()
	prefix := fmt.Sprintf("INV-%04d-", year)

	maxSeq := 0
	for number := range r.byNumber {
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(number, prefix)); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	return domain.GenerateInvoiceNumber(year, maxSeq+1)
}

// Count devuelve el número de facturas almacenadas.
func (r *InMemoryInvoiceRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invoices)
}

func (r *InMemoryInvoiceRepo) snapshotState() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoices := make(map[uuid.UUID]domain.InvoiceSnapshot, len(r.invoices))
	for k, v := range r.invoices {
		invoices[k] = v
	}
	byNumber := make(map[string]uuid.UUID, len(r.byNumber))
	for k, v := range r.byNumber {
		byNumber[k] = v
	}
	return &invoiceRepoState{invoices: invoices, byNumber: byNumber}
}

func (r *InMemoryInvoiceRepo) restoreState(state interface{}) {
	s := state.(*invoiceRepoState)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices = s.invoices
	r.byNumber = s.byNumber
}

type invoiceRepoState struct {
	invoices map[uuid.UUID]domain.InvoiceSnapshot
	byNumber map[string]uuid.UUID
}

// Verificación en tiempo de compilación.
var _ domain.InvoiceRepository = (*InMemoryInvoiceRepo)(nil)
