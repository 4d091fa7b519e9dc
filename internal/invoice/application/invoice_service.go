package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	sharedQuery "github.com/davicafu/invoicelab/internal/shared/platform/query"
	sharedUtils "github.com/davicafu/invoicelab/internal/shared/utils"
)

// Intentos de creación ante colisión del número de factura. La numeración
// lee el último número del año sin serializar la escritura, así que dos
// creaciones concurrentes pueden proponer el mismo número; el índice único
// detecta la colisión y aquí se reintenta con el siguiente.
const maxNumberRetries = 3

// ---------------- Inputs / Outputs ----------------

type InvoiceItemInput struct {
	ProductCode string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
}

type CreateInvoiceInput struct {
	CustomerID string
	IssueDate  time.Time
	DueDate    time.Time
	Notes      string
	Items      []InvoiceItemInput
}

type UpdateInvoiceInput struct {
	IssueDate time.Time
	DueDate   time.Time
	Notes     string
	Items     []InvoiceItemInput
}

type ListInvoicesInput struct {
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// PagedResult es la página de listado con el total para paginar.
type PagedResult struct {
	Items      []domain.InvoiceSnapshot `json:"items"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalCount int                      `json:"total_count"`
	TotalPages int                      `json:"total_pages"`
}

// ---------------- Servicio ----------------

// InvoiceService define los casos de uso de facturación. Cada mutación
// escribe el agregado y exactamente un registro outbox dentro de la misma
// transacción; si algo falla antes del commit se descartan ambos.
type InvoiceService struct {
	repo      domain.InvoiceRepository
	outbox    sharedDomain.OutboxRepository
	tx        sharedDomain.TransactionManager
	directory domain.CustomerDirectory
	cache     domain.InvoiceCache
	log       *zap.Logger
}

func NewInvoiceService(
	repo domain.InvoiceRepository,
	outbox sharedDomain.OutboxRepository,
	tx sharedDomain.TransactionManager,
	directory domain.CustomerDirectory,
	cache domain.InvoiceCache,
	log *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		repo:      repo,
		outbox:    outbox,
		tx:        tx,
		directory: directory,
		cache:     cache,
		log:       log,
	}
}

func buildItems(inputs []InvoiceItemInput) ([]*domain.InvoiceItem, error) {
	items := make([]*domain.InvoiceItem, 0, len(inputs))
	for _, in := range inputs {
		it, err := domain.NewInvoiceItem(in.ProductCode, in.Description, in.Quantity, in.UnitPrice, in.TaxRate)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// CreateInvoice resuelve el cliente en el directorio, construye el agregado
// y lo confirma junto con su evento invoice.created.
func (s *InvoiceService) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*domain.Invoice, error) {
	customer, err := s.directory.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, fmt.Errorf("%w: customer %s not found in directory", domain.ErrInvalidCustomer, in.CustomerID)
	}

	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		number, err := s.repo.NextInvoiceNumber(ctx)
		if err != nil {
			return nil, err
		}

		inv, err := domain.NewInvoice(number, *customer, in.IssueDate, in.DueDate, in.Notes)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if err := inv.AddItem(it); err != nil {
				return nil, err
			}
		}
		if err := inv.Validate(); err != nil {
			return nil, err
		}

		rec, err := sharedDomain.NewOutboxRecord(inv.ID().String(), domain.AggregateType, domain.InvoiceCreated, domain.NewCreatedPayload(inv))
		if err != nil {
			return nil, err
		}

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Create(ctx, inv); err != nil {
				return err
			}
			return s.outbox.Append(ctx, rec)
		})
		if errors.Is(err, domain.ErrDuplicateInvoiceNumber) {
			s.log.Warn("⚠️ Colisión de número de factura, reintentando",
				zap.String("invoice_number", number.String()),
				zap.Int("attempt", attempt+1),
			)
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		s.cacheSet(inv)
		return inv, nil
	}
	return nil, lastErr
}

// GetInvoice obtiene una factura (primero intenta desde cache).
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	if s.cache != nil {
		var snap domain.InvoiceSnapshot
		if ok, _ := s.cache.Get(ctx, domain.CacheKeyByID(id), &snap); ok {
			return domain.RehydrateInvoice(snap), nil
		}
	}

	var inv *domain.Invoice
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var err error
		inv, err = s.repo.GetByID(ctx, id)
		// No reintentamos un not-found: es una respuesta, no un fallo.
		if errors.Is(err, domain.ErrInvoiceNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}

	s.cacheSet(inv)
	return inv, nil
}

// GetInvoiceByNumber busca por número de factura.
func (s *InvoiceService) GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	return s.repo.GetByNumber(ctx, number)
}

// ListInvoices devuelve las facturas activas paginadas, filtradas
// opcionalmente por rango de fecha de emisión.
func (s *InvoiceService) ListInvoices(ctx context.Context, in ListInvoicesInput) (PagedResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	pageSize := in.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	criteria := domain.And(
		domain.ActiveCriteria{Active: true},
		domain.IssueDateRangeCriteria{From: in.StartDate, To: in.EndDate},
	)
	pagination := sharedQuery.OffsetPagination{Limit: pageSize, Offset: (page - 1) * pageSize}
	sort := sharedQuery.Sort{Field: "created_at", Desc: true}

	invoices, total, err := s.repo.ListByCriteria(ctx, criteria, pagination, sort)
	if err != nil {
		return PagedResult{}, err
	}

	items := make([]domain.InvoiceSnapshot, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, inv.Snapshot())
	}

	totalPages := (total + pageSize - 1) / pageSize
	return PagedResult{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

// UpdateInvoice reemplaza fechas, notas y líneas de una factura en Draft y
// confirma el cambio junto con su evento invoice.updated.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, id uuid.UUID, in UpdateInvoiceInput) (*domain.Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := inv.Update(in.IssueDate, in.DueDate, in.Notes); err != nil {
		return nil, err
	}
	if err := inv.ClearItems(); err != nil {
		return nil, err
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := inv.AddItem(it); err != nil {
			return nil, err
		}
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if err := s.commitWithEvent(ctx, inv, domain.InvoiceUpdated, domain.NewUpdatedPayload(inv)); err != nil {
		return nil, err
	}
	return inv, nil
}

// DeleteInvoice hace borrado lógico y emite invoice.deleted.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	inv.SoftDelete()

	if err := s.commitWithEvent(ctx, inv, domain.InvoiceDeleted, domain.NewDeletedPayload(inv)); err != nil {
		return err
	}
	s.cacheDelete(inv.ID())
	return nil
}

// IssueInvoice transiciona Draft → Issued y emite invoice.issued.
func (s *InvoiceService) IssueInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return s.transition(ctx, id, domain.InvoiceIssued, (*domain.Invoice).MarkAsIssued)
}

// PayInvoice transiciona Issued → Paid y emite invoice.paid.
func (s *InvoiceService) PayInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return s.transition(ctx, id, domain.InvoicePaid, (*domain.Invoice).MarkAsPaid)
}

// CancelInvoice transiciona Draft|Issued → Cancelled y emite invoice.cancelled.
func (s *InvoiceService) CancelInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return s.transition(ctx, id, domain.InvoiceCancelled, (*domain.Invoice).Cancel)
}

func (s *InvoiceService) transition(ctx context.Context, id uuid.UUID, eventType string, mutate func(*domain.Invoice) error) (*domain.Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(inv); err != nil {
		return nil, err
	}
	if err := s.commitWithEvent(ctx, inv, eventType, domain.NewUpdatedPayload(inv)); err != nil {
		return nil, err
	}
	return inv, nil
}

// commitWithEvent persiste la mutación y su registro outbox atómicamente.
func (s *InvoiceService) commitWithEvent(ctx context.Context, inv *domain.Invoice, eventType string, payload interface{}) error {
	rec, err := sharedDomain.NewOutboxRecord(inv.ID().String(), domain.AggregateType, eventType, payload)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, inv); err != nil {
			return err
		}
		return s.outbox.Append(ctx, rec)
	})
	if err != nil {
		return err
	}

	s.cacheSet(inv)
	return nil
}

func (s *InvoiceService) cacheSet(inv *domain.Invoice) {
	if s.cache == nil {
		return
	}
	snap := inv.Snapshot()
	go func() {
		ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := s.cache.Set(ctxCache, domain.CacheKeyByID(snap.ID), snap, 60); err != nil {
			s.log.Warn("⚠️ Cache update failed", zap.String("invoice_id", snap.ID.String()), zap.Error(err))
		}
	}()
}

func (s *InvoiceService) cacheDelete(id uuid.UUID) {
	if s.cache == nil {
		return
	}
	go func() {
		ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = s.cache.Delete(ctxCache, domain.CacheKeyByID(id))
	}()
}
