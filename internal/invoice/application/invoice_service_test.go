package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	"github.com/davicafu/invoicelab/tests/mocks"
)

type serviceFixture struct {
	service   *InvoiceService
	repo      *mocks.InMemoryInvoiceRepo
	outbox    *mocks.InMemoryOutboxRepo
	tx        *mocks.InMemoryTxManager
	directory *mocks.FakeDirectory
}

func newFixture() *serviceFixture {
	repo := mocks.NewInMemoryInvoiceRepo()
	outbox := mocks.NewInMemoryOutboxRepo()
	tx := mocks.NewInMemoryTxManager(repo, outbox)
	dir := mocks.NewFakeDirectory(domain.CustomerSnapshot{
		ID: "cust-1", Name: "ACME S.L.", Identification: "B12345678",
	})

	return &serviceFixture{
		service:   NewInvoiceService(repo, outbox, tx, dir, nil, zap.NewNop()),
		repo:      repo,
		outbox:    outbox,
		tx:        tx,
		directory: dir,
	}
}

func validCreateInput() CreateInvoiceInput {
	issue := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return CreateInvoiceInput{
		CustomerID: "cust-1",
		IssueDate:  issue,
		DueDate:    issue.AddDate(0, 1, 0),
		Items: []InvoiceItemInput{{
			ProductCode: "SKU-1",
			Description: "Widget",
			Quantity:    decimal.NewFromInt(10),
			UnitPrice:   decimal.NewFromInt(100),
			TaxRate:     decimal.RequireFromString("0.19"),
		}},
	}
}

func TestCreateInvoice(t *testing.T) {
	f := newFixture()

	inv, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	numberPrefix := fmt.Sprintf("INV-%04d-", time.Now().UTC().Year())
	assert.Equal(t, numberPrefix+"000001", inv.InvoiceNumber())
	assert.Equal(t, domain.StatusDraft, inv.Status())
	assert.True(t, inv.TotalAmount().Equal(decimal.RequireFromString("1190")))

	// Exactamente un registro outbox, en la misma confirmación.
	recs := f.outbox.All()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.InvoiceCreated, recs[0].EventType)
	assert.Equal(t, inv.ID().String(), recs[0].AggregateID)
	assert.True(t, recs[0].IsPending())
	assert.Equal(t, 1, f.tx.Commits)
}

func TestCreateInvoice_SequentialNumbers(t *testing.T) {
	f := newFixture()

	first, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)
	second, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	numberPrefix := fmt.Sprintf("INV-%04d-", time.Now().UTC().Year())
	assert.Equal(t, numberPrefix+"000001", first.InvoiceNumber())
	assert.Equal(t, numberPrefix+"000002", second.InvoiceNumber())
}

func TestCreateInvoice_CustomerNotFound(t *testing.T) {
	f := newFixture()
	in := validCreateInput()
	in.CustomerID = "ghost"

	_, err := f.service.CreateInvoice(context.Background(), in)
	assert.True(t, errors.Is(err, domain.ErrInvalidCustomer))

	// Nada confirmado: ni factura ni outbox.
	assert.Equal(t, 0, f.repo.Count())
	assert.Empty(t, f.outbox.All())
	assert.Equal(t, 0, f.tx.Commits)
}

func TestCreateInvoice_DirectoryUnavailable(t *testing.T) {
	f := newFixture()
	f.directory.Err = domain.ErrServiceUnavailable

	_, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	assert.True(t, errors.Is(err, domain.ErrServiceUnavailable))
	assert.Equal(t, 0, f.repo.Count())
}

func TestCreateInvoice_RollbackDiscardsBoth(t *testing.T) {
	f := newFixture()
	f.outbox.AppendErr = errors.New("disk full")

	_, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.Error(t, err)

	// La factura se insertó dentro de la transacción, pero el fallo del
	// outbox revierte ambas escrituras.
	assert.Equal(t, 0, f.repo.Count())
	assert.Empty(t, f.outbox.All())
	assert.GreaterOrEqual(t, f.tx.Rollbacks, 1)
}

func TestCreateInvoice_InvalidInput(t *testing.T) {
	f := newFixture()
	in := validCreateInput()
	in.Items = nil

	_, err := f.service.CreateInvoice(context.Background(), in)
	assert.True(t, errors.Is(err, domain.ErrInvalidInvoice), "sin líneas no se puede crear")
	assert.Empty(t, f.outbox.All())
}

func TestGetInvoice(t *testing.T) {
	f := newFixture()
	created, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	got, err := f.service.GetInvoice(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, created.InvoiceNumber(), got.InvoiceNumber())

	_, err = f.service.GetInvoice(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, domain.ErrInvoiceNotFound))
}

func TestGetInvoiceByNumber(t *testing.T) {
	f := newFixture()
	created, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	got, err := f.service.GetInvoiceByNumber(context.Background(), created.InvoiceNumber())
	require.NoError(t, err)
	assert.Equal(t, created.ID(), got.ID())
}

func TestListInvoices(t *testing.T) {
	f := newFixture()
	for i := 0; i < 3; i++ {
		_, err := f.service.CreateInvoice(context.Background(), validCreateInput())
		require.NoError(t, err)
	}

	// El borrado lógico saca la factura de los listados.
	victim, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)
	require.NoError(t, f.service.DeleteInvoice(context.Background(), victim.ID()))

	page, err := f.service.ListInvoices(context.Background(), ListInvoicesInput{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 2)

	page2, err := f.service.ListInvoices(context.Background(), ListInvoicesInput{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 1)
}

func TestListInvoices_DateRange(t *testing.T) {
	f := newFixture()
	in := validCreateInput()
	_, err := f.service.CreateInvoice(context.Background(), in)
	require.NoError(t, err)

	from := in.IssueDate.AddDate(0, 0, 1)
	page, err := f.service.ListInvoices(context.Background(), ListInvoicesInput{StartDate: &from, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount, "fuera del rango pedido")
}

func TestUpdateInvoice(t *testing.T) {
	f := newFixture()
	created, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	updated, err := f.service.UpdateInvoice(context.Background(), created.ID(), UpdateInvoiceInput{
		IssueDate: created.IssueDate(),
		DueDate:   created.DueDate(),
		Notes:     "rev 2",
		Items: []InvoiceItemInput{{
			ProductCode: "SKU-2",
			Description: "Gadget",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(50),
			TaxRate:     decimal.Zero,
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "rev 2", updated.Notes())
	assert.True(t, updated.TotalAmount().Equal(decimal.NewFromInt(50)), "las líneas se reemplazan por completo")

	recs := f.outbox.All()
	require.Len(t, recs, 2)
	assert.Equal(t, domain.InvoiceUpdated, recs[1].EventType)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture()
	created, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	issued, err := f.service.IssueInvoice(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, issued.Status())

	paid, err := f.service.PayInvoice(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status())

	// created + issued + paid: un evento por mutación.
	recs := f.outbox.All()
	require.Len(t, recs, 3)
	assert.Equal(t, domain.InvoiceIssued, recs[1].EventType)
	assert.Equal(t, domain.InvoicePaid, recs[2].EventType)
}

func TestCancelInvoice(t *testing.T) {
	f := newFixture()
	created, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	cancelled, err := f.service.CancelInvoice(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status())

	// La transición inválida no escribe evento.
	_, err = f.service.PayInvoice(context.Background(), created.ID())
	assert.True(t, errors.Is(err, domain.ErrInvalidInvoice))
	assert.Len(t, f.outbox.All(), 2)
}

func TestDeleteInvoice(t *testing.T) {
	f := newFixture()
	created, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteInvoice(context.Background(), created.ID()))

	got, err := f.service.GetInvoice(context.Background(), created.ID())
	require.NoError(t, err)
	assert.False(t, got.IsActive(), "borrado lógico: la factura sigue siendo legible")

	recs := f.outbox.All()
	require.Len(t, recs, 2)
	assert.Equal(t, domain.InvoiceDeleted, recs[1].EventType)
}

func TestOutboxRecordsCarryAggregateType(t *testing.T) {
	f := newFixture()
	_, err := f.service.CreateInvoice(context.Background(), validCreateInput())
	require.NoError(t, err)

	for _, rec := range f.outbox.All() {
		assert.Equal(t, domain.AggregateType, rec.AggregateType)
		assert.Equal(t, sharedDomain.DeliveryPending, rec.Status)
	}
}
