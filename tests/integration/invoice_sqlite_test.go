// Tests de integración sobre SQLite real (fichero temporal): verifican la
// atomicidad factura+outbox, el orden FIFO del outbox, la política de marcado
// y los checks del índice único y de versión que los mocks solo simulan.
package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	invoiceSqlite "github.com/davicafu/invoicelab/internal/invoice/infra/outbound/db/sqlite"
	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	sharedSqlite "github.com/davicafu/invoicelab/internal/shared/infra/db/sqlite"
	"github.com/davicafu/invoicelab/internal/shared/platform/query"
)

type sqliteFixture struct {
	db     *sql.DB
	repo   *invoiceSqlite.InvoiceRepoSQLite
	outbox *sharedSqlite.OutboxRepoSQLite
	tx     *sharedSqlite.TxManager
}

func setupSQLite(t *testing.T) *sqliteFixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "invoicelab_test.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, invoiceSqlite.InitSQLite(context.Background(), db))

	return &sqliteFixture{
		db:     db,
		repo:   invoiceSqlite.NewInvoiceRepoSQLite(db),
		outbox: sharedSqlite.NewOutboxRepoSQLite(db),
		tx:     sharedSqlite.NewTxManager(db),
	}
}

func buildInvoice(t *testing.T, number string) *domain.Invoice {
	t.Helper()
	n, err := domain.NewInvoiceNumber(number)
	require.NoError(t, err)

	issue := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	inv, err := domain.NewInvoice(n, domain.CustomerSnapshot{
		ID: "cust-1", Name: "ACME S.L.", Identification: "B12345678",
	}, issue, issue.AddDate(0, 1, 0), "")
	require.NoError(t, err)

	item, err := domain.NewInvoiceItem("SKU-1", "Widget",
		decimal.NewFromInt(2), decimal.RequireFromString("10.50"), decimal.RequireFromString("0.21"))
	require.NoError(t, err)
	require.NoError(t, inv.AddItem(item))
	return inv
}

func TestSQLite_CreateAndGetRoundTrip(t *testing.T) {
	f := setupSQLite(t)
	ctx := context.Background()

	inv := buildInvoice(t, "INV-2026-000001")
	require.NoError(t, f.repo.Create(ctx, inv))

	got, err := f.repo.GetByID(ctx, inv.ID())
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber(), got.InvoiceNumber())
	assert.True(t, inv.TotalAmount().Equal(got.TotalAmount()), "totales: %s vs %s", inv.TotalAmount(), got.TotalAmount())
	assert.Len(t, got.Items(), 1)

	byNumber, err := f.repo.GetByNumber(ctx, "INV-2026-000001")
	require.NoError(t, err)
	assert.Equal(t, inv.ID(), byNumber.ID())

	_, err = f.repo.GetByNumber(ctx, "INV-2026-999999")
	assert.True(t, errors.Is(err, domain.ErrInvoiceNotFound))
}

func TestSQLite_DuplicateNumber(t *testing.T) {
	f := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Create(ctx, buildInvoice(t, "INV-2026-000001")))
	err := f.repo.Create(ctx, buildInvoice(t, "INV-2026-000001"))
	assert.True(t, errors.Is(err, domain.ErrDuplicateInvoiceNumber))
}

func TestSQLite_AtomicCommit(t *testing.T) {
	f := setupSQLite(t)
	ctx := context.Background()

	inv := buildInvoice(t, "INV-2026-000001")
	rec, err := sharedDomain.NewOutboxRecord(inv.ID().String(), "Invoice", "invoice.created", map[string]string{"n": inv.InvoiceNumber()})
	require.NoError(t, err)

	err = f.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := f.repo.Create(ctx, inv); err != nil {
			return err
		}
		return f.outbox.Append(ctx, rec)
	})
	require.NoError(t, err)

	_, err = f.repo.GetByID(ctx, inv.ID())
	require.NoError(t, err)

	pending, err := f.outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)
}

func TestSQLite_RollbackDiscardsBoth(t *testing.T) {
	f := setupSQLite(t)
	ctx := context.Background()

	inv := buildInvoice(t, "INV-2026-000001")
	boom := errors.New("boom")

	err := f.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := f.repo.Create(ctx, inv); err != nil {
			return err
		}
		rec, err := sharedDomain.NewOutboxRecord(inv.ID().String(), "Invoice", "invoice.created", nil)
		if err != nil {
			return err
		}
		if err := f.outbox.Append(ctx, rec); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	_, err = f.repo.GetByID(ctx, inv.ID())
	assert.True(t, errors.Is(err, domain.ErrInvoiceNotFound), "la factura no debe quedar escrita")

	pending, err := f.outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "el registro outbox tampoco")
}

func TestSQLite_OptimisticConcurrency(t *testing.T) {
	f := setupSQLite(t)
	ctx := context.Background()

	inv := buildInvoice(t, "INV-2026-000001")
	require.NoError(t, f.repo.Create(ctx, inv))

	// Dos lecturas del mismo agregado.
	first, err := f.repo.GetByID(ctx, inv.ID())
	require.NoError(t, err)
	second, err := f.repo.GetByID(ctx, inv.ID())
	require.NoError(t, err)

	first.SoftDelete()
	require.NoError(t, f.repo.Update(ctx, first))

	second.SoftDelete()
	err = f.repo.Update(ctx, second)
	assert.True(t, errors.Is(err, domain.ErrConcurrentUpdate), "la segunda escritura ve la versión obsoleta")

	err = f.repo.Update(ctx, buildInvoice(t, "INV-2026-000099"))
	assert.True(t, errors.Is(err, domain.ErrInvoiceNotFound))
}

func TestSQLite_OutboxFIFOAndMarkPolicy(t *testing.T) {
	f := setupSQLite(t)
	ctx := context.Background()

	var recs []sharedDomain.OutboxRecord
	for i := 0; i < 3; i++ {
		rec, err := sharedDomain.NewOutboxRecord("agg", "Invoice", "invoice.created", i)
		require.NoError(t, err)
		// created_at creciente explícito: uuid no garantiza orden.
		rec.CreatedAt = time.Date(2026, 9, 1, 0, 0, i, 0, time.UTC)
		require.NoError(t, f.outbox.Append(ctx, rec))
		recs = append(recs, rec)
	}

	pending, err := f.outbox.FetchPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2, "respeta el límite del lote")
	assert.Equal(t, recs[0].ID, pending[0].ID, "FIFO por created_at")
	assert.Equal(t, recs[1].ID, pending[1].ID)

	// Primer estado terminal gana: marcar failed sobre un delivered es no-op.
	require.NoError(t, f.outbox.MarkDelivered(ctx, recs[0].ID))
	require.NoError(t, f.outbox.MarkFailed(ctx, recs[0].ID, "tarde"))

	pending, err = f.outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2, "el entregado ya no aparece")

	require.NoError(t, f.outbox.MarkFailed(ctx, recs[1].ID, "broker down"))
	pending, err = f.outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, recs[2].ID, pending[0].ID)
}

func TestSQLite_ListByCriteriaAndNextNumber(t *testing.T) {
	f := setupSQLite(t)
	ctx := context.Background()

	// NextInvoiceNumber opera sobre el año en curso.
	prefix := fmt.Sprintf("INV-%04d-", time.Now().UTC().Year())
	a := buildInvoice(t, prefix+"000001")
	require.NoError(t, f.repo.Create(ctx, a))
	b := buildInvoice(t, prefix+"000007")
	require.NoError(t, f.repo.Create(ctx, b))

	b2, err := f.repo.GetByID(ctx, b.ID())
	require.NoError(t, err)
	b2.SoftDelete()
	require.NoError(t, f.repo.Update(ctx, b2))

	invoices, total, err := f.repo.ListByCriteria(ctx,
		domain.ActiveCriteria{Active: true},
		query.OffsetPagination{Limit: 10, Offset: 0},
		query.Sort{Field: "created_at", Desc: true},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, invoices, 1)
	assert.Equal(t, a.ID(), invoices[0].ID())

	// El siguiente número continúa tras el máximo del año, activo o no.
	next, err := f.repo.NextInvoiceNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, prefix+"000008", next.String())
}
