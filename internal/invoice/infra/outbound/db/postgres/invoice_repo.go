package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	sharedPg "github.com/davicafu/invoicelab/internal/shared/infra/db/postgres"
	sharedQuery "github.com/davicafu/invoicelab/internal/shared/platform/query"
)

// InvoiceRepoPostgres implementa domain.InvoiceRepository sobre Postgres.
// Todas las escrituras pasan por sharedPg.Querier, de modo que participan en
// la transacción del caso de uso cuando la hay.
type InvoiceRepoPostgres struct {
	db *sql.DB
}

func NewInvoiceRepoPostgres(db *sql.DB) *InvoiceRepoPostgres {
	return &InvoiceRepoPostgres{db: db}
}

// InitPostgres crea el esquema si no existe.
func InitPostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id UUID PRIMARY KEY,
			invoice_number TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_identification TEXT NOT NULL,
			issue_date TIMESTAMPTZ NOT NULL,
			due_date TIMESTAMPTZ NOT NULL,
			sub_total NUMERIC(18,2) NOT NULL,
			tax_amount NUMERIC(18,2) NOT NULL,
			total_amount NUMERIC(18,2) NOT NULL,
			status SMALLINT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			id UUID PRIMARY KEY,
			invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
			product_code TEXT NOT NULL,
			description TEXT NOT NULL,
			quantity NUMERIC(18,4) NOT NULL,
			unit_price NUMERIC(18,4) NOT NULL,
			tax_rate NUMERIC(6,4) NOT NULL,
			sub_total NUMERIC(18,2) NOT NULL,
			tax_amount NUMERIC(18,2) NOT NULL,
			total NUMERIC(18,2) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id UUID PRIMARY KEY,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL,
			delivered_at TIMESTAMPTZ,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_customer_id ON invoices(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_issue_date ON invoices(issue_date)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice_id ON invoice_items(invoice_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox(status, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init postgres schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserta factura y líneas. Traduce la violación del índice único de
// invoice_number a ErrDuplicateInvoiceNumber para que el caso de uso reintente
// con otro número.
func (r *InvoiceRepoPostgres) Create(ctx context.Context, inv *domain.Invoice) error {
	q := sharedPg.Querier(ctx, r.db)
	s := inv.Snapshot()

	_, err := q.ExecContext(ctx,
		`INSERT INTO invoices (id, invoice_number, customer_id, customer_name, customer_identification,
			issue_date, due_date, sub_total, tax_amount, total_amount, status, notes, is_active,
			created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.InvoiceNumber, s.CustomerID, s.CustomerName, s.CustomerIdentification,
		s.IssueDate, s.DueDate, s.SubTotal, s.TaxAmount, s.TotalAmount, int(s.Status), s.Notes, s.IsActive,
		s.CreatedAt, s.UpdatedAt, s.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateInvoiceNumber, s.InvoiceNumber)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	return r.insertItems(ctx, q, s.ID, s.Items)
}

func (r *InvoiceRepoPostgres) insertItems(ctx context.Context, q sharedPg.Executor, invoiceID uuid.UUID, items []domain.InvoiceItemSnapshot) error {
	for _, it := range items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO invoice_items (id, invoice_id, product_code, description, quantity, unit_price,
				tax_rate, sub_total, tax_amount, total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			it.ID, invoiceID, it.ProductCode, it.Description, it.Quantity, it.UnitPrice,
			it.TaxRate, it.SubTotal, it.TaxAmount, it.Total,
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}
	return nil
}

func (r *InvoiceRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *InvoiceRepoPostgres) GetByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	return r.getOne(ctx, `WHERE invoice_number = $1`, number)
}

func (r *InvoiceRepoPostgres) getOne(ctx context.Context, where string, arg interface{}) (*domain.Invoice, error) {
	q := sharedPg.Querier(ctx, r.db)
	row := q.QueryRowContext(ctx,
		`SELECT id, invoice_number, customer_id, customer_name, customer_identification,
			issue_date, due_date, sub_total, tax_amount, total_amount, status, notes, is_active,
			created_at, updated_at, version
		 FROM invoices `+where, arg,
	)

	s, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	items, err := r.loadItems(ctx, q, s.ID)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return domain.RehydrateInvoice(s), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (domain.InvoiceSnapshot, error) {
	var s domain.InvoiceSnapshot
	var status int
	err := row.Scan(&s.ID, &s.InvoiceNumber, &s.CustomerID, &s.CustomerName, &s.CustomerIdentification,
		&s.IssueDate, &s.DueDate, &s.SubTotal, &s.TaxAmount, &s.TotalAmount, &status, &s.Notes, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		return domain.InvoiceSnapshot{}, err
	}
	s.Status = domain.InvoiceStatus(status)
	return s, nil
}

func (r *InvoiceRepoPostgres) loadItems(ctx context.Context, q sharedPg.Executor, invoiceID uuid.UUID) ([]domain.InvoiceItemSnapshot, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, product_code, description, quantity, unit_price, tax_rate, sub_total, tax_amount, total
		 FROM invoice_items WHERE invoice_id = $1`, invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []domain.InvoiceItemSnapshot
	for rows.Next() {
		var it domain.InvoiceItemSnapshot
		if err := rows.Scan(&it.ID, &it.ProductCode, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.TaxRate, &it.SubTotal, &it.TaxAmount, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Update reemplaza la factura y sus líneas con check optimista de versión.
// Las líneas se borran y reinsertan: simplifica la reconciliación y el
// volumen por factura es pequeño.
func (r *InvoiceRepoPostgres) Update(ctx context.Context, inv *domain.Invoice) error {
	q := sharedPg.Querier(ctx, r.db)
	s := inv.Snapshot()

	res, err := q.ExecContext(ctx,
		`UPDATE invoices SET issue_date = $1, due_date = $2, sub_total = $3, tax_amount = $4,
			total_amount = $5, status = $6, notes = $7, is_active = $8, updated_at = $9, version = version + 1
		 WHERE id = $10 AND version = $11`,
		s.IssueDate, s.DueDate, s.SubTotal, s.TaxAmount,
		s.TotalAmount, int(s.Status), s.Notes, s.IsActive, s.UpdatedAt,
		s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		// Distinguimos no-existe de versión obsoleta.
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM invoices WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return domain.ErrInvoiceNotFound
		}
		return domain.ErrConcurrentUpdate
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, s.ID); err != nil {
		return fmt.Errorf("failed to replace invoice items: %w", err)
	}
	if err := r.insertItems(ctx, q, s.ID, s.Items); err != nil {
		return err
	}

	inv.AdvanceVersion()
	return nil
}

// ListByCriteria traduce los criterios neutrales a SQL con placeholders $n y
// devuelve la página pedida junto con el total.
func (r *InvoiceRepoPostgres) ListByCriteria(ctx context.Context, criteria domain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*domain.Invoice, int, error) {
	q := sharedPg.Querier(ctx, r.db)

	where, args := buildWhere(criteria)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	query := `SELECT id, invoice_number, customer_id, customer_name, customer_identification,
		issue_date, due_date, sub_total, tax_amount, total_amount, status, notes, is_active,
		created_at, updated_at, version
	 FROM invoices` + where + orderBy(sort)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, pagination.Limit, pagination.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var invoices []*domain.Invoice
	for rows.Next() {
		s, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items, err := r.loadItems(ctx, q, s.ID)
		if err != nil {
			return nil, 0, err
		}
		s.Items = items
		invoices = append(invoices, domain.RehydrateInvoice(s))
	}
	return invoices, total, rows.Err()
}

func buildWhere(criteria domain.Criteria) (string, []interface{}) {
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return "", nil
	}
	var parts []string
	var args []interface{}
	for i, c := range conds {
		parts = append(parts, fmt.Sprintf("%s %s $%d", c.Field, c.Op, i+1))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// sortable limita el ORDER BY a columnas conocidas: el campo viene de la API.
var sortable = map[string]bool{
	"created_at":     true,
	"issue_date":     true,
	"due_date":       true,
	"invoice_number": true,
	"total_amount":   true,
}

func orderBy(sort sharedQuery.Sort) string {
	field := sort.Field
	if !sortable[field] {
		field = "created_at"
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", field, dir)
}

// NextInvoiceNumber propone INV-YYYY-NNNNNN leyendo el máximo del año actual.
// La lectura no serializa con la escritura: el índice único sobre
// invoice_number y el reintento del caso de uso absorben la carrera.
func (r *InvoiceRepoPostgres) NextInvoiceNumber(ctx context.Context) (domain.InvoiceNumber, error) {
	q := sharedPg.Querier(ctx, r.db)
	year := time.Now().UTC().Year()
	prefix := fmt.Sprintf("INV-%04d-", year)

	var last sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT MAX(invoice_number) FROM invoices WHERE invoice_number LIKE $1`, prefix+"%",
	).Scan(&last)
	if err != nil {
		return domain.InvoiceNumber{}, fmt.Errorf("db error: %w", err)
	}

	seq := 1
	if last.Valid {
		n, err := strconv.Atoi(strings.TrimPrefix(last.String, prefix))
		if err != nil {
			return domain.InvoiceNumber{}, fmt.Errorf("malformed invoice number %q: %w", last.String, err)
		}
		seq = n + 1
	}
	return domain.GenerateInvoiceNumber(year, seq)
}

// Verificación en tiempo de compilación.
var _ domain.InvoiceRepository = (*InvoiceRepoPostgres)(nil)
