package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	sharedSqlite "github.com/davicafu/invoicelab/internal/shared/infra/db/sqlite"
	sharedQuery "github.com/davicafu/invoicelab/internal/shared/platform/query"
)

// InvoiceRepoSQLite implementa domain.InvoiceRepository sobre SQLite. Es el
// backend por defecto para desarrollo local y tests de integración; los UUID
// se guardan como TEXT y los importes como TEXT decimal exacto.
type InvoiceRepoSQLite struct {
	db *sql.DB
}

func NewInvoiceRepoSQLite(db *sql.DB) *InvoiceRepoSQLite {
	return &InvoiceRepoSQLite{db: db}
}

// InitSQLite crea el esquema si no existe.
func InitSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			invoice_number TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_identification TEXT NOT NULL,
			issue_date TIMESTAMP NOT NULL,
			due_date TIMESTAMP NOT NULL,
			sub_total TEXT NOT NULL,
			tax_amount TEXT NOT NULL,
			total_amount TEXT NOT NULL,
			status INTEGER NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			version INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			id TEXT PRIMARY KEY,
			invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
			product_code TEXT NOT NULL,
			description TEXT NOT NULL,
			quantity TEXT NOT NULL,
			unit_price TEXT NOT NULL,
			tax_rate TEXT NOT NULL,
			sub_total TEXT NOT NULL,
			tax_amount TEXT NOT NULL,
			total TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL,
			delivered_at TIMESTAMP,
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
			return fmt.Errorf("failed to init sqlite schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite no exporta códigos tipados por el driver database/sql.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserta factura y líneas, mapeando la colisión del índice único de
// numeración a ErrDuplicateInvoiceNumber.
func (r *InvoiceRepoSQLite) Create(ctx context.Context, inv *domain.Invoice) error {
	q := sharedSqlite.Querier(ctx, r.db)
	s := inv.Snapshot()

	_, err := q.ExecContext(ctx,
		`INSERT INTO invoices (id, invoice_number, customer_id, customer_name, customer_identification,
			issue_date, due_date, sub_total, tax_amount, total_amount, status, notes, is_active,
			created_at, updated_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.InvoiceNumber, s.CustomerID, s.CustomerName, s.CustomerIdentification,
		s.IssueDate, s.DueDate, s.SubTotal.String(), s.TaxAmount.String(), s.TotalAmount.String(),
		int(s.Status), s.Notes, s.IsActive, s.CreatedAt, s.UpdatedAt, s.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateInvoiceNumber, s.InvoiceNumber)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	return r.insertItems(ctx, q, s.ID, s.Items)
}

func (r *InvoiceRepoSQLite) insertItems(ctx context.Context, q sharedSqlite.Executor, invoiceID uuid.UUID, items []domain.InvoiceItemSnapshot) error {
	for _, it := range items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO invoice_items (id, invoice_id, product_code, description, quantity, unit_price,
				tax_rate, sub_total, tax_amount, total)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID.String(), invoiceID.String(), it.ProductCode, it.Description,
			it.Quantity.String(), it.UnitPrice.String(), it.TaxRate.String(),
			it.SubTotal.String(), it.TaxAmount.String(), it.Total.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}
	return nil
}

func (r *InvoiceRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return r.getOne(ctx, `WHERE id = ?`, id.String())
}

func (r *InvoiceRepoSQLite) GetByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	return r.getOne(ctx, `WHERE invoice_number = ?`, number)
}

func (r *InvoiceRepoSQLite) getOne(ctx context.Context, where string, arg interface{}) (*domain.Invoice, error) {
	q := sharedSqlite.Querier(ctx, r.db)
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
	var idStr string
	var status int
	err := row.Scan(&idStr, &s.InvoiceNumber, &s.CustomerID, &s.CustomerName, &s.CustomerIdentification,
		&s.IssueDate, &s.DueDate, &s.SubTotal, &s.TaxAmount, &s.TotalAmount, &status, &s.Notes, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		return domain.InvoiceSnapshot{}, err
	}

	parsedID, err := uuid.Parse(idStr)
	if err != nil {
		return domain.InvoiceSnapshot{}, fmt.Errorf("invalid UUID in invoice row: %w", err)
	}
	s.ID = parsedID
	s.Status = domain.InvoiceStatus(status)
	return s, nil
}

func (r *InvoiceRepoSQLite) loadItems(ctx context.Context, q sharedSqlite.Executor, invoiceID uuid.UUID) ([]domain.InvoiceItemSnapshot, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, product_code, description, quantity, unit_price, tax_rate, sub_total, tax_amount, total
		 FROM invoice_items WHERE invoice_id = ?`, invoiceID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []domain.InvoiceItemSnapshot
	for rows.Next() {
		var it domain.InvoiceItemSnapshot
		var idStr string
		if err := rows.Scan(&idStr, &it.ProductCode, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.TaxRate, &it.SubTotal, &it.TaxAmount, &it.Total); err != nil {
			return nil, err
		}
		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in invoice_items row: %w", err)
		}
		it.ID = parsedID
		items = append(items, it)
	}
	return items, rows.Err()
}

// Update reemplaza factura y líneas con check optimista de versión.
func (r *InvoiceRepoSQLite) Update(ctx context.Context, inv *domain.Invoice) error {
	q := sharedSqlite.Querier(ctx, r.db)
	s := inv.Snapshot()

	res, err := q.ExecContext(ctx,
		`UPDATE invoices SET issue_date = ?, due_date = ?, sub_total = ?, tax_amount = ?,
			total_amount = ?, status = ?, notes = ?, is_active = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		s.IssueDate, s.DueDate, s.SubTotal.String(), s.TaxAmount.String(),
		s.TotalAmount.String(), int(s.Status), s.Notes, s.IsActive, s.UpdatedAt,
		s.ID.String(), s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM invoices WHERE id = ?)`, s.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return domain.ErrInvoiceNotFound
		}
		return domain.ErrConcurrentUpdate
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = ?`, s.ID.String()); err != nil {
		return fmt.Errorf("failed to replace invoice items: %w", err)
	}
	if err := r.insertItems(ctx, q, s.ID, s.Items); err != nil {
		return err
	}

	inv.AdvanceVersion()
	return nil
}

// ListByCriteria traduce los criterios neutrales a SQL con placeholders ?.
func (r *InvoiceRepoSQLite) ListByCriteria(ctx context.Context, criteria domain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*domain.Invoice, int, error) {
	q := sharedSqlite.Querier(ctx, r.db)

	where, args := buildWhere(criteria)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	query := `SELECT id, invoice_number, customer_id, customer_name, customer_identification,
		issue_date, due_date, sub_total, tax_amount, total_amount, status, notes, is_active,
		created_at, updated_at, version
	 FROM invoices` + where + orderBy(sort) + ` LIMIT ? OFFSET ?`
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
	for _, c := range conds {
		parts = append(parts, fmt.Sprintf("%s %s ?", c.Field, c.Op))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

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

// NextInvoiceNumber lee el máximo del año en curso; la carrera con otras
// creaciones la cubren el índice único y el reintento del caso de uso.
func (r *InvoiceRepoSQLite) NextInvoiceNumber(ctx context.Context) (domain.InvoiceNumber, error) {
	q := sharedSqlite.Querier(ctx, r.db)
	year := time.Now().UTC().Year()
	prefix := fmt.Sprintf("INV-%04d-", year)

	var last sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT MAX(invoice_number) FROM invoices WHERE invoice_number LIKE ?`, prefix+"%",
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
var _ domain.InvoiceRepository = (*InvoiceRepoSQLite)(nil)
