package postgres

import (
	"context"
	"database/sql"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type txKey struct{}

// Executor es el subconjunto común de *sql.DB y *sql.Tx que usan los
// repositorios; les permite escribir dentro o fuera de una transacción sin
// saber en cuál están.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Querier devuelve la transacción activa del context si la hay, o la
// conexión base en caso contrario.
func Querier(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// TxManager implementa la unidad de trabajo sobre Postgres: abre la
// transacción, la inyecta en el context y confirma o revierte según el
// resultado de fn.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Verificación en tiempo de compilación.
var _ sharedDomain.TransactionManager = (*TxManager)(nil)
