package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
)

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

// Append inserta el registro pending. Usa la transacción activa del context
// del llamante: nunca abre una propia.
func (r *OutboxRepoPostgres) Append(ctx context.Context, rec sharedDomain.OutboxRecord) error {
	_, err := Querier(ctx, r.db).ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_id, aggregate_type, event_type, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.AggregateID, rec.AggregateType, rec.EventType, []byte(rec.Payload), string(rec.Status), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}
	return nil
}

// FetchPending devuelve hasta limit registros pending en orden FIFO.
func (r *OutboxRepoPostgres) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	rows, err := Querier(ctx, r.db).QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, payload, status, created_at
		 FROM outbox WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []sharedDomain.OutboxRecord
	for rows.Next() {
		var rec sharedDomain.OutboxRecord
		var payload []byte
		var status string
		if err := rows.Scan(&rec.ID, &rec.AggregateID, &rec.AggregateType, &rec.EventType, &payload, &status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Payload = payload
		rec.Status = sharedDomain.DeliveryStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkDelivered fija el estado terminal delivered. Gana el primer estado
// terminal: si el registro ya no está pending, es un no-op.
func (r *OutboxRepoPostgres) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := Querier(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox SET status = 'delivered', delivered_at = $1, error_message = NULL
		 WHERE id = $2 AND status = 'pending'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkFailed fija el estado terminal failed con el mensaje de error.
func (r *OutboxRepoPostgres) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := Querier(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox SET status = 'failed', error_message = $1
		 WHERE id = $2 AND status = 'pending'`,
		errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
