package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
)

// OutboxRepoSQLite implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// Append inserta el registro pending dentro de la transacción activa del
// llamante si la hay.
func (r *OutboxRepoSQLite) Append(ctx context.Context, rec sharedDomain.OutboxRecord) error {
	_, err := Querier(ctx, r.db).ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_id, aggregate_type, event_type, payload, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.AggregateID, rec.AggregateType, rec.EventType, string(rec.Payload), string(rec.Status), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}
	return nil
}

// FetchPending devuelve hasta limit registros pending en orden FIFO.
func (r *OutboxRepoSQLite) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	rows, err := Querier(ctx, r.db).QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, payload, status, created_at
		 FROM outbox WHERE status = 'pending' ORDER BY created_at LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []sharedDomain.OutboxRecord
	for rows.Next() {
		var rec sharedDomain.OutboxRecord
		var idStr, payloadStr, status string
		if err := rows.Scan(&idStr, &rec.AggregateID, &rec.AggregateType, &rec.EventType, &payloadStr, &status, &rec.CreatedAt); err != nil {
			return nil, err
		}

		// El ID se guarda como TEXT, lo parseamos de vuelta.
		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		rec.ID = parsedID
		rec.Payload = []byte(payloadStr)
		rec.Status = sharedDomain.DeliveryStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkDelivered fija delivered. Gana el primer estado terminal: si el
// registro ya no está pending, es un no-op.
func (r *OutboxRepoSQLite) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := Querier(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox SET status = 'delivered', delivered_at = ?, error_message = NULL
		 WHERE id = ? AND status = 'pending'`,
		time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkFailed fija failed con el mensaje de error.
func (r *OutboxRepoSQLite) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := Querier(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox SET status = 'failed', error_message = ?
		 WHERE id = ? AND status = 'pending'`,
		errMsg, id.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoSQLite)(nil)
