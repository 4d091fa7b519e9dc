package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	"github.com/davicafu/invoicelab/internal/shared/infra/relayer"
)

// DeliveryLogClickHouse vuelca a ClickHouse cada evento entregado por el
// relayer, para análisis posterior (volumen por tipo de evento, latencia de
// publicación). Es un sink best-effort: un fallo aquí no afecta al marcado
// del outbox.
type DeliveryLogClickHouse struct {
	conn driver.Conn
}

func NewDeliveryLogClickHouse(conn driver.Conn) *DeliveryLogClickHouse {
	return &DeliveryLogClickHouse{conn: conn}
}

// InitSchema crea la tabla de log de entregas si no existe.
func (l *DeliveryLogClickHouse) InitSchema(ctx context.Context) error {
	return l.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS invoice_events_log (
			event_id UUID,
			aggregate_id String,
			aggregate_type String,
			event_type String,
			created_at DateTime64(3, 'UTC'),
			delivered_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree()
		ORDER BY (event_type, delivered_at)
	`)
}

// LogDelivered inserta en batch los registros entregados en esta pasada.
func (l *DeliveryLogClickHouse) LogDelivered(ctx context.Context, records []sharedDomain.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := l.conn.PrepareBatch(ctx, `INSERT INTO invoice_events_log (event_id, aggregate_id, aggregate_type, event_type, created_at, delivered_at)`)
	if err != nil {
		return fmt.Errorf("clickhouse prepare batch: %w", err)
	}

	for _, rec := range records {
		deliveredAt := time.Now().UTC()
		if rec.DeliveredAt != nil {
			deliveredAt = *rec.DeliveredAt
		}
		if err := batch.Append(rec.ID, rec.AggregateID, rec.AggregateType, rec.EventType, rec.CreatedAt, deliveredAt); err != nil {
			return fmt.Errorf("clickhouse append: %w", err)
		}
	}
	return batch.Send()
}

// Verificación en tiempo de compilación.
var _ relayer.DeliveryLog = (*DeliveryLogClickHouse)(nil)
