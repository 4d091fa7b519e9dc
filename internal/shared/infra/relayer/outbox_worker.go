// Package relayer drena la tabla outbox hacia el canal externo.
//
// Restricción operativa: una sola instancia del worker por despliegue. Dos
// workers concurrentes leerían el mismo lote pendiente y duplicarían
// entregas; no hay esquema de leasing/locking aquí.
package relayer

import (
	"context"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	sharedBus "github.com/davicafu/invoicelab/internal/shared/infra/platform/bus"
)

// DeliveryLog registra entregas confirmadas para analítica. Opcional.
type DeliveryLog interface {
	LogDelivered(ctx context.Context, recs []sharedDomain.OutboxRecord) error
}

// Worker procesa registros pendientes de la tabla outbox y los publica.
// La entrega es al-menos-una-vez; los registros failed no se reintentan
// automáticamente: quedan para inspección de un operador.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	publisher sharedBus.EventPublisher
	topic     string
	interval  time.Duration
	batchSize int
	timeout   time.Duration // timeout de entrega por registro
	analytics DeliveryLog   // puede ser nil
	log       *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	publisher sharedBus.EventPublisher,
	topic string,
	interval time.Duration,
	batchSize int,
	timeout time.Duration,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		batchSize: batchSize,
		timeout:   timeout,
		log:       log,
	}
}

// WithDeliveryLog activa el registro analítico de entregas confirmadas.
func (w *Worker) WithDeliveryLog(dl DeliveryLog) *Worker {
	w.analytics = dl
	return w
}

// Start inicia el bucle de polling del worker. Bloquea hasta que el context
// se cancele; al recibir la señal termina el lote en curso y no empieza otro.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox worker iniciado",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox worker detenido")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publica un lote de registros pendientes en orden FIFO.
// Un error en la propia consulta no tumba el proceso: se loggea y se
// reintenta en el siguiente ciclo.
func (w *Worker) ProcessBatch(ctx context.Context) {
	records, err := w.repo.FetchPending(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al obtener registros pendientes", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	w.log.Info("📬 Procesando registros outbox pendientes", zap.Int("count", len(records)))

	var delivered []sharedDomain.OutboxRecord
	for _, rec := range records {
		select {
		case <-ctx.Done():
			// Shutdown en mitad del lote: abandonamos sin marcar nada;
			// los registros siguen pending y se retoman al arrancar.
			return
		default:
		}

		if w.deliverAndMark(ctx, rec) {
			delivered = append(delivered, rec)
		}
	}

	if w.analytics != nil && len(delivered) > 0 {
		if err := w.analytics.LogDelivered(ctx, delivered); err != nil {
			w.log.Warn("⚠️ No se pudo registrar la analítica de entregas", zap.Error(err))
		}
	}
}

// deliverAndMark intenta la entrega de un registro con timeout acotado y
// persiste el resultado. Un fallo de entrega marca solo ese registro como
// failed y no bloquea al resto del lote.
func (w *Worker) deliverAndMark(ctx context.Context, rec sharedDomain.OutboxRecord) bool {
	deliveryCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.publisher.Publish(deliveryCtx, w.topic, rec.AggregateID, rec.Payload)
	cancel()

	if err != nil {
		w.log.Warn("⚠️ No se pudo publicar el registro",
			zap.String("record_id", rec.ID.String()),
			zap.String("event_type", rec.EventType),
			zap.Error(err),
		)
		if markErr := w.repo.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			w.log.Error("No se pudo marcar el registro como fallido",
				zap.String("record_id", rec.ID.String()),
				zap.Error(markErr),
			)
		}
		return false
	}

	if err := w.repo.MarkDelivered(ctx, rec.ID); err != nil {
		// El evento ya salió: si el marcado falla se reentregará en el
		// siguiente ciclo (de ahí la semántica al-menos-una-vez).
		w.log.Warn("⚠️ No se pudo marcar el registro como entregado",
			zap.String("record_id", rec.ID.String()),
			zap.Error(err),
		)
		return false
	}

	w.log.Info("✅ Registro publicado y marcado",
		zap.String("record_id", rec.ID.String()),
		zap.String("event_type", rec.EventType),
	)
	return true
}
