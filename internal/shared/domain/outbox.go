package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus representa el ciclo de vida de entrega de un registro outbox.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

var ErrInvalidOutboxRecord = errors.New("invalid outbox record")

// OutboxRecord representa un evento pendiente de publicar en el broker.
// Se escribe en la misma transacción que la mutación del agregado que describe;
// después de creado solo el relayer lo mueve a un estado terminal, y nunca se borra.
type OutboxRecord struct {
	ID            uuid.UUID       `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"` // ej. "Invoice"
	EventType     string          `json:"event_type"`     // ej. "invoice.created"
	Payload       json.RawMessage `json:"payload"`        // snapshot serializado del cambio
	Status        DeliveryStatus  `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// NewOutboxRecord serializa el payload y crea un registro en estado pending.
func NewOutboxRecord(aggregateID, aggregateType, eventType string, payload interface{}) (OutboxRecord, error) {
	if aggregateID == "" || aggregateType == "" || eventType == "" {
		return OutboxRecord{}, fmt.Errorf("%w: aggregate_id, aggregate_type y event_type son obligatorios", ErrInvalidOutboxRecord)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxRecord{}, fmt.Errorf("%w: payload no serializable: %v", ErrInvalidOutboxRecord, err)
	}

	return OutboxRecord{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       data,
		Status:        DeliveryPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// IsPending indica si el registro aún no ha llegado a un estado terminal.
func (r OutboxRecord) IsPending() bool { return r.Status == DeliveryPending }

// OutboxRepository define el contrato para acceder a la tabla outbox.
//
// Política de estados terminales: gana el primero. MarkDelivered y MarkFailed
// solo tocan registros en pending y son no-ops (sin error) si el registro ya
// está en delivered o failed, de forma que created_at y el resto de campos
// nunca se corrompen por marcados tardíos.
type OutboxRepository interface {
	// Append inserta un registro pending dentro de la transacción activa del
	// llamante; nunca abre una transacción propia.
	Append(ctx context.Context, rec OutboxRecord) error

	// FetchPending devuelve hasta limit registros pending en orden FIFO
	// (created_at ascendente). El orden importa: los consumidores asumen
	// orden causal aproximado por agregado.
	FetchPending(ctx context.Context, limit int) ([]OutboxRecord, error)

	// MarkDelivered marca el registro como entregado y fija delivered_at.
	MarkDelivered(ctx context.Context, id uuid.UUID) error

	// MarkFailed marca el registro como fallido y guarda el mensaje de error.
	// Los registros failed no se reintentan automáticamente: quedan visibles
	// para un operador o un barrido externo.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}
