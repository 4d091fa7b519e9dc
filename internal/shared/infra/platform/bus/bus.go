package bus

import "context"

// EventPublisher publica el payload ya serializado de un registro outbox en
// el canal externo. La clave permite particionar por agregado para conservar
// el orden causal aproximado aguas abajo.
//
// La entrega es al-menos-una-vez: los consumidores deben ser idempotentes.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}
