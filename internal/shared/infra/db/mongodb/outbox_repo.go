package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
)

// OutboxRepoMongoDB implementa sharedDomain.OutboxRepository sobre una
// colección outbox. Pensado para despliegues donde otro servicio escribe la
// colección y este relayer solo la drena: InsertOne no participa en la
// transacción SQL del caso de uso, así que no debe usarse como outbox
// transaccional del propio servicio.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{outboxColl: client.Database(dbName).Collection("outbox")}
}

// mongoOutboxRecord mapea los documentos de la colección.
type mongoOutboxRecord struct {
	ID            uuid.UUID  `bson:"_id"`
	AggregateID   string     `bson:"aggregateId"`
	AggregateType string     `bson:"aggregateType"`
	EventType     string     `bson:"eventType"`
	Payload       []byte     `bson:"payload"`
	Status        string     `bson:"status"`
	CreatedAt     time.Time  `bson:"createdAt"`
	DeliveredAt   *time.Time `bson:"deliveredAt,omitempty"`
	ErrorMessage  *string    `bson:"errorMessage,omitempty"`
}

func (r *OutboxRepoMongoDB) Append(ctx context.Context, rec sharedDomain.OutboxRecord) error {
	doc := mongoOutboxRecord{
		ID:            rec.ID,
		AggregateID:   rec.AggregateID,
		AggregateType: rec.AggregateType,
		EventType:     rec.EventType,
		Payload:       rec.Payload,
		Status:        string(rec.Status),
		CreatedAt:     rec.CreatedAt,
	}
	_, err := r.outboxColl.InsertOne(ctx, doc)
	return err
}

// FetchPending obtiene los registros pending en orden FIFO.
func (r *OutboxRepoMongoDB) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	filter := bson.M{"status": string(sharedDomain.DeliveryPending)}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []sharedDomain.OutboxRecord
	for cursor.Next(ctx) {
		var mo mongoOutboxRecord
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		records = append(records, sharedDomain.OutboxRecord{
			ID:            mo.ID,
			AggregateID:   mo.AggregateID,
			AggregateType: mo.AggregateType,
			EventType:     mo.EventType,
			Payload:       mo.Payload,
			Status:        sharedDomain.DeliveryStatus(mo.Status),
			CreatedAt:     mo.CreatedAt,
			DeliveredAt:   mo.DeliveredAt,
			ErrorMessage:  mo.ErrorMessage,
		})
	}
	return records, cursor.Err()
}

// MarkDelivered: gana el primer estado terminal, igual que en SQL.
func (r *OutboxRepoMongoDB) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	filter := bson.M{"_id": id, "status": string(sharedDomain.DeliveryPending)}
	update := bson.M{"$set": bson.M{
		"status":      string(sharedDomain.DeliveryDelivered),
		"deliveredAt": time.Now().UTC(),
	}, "$unset": bson.M{"errorMessage": ""}}

	_, err := r.outboxColl.UpdateOne(ctx, filter, update)
	return err
}

func (r *OutboxRepoMongoDB) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	filter := bson.M{"_id": id, "status": string(sharedDomain.DeliveryPending)}
	update := bson.M{"$set": bson.M{
		"status":       string(sharedDomain.DeliveryFailed),
		"errorMessage": errMsg,
	}}

	_, err := r.outboxColl.UpdateOne(ctx, filter, update)
	return err
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
