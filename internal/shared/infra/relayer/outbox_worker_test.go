package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	"github.com/davicafu/invoicelab/tests/mocks"
)

func newWorker(repo sharedDomain.OutboxRepository, pub *mocks.MockPublisher) *Worker {
	return NewOutboxWorker(repo, pub, "invoice-events", 10*time.Millisecond, 10, time.Second, zap.NewNop())
}

func appendRecord(t *testing.T, repo *mocks.InMemoryOutboxRepo, aggregateID string) sharedDomain.OutboxRecord {
	t.Helper()
	rec, err := sharedDomain.NewOutboxRecord(aggregateID, "Invoice", "invoice.created", map[string]string{"n": aggregateID})
	require.NoError(t, err)
	require.NoError(t, repo.Append(context.Background(), rec))
	return rec
}

func TestProcessBatch_DeliversAndMarks(t *testing.T) {
	repo := mocks.NewInMemoryOutboxRepo()
	rec := appendRecord(t, repo, "agg-1")

	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, "invoice-events", "agg-1", []byte(rec.Payload)).Return(nil)

	newWorker(repo, pub).ProcessBatch(context.Background())

	pub.AssertExpectations(t)
	all := repo.All()
	require.Len(t, all, 1)
	assert.Equal(t, sharedDomain.DeliveryDelivered, all[0].Status)
	assert.NotNil(t, all[0].DeliveredAt)
}

func TestProcessBatch_FailureIsolatedPerRecord(t *testing.T) {
	repo := mocks.NewInMemoryOutboxRepo()
	appendRecord(t, repo, "agg-1")
	appendRecord(t, repo, "agg-2")
	appendRecord(t, repo, "agg-3")

	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, "invoice-events", "agg-1", mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, "invoice-events", "agg-2", mock.Anything).Return(errors.New("broker down"))
	pub.On("Publish", mock.Anything, "invoice-events", "agg-3", mock.Anything).Return(nil)

	newWorker(repo, pub).ProcessBatch(context.Background())

	all := repo.All()
	require.Len(t, all, 3)
	assert.Equal(t, sharedDomain.DeliveryDelivered, all[0].Status)
	assert.Equal(t, sharedDomain.DeliveryFailed, all[1].Status)
	require.NotNil(t, all[1].ErrorMessage)
	assert.Contains(t, *all[1].ErrorMessage, "broker down")
	assert.Equal(t, sharedDomain.DeliveryDelivered, all[2].Status, "un fallo no bloquea al resto del lote")
}

func TestProcessBatch_FetchErrorDoesNotPanic(t *testing.T) {
	repo := mocks.NewInMemoryOutboxRepo()
	repo.FetchErr = errors.New("db gone")

	pub := new(mocks.MockPublisher)
	newWorker(repo, pub).ProcessBatch(context.Background())

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessBatch_SecondPassSkipsDelivered(t *testing.T) {
	repo := mocks.NewInMemoryOutboxRepo()
	appendRecord(t, repo, "agg-1")

	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	w := newWorker(repo, pub)
	w.ProcessBatch(context.Background())
	w.ProcessBatch(context.Background())

	pub.AssertExpectations(t)
}

func TestProcessBatch_ContextCancelledMidBatch(t *testing.T) {
	repo := mocks.NewInMemoryOutboxRepo()
	appendRecord(t, repo, "agg-1")
	appendRecord(t, repo, "agg-2")

	ctx, cancel := context.WithCancel(context.Background())

	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, "agg-1", mock.Anything).
		Run(func(mock.Arguments) { cancel() }).Return(nil)

	newWorker(repo, pub).ProcessBatch(ctx)

	// El segundo registro queda pending sin marcar: se retoma al arrancar.
	all := repo.All()
	assert.Equal(t, sharedDomain.DeliveryDelivered, all[0].Status)
	assert.Equal(t, sharedDomain.DeliveryPending, all[1].Status)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	repo := mocks.NewInMemoryOutboxRepo()
	pub := new(mocks.MockPublisher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newWorker(repo, pub).Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("el worker no se detuvo tras cancelar el context")
	}
}

type captureLog struct {
	recs []sharedDomain.OutboxRecord
}

func (c *captureLog) LogDelivered(_ context.Context, recs []sharedDomain.OutboxRecord) error {
	c.recs = append(c.recs, recs...)
	return nil
}

func TestProcessBatch_AnalyticsReceivesDeliveredOnly(t *testing.T) {
	repo := mocks.NewInMemoryOutboxRepo()
	appendRecord(t, repo, "agg-1")
	appendRecord(t, repo, "agg-2")

	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, "agg-1", mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything, "agg-2", mock.Anything).Return(errors.New("boom"))

	sink := &captureLog{}
	newWorker(repo, pub).WithDeliveryLog(sink).ProcessBatch(context.Background())

	require.Len(t, sink.recs, 1)
	assert.Equal(t, "agg-1", sink.recs[0].AggregateID)
}
