package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"donation-service/internal/config"
	"donation-service/internal/db"
	"donation-service/internal/message"
	"donation-service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dueEvent(status model.Status) *db.DonationEventEntity {
	scheduledAt := time.Now().Add(-time.Second)
	paymentID := "PAY-99"
	return &db.DonationEventEntity{
		ID:          uuid.New(),
		DonationID:  uuid.New(),
		Status:      status,
		PaymentID:   &paymentID,
		Amount:      50000,
		Currency:    "INR",
		CreatedAt:   time.Now(),
		ScheduledAt: &scheduledAt,
	}
}

func newTestProducer(store EventStore, writer MessageWriter) *Producer {
	return NewProducer(store, writer, config.ReceiptProducer{
		PollingIntervalMs:  10,
		FetchSize:          10,
		RescheduleDelayMs:  1000,
		MaxPublishAttempts: 2,
	}, slog.Default())
}

func TestProducer_PublishesDueEvents(t *testing.T) {
	event := dueEvent(model.StatusCompleted)
	store := newFakeStore(event)
	writer := &fakeWriter{}

	newTestProducer(store, writer).process(context.Background())

	require.Len(t, writer.messages, 1)
	assert.Equal(t, event.DonationID.String(), string(writer.messages[0].Key))

	var published message.DonationEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &published))
	assert.Equal(t, event.ID, published.ID)
	assert.Equal(t, model.StatusCompleted, published.Status)
	assert.Equal(t, "PAY-99", published.PaymentID)
	assert.Equal(t, int64(50000), published.Amount)

	stored := store.get(event.ID)
	assert.Nil(t, stored.ScheduledAt)
	assert.NotNil(t, stored.PublishedAt)
	assert.Zero(t, stored.PublishAttempts)
	assert.Nil(t, stored.Error)
	assert.Equal(t, 1, store.commits)
}

func TestProducer_ReschedulesOnPublishFailure(t *testing.T) {
	event := dueEvent(model.StatusCompleted)
	store := newFakeStore(event)
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	sut := newTestProducer(store, writer)

	sut.process(context.Background())

	stored := store.get(event.ID)
	require.NotNil(t, stored.ScheduledAt)
	assert.True(t, stored.ScheduledAt.After(time.Now()))
	assert.Nil(t, stored.PublishedAt)
	assert.Equal(t, 1, stored.PublishAttempts)
	require.NotNil(t, stored.Error)
	assert.Equal(t, "broker unavailable", *stored.Error)

	sut.process(context.Background())

	stored = store.get(event.ID)
	assert.Nil(t, stored.ScheduledAt, "gives up after max attempts")
	assert.Equal(t, 2, stored.PublishAttempts)
}

func TestProducer_NothingDue(t *testing.T) {
	store := newFakeStore()
	writer := &fakeWriter{}

	newTestProducer(store, writer).process(context.Background())

	assert.Empty(t, writer.messages)
	assert.Zero(t, store.updates)
}

func TestProducer_StartStopsWithContext(t *testing.T) {
	event := dueEvent(model.StatusFailed)
	store := newFakeStore(event)
	writer := &fakeWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	newTestProducer(store, writer).Start(ctx)

	assert.Eventually(t, func() bool {
		return store.get(event.ID).PublishedAt != nil
	}, time.Second, 10*time.Millisecond)
	cancel()
}

func TestProducer_PublishFailureAfterFailedDeliveriesIsRetried(t *testing.T) {
	ctx := context.Background()
	event := dueEvent(model.StatusCompleted)
	store := newFakeStore(event)
	writer := &fakeWriter{}
	sender := &fakeSender{err: errors.New("error response: 503 Service Unavailable")}

	producer := NewProducer(store, writer, config.ReceiptProducer{
		FetchSize:          10,
		RescheduleDelayMs:  1000,
		MaxPublishAttempts: 3,
	}, slog.Default())
	processor := NewProcessor(store, sender, config.Receipt{
		Processor: config.ReceiptProcessor{
			Parallelism:         1,
			RescheduleDelayMs:   1000,
			MaxDeliveryAttempts: 5,
		},
		Sender: config.ReceiptSender{URL: "http://receipts.example.com/receipts"},
	}, slog.Default())

	publishAndDeliver := func() {
		t.Helper()
		writer.messages = nil
		producer.process(ctx)
		require.Len(t, writer.messages, 1)

		var published message.DonationEvent
		require.NoError(t, json.Unmarshal(writer.messages[0].Value, &published))
		require.NoError(t, processor.Process(ctx, published))
		processor.Wait()
	}

	for i := 0; i < 3; i++ {
		publishAndDeliver()
	}
	stored := store.get(event.ID)
	assert.Equal(t, 3, stored.DeliveryAttempts)
	assert.Zero(t, stored.PublishAttempts)
	require.NotNil(t, stored.ScheduledAt)

	writer.err = errors.New("broker unavailable")
	producer.process(ctx)

	stored = store.get(event.ID)
	assert.Equal(t, 1, stored.PublishAttempts)
	require.NotNil(t, stored.ScheduledAt, "a single broker error must not drop the receipt")

	writer.err = nil
	publishAndDeliver()
	publishAndDeliver()

	stored = store.get(event.ID)
	assert.Equal(t, 5, stored.DeliveryAttempts)
	assert.Nil(t, stored.ScheduledAt, "gives up after max delivery attempts")
	assert.Nil(t, stored.DeliveredAt)
	assert.Len(t, sender.calls, 5)

	writer.messages = nil
	producer.process(ctx)
	assert.Empty(t, writer.messages)
}
