package receipt

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"donation-service/internal/config"
	"donation-service/internal/db"
	"donation-service/internal/logcontext"
	"donation-service/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

var (
	// producer batch metrics
	producerErrorFetchingCounter = metrics.GetOrCreateCounter(`donation_event_producer_total{result="fetching_failed"}`)
	producerErrorKafkaCounter    = metrics.GetOrCreateCounter(`donation_event_producer_total{result="publish_failed"}`)
	producerErrorUpdateCounter   = metrics.GetOrCreateCounter(`donation_event_producer_total{result="db_update_failed"}`)
	producerSuccessCounter       = metrics.GetOrCreateCounter(`donation_event_producer_total{result="success"}`)

	producerProcessDurationHistogram = metrics.GetOrCreateHistogram(`donation_event_producer_duration_milliseconds`)

	// producer per message metrics
	producerMessagesPublishedCounter   = metrics.GetOrCreateCounter(`donation_event_producer_messages_total{result="published"}`)
	producerMessagesMaxAttemptsCounter = metrics.GetOrCreateCounter(`donation_event_producer_messages_total{result="max_attempts_reached"}`)
	producerMessagesRescheduledCounter = metrics.GetOrCreateCounter(`donation_event_producer_messages_total{result="rescheduled"}`)
)

type EventStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetDueEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*db.DonationEventEntity, error)
	SelectForUpdateByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*db.DonationEventEntity, error)
	Update(ctx context.Context, tx pgx.Tx, e *db.DonationEventEntity) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer relays due donation events from the outbox table to Kafka.
type Producer struct {
	repo               EventStore
	writer             MessageWriter
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
}

func NewProducer(repo EventStore, writer MessageWriter, cfg config.ReceiptProducer, logger *slog.Logger) *Producer {
	return &Producer{
		repo:               repo,
		writer:             writer,
		pollingInterval:    time.Duration(cfg.PollingIntervalMs) * time.Millisecond,
		fetchSize:          cfg.FetchSize,
		retryDelay:         time.Duration(cfg.RescheduleDelayMs) * time.Millisecond,
		maxPublishAttempts: cfg.MaxPublishAttempts,
		logger:             logger,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.process(ctx)
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "Context done, stopping producer")
				return
			}
		}
	}()
}

func (p *Producer) process(ctx context.Context) {
	startTime := time.Now()
	defer func() {
		producerProcessDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	// set runId as a correlation id for all logs in scope
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}
	defer tx.Rollback(ctx)

	events, err := p.repo.GetDueEvents(ctx, tx, p.fetchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error fetching due donation events", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	if len(events) == 0 {
		producerSuccessCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Publishing donation events", "count", len(events))

	publishErr := p.writer.WriteMessages(ctx, toKafkaMessages(events)...)
	if publishErr != nil {
		p.logger.ErrorContext(ctx, "Error writing messages to Kafka", "error", publishErr)
		producerErrorKafkaCounter.Inc()
	}

	now := time.Now()
	for _, event := range events {
		eventCtx := logcontext.AppendCtx(ctx, slog.String("eventId", event.ID.String()))

		// consecutive publish failures only; receipt retries republish the same row
		if publishErr != nil {
			event.PublishAttempts++
			errMsg := publishErr.Error()
			event.Error = &errMsg
			event.ScheduledAt = nextAttempt(event.PublishAttempts, p.maxPublishAttempts, p.retryDelay, now)

			if event.ScheduledAt == nil {
				p.logger.WarnContext(eventCtx, "Max publish attempts reached for donation event")
				producerMessagesMaxAttemptsCounter.Inc()
			} else {
				producerMessagesRescheduledCounter.Inc()
			}
		} else {
			event.ScheduledAt = nil
			event.PublishedAt = &now
			event.PublishAttempts = 0
			event.Error = nil

			producerMessagesPublishedCounter.Inc()
		}

		if err := p.repo.Update(eventCtx, tx, event); err != nil {
			p.logger.ErrorContext(eventCtx, "Error updating donation event", "error", err)
			producerErrorUpdateCounter.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		producerErrorUpdateCounter.Inc()
		return
	}

	producerSuccessCounter.Inc()
}

func toKafkaMessages(events []*db.DonationEventEntity) []kafka.Message {
	kafkaMessages := make([]kafka.Message, 0, len(events))

	for _, entity := range events {
		event := message.DonationEvent{
			ID:         entity.ID,
			DonationID: entity.DonationID,
			Status:     entity.Status,
			Amount:     entity.Amount,
			Currency:   entity.Currency,
			DonorID:    entity.DonorID,
			OccurredAt: entity.CreatedAt,
			Attempts:   entity.DeliveryAttempts,
		}
		if entity.PaymentID != nil {
			event.PaymentID = *entity.PaymentID
		}

		messageBytes, _ := json.Marshal(event)

		kafkaMessages = append(kafkaMessages, kafka.Message{
			Key:   []byte(entity.DonationID.String()), // per-donation ordering
			Value: messageBytes,
		})
	}
	return kafkaMessages
}
