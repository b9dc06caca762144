package receipt

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"donation-service/internal/config"
	"donation-service/internal/logcontext"
	"donation-service/internal/message"
	"donation-service/internal/model"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	processorDeliveredCounter   = metrics.GetOrCreateCounter(`receipt_processor_total{result="delivered"}`)
	processorSkippedCounter     = metrics.GetOrCreateCounter(`receipt_processor_total{result="skipped"}`)
	processorRescheduledCounter = metrics.GetOrCreateCounter(`receipt_processor_total{result="rescheduled"}`)
	processorMaxAttemptsCounter = metrics.GetOrCreateCounter(`receipt_processor_total{result="max_attempts_reached"}`)
	processorErrorCounter       = metrics.GetOrCreateCounter(`receipt_processor_total{result="error"}`)
)

// Request is the body sent to the receipt service.
type Request struct {
	EventID     uuid.UUID  `json:"eventId"`
	DonationID  uuid.UUID  `json:"donationId"`
	DonorID     *uuid.UUID `json:"donorId,omitempty"`
	PaymentID   string     `json:"paymentId,omitempty"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	CompletedAt time.Time  `json:"completedAt"`
}

type ReceiptSender interface {
	Send(ctx context.Context, url string, payload []byte, idempotencyKey string) error
}

// Processor consumes donation events and requests a receipt for every completed
// donation. Events in other statuses are acknowledged without calling out.
type Processor struct {
	repo        EventStore
	sender      ReceiptSender
	url         string
	sem         chan struct{}
	wg          sync.WaitGroup
	retryDelay  time.Duration
	maxAttempts int
	logger      *slog.Logger
}

func NewProcessor(repo EventStore, sender ReceiptSender, cfg config.Receipt, logger *slog.Logger) *Processor {
	return &Processor{
		repo:        repo,
		sender:      sender,
		url:         cfg.Sender.URL,
		sem:         make(chan struct{}, cfg.Processor.Parallelism),
		retryDelay:  time.Duration(cfg.Processor.RescheduleDelayMs) * time.Millisecond,
		maxAttempts: cfg.Processor.MaxDeliveryAttempts,
		logger:      logger,
	}
}

// Process hands the event to a worker and returns once a slot is free.
func (p *Processor) Process(ctx context.Context, event message.DonationEvent) error {
	p.logger.InfoContext(ctx, "Processing donation event", "status", event.Status)

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		if err := p.deliver(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "Error processing donation event", "error", err)
			processorErrorCounter.Inc()
		}
	}()

	return nil
}

// Wait blocks until all in-flight deliveries have finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) deliver(ctx context.Context, event message.DonationEvent) error {
	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	entity, err := p.repo.SelectForUpdateByID(ctx, tx, event.ID)
	if err != nil {
		return errors.Wrap(err, "select donation event")
	}

	// kafka delivers at least once
	if entity.DeliveredAt != nil {
		p.logger.InfoContext(ctx, "Donation event already delivered")
		processorSkippedCounter.Inc()
		return nil
	}

	now := time.Now()

	if entity.Status != model.StatusCompleted {
		entity.DeliveredAt = &now
		if err := p.repo.Update(ctx, tx, entity); err != nil {
			return err
		}
		processorSkippedCounter.Inc()
		return errors.Wrap(tx.Commit(ctx), "commit transaction")
	}

	req := Request{
		EventID:     entity.ID,
		DonationID:  entity.DonationID,
		DonorID:     entity.DonorID,
		Amount:      entity.Amount,
		Currency:    entity.Currency,
		CompletedAt: entity.CreatedAt,
	}
	if entity.PaymentID != nil {
		req.PaymentID = *entity.PaymentID
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	entity.DeliveryAttempts++
	sendErr := p.sender.Send(ctx, p.url, body, entity.ID.String())

	if sendErr != nil {
		errMsg := sendErr.Error()
		entity.Error = &errMsg
		entity.ScheduledAt = nextAttempt(entity.DeliveryAttempts, p.maxAttempts, p.retryDelay, now)

		if entity.ScheduledAt == nil {
			p.logger.WarnContext(ctx, "Max delivery attempts reached for donation event", "attempts", entity.DeliveryAttempts)
			processorMaxAttemptsCounter.Inc()
		} else {
			p.logger.WarnContext(ctx, "Receipt delivery failed, rescheduled", "attempts", entity.DeliveryAttempts,
				"scheduledAt", entity.ScheduledAt, "error", sendErr)
			processorRescheduledCounter.Inc()
		}
	} else {
		entity.DeliveredAt = &now
		entity.Error = nil
		processorDeliveredCounter.Inc()
	}

	if err := p.repo.Update(ctx, tx, entity); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	if sendErr == nil {
		p.logger.InfoContext(logcontext.AppendCtx(ctx, slog.Int("attempts", entity.DeliveryAttempts)), "Receipt requested")
	}
	return nil
}
