package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"donation-service/internal/logcontext"
	"donation-service/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"
)

type Metrics struct {
	ReadErrorCounter      *metrics.Counter
	UnmarshalErrorCounter *metrics.Counter
	ProcessErrorCounter   *metrics.Counter
	SuccessCounter        *metrics.Counter
}

var donationEventMetrics = Metrics{
	ReadErrorCounter:      metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="donation_event"}`),
	UnmarshalErrorCounter: metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="donation_event"}`),
	ProcessErrorCounter:   metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="donation_event"}`),
	SuccessCounter:        metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="donation_event"}`),
}

type DonationEventProcessor interface {
	Process(ctx context.Context, event message.DonationEvent) error
}

func NewReader(kafkaURL, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(kafkaURL, ","),
		GroupID: groupID,
		Topic:   topic,
	})
}

// ReadDonationEvents consumes the topic until ctx is cancelled.
func ReadDonationEvents(ctx context.Context, reader *kafka.Reader, processor DonationEventProcessor, logger *slog.Logger) {
	readMessages(ctx, reader, logger, func(ctx context.Context, value []byte) error {
		return HandleDonationEvent(ctx, value, processor, logger)
	}, donationEventMetrics)
}

func HandleDonationEvent(ctx context.Context, value []byte, processor DonationEventProcessor, logger *slog.Logger) error {
	var e message.DonationEvent
	if err := json.Unmarshal(value, &e); err != nil {
		logger.ErrorContext(ctx, "Error unmarshalling donation event", "error", err)
		donationEventMetrics.UnmarshalErrorCounter.Inc()
		return err
	}
	ctx = logcontext.AppendCtx(ctx, slog.String("eventId", e.ID.String()), slog.String("donationId", e.DonationID.String()))
	return processor.Process(ctx, e)
}

func readMessages(ctx context.Context, reader *kafka.Reader, logger *slog.Logger, process func(context.Context, []byte) error, kafkaMetrics Metrics) {
	go func() {
		for {
			logger.DebugContext(ctx, "Waiting for messages from Kafka...")
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.InfoContext(ctx, "Context done, stopping reader", "topic", reader.Config().Topic)
					return
				}
				logger.ErrorContext(ctx, "Error reading message", "error", err)
				kafkaMetrics.ReadErrorCounter.Inc()
				continue
			}
			logger.InfoContext(ctx, "Received message", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset)

			if err := process(ctx, m.Value); err != nil {
				logger.ErrorContext(ctx, "Error processing message", "error", err)
				kafkaMetrics.ProcessErrorCounter.Inc()
				continue
			}
			kafkaMetrics.SuccessCounter.Inc()
		}
	}()
}
