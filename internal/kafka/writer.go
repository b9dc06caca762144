package kafka

import (
	"strings"
	"time"

	"donation-service/internal/config"
	"github.com/segmentio/kafka-go"
)

func NewWriter(kafkaURL, topic string, cfg config.KafkaWriter) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(kafkaURL, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.ReferenceHash{},
		BatchSize:              cfg.BatchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(cfg.BatchTimeoutMs) * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}
