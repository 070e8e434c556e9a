package repository

import (
	"context"

	"CoinSentry/internal/domain/models"
	domrepo "CoinSentry/internal/domain/repository"
	pkgkafka "CoinSentry/pkg/kafka"
)

// KafkaAlertSink publishes anomaly records to the alerts topic, keyed by
// entity so one entity's alerts stay ordered within a partition.
type KafkaAlertSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAlertSink creates the sink.
func NewKafkaAlertSink(producer *pkgkafka.Producer, topic string) domrepo.AlertSink {
	return &KafkaAlertSink{producer: producer, topic: topic}
}

func (s *KafkaAlertSink) Publish(ctx context.Context, a *models.AnomalyRecord) error {
	return s.producer.Publish(ctx, s.topic, []byte(a.EntityID), a)
}

func (s *KafkaAlertSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
