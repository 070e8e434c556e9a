package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CoinSentry/internal/domain/models"
	domrepo "CoinSentry/internal/domain/repository"
	pkgkafka "CoinSentry/pkg/kafka"
)

// KafkaAlertsHandler consumes the alerts topic and archives records into the
// store. The alerts table deduplicates on (entity, metric, detected_at), so
// replaying the topic is safe.
type KafkaAlertsHandler struct {
	topic   string
	gateway domrepo.Gateway
	metrics domrepo.Metrics
}

func NewKafkaAlertsHandler(topic string, gateway domrepo.Gateway, metrics domrepo.Metrics) *KafkaAlertsHandler {
	return &KafkaAlertsHandler{topic: topic, gateway: gateway, metrics: metrics}
}

func (h *KafkaAlertsHandler) Topic() string { return h.topic }

func (h *KafkaAlertsHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.AnomalyRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// E2E latency from detection time to archive (approx)
	h.metrics.RecordLatency("alert_e2e_seconds", time.Since(time.UnixMilli(rec.DetectedAt)).Seconds())

	start := time.Now()
	err := h.gateway.SaveAlert(ctx, &rec)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaAlertsHandler)(nil)
