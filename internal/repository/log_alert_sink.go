package repository

import (
	"context"

	"CoinSentry/internal/domain/models"
	domrepo "CoinSentry/internal/domain/repository"
	applogger "CoinSentry/pkg/logger"
)

// LogAlertSink writes alerts to the log. Used when no broker is configured
// so detection output is still visible.
type LogAlertSink struct {
	l *applogger.Logger
}

// NewLogAlertSink creates the sink.
func NewLogAlertSink(l *applogger.Logger) domrepo.AlertSink {
	return &LogAlertSink{l: l}
}

func (s *LogAlertSink) Publish(_ context.Context, a *models.AnomalyRecord) error {
	s.l.Warn("anomaly detected",
		applogger.String("entity", a.EntityID),
		applogger.String("metric", a.Metric),
		applogger.Float64("value", a.Value),
		applogger.Float64("z_score", a.ZScore),
		applogger.String("severity", a.Severity))
	return nil
}

func (s *LogAlertSink) Close() error { return nil }
