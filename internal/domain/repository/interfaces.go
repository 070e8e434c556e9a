package repository

import (
	"context"
	"time"

	"CoinSentry/internal/domain/models"
)

// ExchangeAdapter normalizes one exchange's market data into the common
// schema. Implementations translate the canonical base-asset symbol ("BTC")
// into their own instrument naming.
type ExchangeAdapter interface {
	ID() string
	Weight() float64
	GetTicker(ctx context.Context, symbol string) (*models.Observation, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.OHLCV, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
}

// OptionChainSource serves option chain snapshots for an underlying.
// Only adapters for venues with option markets implement it. ID names the
// venue; callers share one rate-limit key per venue across spot and option
// fetches.
type OptionChainSource interface {
	ID() string
	GetOptionChain(ctx context.Context, underlying string) ([]models.OptionContract, error)
}

// ObservationStream is a push feed of live observations, used to refresh
// consensus between polling cycles.
type ObservationStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Observation, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Gateway is the durable store for raw observations, computed metrics and
// alerts. It is a sink, not a dependency of the compute path: callers log
// failures and continue.
type Gateway interface {
	Init(ctx context.Context) error
	SaveObservations(ctx context.Context, obs []*models.Observation) error
	SaveSnapshot(ctx context.Context, s *models.MetricSnapshot) error
	SaveAlert(ctx context.Context, a *models.AnomalyRecord) error
	GetLatest(ctx context.Context, symbol string) (*models.MetricSnapshot, error)
	GetWindow(ctx context.Context, symbol string, since time.Time, limit int) ([]*models.MetricSnapshot, error)
	GetAlerts(ctx context.Context, metric, severity string, limit int) ([]*models.AnomalyRecord, error)
	CleanupOlderThan(ctx context.Context, retention time.Duration) error
	Health(ctx context.Context) error
	Close() error
}

// AlertSink consumes detected anomalies. Fire-and-forget: the core does not
// wait for acknowledgment.
type AlertSink interface {
	Publish(ctx context.Context, a *models.AnomalyRecord) error
	Close() error
}

// Metrics records operational counters and gauges.
type Metrics interface {
	RecordFetch(exchange, outcome string)
	RecordConsensus(symbol string, price float64, sources int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordAlert(metric, severity string)
	RecordExchangeHealth(exchange string, healthy bool)
}
