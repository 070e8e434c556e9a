//go:build wireinject
// +build wireinject

package di

import (
	"CoinSentry/pkg/config"
	"CoinSentry/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideSuppressor,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCacheService,

		// Request layer
		ProvideRetryClient,
		ProvideLimiter,

		// Sources
		ProvideAdapters,
		ProvideOptionSource,
		ProvideStream,

		// Repositories
		ProvideGateway,
		ProvideAlertSink,
		ProvideSnapshotCache,

		// Use cases
		ProvideAggregator,
		ProvideEngine,
		ProvideDetector,
		ProvideCollector,
		ProvideAlertsHandler,
		ProvideNotifyQueue,
		ProvidePoller,

		// HTTP + application server
		ProvideRoutes,
		ProvideApp,
	)
	return &server.App{}, nil
}
