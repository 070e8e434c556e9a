package di

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"CoinSentry/internal/domain/repository"
	"CoinSentry/internal/handler/api"
	mid "CoinSentry/internal/middleware"
	internalrepo "CoinSentry/internal/repository"
	icache "CoinSentry/internal/service/cache"
	"CoinSentry/internal/service/exchange"
	"CoinSentry/internal/service/notify"
	"CoinSentry/internal/service/ratelimit"
	"CoinSentry/internal/usecase"
	pkgcache "CoinSentry/pkg/cache"
	pkgch "CoinSentry/pkg/clickhouse"
	"CoinSentry/pkg/config"
	xhttp "CoinSentry/pkg/http"
	pkgkafka "CoinSentry/pkg/kafka"
	applogger "CoinSentry/pkg/logger"
	"CoinSentry/pkg/metrics"
	"CoinSentry/pkg/queue"
	"CoinSentry/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideSuppressor wraps the logger with repeated-error deduplication.
func ProvideSuppressor(l *applogger.Logger) *applogger.Suppressor {
	return applogger.NewSuppressor(l, time.Minute)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideGateway creates the ClickHouse-backed store.
func ProvideGateway(client *pkgch.Client) repository.Gateway {
	return internalrepo.NewClickHouseGateway(client)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertSink publishes alerts to Kafka, or logs them when Kafka is
// disabled.
func ProvideAlertSink(producer *pkgkafka.Producer, l *applogger.Logger, cfg *config.Config) repository.AlertSink {
	if producer == nil {
		return internalrepo.NewLogAlertSink(l)
	}
	return internalrepo.NewKafkaAlertSink(producer, cfg.Kafka.AlertsTopic)
}

// ProvideKafkaConsumer creates the alerts consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideAlertsHandler archives consumed alerts into the store.
func ProvideAlertsHandler(gw repository.Gateway, m repository.Metrics, cfg *config.Config) *usecase.KafkaAlertsHandler {
	return usecase.NewKafkaAlertsHandler(cfg.Kafka.AlertsTopic, gw, m)
}

// ProvideRetryClient creates the shared retrying HTTP client.
func ProvideRetryClient(cfg *config.Config) *xhttp.RetryClient {
	base := xhttp.NewClient(xhttp.WithTimeout(cfg.Retry.RequestTimeout))
	return xhttp.NewRetryClient(base,
		xhttp.WithMaxRetries(cfg.Retry.MaxRetries),
		xhttp.WithBaseDelay(cfg.Retry.BaseDelay),
	)
}

// ProvideLimiter creates the per-endpoint rate limiter.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.MinInterval, cfg.RateLimit.Jitter)
}

// ProvideAdapters builds one adapter per enabled exchange.
func ProvideAdapters(cfg *config.Config, rc *xhttp.RetryClient, log *applogger.Suppressor) []repository.ExchangeAdapter {
	var adapters []repository.ExchangeAdapter
	for name, ex := range cfg.Exchanges {
		if !ex.Enabled {
			continue
		}
		switch name {
		case "okx":
			adapters = append(adapters, exchange.NewOKX(rc, log, ex.BaseURL, ex.Weight))
		case "binance":
			adapters = append(adapters, exchange.NewBinance(rc, log, ex.BaseURL, ex.Weight))
		case "coingecko":
			adapters = append(adapters, exchange.NewCoinGecko(rc, log, ex.BaseURL, ex.APIKey, ex.Weight))
		}
	}
	return adapters
}

// ProvideOptionSource returns the option chain source when OKX is enabled.
func ProvideOptionSource(cfg *config.Config, rc *xhttp.RetryClient, log *applogger.Suppressor) repository.OptionChainSource {
	ex, ok := cfg.Exchanges["okx"]
	if !ok || !ex.Enabled {
		return nil
	}
	return exchange.NewOKX(rc, log, ex.BaseURL, ex.Weight)
}

// ProvideAggregator creates the multi-source aggregator.
func ProvideAggregator(
	adapters []repository.ExchangeAdapter,
	limiter *ratelimit.Limiter,
	m repository.Metrics,
	log *applogger.Suppressor,
	cfg *config.Config,
) *usecase.Aggregator {
	return usecase.NewAggregator(adapters, limiter, m, log,
		usecase.WithCoolDown(cfg.Aggregator.CoolDown),
		usecase.WithOutlierRejection(cfg.Aggregator.OutlierStddev, cfg.Aggregator.MinForOutlier),
		usecase.WithMaxConcurrency(cfg.Poll.MaxConcurrency),
	)
}

// ProvideEngine creates the windowed metrics engine.
func ProvideEngine(l *applogger.Logger, cfg *config.Config) *usecase.Engine {
	return usecase.NewEngine(l,
		usecase.WithBufferCap(cfg.Metrics.BufferCap),
		usecase.WithRetention(cfg.Metrics.Retention),
		usecase.WithWindows(cfg.Metrics.ShortWindow, cfg.Metrics.LongWindow),
		usecase.WithMaxChangePercent(cfg.Metrics.MaxChangePercent),
		usecase.WithMomentumMode(cfg.Metrics.MomentumMode),
	)
}

// ProvideDetector creates the anomaly detector.
func ProvideDetector(cfg *config.Config) *usecase.Detector {
	return usecase.NewDetector(cfg.Anomaly.Threshold)
}

// ProvideRedisClient creates a go-redis client, or nil when disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCacheService builds the layered snapshot cache backing. Falls back
// to memory-only when redis is disabled.
func ProvideCacheService(cfg *config.Config) pkgcache.Service {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache()
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return pkgcache.NewMemoryCache()
	}
	port, _ := strconv.Atoi(portStr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("coinsentry"),
	)
	if err != nil {
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideSnapshotCache creates the per-symbol snapshot fallback cache.
func ProvideSnapshotCache(svc pkgcache.Service, cfg *config.Config) *icache.SnapshotCache {
	return icache.NewSnapshotCache(svc, 2*cfg.Poll.SpotInterval)
}

// ProvideStream creates the live tick stream, or nil when disabled.
func ProvideStream(cfg *config.Config, log *applogger.Suppressor) repository.ObservationStream {
	if !cfg.Stream.Enabled {
		return nil
	}
	return exchange.NewBinanceStream(
		cfg.Stream.URL,
		cfg.Symbols,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
		log,
	)
}

// ProvideCollector creates the live collector with its validation/throttle
// pipeline, or nil when the stream is disabled.
func ProvideCollector(
	stream repository.ObservationStream,
	agg *usecase.Aggregator,
	m repository.Metrics,
) *usecase.LiveCollector {
	if stream == nil {
		return nil
	}
	pipe := mid.NewObservationPipeline(usecase.NewLiveOffer(agg), m,
		mid.WithMaxRPS(5),
		mid.WithBufferSize(2000),
	)
	return usecase.NewLiveCollector(stream, agg, m, pipe)
}

// ProvideNotifyQueue creates the redis-backed notification queue with the
// webhook job registered, or nil when notifications are disabled.
func ProvideNotifyQueue(cfg *config.Config, l *applogger.Logger, client *redis.Client) *queue.RedisQueue {
	if !cfg.Notify.Enabled || client == nil {
		return nil
	}
	job := notify.NewWebhookJob(cfg.Notify.WebhookURL, xhttp.NewClient(xhttp.WithTimeout(cfg.Retry.RequestTimeout)))
	return queue.NewRedisQueue(l,
		&queue.QueueConfig{
			Workers:    cfg.Notify.Workers,
			QueueSize:  1000,
			RetryLimit: 3,
			RetryDelay: 5 * time.Second,
		},
		client,
		[]queue.Job{job},
		queue.WithKeyPrefix("coinsentry:queue"),
	)
}

// ProvidePoller wires the polling pipeline.
func ProvidePoller(
	cfg *config.Config,
	agg *usecase.Aggregator,
	engine *usecase.Engine,
	detector *usecase.Detector,
	gw repository.Gateway,
	sink repository.AlertSink,
	snapCache *icache.SnapshotCache,
	optSource repository.OptionChainSource,
	limiter *ratelimit.Limiter,
	notifyQ *queue.RedisQueue,
	m repository.Metrics,
	log *applogger.Suppressor,
) *usecase.Poller {
	opts := []usecase.PollerOption{
		usecase.WithIntervals(cfg.Poll.SpotInterval, cfg.Poll.OptionInterval, cfg.Poll.CleanupInterval),
		usecase.WithStoreRetention(cfg.ClickHouse.Retention),
		usecase.WithCycleTimeout(cfg.Retry.RequestTimeout * 3),
		usecase.WithStopGrace(cfg.Poll.StopGrace),
		usecase.WithPollerConcurrency(cfg.Poll.MaxConcurrency),
	}
	if optSource != nil && len(cfg.Anomaly.OptionSymbols) > 0 {
		opts = append(opts, usecase.WithOptionChain(optSource, limiter, cfg.Anomaly.OptionSymbols))
	}
	if notifyQ != nil {
		opts = append(opts, usecase.WithNotifier(notify.NewQueueNotifier(notifyQ)))
	}
	return usecase.NewPoller(cfg.Symbols, agg, engine, detector, gw, sink, snapCache, m, log, opts...)
}

// ProvideRoutes composes the HTTP API.
func ProvideRoutes(
	l *applogger.Logger,
	gw repository.Gateway,
	agg *usecase.Aggregator,
	engine *usecase.Engine,
	snapCache *icache.SnapshotCache,
	collector *usecase.LiveCollector,
) xhttp.Handler {
	var stream api.Streamer
	if collector != nil {
		stream = collector
	}
	return api.Routes{
		api.NewMarketHandler(l, gw, agg, engine, snapCache),
		api.NewHealthHandler(gw, stream),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	poller *usecase.Poller,
	collector *usecase.LiveCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaAlertsHandler,
	notifyQ *queue.RedisQueue,
	gw repository.Gateway,
	sink repository.AlertSink,
	chClient *pkgch.Client,
	routes xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NewLoggingHook(l, time.Second))
	}
	app := server.New(cfg, l, poller, collector, consumer, kh, notifyQ, gw, sink, chClient)
	app.SetHTTPHandler(routes)
	return app
}
