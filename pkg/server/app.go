package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "CoinSentry/internal/domain/repository"
	"CoinSentry/internal/usecase"
	pkgch "CoinSentry/pkg/clickhouse"
	"CoinSentry/pkg/config"
	xhttp "CoinSentry/pkg/http"
	pkgkafka "CoinSentry/pkg/kafka"
	applogger "CoinSentry/pkg/logger"
	"CoinSentry/pkg/queue"
)

// App encapsulates the entire application lifecycle. Construction wires
// dependencies only; nothing polls or listens until Run.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	poller    *usecase.Poller
	collector *usecase.LiveCollector // nil when the stream is disabled
	consumer  *pkgkafka.Consumer     // nil when the alerts consumer is disabled
	kh        pkgkafka.MessageHandler
	notifyQ   *queue.RedisQueue // nil when notifications are disabled
	gateway   domrepo.Gateway
	sink      domrepo.AlertSink
	chClient  *pkgch.Client

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	poller *usecase.Poller,
	collector *usecase.LiveCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	notifyQ *queue.RedisQueue,
	gateway domrepo.Gateway,
	sink domrepo.AlertSink,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		poller:    poller,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		notifyQ:   notifyQ,
		gateway:   gateway,
		sink:      sink,
		chClient:  chClient,
	}
}

// SetHTTPHandler allows DI to inject the HTTP route registrar.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.gateway.Init(ctx); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithServerLogger(a.log),
	)

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("live collector error", applogger.Error(err))
			}
		}()
		a.log.Info("live collector started", applogger.Strings("symbols", a.cfg.Symbols))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("alerts consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.notifyQ != nil {
		if err := a.notifyQ.Start(); err != nil {
			a.log.Error("notify queue start error", applogger.Error(err))
		} else {
			a.log.Info("notification workers started", applogger.Int("workers", a.cfg.Notify.Workers))
		}
	}

	a.poller.Start(ctx)
	a.log.Info("pollers started",
		applogger.Duration("spot_interval", a.cfg.Poll.SpotInterval),
		applogger.Strings("symbols", a.cfg.Symbols))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.poller.Stop()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.log.Warn("consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	if a.notifyQ != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.notifyQ.Stop(stopCtx); err != nil {
			a.log.Warn("notify queue stop error", applogger.Error(err))
		}
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("alert sink close error", applogger.Error(err))
		}
	}
	if err := a.gateway.Close(); err != nil {
		a.log.Warn("gateway close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
