package usecase

import (
	"context"
	"sync"
	"time"

	"CoinSentry/internal/domain/models"
	drepo "CoinSentry/internal/domain/repository"
	"CoinSentry/internal/service/ratelimit"
	"CoinSentry/pkg/logger"

	"github.com/benbjohnson/clock"
)

// Metric class names used for detection populations and alert records.
const (
	MetricPriceChange = "price_change"
	MetricVolChange   = "volume_change"
	MetricOptVolume   = "option_volume"
	MetricOptIV       = "implied_volatility"
)

// SnapshotCache holds the last computed snapshot per symbol for
// stale-fallback reads.
type SnapshotCache interface {
	Set(ctx context.Context, s *models.MetricSnapshot) error
	Get(ctx context.Context, symbol string) (*models.MetricSnapshot, error)
}

// Notifier forwards severe alerts out of process, e.g. onto a job queue.
type Notifier interface {
	Notify(ctx context.Context, a *models.AnomalyRecord) error
}

// Poller drives the periodic pipeline: consensus per symbol, metric
// derivation, persistence and anomaly detection. All loops are timer-driven;
// the engine buffers are mutated only from here.
type Poller struct {
	symbols       []string
	optionSymbols []string

	agg      *Aggregator
	engine   *Engine
	detector *Detector
	gateway  drepo.Gateway
	sink     drepo.AlertSink
	cache    SnapshotCache
	notifier Notifier
	options  drepo.OptionChainSource
	limiter  *ratelimit.Limiter
	metrics  drepo.Metrics
	log      *logger.Suppressor
	clk      clock.Clock

	spotInterval    time.Duration
	optionInterval  time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	cycleTimeout    time.Duration
	stopGrace       time.Duration
	maxConcurrency  int

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// PollerOption configures Poller.
type PollerOption func(*Poller)

// WithIntervals sets the spot, option and cleanup loop periods.
func WithIntervals(spot, option, cleanup time.Duration) PollerOption {
	return func(p *Poller) {
		if spot > 0 {
			p.spotInterval = spot
		}
		if option > 0 {
			p.optionInterval = option
		}
		if cleanup > 0 {
			p.cleanupInterval = cleanup
		}
	}
}

// WithStoreRetention sets the age past which persisted rows are deleted.
func WithStoreRetention(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.retention = d
		}
	}
}

// WithCycleTimeout bounds one polling cycle.
func WithCycleTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.cycleTimeout = d
		}
	}
}

// WithStopGrace bounds the wait for in-flight cycles on Stop.
func WithStopGrace(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.stopGrace = d
		}
	}
}

// WithPollerConcurrency bounds the per-cycle symbol fan-out.
func WithPollerConcurrency(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxConcurrency = n
		}
	}
}

// WithOptionChain enables the option-chain loop over the given underlyings.
// Chain fetches go through the same limiter the spot path uses, so both paths
// serialize on the venue's key.
func WithOptionChain(src drepo.OptionChainSource, limiter *ratelimit.Limiter, underlyings []string) PollerOption {
	return func(p *Poller) {
		p.options = src
		p.limiter = limiter
		p.optionSymbols = underlyings
	}
}

// WithNotifier routes severe alerts to the given notifier.
func WithNotifier(n Notifier) PollerOption {
	return func(p *Poller) { p.notifier = n }
}

// WithPollerClock injects a clock, used by tests.
func WithPollerClock(c clock.Clock) PollerOption {
	return func(p *Poller) { p.clk = c }
}

// NewPoller wires the pipeline. Construction starts nothing; the caller owns
// the lifecycle and begins polling with an explicit Start.
func NewPoller(
	symbols []string,
	agg *Aggregator,
	engine *Engine,
	detector *Detector,
	gateway drepo.Gateway,
	sink drepo.AlertSink,
	cache SnapshotCache,
	metrics drepo.Metrics,
	log *logger.Suppressor,
	opts ...PollerOption,
) *Poller {
	p := &Poller{
		symbols:         symbols,
		agg:             agg,
		engine:          engine,
		detector:        detector,
		gateway:         gateway,
		sink:            sink,
		cache:           cache,
		metrics:         metrics,
		log:             log,
		clk:             clock.New(),
		spotInterval:    60 * time.Second,
		optionInterval:  15 * time.Minute,
		cleanupInterval: time.Hour,
		retention:       24 * time.Hour,
		cycleTimeout:    30 * time.Second,
		stopGrace:       5 * time.Second,
		maxConcurrency:  4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the polling loops. Idempotent while running; a stopped
// poller can be started again.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx, p.spotInterval, p.spotCycle, stopCh)
	if p.options != nil && len(p.optionSymbols) > 0 {
		p.wg.Add(1)
		go p.loop(ctx, p.optionInterval, p.optionCycle, stopCh)
	}
	p.wg.Add(1)
	go p.loop(ctx, p.cleanupInterval, p.cleanupCycle, stopCh)
}

// Stop signals the loops and waits for in-flight cycles up to the stop
// grace; past that it logs and returns rather than hanging shutdown.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stopCh := p.stopCh
	p.mu.Unlock()
	close(stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-p.clk.After(p.stopGrace):
		p.log.Logger().Warn("poller stop grace elapsed, abandoning in-flight cycle",
			logger.Duration("grace", p.stopGrace))
	}
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, cycle func(context.Context), stopCh <-chan struct{}) {
	defer p.wg.Done()
	ticker := p.clk.Ticker(interval)
	defer ticker.Stop()

	cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// spotCycle runs one aggregation pass over every symbol, then detects
// cross-sectional anomalies over the snapshots the pass produced.
func (p *Poller) spotCycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
	defer cancel()
	start := p.clk.Now()

	type cycleOut struct {
		symbol string
		snap   *models.MetricSnapshot
	}
	results := make(chan cycleOut, len(p.symbols))
	sem := make(chan struct{}, p.maxConcurrency)
	var wg sync.WaitGroup
	for _, sym := range p.symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- cycleOut{symbol: sym, snap: p.pollSymbol(cctx, sym)}
		}(sym)
	}
	wg.Wait()
	close(results)

	var priceSamples, volSamples []Sample
	for r := range results {
		if r.snap == nil {
			continue
		}
		priceSamples = append(priceSamples, Sample{EntityID: r.symbol, Value: r.snap.PriceChange15m})
		volSamples = append(volSamples, Sample{EntityID: r.symbol, Value: r.snap.VolumeChange15m})
	}

	p.emitAlerts(cctx, p.detector.Detect(MetricPriceChange, priceSamples))
	p.emitAlerts(cctx, p.detector.Detect(MetricVolChange, volSamples))
	p.metrics.RecordLatency("spot_cycle", p.clk.Now().Sub(start).Seconds())
}

// pollSymbol produces and persists one symbol's consensus and snapshot.
// Returns nil when no consensus was reached this cycle; the previous
// snapshot stays current for readers.
func (p *Poller) pollSymbol(ctx context.Context, symbol string) *models.MetricSnapshot {
	point, obs, err := p.agg.Consensus(ctx, symbol)
	if err != nil {
		p.metrics.RecordError("consensus")
		p.log.Warn("consensus:"+symbol, "no consensus this cycle",
			logger.String("symbol", symbol), logger.Error(err))
		return nil
	}
	if err := p.gateway.SaveObservations(ctx, obs); err != nil {
		p.metrics.RecordError("persist_observations")
		p.log.Error("save_obs:"+symbol, "observation archive failed",
			logger.String("symbol", symbol), logger.Error(err))
	}
	if !p.engine.Insert(point) {
		return nil
	}
	snap := p.engine.Compute(symbol)
	if snap == nil {
		return nil
	}
	if err := p.gateway.SaveSnapshot(ctx, snap); err != nil {
		p.metrics.RecordError("persist_snapshot")
		p.log.Error("save_snap:"+symbol, "snapshot persist failed",
			logger.String("symbol", symbol), logger.Error(err))
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, snap); err != nil {
			p.metrics.RecordError("cache_set")
		}
	}
	return snap
}

// optionCycle pulls option chains and detects per-contract volume and
// implied-volatility anomalies within each underlying's chain.
func (p *Poller) optionCycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
	defer cancel()
	start := p.clk.Now()

	venue := p.options.ID()
	for _, underlying := range p.optionSymbols {
		if p.limiter != nil {
			if err := p.limiter.Wait(cctx, venue); err != nil {
				return
			}
		}
		chain, err := p.options.GetOptionChain(cctx, underlying)
		if err != nil {
			p.agg.markFailure(venue, p.clk.Now())
			p.metrics.RecordFetch(venue, "error")
			p.metrics.RecordError("option_chain")
			p.log.Error("options:"+underlying, "option chain fetch failed",
				logger.String("underlying", underlying), logger.Error(err))
			continue
		}
		p.agg.markSuccess(venue, p.clk.Now())
		p.metrics.RecordFetch(venue, "ok")
		volume := make([]Sample, 0, len(chain))
		iv := make([]Sample, 0, len(chain))
		for _, c := range chain {
			volume = append(volume, Sample{EntityID: c.ContractID, Value: c.Volume})
			if c.ImpliedVol > 0 {
				iv = append(iv, Sample{EntityID: c.ContractID, Value: c.ImpliedVol})
			}
		}
		p.emitAlerts(cctx, p.detector.Detect(MetricOptVolume, volume))
		p.emitAlerts(cctx, p.detector.Detect(MetricOptIV, iv))
	}
	p.metrics.RecordLatency("option_cycle", p.clk.Now().Sub(start).Seconds())
}

func (p *Poller) cleanupCycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
	defer cancel()
	p.engine.EvictExpired(p.clk.Now())
	if err := p.gateway.CleanupOlderThan(cctx, p.retention); err != nil {
		p.metrics.RecordError("cleanup")
		p.log.Error("cleanup", "retention cleanup failed", logger.Error(err))
	}
}

// emitAlerts fans each record out to the store, the alert topic and, for
// severe ones, the notification queue. Sinks are fire-and-forget: a failing
// sink never blocks the compute path.
func (p *Poller) emitAlerts(ctx context.Context, records []models.AnomalyRecord) {
	for i := range records {
		r := &records[i]
		p.metrics.RecordAlert(r.Metric, r.Severity)
		if err := p.gateway.SaveAlert(ctx, r); err != nil {
			p.metrics.RecordError("persist_alert")
			p.log.Error("save_alert", "alert persist failed",
				logger.String("metric", r.Metric), logger.Error(err))
		}
		if err := p.sink.Publish(ctx, r); err != nil {
			p.metrics.RecordError("publish_alert")
			p.log.Error("publish_alert", "alert publish failed",
				logger.String("metric", r.Metric), logger.Error(err))
		}
		if p.notifier == nil {
			continue
		}
		if r.Severity == models.SeverityCritical || r.Severity == models.SeverityHigh {
			if err := p.notifier.Notify(ctx, r); err != nil {
				p.metrics.RecordError("notify_alert")
			}
		}
	}
}
