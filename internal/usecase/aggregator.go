package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"CoinSentry/internal/domain/models"
	drepo "CoinSentry/internal/domain/repository"
	"CoinSentry/internal/service/ratelimit"
	"CoinSentry/pkg/logger"

	"github.com/benbjohnson/clock"
)

// ErrNoConsensus is returned when zero sources produced a price for a
// symbol. Callers fall back to the last known consensus or skip the cycle;
// a fabricated price is never returned.
var ErrNoConsensus = errors.New("no source produced a price")

// Aggregator reconciles ticks from several independent, unreliable sources
// into one trustworthy consensus point per symbol per cycle.
type Aggregator struct {
	adapters       []drepo.ExchangeAdapter
	limiter        *ratelimit.Limiter
	metrics        drepo.Metrics
	log            *logger.Suppressor
	clk            clock.Clock
	coolDown       time.Duration
	outlierStddev  float64
	minForOutlier  int
	maxConcurrency int

	mu     sync.Mutex
	health map[string]*models.ExchangeHealth
	live   map[string]map[string]*models.Observation // symbol -> exchange -> freshest tick
}

// AggregatorOption configures Aggregator.
type AggregatorOption func(*Aggregator)

// WithCoolDown sets how long a failed source is skipped before re-probing.
func WithCoolDown(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.coolDown = d
		}
	}
}

// WithOutlierRejection sets the stddev bound and the minimum source count at
// which rejection kicks in.
func WithOutlierRejection(stddevs float64, minSources int) AggregatorOption {
	return func(a *Aggregator) {
		if stddevs > 0 {
			a.outlierStddev = stddevs
		}
		if minSources > 0 {
			a.minForOutlier = minSources
		}
	}
}

// WithMaxConcurrency bounds the parallel source fan-out per symbol.
func WithMaxConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxConcurrency = n
		}
	}
}

// WithAggregatorClock injects a clock, used by tests.
func WithAggregatorClock(c clock.Clock) AggregatorOption {
	return func(a *Aggregator) { a.clk = c }
}

// NewAggregator creates an aggregator over the given adapters.
func NewAggregator(
	adapters []drepo.ExchangeAdapter,
	limiter *ratelimit.Limiter,
	metrics drepo.Metrics,
	log *logger.Suppressor,
	opts ...AggregatorOption,
) *Aggregator {
	a := &Aggregator{
		adapters:       adapters,
		limiter:        limiter,
		metrics:        metrics,
		log:            log,
		clk:            clock.New(),
		coolDown:       5 * time.Minute,
		outlierStddev:  2.0,
		minForOutlier:  4,
		maxConcurrency: 4,
		health:         make(map[string]*models.ExchangeHealth),
		live:           make(map[string]map[string]*models.Observation),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type sourceResult struct {
	adapter drepo.ExchangeAdapter
	obs     *models.Observation
	err     error
}

// Consensus runs one aggregation cycle for symbol: query every eligible
// source, reject outliers, weight-average the rest. The returned
// observations are the successful raw ticks, for archiving.
func (a *Aggregator) Consensus(ctx context.Context, symbol string) (*models.ConsensusPoint, []*models.Observation, error) {
	eligible := a.eligibleAdapters()
	if len(eligible) == 0 {
		return nil, nil, fmt.Errorf("consensus %s: all sources in cool-down: %w", symbol, ErrNoConsensus)
	}

	results := make(chan sourceResult, len(eligible))
	sem := make(chan struct{}, a.maxConcurrency)
	var wg sync.WaitGroup
	for _, ad := range eligible {
		wg.Add(1)
		go func(ad drepo.ExchangeAdapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := a.limiter.Wait(ctx, ad.ID()); err != nil {
				results <- sourceResult{adapter: ad, err: err}
				return
			}
			obs, err := ad.GetTicker(ctx, symbol)
			results <- sourceResult{adapter: ad, obs: obs, err: err}
		}(ad)
	}
	wg.Wait()
	close(results)

	var contributors []*models.Observation
	var weights []float64
	now := a.clk.Now()
	for r := range results {
		if r.err != nil {
			a.markFailure(r.adapter.ID(), now)
			a.metrics.RecordFetch(r.adapter.ID(), "error")
			a.log.Error("ticker:"+r.adapter.ID(), "ticker fetch failed",
				logger.String("exchange", r.adapter.ID()),
				logger.String("symbol", symbol),
				logger.Error(r.err))
			continue
		}
		a.markSuccess(r.adapter.ID(), now)
		a.metrics.RecordFetch(r.adapter.ID(), "ok")
		obs := r.obs
		// A fresher live tick from the stream supersedes the polled one.
		if live := a.takeLive(symbol, r.adapter.ID()); live != nil && live.Timestamp > obs.Timestamp {
			obs = live
		}
		if obs.Price <= 0 {
			continue
		}
		contributors = append(contributors, obs)
		weights = append(weights, r.adapter.Weight())
	}

	if len(contributors) == 0 {
		return nil, nil, fmt.Errorf("consensus %s: %w", symbol, ErrNoConsensus)
	}

	point := a.buildConsensus(symbol, contributors, weights, now)
	a.metrics.RecordConsensus(symbol, point.Price, point.ExchangeCount)
	return point, contributors, nil
}

func (a *Aggregator) buildConsensus(symbol string, obs []*models.Observation, weights []float64, now time.Time) *models.ConsensusPoint {
	prices := make([]float64, len(obs))
	for i, o := range obs {
		prices[i] = o.Price
	}

	keep := make([]bool, len(obs))
	for i := range keep {
		keep[i] = true
	}
	if len(obs) >= a.minForOutlier {
		// Each price is judged against the mean and stddev of the OTHER
		// prices. A large outlier inflates the whole-set stddev enough to
		// shield itself from a naive check, so the candidate is excluded
		// from its own reference statistics.
		kept := 0
		others := make([]float64, 0, len(prices)-1)
		for i, p := range prices {
			others = others[:0]
			for j, q := range prices {
				if j != i {
					others = append(others, q)
				}
			}
			mean, std := meanStddev(others)
			dev := math.Abs(p - mean)
			keep[i] = dev <= a.outlierStddev*std
			if keep[i] {
				kept++
			}
		}
		// Degenerate case, e.g. mutual rejection across two price camps:
		// rejection must not empty the set.
		if kept == 0 {
			for i := range keep {
				keep[i] = true
			}
		}
	}

	var sumPW, sumW, maxVolume float64
	var count int
	for i, o := range obs {
		if !keep[i] {
			continue
		}
		sumPW += o.Price * weights[i]
		sumW += weights[i]
		if o.Volume > maxVolume {
			maxVolume = o.Volume
		}
		count++
	}

	price := sumPW / sumW
	var varW float64
	for i, o := range obs {
		if !keep[i] {
			continue
		}
		d := o.Price - price
		varW += weights[i] * d * d
	}

	return &models.ConsensusPoint{
		Symbol:         symbol,
		Price:          price,
		Volume:         maxVolume,
		Timestamp:      now.UnixMilli(),
		ExchangeCount:  count,
		WeightedStddev: math.Sqrt(varW / sumW),
	}
}

// Klines returns one coherent history for the symbol: every eligible source
// is queried and the longest non-empty series wins. Bars from different
// venues are never merged, their sampling boundaries do not line up.
func (a *Aggregator) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.OHLCV, error) {
	var best []models.OHLCV
	var firstErr error
	now := a.clk.Now()
	for _, ad := range a.eligibleAdapters() {
		if err := a.limiter.Wait(ctx, ad.ID()); err != nil {
			return nil, err
		}
		bars, err := ad.GetKlines(ctx, symbol, interval, limit)
		if err != nil {
			a.markFailure(ad.ID(), now)
			a.metrics.RecordFetch(ad.ID(), "error")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.markSuccess(ad.ID(), now)
		a.metrics.RecordFetch(ad.ID(), "ok")
		if len(bars) > len(best) {
			best = bars
		}
	}
	if len(best) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, fmt.Errorf("klines %s: %w", symbol, ErrNoConsensus)
	}
	return best, nil
}

// OrderBook returns depth from the first healthy source. Books from
// different venues are never merged either; a mixed book would cross itself.
func (a *Aggregator) OrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	var firstErr error
	now := a.clk.Now()
	for _, ad := range a.eligibleAdapters() {
		if err := a.limiter.Wait(ctx, ad.ID()); err != nil {
			return nil, err
		}
		book, err := ad.GetOrderBook(ctx, symbol, depth)
		if err != nil {
			a.markFailure(ad.ID(), now)
			a.metrics.RecordFetch(ad.ID(), "error")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.markSuccess(ad.ID(), now)
		a.metrics.RecordFetch(ad.ID(), "ok")
		return book, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("orderbook %s: %w", symbol, ErrNoConsensus)
}

// OfferLive records a streamed observation for the next consensus cycle.
func (a *Aggregator) OfferLive(obs *models.Observation) {
	if obs == nil || obs.Symbol == "" || obs.Price <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	bySource, ok := a.live[obs.Symbol]
	if !ok {
		bySource = make(map[string]*models.Observation)
		a.live[obs.Symbol] = bySource
	}
	if prev := bySource[obs.Exchange]; prev == nil || obs.Timestamp >= prev.Timestamp {
		bySource[obs.Exchange] = obs
	}
}

func (a *Aggregator) takeLive(symbol, exchange string) *models.Observation {
	a.mu.Lock()
	defer a.mu.Unlock()
	bySource := a.live[symbol]
	if bySource == nil {
		return nil
	}
	obs := bySource[exchange]
	delete(bySource, exchange)
	return obs
}

// HealthSnapshot returns a copy of per-source health for readers.
func (a *Aggregator) HealthSnapshot() []models.ExchangeHealth {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.ExchangeHealth, 0, len(a.adapters))
	for _, ad := range a.adapters {
		if h, ok := a.health[ad.ID()]; ok {
			out = append(out, *h)
		} else {
			out = append(out, models.ExchangeHealth{Exchange: ad.ID(), Status: models.HealthOK})
		}
	}
	return out
}

func (a *Aggregator) eligibleAdapters() []drepo.ExchangeAdapter {
	now := a.clk.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]drepo.ExchangeAdapter, 0, len(a.adapters))
	for _, ad := range a.adapters {
		if h, ok := a.health[ad.ID()]; ok && h.InCoolDown(now, a.coolDown) {
			continue
		}
		out = append(out, ad)
	}
	return out
}

func (a *Aggregator) markSuccess(id string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.healthFor(id)
	h.Status = models.HealthOK
	h.ConsecutiveErrs = 0
	h.LastSuccessAt = now
	a.metrics.RecordExchangeHealth(id, true)
}

func (a *Aggregator) markFailure(id string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.healthFor(id)
	h.Status = models.HealthError
	h.ConsecutiveErrs++
	h.LastErrorAt = now
	a.metrics.RecordExchangeHealth(id, false)
}

func (a *Aggregator) healthFor(id string) *models.ExchangeHealth {
	h, ok := a.health[id]
	if !ok {
		h = &models.ExchangeHealth{Exchange: id, Status: models.HealthOK}
		a.health[id] = h
	}
	return h
}

// meanStddev returns the sample mean and standard deviation.
func meanStddev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
