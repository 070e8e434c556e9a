package usecase

import (
	"math"
	"sync"
	"time"

	"CoinSentry/internal/domain/models"
	"CoinSentry/pkg/logger"
)

// Momentum formulations. The windowed variant subtracts the long-horizon
// average rate from the short-horizon one; the point variant subtracts the
// prior point-to-point change from the recent one.
const (
	MomentumDiffOfDiffs  = "diff_of_diffs"
	MomentumPointToPoint = "point_to_point"
)

// Engine maintains a per-symbol rolling buffer of consensus points and
// derives windowed change metrics from it. Buffers are mutated only by the
// polling loop; readers always get copies.
type Engine struct {
	log          *logger.Logger
	bufferCap    int
	retention    time.Duration
	shortWindow  time.Duration
	longWindow   time.Duration
	maxChange    float64
	momentumMode string

	mu      sync.RWMutex
	buffers map[string][]*models.ConsensusPoint // ascending by timestamp
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithBufferCap bounds the per-symbol buffer length.
func WithBufferCap(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.bufferCap = n
		}
	}
}

// WithRetention sets the buffer age horizon.
func WithRetention(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.retention = d
		}
	}
}

// WithWindows sets the short and long lookback windows.
func WithWindows(short, long time.Duration) EngineOption {
	return func(e *Engine) {
		if short > 0 {
			e.shortWindow = short
		}
		if long > 0 {
			e.longWindow = long
		}
	}
}

// WithMaxChangePercent sets the clamp bound for all change rates.
func WithMaxChangePercent(pct float64) EngineOption {
	return func(e *Engine) {
		if pct > 0 {
			e.maxChange = pct
		}
	}
}

// WithMomentumMode selects the momentum formulation.
func WithMomentumMode(mode string) EngineOption {
	return func(e *Engine) {
		if mode == MomentumDiffOfDiffs || mode == MomentumPointToPoint {
			e.momentumMode = mode
		}
	}
}

// NewEngine creates a metrics engine with 15m/30m windows by default.
func NewEngine(log *logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		log:          log,
		bufferCap:    100,
		retention:    4 * time.Hour,
		shortWindow:  15 * time.Minute,
		longWindow:   30 * time.Minute,
		maxChange:    1000,
		momentumMode: MomentumDiffOfDiffs,
		buffers:      make(map[string][]*models.ConsensusPoint),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Insert appends a consensus point to the symbol's buffer. Points must arrive
// in non-decreasing timestamp order; an out-of-order point would corrupt
// every windowed lookup, so it is logged and discarded. Returns whether the
// point was accepted.
func (e *Engine) Insert(p *models.ConsensusPoint) bool {
	if p == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := e.buffers[p.Symbol]
	if n := len(buf); n > 0 && p.Timestamp < buf[n-1].Timestamp {
		e.log.Warn("discarding out-of-order consensus point",
			logger.String("symbol", p.Symbol),
			logger.Int64("timestamp", p.Timestamp),
			logger.Int64("buffer_head", buf[n-1].Timestamp))
		return false
	}
	buf = append(buf, p)
	buf = e.evictLocked(buf, p.Time())
	e.buffers[p.Symbol] = buf
	return true
}

// Compute derives the windowed metric snapshot for symbol from its current
// buffer. With fewer than 2 points every metric is 0.0, the documented
// neutral value.
func (e *Engine) Compute(symbol string) *models.MetricSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	buf := e.buffers[symbol]
	if len(buf) == 0 {
		return nil
	}
	latest := buf[len(buf)-1]
	s := &models.MetricSnapshot{
		Symbol:    symbol,
		Timestamp: latest.Timestamp,
	}
	if len(buf) < 2 {
		return s
	}

	now := latest.Time()
	shortAgo := now.Add(-e.shortWindow).UnixMilli()
	longAgo := now.Add(-e.longWindow).UnixMilli()

	if p := closestNotAfter(buf, shortAgo); p != nil {
		s.PriceChange15m = e.clamp(pctChange(latest.Price, p.Price))
	}
	if p := closestNotAfter(buf, longAgo); p != nil {
		s.PriceChange30mPrev = e.clamp(pctChange(latest.Price, p.Price))
	}

	// Volume is a flow quantity: compare trailing bucket sums, not points.
	recentVol := sumVolume(buf, shortAgo, latest.Timestamp)
	priorVol := sumVolume(buf, longAgo, shortAgo)
	if priorVol > 0 {
		s.VolumeChange15m = e.clamp((recentVol - priorVol) / priorVol * 100)
	}

	s.Momentum = e.clamp(e.momentum(buf, latest, shortAgo, longAgo))
	s.VolatilityRatio = volatilityRatio(buf, latest, shortAgo, longAgo)
	return s
}

// momentum is a second-derivative-like signal: the acceleration of change,
// distinguishing a newly-forming trend from a steady one.
func (e *Engine) momentum(buf []*models.ConsensusPoint, latest *models.ConsensusPoint, shortAgo, longAgo int64) float64 {
	switch e.momentumMode {
	case MomentumPointToPoint:
		pShort := closestNotAfter(buf, shortAgo)
		pLong := closestNotAfter(buf, longAgo)
		if pShort == nil || pLong == nil {
			return 0
		}
		return pctChange(latest.Price, pShort.Price) - pctChange(pShort.Price, pLong.Price)
	default:
		avgShort := avgPrice(buf, shortAgo, latest.Timestamp)
		avgLong := avgPrice(buf, longAgo, latest.Timestamp)
		if avgShort == 0 || avgLong == 0 {
			return 0
		}
		return pctChange(latest.Price, avgShort) - pctChange(avgShort, avgLong)
	}
}

// volatilityRatio compares recent dispersion against prior dispersion.
// Above 1 means recent moves are larger than prior ones. 1.0 on zero
// denominators, the neutral default.
func volatilityRatio(buf []*models.ConsensusPoint, latest *models.ConsensusPoint, shortAgo, longAgo int64) float64 {
	avgShort := avgPrice(buf, shortAgo, latest.Timestamp)
	avgLong := avgPrice(buf, longAgo, latest.Timestamp)
	if avgShort == 0 || avgLong == 0 {
		return 1.0
	}
	recent := math.Abs(latest.Price-avgShort) / avgShort
	prior := math.Abs(avgShort-avgLong) / avgLong
	if prior == 0 {
		return 1.0
	}
	return recent / prior
}

// Window returns copies of the symbol's buffered points with timestamps at
// or after since.
func (e *Engine) Window(symbol string, since time.Time) []models.ConsensusPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sinceMs := since.UnixMilli()
	var out []models.ConsensusPoint
	for _, p := range e.buffers[symbol] {
		if p.Timestamp >= sinceMs {
			out = append(out, *p)
		}
	}
	return out
}

// LastConsensus returns a copy of the most recent point for symbol, or nil.
func (e *Engine) LastConsensus(symbol string) *models.ConsensusPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	buf := e.buffers[symbol]
	if len(buf) == 0 {
		return nil
	}
	p := *buf[len(buf)-1]
	return &p
}

// EvictExpired sweeps every buffer, dropping points older than the retention
// horizon relative to now. Called from the cleanup loop; Insert also evicts
// incrementally.
func (e *Engine) EvictExpired(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for sym, buf := range e.buffers {
		buf = e.evictLocked(buf, now)
		if len(buf) == 0 {
			delete(e.buffers, sym)
		} else {
			e.buffers[sym] = buf
		}
	}
}

func (e *Engine) evictLocked(buf []*models.ConsensusPoint, now time.Time) []*models.ConsensusPoint {
	horizon := now.Add(-e.retention).UnixMilli()
	i := 0
	for i < len(buf) && buf[i].Timestamp < horizon {
		i++
	}
	buf = buf[i:]
	if len(buf) > e.bufferCap {
		buf = buf[len(buf)-e.bufferCap:]
	}
	return buf
}

func (e *Engine) clamp(v float64) float64 {
	if v > e.maxChange {
		return e.maxChange
	}
	if v < -e.maxChange {
		return -e.maxChange
	}
	return v
}

// closestNotAfter returns the buffered point with the largest timestamp that
// is <= ts, or nil when every point is newer.
func closestNotAfter(buf []*models.ConsensusPoint, ts int64) *models.ConsensusPoint {
	var found *models.ConsensusPoint
	for _, p := range buf {
		if p.Timestamp > ts {
			break
		}
		found = p
	}
	return found
}

func sumVolume(buf []*models.ConsensusPoint, fromExcl, toIncl int64) float64 {
	var sum float64
	for _, p := range buf {
		if p.Timestamp > fromExcl && p.Timestamp <= toIncl {
			sum += p.Volume
		}
	}
	return sum
}

func avgPrice(buf []*models.ConsensusPoint, fromExcl, toIncl int64) float64 {
	var sum float64
	var n int
	for _, p := range buf {
		if p.Timestamp > fromExcl && p.Timestamp <= toIncl {
			sum += p.Price
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func pctChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
