package models

import "time"

// Severity levels for anomaly records, ordered by urgency.
const (
	SeverityNormal   = "normal"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Exchange health states.
const (
	HealthOK    = "ok"
	HealthError = "error"
)

// Observation is a single normalized tick from one exchange.
// Immutable once created.
type Observation struct {
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"` // epoch ms
}

// Time returns the observation timestamp as time.Time.
func (o *Observation) Time() time.Time {
	return time.UnixMilli(o.Timestamp)
}

// ConsensusPoint is the outlier-filtered, weight-averaged value derived
// from multiple exchange sources for one symbol at one instant.
type ConsensusPoint struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	Volume         float64 `json:"volume"`
	Timestamp      int64   `json:"timestamp"` // epoch ms
	ExchangeCount  int     `json:"exchange_count"`
	WeightedStddev float64 `json:"weighted_stddev"`
}

func (p *ConsensusPoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// MetricSnapshot holds windowed change metrics for one symbol.
// Fields default to 0.0 when the window has fewer than 2 points; zero is the
// documented neutral value, never a missing-data sentinel.
type MetricSnapshot struct {
	Symbol             string  `json:"symbol"`
	Timestamp          int64   `json:"timestamp"` // epoch ms
	PriceChange15m     float64 `json:"price_change_15m"`
	VolumeChange15m    float64 `json:"volume_change_15m"`
	PriceChange30mPrev float64 `json:"price_change_30m_prior"`
	Momentum           float64 `json:"momentum_indicator"`
	VolatilityRatio    float64 `json:"volatility_ratio"`
}

func (s *MetricSnapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// AnomalyRecord is an entity flagged by the cross-sectional z-score detector.
// Read-only after creation; staleness is enforced by the consumer.
type AnomalyRecord struct {
	EntityID   string  `json:"entity_id"`
	Metric     string  `json:"metric_name"`
	Value      float64 `json:"value"`
	ZScore     float64 `json:"z_score"`
	Severity   string  `json:"severity"`
	DetectedAt int64   `json:"detected_at"` // epoch ms
}

// ExchangeHealth tracks per-source call outcomes and cool-down state.
type ExchangeHealth struct {
	Exchange        string    `json:"exchange"`
	Status          string    `json:"status"`
	ConsecutiveErrs int       `json:"consecutive_error_count"`
	LastSuccessAt   time.Time `json:"last_success_at"`
	LastErrorAt     time.Time `json:"last_error_at"`
}

// InCoolDown reports whether the source should be skipped at now, given the
// configured cool-down window after entering error state.
func (h *ExchangeHealth) InCoolDown(now time.Time, window time.Duration) bool {
	return h.Status == HealthError && now.Sub(h.LastErrorAt) < window
}

// OHLCV is one candlestick bar.
type OHLCV struct {
	Timestamp int64   `json:"timestamp"` // epoch ms, bar open time
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook holds normalized depth for one symbol on one exchange.
type OrderBook struct {
	Symbol    string      `json:"symbol"`
	Exchange  string      `json:"exchange"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp int64       `json:"timestamp"` // epoch ms
}

// OptionContract is one contract row of an option chain snapshot.
// Greeks are consumed downstream as a pure function of these fields and are
// not computed here.
type OptionContract struct {
	ContractID   string  `json:"contract_id"`
	Underlying   string  `json:"underlying"`
	Type         string  `json:"type"` // "call" or "put"
	Strike       float64 `json:"strike"`
	ExpiryMillis int64   `json:"expiry"`
	MarkPrice    float64 `json:"mark_price"`
	ImpliedVol   float64 `json:"implied_vol"`
	Volume       float64 `json:"volume"`
	OpenInterest float64 `json:"open_interest"`
	Timestamp    int64   `json:"timestamp"` // epoch ms
}
