package models

// LatestRequest queries the most recent metric snapshot for a symbol.
type LatestRequest struct {
	Symbol string `query:"symbol" validate:"required,alphanum,uppercase,max=12"`
}

// WindowRequest queries snapshots since a timestamp.
type WindowRequest struct {
	Symbol string `query:"symbol" validate:"required,alphanum,uppercase,max=12"`
	Since  string `query:"since"` // RFC3339 or unix seconds; defaults to 1h ago
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// ConsensusRequest queries the last consensus point plus source health.
type ConsensusRequest struct {
	Symbol string `query:"symbol" validate:"required,alphanum,uppercase,max=12"`
}

// KlinesRequest queries candlestick history for a symbol.
type KlinesRequest struct {
	Symbol   string `query:"symbol" validate:"required,alphanum,uppercase,max=12"`
	Interval string `query:"interval" default:"1m" validate:"oneof=1m 5m 15m 30m 1h 4h 1d"`
	Limit    int    `query:"limit" default:"100" validate:"gte=1,lte=500"`
}

// OrderBookRequest queries current depth for a symbol.
type OrderBookRequest struct {
	Symbol string `query:"symbol" validate:"required,alphanum,uppercase,max=12"`
	Depth  int    `query:"depth" default:"20" validate:"gte=1,lte=200"`
}

// AlertsRequest queries recent anomaly records.
type AlertsRequest struct {
	Limit    int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Metric   string `query:"metric" validate:"omitempty,oneof=price_change volume_change option_volume implied_volatility"`
	Severity string `query:"severity" validate:"omitempty,oneof=medium high critical"`
}
