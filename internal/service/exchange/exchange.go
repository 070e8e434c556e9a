// Package exchange holds one adapter per market-data venue. Each adapter
// translates the canonical base-asset symbol ("BTC") into venue instrument
// naming and normalizes responses into the common schema.
package exchange

import (
	"errors"
	"strconv"
	"time"

	xhttp "CoinSentry/pkg/http"
	"CoinSentry/pkg/logger"
)

// ErrNotSupported is returned for operations a venue does not serve.
var ErrNotSupported = errors.New("operation not supported by exchange")

// base carries what every REST adapter needs.
type base struct {
	id      string
	weight  float64
	baseURL string
	client  *xhttp.RetryClient
	log     *logger.Suppressor
}

func (b *base) ID() string      { return b.id }
func (b *base) Weight() float64 { return b.weight }

// safeFloat parses a numeric string. Absent or unparseable values map to
// 0.0 with a suppressed warning rather than failing the whole response.
func (b *base) safeFloat(field, s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		b.log.Warn(b.id+":parse:"+field, "unparseable numeric field",
			logger.String("exchange", b.id),
			logger.String("field", field),
			logger.String("value", s))
		return 0
	}
	return v
}

// safeInt64 is safeFloat's integer counterpart, used for epoch timestamps.
func (b *base) safeInt64(field, s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		b.log.Warn(b.id+":parse:"+field, "unparseable integer field",
			logger.String("exchange", b.id),
			logger.String("field", field),
			logger.String("value", s))
		return 0
	}
	return v
}

// nowMillis is the fallback timestamp when a venue omits one.
func nowMillis() int64 { return time.Now().UnixMilli() }

// parseCompactDate parses a YYMMDD contract expiry as midnight UTC.
func parseCompactDate(s string) (int64, error) {
	t, err := time.ParseInLocation("060102", s, time.UTC)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
