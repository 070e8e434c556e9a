package usecase

import (
	"testing"
	"time"

	"CoinSentry/internal/domain/models"
	"CoinSentry/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func point(symbol string, ts time.Time, price, volume float64) *models.ConsensusPoint {
	return &models.ConsensusPoint{
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: ts.UnixMilli(),
	}
}

func TestComputeSinglePointDefaultsToZero(t *testing.T) {
	e := NewEngine(testLogger(t))
	require.True(t, e.Insert(point("BTC", time.Now(), 100, 10)))

	s := e.Compute("BTC")
	require.NotNil(t, s)
	assert.Zero(t, s.PriceChange15m)
	assert.Zero(t, s.VolumeChange15m)
	assert.Zero(t, s.PriceChange30mPrev)
	assert.Zero(t, s.Momentum)
	assert.Zero(t, s.VolatilityRatio)
}

func TestComputeUnknownSymbol(t *testing.T) {
	e := NewEngine(testLogger(t))
	assert.Nil(t, e.Compute("DOGE"))
}

func TestComputeWindowedChanges(t *testing.T) {
	e := NewEngine(testLogger(t))
	base := time.Unix(1_700_000_000, 0)
	require.True(t, e.Insert(point("BTC", base, 100, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(10*time.Minute), 110, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(20*time.Minute), 120, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(30*time.Minute), 130, 10)))

	s := e.Compute("BTC")
	require.NotNil(t, s)
	// 15m lookup lands on the 110 point at base+10m
	assert.InDelta(t, (130.0-110)/110*100, s.PriceChange15m, 1e-9)
	// 30m lookup lands on the base point
	assert.InDelta(t, 30.0, s.PriceChange30mPrev, 1e-9)
	// trailing bucket (120+130 vol = 20) vs prior bucket (110 vol = 10)
	assert.InDelta(t, 100.0, s.VolumeChange15m, 1e-9)

	// diff-of-diffs momentum: short avg 125, long avg 120
	wantMomentum := (130.0-125)/125*100 - (125.0-120)/120*100
	assert.InDelta(t, wantMomentum, s.Momentum, 1e-9)

	wantVol := (5.0 / 125) / (5.0 / 120)
	assert.InDelta(t, wantVol, s.VolatilityRatio, 1e-9)
}

func TestMomentumPointToPoint(t *testing.T) {
	e := NewEngine(testLogger(t), WithMomentumMode(MomentumPointToPoint))
	base := time.Unix(1_700_000_000, 0)
	require.True(t, e.Insert(point("BTC", base, 100, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(10*time.Minute), 110, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(30*time.Minute), 130, 10)))

	s := e.Compute("BTC")
	require.NotNil(t, s)
	// recent change (130 vs 110) minus prior change (110 vs 100)
	want := (130.0-110)/110*100 - 10.0
	assert.InDelta(t, want, s.Momentum, 1e-9)
}

func TestChangeRateClamped(t *testing.T) {
	e := NewEngine(testLogger(t))
	base := time.Unix(1_700_000_000, 0)
	require.True(t, e.Insert(point("BTC", base, 0.0001, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(15*time.Minute), 100, 10)))

	s := e.Compute("BTC")
	require.NotNil(t, s)
	assert.Equal(t, 1000.0, s.PriceChange15m)

	e = NewEngine(testLogger(t))
	require.True(t, e.Insert(point("BTC", base, 100, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(15*time.Minute), 0.0001, 10)))
	s = e.Compute("BTC")
	require.NotNil(t, s)
	assert.Equal(t, -1000.0, s.PriceChange15m)
}

func TestInsertRejectsOutOfOrder(t *testing.T) {
	e := NewEngine(testLogger(t))
	base := time.Unix(1_700_000_000, 0)
	require.True(t, e.Insert(point("BTC", base, 100, 10)))
	assert.False(t, e.Insert(point("BTC", base.Add(-time.Minute), 99, 10)))
	// equal timestamps are allowed
	assert.True(t, e.Insert(point("BTC", base, 101, 10)))
}

func TestRetentionEviction(t *testing.T) {
	e := NewEngine(testLogger(t), WithRetention(4*time.Hour))
	base := time.Unix(1_700_000_000, 0)
	require.True(t, e.Insert(point("BTC", base, 100, 10)))
	require.True(t, e.Insert(point("BTC", base.Add(5*time.Hour), 110, 10)))

	got := e.Window("BTC", time.Unix(0, 0))
	require.Len(t, got, 1)
	assert.Equal(t, 110.0, got[0].Price)
}

func TestBufferCapTrimsOldest(t *testing.T) {
	e := NewEngine(testLogger(t), WithBufferCap(3), WithRetention(24*time.Hour))
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		require.True(t, e.Insert(point("BTC", base.Add(time.Duration(i)*time.Minute), float64(100+i), 10)))
	}

	got := e.Window("BTC", time.Unix(0, 0))
	require.Len(t, got, 3)
	assert.Equal(t, 102.0, got[0].Price)
	assert.Equal(t, 104.0, got[2].Price)
}

func TestEvictExpiredSweepsAllSymbols(t *testing.T) {
	e := NewEngine(testLogger(t), WithRetention(time.Hour))
	base := time.Unix(1_700_000_000, 0)
	require.True(t, e.Insert(point("BTC", base, 100, 10)))
	require.True(t, e.Insert(point("ETH", base.Add(90*time.Minute), 50, 10)))

	e.EvictExpired(base.Add(2 * time.Hour))
	assert.Empty(t, e.Window("BTC", time.Unix(0, 0)))
	assert.Len(t, e.Window("ETH", time.Unix(0, 0)), 1)
}

func TestLastConsensusReturnsCopy(t *testing.T) {
	e := NewEngine(testLogger(t))
	base := time.Unix(1_700_000_000, 0)
	require.True(t, e.Insert(point("BTC", base, 100, 10)))

	p := e.LastConsensus("BTC")
	require.NotNil(t, p)
	p.Price = 0

	again := e.LastConsensus("BTC")
	assert.Equal(t, 100.0, again.Price)
}
