package exchange

import (
	"testing"
	"time"

	"CoinSentry/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSuppressor(t *testing.T) *logger.Suppressor {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return logger.NewSuppressor(l, time.Minute)
}

func TestSafeFloat(t *testing.T) {
	b := &base{id: "okx", log: testSuppressor(t)}

	assert.Equal(t, 50123.45, b.safeFloat("last", "50123.45"))
	assert.Equal(t, 0.0, b.safeFloat("last", ""))
	assert.Equal(t, 0.0, b.safeFloat("last", "n/a"))
}

func TestSafeInt64(t *testing.T) {
	b := &base{id: "okx", log: testSuppressor(t)}

	assert.Equal(t, int64(1756167000000), b.safeInt64("ts", "1756167000000"))
	assert.Equal(t, int64(0), b.safeInt64("ts", "soon"))
}

func TestParseCompactDate(t *testing.T) {
	ms, err := parseCompactDate("240927")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 27, 0, 0, 0, 0, time.UTC).UnixMilli(), ms)

	_, err = parseCompactDate("24-09-27")
	assert.Error(t, err)
}

func TestParseContractID(t *testing.T) {
	o := NewOKX(nil, testSuppressor(t), "", 1.0)

	c, ok := o.parseContractID("BTC-USD-240927-50000-C")
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", c.Underlying)
	assert.Equal(t, 50000.0, c.Strike)
	assert.Equal(t, "call", c.Type)
	assert.Equal(t, time.Date(2024, 9, 27, 0, 0, 0, 0, time.UTC).UnixMilli(), c.ExpiryMillis)

	c, ok = o.parseContractID("ETH-USD-241231-4000-P")
	require.True(t, ok)
	assert.Equal(t, "put", c.Type)

	_, ok = o.parseContractID("BTC-USDT")
	assert.False(t, ok)

	_, ok = o.parseContractID("BTC-USD-240927-50000-X")
	assert.False(t, ok)
}

func TestInstrumentNaming(t *testing.T) {
	sup := testSuppressor(t)

	okx := NewOKX(nil, sup, "", 1.0)
	assert.Equal(t, "BTC-USDT", okx.instID("btc"))

	bin := NewBinance(nil, sup, "", 1.0)
	assert.Equal(t, "BTCUSDT", bin.pair("btc"))
}
