package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
symbols: [BTC, ETH]
exchanges:
  okx:
    enabled: true
    weight: 1.0
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60*time.Second, cfg.Poll.SpotInterval)
	assert.Equal(t, 15*time.Minute, cfg.Metrics.ShortWindow)
	assert.Equal(t, 30*time.Minute, cfg.Metrics.LongWindow)
	assert.Equal(t, "diff_of_diffs", cfg.Metrics.MomentumMode)
	assert.Equal(t, 2.0, cfg.Anomaly.Threshold)
	assert.Equal(t, 2.0, cfg.Aggregator.OutlierStddev)
	assert.Equal(t, 4, cfg.Aggregator.MinForOutlier)
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
symbols: []
exchanges:
  okx: {enabled: true, weight: 1.0}
`))
	assert.Error(t, err)
}

func TestLoadRejectsNoEnabledExchange(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
symbols: [BTC]
exchanges:
  okx: {enabled: false, weight: 1.0}
`))
	assert.Error(t, err)
}

func TestLoadRejectsInvertedWindows(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
metrics:
  short_window: 1h
  long_window: 30m
`))
	assert.Error(t, err)
}

func TestLoadRejectsBadMomentumMode(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
metrics:
  momentum_mode: quadratic
`))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "SOL,AVAX")
	t.Setenv("ANOMALY_THRESHOLD", "3.5")
	t.Setenv("OKX_WEIGHT", "2.5")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"SOL", "AVAX"}, cfg.Symbols)
	assert.Equal(t, 3.5, cfg.Anomaly.Threshold)
	assert.Equal(t, 2.5, cfg.Exchanges["okx"].Weight)
}

func TestRequestTimeoutEnvSpellings(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "2500")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.Retry.RequestTimeout)

	// the _MS spelling wins when both are set
	t.Setenv("REQUEST_TIMEOUT_MS", "750")
	cfg, err = LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Retry.RequestTimeout)
}

func TestExchangeWeightDefaultsToOne(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.ExchangeWeight("okx"))
	assert.Equal(t, 1.0, cfg.ExchangeWeight("unknown"))
}
