package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSuppressor(t *testing.T, window time.Duration) *Suppressor {
	t.Helper()
	l, err := New(&Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return NewSuppressor(l, window)
}

func TestTrackFirstOccurrenceLogs(t *testing.T) {
	s := newTestSuppressor(t, time.Minute)

	se, repeats := s.track("okx:timeout")
	assert.NotNil(t, se)
	assert.Equal(t, 0, repeats)
}

func TestTrackRepeatsWithinWindowSuppressed(t *testing.T) {
	s := newTestSuppressor(t, time.Minute)

	s.track("okx:timeout")
	for i := 0; i < 5; i++ {
		se, _ := s.track("okx:timeout")
		assert.Nil(t, se)
	}
}

func TestTrackDistinctKeysIndependent(t *testing.T) {
	s := newTestSuppressor(t, time.Minute)

	s.track("okx:timeout")
	se, repeats := s.track("binance:timeout")
	assert.NotNil(t, se)
	assert.Equal(t, 0, repeats)
}

func TestTrackWindowRolloverReportsCount(t *testing.T) {
	s := newTestSuppressor(t, 10*time.Millisecond)

	s.track("okx:timeout")
	s.track("okx:timeout")
	s.track("okx:timeout")

	time.Sleep(20 * time.Millisecond)

	se, repeats := s.track("okx:timeout")
	assert.NotNil(t, se)
	assert.Equal(t, 2, repeats)
}

func TestZeroWindowDefaults(t *testing.T) {
	s := newTestSuppressor(t, 0)
	assert.Equal(t, time.Minute, s.window)
}
