package usecase

import (
	"math"
	"testing"
	"time"

	"CoinSentry/internal/domain/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFlagsOutlier(t *testing.T) {
	d := NewDetector(2.0)
	population := []Sample{
		{EntityID: "a", Value: 10},
		{EntityID: "b", Value: 10},
		{EntityID: "c", Value: 10},
		{EntityID: "d", Value: 10},
		{EntityID: "e", Value: 1000},
	}

	out := d.Detect("volume_change", population)
	require.Len(t, out, 1)
	assert.Equal(t, "e", out[0].EntityID)
	assert.Equal(t, "volume_change", out[0].Metric)
	assert.Equal(t, 1000.0, out[0].Value)
	// mean 208, population stddev 396
	assert.InDelta(t, 2.0, out[0].ZScore, 1e-9)
	assert.Equal(t, models.SeverityMedium, out[0].Severity)
}

func TestDetectZeroVarianceNoFlags(t *testing.T) {
	d := NewDetector(2.0)
	population := []Sample{
		{EntityID: "a", Value: 10},
		{EntityID: "b", Value: 10},
		{EntityID: "c", Value: 10},
		{EntityID: "d", Value: 10},
		{EntityID: "e", Value: 10},
	}
	assert.Empty(t, d.Detect("volume_change", population))
}

func TestDetectTooFewSamples(t *testing.T) {
	d := NewDetector(2.0)
	assert.Nil(t, d.Detect("price_change", nil))
	assert.Nil(t, d.Detect("price_change", []Sample{{EntityID: "a", Value: 99}}))
}

func TestDetectSortedByAbsoluteZScore(t *testing.T) {
	d := NewDetector(1.0)
	population := []Sample{
		{EntityID: "quiet1", Value: 0},
		{EntityID: "quiet2", Value: 0},
		{EntityID: "quiet3", Value: 0},
		{EntityID: "up", Value: 10},
		{EntityID: "down", Value: -20},
	}

	out := d.Detect("price_change", population)
	require.Len(t, out, 2)
	assert.Equal(t, "down", out[0].EntityID)
	assert.Equal(t, "up", out[1].EntityID)
	assert.Greater(t, math.Abs(out[0].ZScore), math.Abs(out[1].ZScore))
	assert.Negative(t, out[0].ZScore)
}

func TestSeverityTiers(t *testing.T) {
	d := NewDetector(2.0)
	assert.Equal(t, models.SeverityMedium, d.severity(2.0))
	assert.Equal(t, models.SeverityMedium, d.severity(-2.4))
	assert.Equal(t, models.SeverityHigh, d.severity(2.6))
	assert.Equal(t, models.SeverityHigh, d.severity(-3.0))
	assert.Equal(t, models.SeverityCritical, d.severity(3.1))
	assert.Equal(t, models.SeverityCritical, d.severity(-4.0))
}

func TestDetectStampsDetectionTime(t *testing.T) {
	mock := clock.NewMock()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.Set(at)
	d := NewDetector(2.0, WithDetectorClock(mock))

	out := d.Detect("volume_change", []Sample{
		{EntityID: "a", Value: 10},
		{EntityID: "b", Value: 10},
		{EntityID: "c", Value: 10},
		{EntityID: "d", Value: 10},
		{EntityID: "e", Value: 1000},
	})
	require.Len(t, out, 1)
	assert.Equal(t, at.UnixMilli(), out[0].DetectedAt)
}
