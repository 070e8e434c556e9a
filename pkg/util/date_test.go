package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeRFC3339(t *testing.T) {
	got, ok := ParseTime("2026-03-01T09:30:00Z")
	assert.True(t, ok)
	assert.Equal(t, "2026-03-01T09:30:00Z", got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnixSeconds(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	assert.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeGarbage(t *testing.T) {
	_, ok := ParseTime("not-a-time")
	assert.False(t, ok)

	_, ok = ParseTime("")
	assert.False(t, ok)
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.False(t, ParseTimeDefault("2026-03-02T00:00:00Z", def).Equal(def))
}
