package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitFirstCallImmediate(t *testing.T) {
	l := New(time.Second, 0)
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "okx"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.False(t, l.LastCall("okx").IsZero())
}

func TestWaitEnforcesMinInterval(t *testing.T) {
	const minInterval = 30 * time.Millisecond
	l := New(minInterval, 0)
	ctx := context.Background()

	var calls []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(ctx, "okx"))
		calls = append(calls, l.LastCall("okx"))
	}
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), minInterval,
			"calls %d and %d too close", i-1, i)
	}
}

func TestWaitDistinctKeysIndependent(t *testing.T) {
	l := New(time.Second, 0)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "okx"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "binance"))
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"a second key must not wait on the first key's interval")
}

func TestWaitContextCancel(t *testing.T) {
	l := New(time.Minute, 0)
	require.NoError(t, l.Wait(context.Background(), "okx"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "okx")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitJitterWithinBound(t *testing.T) {
	const minInterval = 10 * time.Millisecond
	const jitter = 20 * time.Millisecond
	l := New(minInterval, jitter)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "okx"))
	first := l.LastCall("okx")
	require.NoError(t, l.Wait(ctx, "okx"))
	gap := l.LastCall("okx").Sub(first)

	assert.GreaterOrEqual(t, gap, minInterval)
	// upper bound is best effort; allow scheduling slack
	assert.Less(t, gap, minInterval+jitter+50*time.Millisecond)
}
