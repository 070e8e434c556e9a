package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinSentry/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream fails its first connection and serves ticks on the next one.
type fakeStream struct {
	mu            sync.Mutex
	readCalls     int
	reconnects    int
	reconnectFail int // number of Reconnect calls that error before one sticks
	firstReadErr  bool
	ticks         []*models.Observation
	connected     bool
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeStream) Subscribe(context.Context) error { return nil }

func (f *fakeStream) Read(context.Context) (<-chan *models.Observation, <-chan error) {
	f.mu.Lock()
	f.readCalls++
	n := f.readCalls
	f.mu.Unlock()

	obs := make(chan *models.Observation, 16)
	errs := make(chan error, 1)
	if n == 1 {
		if f.firstReadErr {
			errs <- errors.New("connection reset")
		}
		close(obs)
		close(errs)
		return obs, errs
	}
	for _, o := range f.ticks {
		obs <- o
	}
	return obs, errs
}

func (f *fakeStream) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	if f.reconnects <= f.reconnectFail {
		return errors.New("dial refused")
	}
	return nil
}

func (f *fakeStream) Close() error { return nil }

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) counts() (reads, recons int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls, f.reconnects
}

func TestCollectorResumesReadingAfterStreamError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := &models.Observation{
		Symbol: "BTC", Exchange: "binance",
		Price: 50000, Timestamp: time.Now().UnixMilli(),
	}
	fs := &fakeStream{firstReadErr: true, ticks: []*models.Observation{tick}}
	agg := newTestAggregator(t, nil)
	c := NewLiveCollector(fs, agg, fakeMetrics{}, nil)

	require.NoError(t, c.Start(ctx))

	// the tick arrives only if the second connection is actually consumed
	assert.Eventually(t, func() bool {
		return agg.takeLive("BTC", "binance") != nil
	}, 2*time.Second, 10*time.Millisecond)

	reads, recons := fs.counts()
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, recons)
}

func TestCollectorResumesAfterChannelsCloseWithoutError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := &models.Observation{
		Symbol: "ETH", Exchange: "binance",
		Price: 3000, Timestamp: time.Now().UnixMilli(),
	}
	fs := &fakeStream{ticks: []*models.Observation{tick}}
	agg := newTestAggregator(t, nil)
	c := NewLiveCollector(fs, agg, fakeMetrics{}, nil)

	require.NoError(t, c.Start(ctx))

	assert.Eventually(t, func() bool {
		return agg.takeLive("ETH", "binance") != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCollectorRetriesFailedReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := &models.Observation{
		Symbol: "BTC", Exchange: "binance",
		Price: 50000, Timestamp: time.Now().UnixMilli(),
	}
	fs := &fakeStream{firstReadErr: true, reconnectFail: 2, ticks: []*models.Observation{tick}}
	agg := newTestAggregator(t, nil)
	c := NewLiveCollector(fs, agg, fakeMetrics{}, nil)

	require.NoError(t, c.Start(ctx))

	assert.Eventually(t, func() bool {
		return agg.takeLive("BTC", "binance") != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, recons := fs.counts()
	assert.Equal(t, 3, recons)
}
