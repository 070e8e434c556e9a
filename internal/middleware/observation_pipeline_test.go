package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinSentry/internal/domain/models"
)

type recordingProc struct {
	mu   sync.Mutex
	got  []*models.Observation
	fail error
}

func (r *recordingProc) Process(_ context.Context, o *models.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, o)
	return nil
}

func (r *recordingProc) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordFetch(string, string)           {}
func (m *countingMetrics) RecordConsensus(string, float64, int) {}
func (m *countingMetrics) RecordLatency(string, float64)        {}
func (m *countingMetrics) RecordAlert(string, string)           {}
func (m *countingMetrics) RecordExchangeHealth(string, bool)    {}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func validObservation(symbol string) *models.Observation {
	return &models.Observation{
		Symbol:    symbol,
		Exchange:  "okx",
		Price:     50000,
		Volume:    1.5,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestProcessForwardsValidObservation(t *testing.T) {
	proc := &recordingProc{}
	metrics := newCountingMetrics()
	p := NewObservationPipeline(proc, metrics)

	err := p.Process(context.Background(), validObservation("BTC"))
	require.NoError(t, err)
	assert.Equal(t, 1, proc.count())
}

func TestProcessRejectsInvalidObservations(t *testing.T) {
	proc := &recordingProc{}
	metrics := newCountingMetrics()
	p := NewObservationPipeline(proc, metrics)

	cases := []struct {
		name string
		obs  *models.Observation
	}{
		{"nil", nil},
		{"empty symbol", &models.Observation{Timestamp: 1, Price: 1}},
		{"zero timestamp", &models.Observation{Symbol: "BTC", Price: 1}},
		{"negative price", &models.Observation{Symbol: "BTC", Timestamp: 1, Price: -1}},
		{"negative volume", &models.Observation{Symbol: "BTC", Timestamp: 1, Price: 1, Volume: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, p.Process(context.Background(), tc.obs))
		})
	}
	assert.Equal(t, 0, proc.count())
	assert.Equal(t, len(cases), metrics.errorCount("pipeline_validate"))
}

func TestProcessThrottlesPerSymbol(t *testing.T) {
	proc := &recordingProc{}
	metrics := newCountingMetrics()
	p := NewObservationPipeline(proc, metrics, WithMaxRPS(1))

	require.NoError(t, p.Process(context.Background(), validObservation("BTC")))
	// second tick inside the same second is dropped without error
	require.NoError(t, p.Process(context.Background(), validObservation("BTC")))
	assert.Equal(t, 1, proc.count())
	assert.Equal(t, 1, metrics.errorCount("pipeline_throttle"))

	// a different symbol has its own budget
	require.NoError(t, p.Process(context.Background(), validObservation("ETH")))
	assert.Equal(t, 2, proc.count())
}

func TestProcessBuffersOnDownstreamError(t *testing.T) {
	proc := &recordingProc{fail: errors.New("downstream down")}
	metrics := newCountingMetrics()
	p := NewObservationPipeline(proc, metrics, WithBufferSize(10))

	err := p.Process(context.Background(), validObservation("BTC"))
	require.Error(t, err)
	assert.Equal(t, 1, metrics.errorCount("pipeline_process"))

	// recover downstream and let the flusher drain the buffer
	proc.mu.Lock()
	proc.fail = nil
	proc.mu.Unlock()

	p.Start(context.Background())
	defer p.Stop()

	assert.Eventually(t, func() bool {
		return proc.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBufferFullDropsObservation(t *testing.T) {
	proc := &recordingProc{fail: errors.New("downstream down")}
	metrics := newCountingMetrics()
	p := NewObservationPipeline(proc, metrics, WithBufferSize(1), WithMaxRPS(1000))

	for i := 0; i < 3; i++ {
		o := validObservation("BTC")
		o.Timestamp += int64(i)
		_ = p.Process(context.Background(), o)
		time.Sleep(2 * time.Millisecond)
	}

	// first failure fills the single slot, the next two are dropped
	assert.Equal(t, 2, metrics.errorCount("pipeline_buffer_full"))
}
