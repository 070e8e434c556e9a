package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinSentry/internal/domain/models"
	"CoinSentry/internal/service/ratelimit"

	"github.com/stretchr/testify/assert"
)

type stubGateway struct{}

func (stubGateway) Init(context.Context) error { return nil }

func (stubGateway) SaveObservations(context.Context, []*models.Observation) error { return nil }

func (stubGateway) SaveSnapshot(context.Context, *models.MetricSnapshot) error { return nil }

func (stubGateway) SaveAlert(context.Context, *models.AnomalyRecord) error { return nil }
func (stubGateway) GetLatest(context.Context, string) (*models.MetricSnapshot, error) {
	return nil, nil
}
func (stubGateway) GetWindow(context.Context, string, time.Time, int) ([]*models.MetricSnapshot, error) {
	return nil, nil
}
func (stubGateway) GetAlerts(context.Context, string, string, int) ([]*models.AnomalyRecord, error) {
	return nil, nil
}
func (stubGateway) CleanupOlderThan(context.Context, time.Duration) error { return nil }

func (stubGateway) Health(context.Context) error { return nil }

func (stubGateway) Close() error { return nil }

type stubSink struct{}

func (stubSink) Publish(context.Context, *models.AnomalyRecord) error { return nil }

func (stubSink) Close() error { return nil }

// recordingMetrics counts latency and fetch recordings by key.
type recordingMetrics struct {
	mu      sync.Mutex
	latency map[string]int
	fetch   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{latency: make(map[string]int), fetch: make(map[string]int)}
}

func (m *recordingMetrics) RecordFetch(exchange, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetch[exchange+":"+outcome]++
}

func (m *recordingMetrics) RecordLatency(op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency[op]++
}

func (m *recordingMetrics) RecordConsensus(string, float64, int) {}
func (m *recordingMetrics) RecordError(string)                   {}
func (m *recordingMetrics) RecordAlert(string, string)           {}
func (m *recordingMetrics) RecordExchangeHealth(string, bool)    {}

func (m *recordingMetrics) latencyCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency[op]
}

func (m *recordingMetrics) fetchCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetch[key]
}

type fakeOptionSource struct {
	id    string
	chain []models.OptionContract
	err   error
}

func (f *fakeOptionSource) ID() string { return f.id }

func (f *fakeOptionSource) GetOptionChain(context.Context, string) ([]models.OptionContract, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chain, nil
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(testLogger(t))
}

func healthByID(agg *Aggregator) map[string]models.ExchangeHealth {
	byID := map[string]models.ExchangeHealth{}
	for _, h := range agg.HealthSnapshot() {
		byID[h.Exchange] = h
	}
	return byID
}

func TestOptionCycleGoesThroughVenueLimiter(t *testing.T) {
	limiter := ratelimit.New(0, 0)
	metrics := newRecordingMetrics()
	agg := newTestAggregator(t, []*fakeAdapter{{id: "okx", weight: 1, price: 100}})
	src := &fakeOptionSource{id: "okx", chain: []models.OptionContract{
		{ContractID: "BTC-USD-261225-60000-C", Volume: 10, ImpliedVol: 0.5},
		{ContractID: "BTC-USD-261225-70000-C", Volume: 12, ImpliedVol: 0.6},
	}}

	p := NewPoller(nil, agg, testEngine(t), NewDetector(2.0),
		stubGateway{}, stubSink{}, nil, metrics, testSuppressor(t),
		WithOptionChain(src, limiter, []string{"BTC"}))

	p.optionCycle(context.Background())

	// the chain fetch stamps the same limiter key the spot path uses
	assert.False(t, limiter.LastCall("okx").IsZero())
	assert.Equal(t, 1, metrics.fetchCount("okx:ok"))
	assert.Equal(t, models.HealthOK, healthByID(agg)["okx"].Status)
}

func TestOptionCycleFailureMarksVenueUnhealthy(t *testing.T) {
	limiter := ratelimit.New(0, 0)
	metrics := newRecordingMetrics()
	agg := newTestAggregator(t, []*fakeAdapter{{id: "okx", weight: 1, price: 100}})
	src := &fakeOptionSource{id: "okx", err: errors.New("remote down")}

	p := NewPoller(nil, agg, testEngine(t), NewDetector(2.0),
		stubGateway{}, stubSink{}, nil, metrics, testSuppressor(t),
		WithOptionChain(src, limiter, []string{"BTC"}))

	p.optionCycle(context.Background())

	assert.Equal(t, 1, metrics.fetchCount("okx:error"))
	h := healthByID(agg)["okx"]
	assert.Equal(t, models.HealthError, h.Status)
	assert.Equal(t, 1, h.ConsecutiveErrs)
}

func TestPollerRestartsAfterStop(t *testing.T) {
	metrics := newRecordingMetrics()
	agg := newTestAggregator(t, nil)

	p := NewPoller(nil, agg, testEngine(t), NewDetector(2.0),
		stubGateway{}, stubSink{}, nil, metrics, testSuppressor(t),
		WithIntervals(time.Hour, time.Hour, time.Hour),
		WithStopGrace(200*time.Millisecond))

	ctx := context.Background()
	p.Start(ctx)
	assert.Eventually(t, func() bool {
		return metrics.latencyCount("spot_cycle") >= 1
	}, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	before := metrics.latencyCount("spot_cycle")
	p.Start(ctx)
	assert.Eventually(t, func() bool {
		return metrics.latencyCount("spot_cycle") > before
	}, 2*time.Second, 5*time.Millisecond)
	p.Stop()
}
