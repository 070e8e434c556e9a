package usecase

import (
	"math"
	"sort"

	"CoinSentry/internal/domain/models"

	"github.com/benbjohnson/clock"
)

// Sample is one (entity, value) pair of a detection population.
type Sample struct {
	EntityID string
	Value    float64
}

// Detector flags entities whose metric value deviates from their peers in
// the same cycle. The z-score is cross-sectional: each entity is compared to
// the rest of the batch, not to its own history, so anomalies are never
// carried across cycles.
type Detector struct {
	threshold float64
	clk       clock.Clock
}

// DetectorOption configures Detector.
type DetectorOption func(*Detector)

// WithDetectorClock injects a clock, used by tests.
func WithDetectorClock(c clock.Clock) DetectorOption {
	return func(d *Detector) { d.clk = c }
}

// NewDetector creates a detector with the given z-score threshold.
func NewDetector(threshold float64, opts ...DetectorOption) *Detector {
	if threshold <= 0 {
		threshold = 2.0
	}
	d := &Detector{threshold: threshold, clk: clock.New()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect computes cross-sectional z-scores over the population and returns a
// record for every entity with |z| at or above the threshold, sorted by |z|
// descending. A zero-variance population yields no flags; constant
// populations must not produce false positives or a division by zero.
func (d *Detector) Detect(metric string, population []Sample) []models.AnomalyRecord {
	if len(population) < 2 {
		return nil
	}

	var sum float64
	for _, s := range population {
		sum += s.Value
	}
	mean := sum / float64(len(population))

	var ss float64
	for _, s := range population {
		diff := s.Value - mean
		ss += diff * diff
	}
	sigma := math.Sqrt(ss / float64(len(population)))
	if sigma == 0 {
		return nil
	}

	now := d.clk.Now().UnixMilli()
	var out []models.AnomalyRecord
	for _, s := range population {
		z := (s.Value - mean) / sigma
		// Inclusive bound: a lone outlier in a small population can land
		// exactly on the threshold, and it still counts.
		if math.Abs(z) < d.threshold {
			continue
		}
		out = append(out, models.AnomalyRecord{
			EntityID:   s.EntityID,
			Metric:     metric,
			Value:      s.Value,
			ZScore:     z,
			Severity:   d.severity(z),
			DetectedAt: now,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].ZScore) > math.Abs(out[j].ZScore)
	})
	return out
}

func (d *Detector) severity(z float64) string {
	abs := math.Abs(z)
	switch {
	case abs > 1.5*d.threshold:
		return models.SeverityCritical
	case abs > 1.25*d.threshold:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}
