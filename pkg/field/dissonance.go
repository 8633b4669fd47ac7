// Package field computes the adaptive resonance signals: windowed dissonance
// over recent affective charges, and the affective charge derived from
// sampled system metrics.
package field

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/store"
)

// adaptationWeight scales the adaptation count's contribution to dissonance:
// each recent adaptation adds 0.1 to the raw value.
const adaptationWeight = 10.0

// Dissonance is the windowed instability metric.
//
// Raw is unbounded above; Clamped is min(Raw, 1.0) for display and for
// threshold comparison against fixed scales.
type Dissonance struct {
	// Raw is charge variance plus the weighted adaptation count.
	Raw float64 `json:"raw"`

	// Clamped is Raw capped at 1.0.
	Clamped float64 `json:"clamped"`

	// Samples is the number of charges that entered the window.
	Samples int `json:"samples"`

	// Adaptations is the number of adaptations inside the window.
	Adaptations int `json:"adaptations"`
}

// Meter reports dissonance over a trailing window of stored charges.
type Meter struct {
	store  store.Store
	window time.Duration
	logger *zap.Logger
}

// NewMeter creates a dissonance meter over the given store. A zero window
// defaults to one minute.
func NewMeter(s store.Store, window time.Duration, logger *zap.Logger) *Meter {
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Meter{store: s, window: window, logger: logger}
}

// Measure computes the dissonance over the trailing window ending now.
//
// With fewer than two charges in the window the reading is exactly 0.0,
// adaptation count included: a single observation carries no spread, and
// silence is treated as calm rather than unknown. Store read failures
// degrade to a zero reading with a warning instead of propagating, so
// callers polling the meter never have to handle transient storage errors.
func (m *Meter) Measure(ctx context.Context) Dissonance {
	since := float64(time.Now().Add(-m.window).UnixNano()) / 1e9

	charges, err := m.store.ChargesSince(ctx, since)
	if err != nil {
		m.logger.Warn("dissonance charge read failed, reporting calm",
			zap.Error(err))
		return Dissonance{}
	}
	adaptations, err := m.store.AdaptationCountSince(ctx, since)
	if err != nil {
		m.logger.Warn("dissonance adaptation read failed, reporting calm",
			zap.Error(err))
		return Dissonance{}
	}

	return compute(charges, adaptations)
}

// compute derives the dissonance value from a charge sample and an
// adaptation count. Under two charges the whole reading is 0.0, the
// adaptation term included; variance is undefined there and undefined is
// reported as perfect stability.
func compute(charges []float64, adaptations int) Dissonance {
	d := Dissonance{
		Samples:     len(charges),
		Adaptations: adaptations,
	}
	if len(charges) < 2 {
		return d
	}
	d.Raw = variance(charges) + float64(adaptations)/adaptationWeight
	d.Clamped = d.Raw
	if d.Clamped > 1.0 {
		d.Clamped = 1.0
	}
	return d
}

// variance is the population variance (divide by n, not n-1): the window is
// the whole population of interest, not a sample from a larger one.
func variance(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		diff := v - mean
		sq += diff * diff
	}
	return sq / float64(len(values))
}
