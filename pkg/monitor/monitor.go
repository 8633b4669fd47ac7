// Package monitor samples ambient system metrics on an interval and feeds
// kernel_state events into the resonance stream. When memory pressure stays
// high it can drive a tunable adjustment through an injected apply hook.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/field"
	"github.com/adam-kernel/resonance-go/pkg/store"
)

// lowMemoryRatio is the free/total ratio under which the monitor proposes
// lowering swappiness.
const lowMemoryRatio = 0.1

// ApplyFunc applies a kernel tunable. Implementations typically write to
// /proc/sys; tests record the call.
type ApplyFunc func(parameter, value string) error

// metricsSource abstracts the sampler so tests can script pressure.
type metricsSource interface {
	Sample() core.SystemMetrics
}

// Monitor periodically samples system metrics into the event stream.
type Monitor struct {
	store    store.Store
	source   metricsSource
	logger   *zap.Logger
	interval time.Duration

	// apply, when set, lets the monitor act on sustained pressure instead
	// of only observing it.
	apply ApplyFunc

	// pressureTicks counts consecutive low-memory samples.
	pressureTicks int

	// adapted is set after one adjustment so the monitor proposes at most
	// one per run.
	adapted bool
}

// New creates a monitor. A zero interval defaults to 30 seconds; a nil
// apply hook limits the monitor to observation.
func New(s store.Store, interval time.Duration, apply ApplyFunc, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:    s,
		source:   field.NewSampler(),
		logger:   logger,
		interval: interval,
		apply:    apply,
	}
}

// Run samples until the context is cancelled. One sample is taken
// immediately, then one per interval.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick takes one sample, records it, and reacts to sustained pressure.
func (m *Monitor) tick(ctx context.Context) {
	metrics := m.source.Sample()
	charge := field.ChargeFromMetrics(metrics)

	snapshot, err := json.Marshal(metrics)
	if err != nil {
		m.logger.Warn("metrics snapshot not serializable", zap.Error(err))
		return
	}
	entropy := float64(metrics.EntropyAvail)
	_, err = m.store.Append(ctx, &core.Event{
		Source:          core.SourceField,
		Kind:            core.KindKernelState,
		Content:         string(snapshot),
		AffectiveCharge: core.Float64(charge),
		Entropy:         &entropy,
	})
	if err != nil {
		m.logger.Warn("kernel state not recorded", zap.Error(err))
	}

	m.react(ctx, metrics)
}

// react tracks consecutive low-memory samples and, after three in a row,
// proposes one swappiness reduction through the apply hook.
func (m *Monitor) react(ctx context.Context, metrics core.SystemMetrics) {
	if m.apply == nil || m.adapted || metrics.MemTotalKB == 0 {
		return
	}

	ratio := float64(metrics.MemFreeKB) / float64(metrics.MemTotalKB)
	if ratio >= lowMemoryRatio {
		m.pressureTicks = 0
		return
	}
	m.pressureTicks++
	if m.pressureTicks < 3 {
		return
	}

	const parameter = "vm.swappiness"
	const value = "10"
	applyErr := m.apply(parameter, value)
	if applyErr != nil {
		m.logger.Warn("tunable adjustment failed",
			zap.String("parameter", parameter),
			zap.Error(applyErr))
	}

	_, err := m.store.RecordAdaptation(ctx, &core.Adaptation{
		Parameter:     parameter,
		NewValue:      value,
		TriggerSource: core.SourceField,
		Reason: fmt.Sprintf("free memory ratio %.2f below %.2f for %d samples",
			ratio, lowMemoryRatio, m.pressureTicks),
		Success: applyErr == nil,
	})
	if err != nil {
		m.logger.Warn("adaptation not recorded", zap.Error(err))
	}
	m.adapted = true
}
