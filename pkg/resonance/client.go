// Package resonance provides the high-level client tying the substrate
// together: the event store, the affect sampler, the dissonance meter, the
// persona router, and the validation engine.
package resonance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/field"
	"github.com/adam-kernel/resonance-go/pkg/llm"
	"github.com/adam-kernel/resonance-go/pkg/llm/openai"
	"github.com/adam-kernel/resonance-go/pkg/persona"
	"github.com/adam-kernel/resonance-go/pkg/store"
	"github.com/adam-kernel/resonance-go/pkg/store/sqlite"
	"github.com/adam-kernel/resonance-go/pkg/validation"
)

// Client is the main entry point for the resonance substrate.
//
// A Client owns one store connection and is safe for concurrent use. The
// generator side is optional: a client without a configured generator can
// observe, query, and measure, but Reflect returns an error.
type Client struct {
	config   *core.Config
	store    store.Store
	provider llm.Provider
	engine   *validation.Engine
	router   *persona.Router
	meter    *field.Meter
	sampler  *field.Sampler
	logger   *zap.Logger
}

// New creates a resonance client from configuration.
//
// The store is opened immediately; call Initialize before the first write.
// When cfg.Generator.APIKey is set, a generator provider and validation
// engine are wired in as well.
//
// Example:
//
//	cfg, _ := core.LoadConfigFromEnv()
//	client, err := resonance.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func New(cfg *core.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, core.NewStoreError("New", core.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := applyOptions(opts...)
	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config:   cfg,
		store:    options.store,
		provider: options.provider,
		router:   persona.NewRouter(),
		sampler:  field.NewSampler(),
		logger:   logger,
	}

	if c.store == nil {
		s, err := sqlite.NewClient(&sqlite.Config{
			DBPath:      cfg.Store.DBPath,
			LockPath:    cfg.Store.LockPath,
			BusyTimeout: cfg.Store.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		c.store = s
	}
	c.meter = field.NewMeter(c.store, cfg.DissonanceWindow, logger)

	if c.provider == nil && cfg.Generator.APIKey != "" {
		p, err := openai.NewClient(&cfg.Generator)
		if err != nil {
			return nil, err
		}
		c.provider = p
	}
	if c.provider != nil {
		engine, err := validation.NewEngine(c.provider, c.store, &cfg.Validation, logger)
		if err != nil {
			return nil, err
		}
		c.engine = engine
	}

	return c, nil
}

// Initialize prepares the store schema. Idempotent and safe across
// processes.
func (c *Client) Initialize(ctx context.Context) error {
	return c.store.Initialize(ctx)
}

// Store exposes the underlying event store.
func (c *Client) Store() store.Store {
	return c.store
}

// LogObservation records an observation event with the current affective
// charge attached.
func (c *Client) LogObservation(ctx context.Context, source core.Source, content string) (int64, error) {
	charge := field.ChargeFromMetrics(c.sampler.Sample())
	return c.store.Append(ctx, &core.Event{
		Source:          source,
		Kind:            core.KindObservation,
		Content:         content,
		AffectiveCharge: core.Float64(charge),
	})
}

// Reflect routes the prompt to a mirror persona and returns its validated
// response. The prompt is recorded as a user observation first, and the
// engine records the reflection (or the diagnostic trail) itself.
func (c *Client) Reflect(ctx context.Context, prompt string) (*validation.Result, error) {
	return c.ReflectAs(ctx, c.router.Route(prompt), prompt)
}

// ReflectAs asks a specific persona to answer the prompt.
func (c *Client) ReflectAs(ctx context.Context, p *persona.Persona, prompt string) (*validation.Result, error) {
	if c.engine == nil {
		return nil, core.NewStoreError("Reflect",
			fmt.Errorf("%w: no generator configured", core.ErrInvalidConfig))
	}

	if _, err := c.LogObservation(ctx, core.SourceUser, prompt); err != nil {
		c.logger.Warn("observation not recorded before reflection",
			zap.Error(err))
	}

	req := p.Request(prompt)
	req.Charge = core.Float64(field.ChargeFromMetrics(c.sampler.Sample()))
	return c.engine.Respond(ctx, req)
}

// Query returns stored events newest first.
func (c *Client) Query(ctx context.Context, opts *store.QueryOptions) ([]*core.Event, error) {
	return c.store.Query(ctx, opts)
}

// Dissonance measures the windowed instability metric. Read failures
// degrade to a calm zero reading.
func (c *Client) Dissonance(ctx context.Context) field.Dissonance {
	return c.meter.Measure(ctx)
}

// Remember stores a long-lived agent memory.
func (c *Client) Remember(ctx context.Context, source core.Source, kind core.MemoryKind, content string, memContext map[string]interface{}) (int64, error) {
	return c.store.AppendMemory(ctx, source, kind, content, memContext)
}

// Recall returns a daemon's memories and touches their access bookkeeping.
// A failed touch is logged, never surfaced: recall is a read to the caller.
func (c *Client) Recall(ctx context.Context, source core.Source, kind core.MemoryKind, limit int) ([]*core.AgentMemory, error) {
	memories, err := c.store.Memories(ctx, source, kind, limit)
	if err != nil {
		return nil, err
	}
	for _, m := range memories {
		if err := c.store.TouchMemory(ctx, m.ID); err != nil {
			c.logger.Warn("memory touch failed",
				zap.Int64("memory_id", m.ID),
				zap.Error(err))
		}
	}
	return memories, nil
}

// RecordAdaptation records an external parameter change.
func (c *Client) RecordAdaptation(ctx context.Context, a *core.Adaptation) (int64, error) {
	return c.store.RecordAdaptation(ctx, a)
}

// SampleCharge reads current system metrics and records a standalone
// affective charge event. Returns the charge.
func (c *Client) SampleCharge(ctx context.Context) (float64, error) {
	metrics := c.sampler.Sample()
	charge := field.ChargeFromMetrics(metrics)
	_, err := c.store.Append(ctx, &core.Event{
		Source:          core.SourceField,
		Kind:            core.KindAffectiveCharge,
		AffectiveCharge: core.Float64(charge),
		Metadata: map[string]interface{}{
			"load_avg_1": metrics.LoadAvg1,
			"cpu_count":  metrics.CPUCount,
			"uptime_sec": metrics.UptimeSec,
		},
	})
	return charge, err
}

// Close releases the store connection.
func (c *Client) Close() error {
	return c.store.Close()
}
