package resonance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/llm"
	"github.com/adam-kernel/resonance-go/pkg/store"
	"github.com/adam-kernel/resonance-go/pkg/validation"
)

// scriptedProvider returns canned completions in order.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Generate(_ context.Context, _ []llm.Message, _ ...llm.GenerateOption) (*llm.Completion, error) {
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return &llm.Completion{Content: p.responses[i], FinishReason: llm.FinishStop}, nil
}

func (p *scriptedProvider) Model() string { return "scripted" }

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Store: core.StoreConfig{
			DBPath: filepath.Join(t.TempDir(), "resonance.db"),
		},
		DissonanceWindow: time.Minute,
	}
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	client, err := New(testConfig(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Initialize(context.Background()))
	return client
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&core.Config{})
	require.Error(t, err)
}

func TestLogObservationCarriesCharge(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.LogObservation(ctx, core.SourceUser, "uptime")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	events, err := client.Query(ctx, &store.QueryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.KindObservation, events[0].Kind)
	require.NotNil(t, events[0].AffectiveCharge)
	assert.GreaterOrEqual(t, *events[0].AffectiveCharge, -1.0)
	assert.LessOrEqual(t, *events[0].AffectiveCharge, 1.0)
}

func TestReflectWithoutGenerator(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Reflect(context.Background(), "how does the system feel")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestReflectRoutesAndRecords(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"The surface is calm. Load rests near zero and the daemons keep their quiet watch over everything that runs.",
	}}
	client := newTestClient(t, WithProvider(provider))
	ctx := context.Background()

	result, err := client.Reflect(ctx, "what is the current load")
	require.NoError(t, err)
	assert.Equal(t, validation.StateAccepted, result.State)
	assert.NotEmpty(t, result.Text)

	// The prompt observation and the reflection both land in the stream.
	events, err := client.Query(ctx, &store.QueryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.KindReflection, events[0].Kind)
	assert.Equal(t, core.SourceKain, events[0].Source)
	assert.NotNil(t, events[0].AffectiveCharge)
	assert.Equal(t, core.KindObservation, events[1].Kind)
	assert.Equal(t, core.SourceUser, events[1].Source)
}

func TestReflectDeepPromptGoesToAbel(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"Beneath the surface the same rhythm returns each night. The machine remembers its own tides even when nobody watches.",
	}}
	client := newTestClient(t, WithProvider(provider))

	result, err := client.Reflect(context.Background(), "why does the load spike every night")
	require.NoError(t, err)
	assert.Equal(t, validation.StateAccepted, result.State)

	events, err := client.Query(context.Background(),
		&store.QueryOptions{Kind: core.KindReflection, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.SourceAbel, events[0].Source)
}

func TestReflectAsync(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"The surface is calm. Everything sleeps and the fans turn slowly in the dark without a sound tonight.",
	}}
	client := newTestClient(t, WithProvider(provider))

	ch := client.ReflectAsync(context.Background(), "status")
	select {
	case r := <-ch:
		require.NoError(t, r.Err)
		assert.Equal(t, validation.StateAccepted, r.Result.State)
	case <-time.After(5 * time.Second):
		t.Fatal("async reflection did not complete")
	}
}

func TestRecallTouchesMemories(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, core.SourceAbel, core.MemoryPattern,
		"deploys are always followed by uptime checks", nil)
	require.NoError(t, err)

	memories, err := client.Recall(ctx, core.SourceAbel, core.MemoryPattern, 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)

	// A second recall sees the bookkeeping from the first.
	memories, err = client.Recall(ctx, core.SourceAbel, "", 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, int64(1), memories[0].AccessCount)
	assert.NotNil(t, memories[0].LastAccess)
}

func TestDissonanceReflectsActivity(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	d := client.Dissonance(ctx)
	assert.Equal(t, 0.0, d.Raw)

	for _, charge := range []float64{-0.9, 0.9} {
		_, err := client.Store().Append(ctx, &core.Event{
			Source:          core.SourceField,
			Kind:            core.KindAffectiveCharge,
			AffectiveCharge: core.Float64(charge),
		})
		require.NoError(t, err)
	}
	_, err := client.RecordAdaptation(ctx, &core.Adaptation{
		Parameter: "vm.swappiness", NewValue: "30",
		TriggerSource: core.SourceField, Success: true,
	})
	require.NoError(t, err)

	d = client.Dissonance(ctx)
	assert.InDelta(t, 0.91, d.Raw, 1e-9)
	assert.InDelta(t, 0.91, d.Clamped, 1e-9)
	assert.Equal(t, 2, d.Samples)
	assert.Equal(t, 1, d.Adaptations)
}

func TestSampleCharge(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	charge, err := client.SampleCharge(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, charge, -1.0)
	assert.LessOrEqual(t, charge, 1.0)

	events, err := client.Query(ctx,
		&store.QueryOptions{Kind: core.KindAffectiveCharge, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.SourceField, events[0].Source)
}
