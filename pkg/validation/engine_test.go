package validation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/llm"
	"github.com/adam-kernel/resonance-go/pkg/store"
	"github.com/adam-kernel/resonance-go/pkg/store/sqlite"
)

const goodReflection = "The surface is calm. Load rests near zero, and the daemons keep their silent watch over a machine at ease."

const leakyReflection = "First, I'll analyze this. Then I'll conclude. 1. Check input 2. Process"

// fakeProvider replays scripted completions and records the temperatures it
// was asked for.
type fakeProvider struct {
	completions []llm.Completion
	errs        []error
	temps       []float64
	calls       int
}

func (f *fakeProvider) Generate(_ context.Context, _ []llm.Message, opts ...llm.GenerateOption) (*llm.Completion, error) {
	options := llm.ApplyOptions(opts...)
	if options.Temperature != nil {
		f.temps = append(f.temps, *options.Temperature)
	}
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.completions) {
		i = len(f.completions) - 1
	}
	c := f.completions[i]
	return &c, nil
}

func (f *fakeProvider) Model() string { return "fake-model" }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "resonance.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Initialize(context.Background()))
	return client
}

func newTestEngine(t *testing.T, provider llm.Provider, s store.Store) *Engine {
	t.Helper()
	engine, err := NewEngine(provider, s, nil, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func baseRequest() *Request {
	return &Request{
		Source:      core.SourceKain,
		PersonaName: "Kain",
		System:      "You are Kain, the surface mirror of this machine.",
		Prompt:      "how does the system feel",
		Temperature: 0.7,
	}
}

func TestRespondAcceptedFirstTry(t *testing.T) {
	s := newTestStore(t)
	provider := &fakeProvider{completions: []llm.Completion{
		{Content: goodReflection, FinishReason: llm.FinishStop},
	}}
	engine := newTestEngine(t, provider, s)

	result, err := engine.Respond(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, result.State)
	assert.Equal(t, goodReflection, result.Text)
	assert.Equal(t, 1, result.Attempts)
	assert.NotEmpty(t, result.RequestID)
	assert.True(t, result.Verdict.OK())

	// Exactly one reflection event lands in the stream.
	events, err := s.Query(context.Background(), &store.QueryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.KindReflection, events[0].Kind)
	assert.Equal(t, core.SourceKain, events[0].Source)
	assert.Equal(t, result.RequestID, events[0].Metadata["request_id"])
}

func TestRespondAcceptedOnRetry(t *testing.T) {
	s := newTestStore(t)
	provider := &fakeProvider{completions: []llm.Completion{
		{Content: leakyReflection, FinishReason: llm.FinishStop},
		{Content: goodReflection, FinishReason: llm.FinishStop},
	}}
	engine := newTestEngine(t, provider, s)

	result, err := engine.Respond(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, StateAcceptedOnRetry, result.State)
	assert.Equal(t, goodReflection, result.Text)
	assert.Equal(t, FamilyProcessLeak, result.Verdict.Family)
	assert.Equal(t, 2, result.Attempts)

	// The retry runs at the boosted temperature.
	require.Len(t, provider.temps, 2)
	assert.InDelta(t, 0.7, provider.temps[0], 1e-9)
	assert.InDelta(t, 0.9, provider.temps[1], 1e-9)

	// Exactly two events: the suspect diagnostic and the reflection, in
	// that order.
	events, err := s.Query(context.Background(), &store.QueryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.KindReflection, events[0].Kind)
	assert.Equal(t, core.KindDiagnostic, events[1].Kind)
	assert.Equal(t, "suspect", events[1].Metadata["state"])
	assert.Equal(t, string(FamilyProcessLeak), events[1].Metadata["family"])
	assert.Equal(t, result.RequestID, events[1].Metadata["request_id"])
}

func TestRespondRetryTemperatureCapped(t *testing.T) {
	provider := &fakeProvider{completions: []llm.Completion{
		{Content: leakyReflection, FinishReason: llm.FinishStop},
		{Content: goodReflection, FinishReason: llm.FinishStop},
	}}
	engine := newTestEngine(t, provider, nil)

	req := baseRequest()
	req.Temperature = 0.95
	_, err := engine.Respond(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, provider.temps, 2)
	assert.InDelta(t, 1.0, provider.temps[1], 1e-9)
}

func TestRespondDegradesAfterTwoBreaks(t *testing.T) {
	s := newTestStore(t)
	provider := &fakeProvider{completions: []llm.Completion{
		{Content: leakyReflection, FinishReason: llm.FinishStop},
		{Content: "First, I'll analyze the load. Then I'll check memory.\n\nThe machine rests quietly beneath its own weight.", FinishReason: llm.FinishStop},
	}}
	engine := newTestEngine(t, provider, s)

	result, err := engine.Respond(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, StateDegraded, result.State)
	// The last paragraph of the retry is salvaged.
	assert.Equal(t, "The machine rests quietly beneath its own weight.", result.Text)
	assert.Equal(t, FamilyProcessLeak, result.Verdict.Family)

	// The degraded terminal still records its reflection, plus both
	// diagnostics: the first suspect verdict and the degradation, each with
	// its own offending excerpt.
	events, err := s.Query(context.Background(), &store.QueryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, core.KindReflection, events[0].Kind)
	assert.Equal(t, result.Text, events[0].Content)
	assert.Equal(t, core.KindDiagnostic, events[1].Kind)
	assert.Equal(t, string(StateDegraded), events[1].Metadata["state"])
	assert.NotEmpty(t, events[1].Metadata["offending_text"])
	assert.Equal(t, core.KindDiagnostic, events[2].Kind)
	assert.Equal(t, "suspect", events[2].Metadata["state"])
	assert.NotEmpty(t, events[2].Metadata["offending_text"])
}

func TestRespondDegradedSingleParagraphRetryKeepsFirstAttempt(t *testing.T) {
	s := newTestStore(t)
	firstText := "First, I'll analyze the disks. Then I'll report on the memory usage."
	provider := &fakeProvider{completions: []llm.Completion{
		{Content: firstText, FinishReason: llm.FinishStop},
		{Content: "Let me walk through it. First, the load. Then I check the memory.", FinishReason: llm.FinishStop},
	}}
	engine := newTestEngine(t, provider, s)

	result, err := engine.Respond(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, StateDegraded, result.State)
	// A one-paragraph retry has no closing paragraph to salvage; the first
	// cleaned attempt is returned instead of the retry's own break.
	assert.Equal(t, firstText, result.Text)
}

func TestRespondGeneratorFailureIsDegradedNotError(t *testing.T) {
	s := newTestStore(t)
	provider := &fakeProvider{errs: []error{core.ErrGeneratorTimeout}}
	engine := newTestEngine(t, provider, s)

	req := baseRequest()
	req.Fallback = "The mirror is dark."
	result, err := engine.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StateDegraded, result.State)
	assert.Equal(t, "The mirror is dark.", result.Text)
	assert.Equal(t, 1, result.Attempts)

	events, err := s.Query(context.Background(), &store.QueryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.KindReflection, events[0].Kind)
	assert.Equal(t, "The mirror is dark.", events[0].Content)
	assert.Equal(t, core.KindDiagnostic, events[1].Kind)
}

func TestRespondDefaultFallback(t *testing.T) {
	provider := &fakeProvider{errs: []error{core.ErrGeneratorTransport}}
	engine := newTestEngine(t, provider, nil)

	result, err := engine.Respond(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, StateDegraded, result.State)
	assert.Equal(t, defaultFallback, result.Text)
	assert.NotEmpty(t, result.Text)
}

func TestRespondContinuesTruncatedResponse(t *testing.T) {
	provider := &fakeProvider{completions: []llm.Completion{
		{Content: "The load is light tonight and the memory pressure is ", FinishReason: llm.FinishLength},
		{Content: "easing as the caches drain slowly into the quiet.", FinishReason: llm.FinishStop},
	}}
	engine := newTestEngine(t, provider, nil)

	result, err := engine.Respond(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, result.State)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.Text, "The load is light tonight")
	assert.Contains(t, result.Text, "into the quiet.")
}

func TestRespondInvalidRequest(t *testing.T) {
	engine := newTestEngine(t, &fakeProvider{completions: []llm.Completion{{}}}, nil)

	_, err := engine.Respond(context.Background(), nil)
	require.Error(t, err)

	_, err = engine.Respond(context.Background(), &Request{Source: core.SourceKain})
	require.Error(t, err)
}
