package validation

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/llm"
	"github.com/adam-kernel/resonance-go/pkg/store"
)

// State is the terminal outcome of one validation round.
type State string

const (
	// StateAccepted means the first generation passed classification.
	StateAccepted State = "accepted"

	// StateAcceptedOnRetry means the corrective regeneration passed.
	StateAcceptedOnRetry State = "accepted_on_retry"

	// StateDegraded means no generation passed; the caller still receives a
	// usable salvaged or fallback text. Degradation is observable in the
	// event stream, never an error.
	StateDegraded State = "degraded"
)

// defaultFallback is the last-resort response when nothing salvageable
// survives cleaning.
const defaultFallback = "The signal scatters. Ask again."

// continuationPrompt asks the generator to finish a truncated response.
const continuationPrompt = "Continue exactly where you left off. Do not repeat yourself."

// Request describes one persona generation to validate.
type Request struct {
	// Source is the daemon the response is attributed to in the stream.
	Source core.Source

	// PersonaName replaces vendor self-references during cleaning.
	PersonaName string

	// Vocabulary is the persona's own register; the classifier weighs its
	// absence against generic-assistant disclaimers.
	Vocabulary []string

	// System is the persona system prompt.
	System string

	// Prompt is the user-visible input being responded to.
	Prompt string

	// Temperature is the persona's base sampling temperature.
	Temperature float64

	// MaxTokens bounds each generation. Zero uses the provider default.
	MaxTokens int

	// Fallback overrides the default last-resort text for degraded results.
	Fallback string

	// Charge is the ambient affective charge supplied by the caller,
	// attached to the terminal reflection event. Nil leaves it unset.
	Charge *float64
}

// Result is the outcome of one validation round. Text is always non-empty
// and always reads as finished.
type Result struct {
	// RequestID correlates the result with its diagnostic events.
	RequestID string `json:"request_id"`

	// State is the terminal state.
	State State `json:"state"`

	// Text is the validated (or salvaged) response.
	Text string `json:"text"`

	// Verdict is the classification that forced a retry or degradation.
	// Zero for StateAccepted.
	Verdict Verdict `json:"verdict,omitempty"`

	// Attempts counts generator calls, continuations included.
	Attempts int `json:"attempts"`
}

// Engine runs the generate → clean → classify → correct loop.
//
// The engine makes at most one corrective regeneration per request, at a
// boosted temperature, and never surfaces generator failures to the caller:
// a timeout or transport failure degrades the result instead.
type Engine struct {
	provider llm.Provider
	store    store.Store
	logger   *zap.Logger
	node     *snowflake.Node

	minViable  int
	shortFloor int
	tempBoost  float64
}

// NewEngine creates a validation engine.
//
// Parameters:
//   - provider: The generator collaborator
//   - s: The event store diagnostics and reflections are logged to (nil
//     disables event logging)
//   - cfg: Validation thresholds (nil uses defaults)
//   - logger: Structured logger (nil falls back to a no-op logger)
func NewEngine(provider llm.Provider, s store.Store, cfg *core.ValidationConfig, logger *zap.Logger) (*Engine, error) {
	if provider == nil {
		return nil, core.NewStoreError("NewEngine", core.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	minViable := core.DefaultMinViableLength
	shortFloor := core.DefaultShortOutputFloor
	tempBoost := core.DefaultRetryTempBoost
	if cfg != nil {
		if cfg.MinViableLength > 0 {
			minViable = cfg.MinViableLength
		}
		if cfg.ShortOutputFloor > 0 {
			shortFloor = cfg.ShortOutputFloor
		}
		if cfg.RetryTemperatureBoost > 0 {
			tempBoost = cfg.RetryTemperatureBoost
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, core.NewStoreError("NewEngine", err)
	}

	return &Engine{
		provider:   provider,
		store:      s,
		logger:     logger,
		node:       node,
		minViable:  minViable,
		shortFloor: shortFloor,
		tempBoost:  tempBoost,
	}, nil
}

// Respond runs one full validation round and always returns a usable result.
//
// The returned error is non-nil only for an invalid request; generator
// failures are absorbed into StateDegraded.
func (e *Engine) Respond(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Prompt == "" {
		return nil, core.NewStoreError("Respond", core.ErrInvalidConfig)
	}

	requestID := e.node.Generate().String()
	cleaner := NewCleaner(req.PersonaName, e.minViable)
	classifier := NewClassifier(e.shortFloor, req.Vocabulary)
	result := &Result{RequestID: requestID}

	raw, err := e.generate(ctx, req, req.Temperature, &result.Attempts)
	if err != nil {
		e.logger.Warn("generator unavailable, degrading",
			zap.String("request_id", requestID),
			zap.String("source", string(req.Source)),
			zap.Error(err))
		return e.degrade(ctx, req, result, "", Verdict{
			Family:   FamilyNone,
			Evidence: []string{"generator unavailable: " + err.Error()},
		}), nil
	}

	cleaned, _ := cleaner.Clean(raw)
	verdict := classifier.Classify(cleaned)
	if verdict.OK() {
		result.State = StateAccepted
		result.Text = EnsureCompletion(cleaned)
		e.logReflection(ctx, req, result)
		return result, nil
	}

	// One corrective regeneration at a boosted temperature, with the break
	// named so the generator can avoid repeating it.
	e.logger.Info("response suspect, regenerating",
		zap.String("request_id", requestID),
		zap.String("source", string(req.Source)),
		zap.String("family", string(verdict.Family)),
		zap.Strings("evidence", verdict.Evidence))
	e.logDiagnostic(ctx, req, result, verdict, "suspect", cleaned)

	retryTemp := req.Temperature + e.tempBoost
	if retryTemp > 1.0 {
		retryTemp = 1.0
	}
	retryReq := *req
	retryReq.System = req.System +
		"\n\nStay fully in character. Give only the final response, with no reasoning steps, no refusals, and no mention of being an AI."

	retryRaw, err := e.generate(ctx, &retryReq, retryTemp, &result.Attempts)
	if err != nil {
		e.logger.Warn("corrective regeneration failed, degrading",
			zap.String("request_id", requestID),
			zap.Error(err))
		return e.degrade(ctx, req, result, cleaned, verdict), nil
	}

	retryCleaned, _ := cleaner.Clean(retryRaw)
	retryVerdict := classifier.Classify(retryCleaned)
	if retryVerdict.OK() {
		result.State = StateAcceptedOnRetry
		result.Text = EnsureCompletion(retryCleaned)
		result.Verdict = verdict
		e.logReflection(ctx, req, result)
		return result, nil
	}

	// Both attempts broke character. A multi-paragraph retry usually buries
	// its break in the preamble, so the closing paragraph is worth keeping;
	// a single-paragraph retry is the break, and the first cleaned attempt
	// is the better salvage.
	salvaged := cleaned
	if strings.Contains(strings.TrimSpace(retryCleaned), "\n\n") {
		salvaged = lastParagraph(retryCleaned)
	}
	return e.degrade(ctx, req, result, salvaged, retryVerdict), nil
}

// generate runs one provider call, following up at most once when the
// response was cut off by the output budget.
func (e *Engine) generate(ctx context.Context, req *Request, temperature float64, attempts *int) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: req.System},
		{Role: llm.RoleUser, Content: req.Prompt},
	}
	opts := []llm.GenerateOption{llm.WithTemperature(temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(req.MaxTokens))
	}

	*attempts++
	completion, err := e.provider.Generate(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if !completion.Truncated() {
		return completion.Content, nil
	}

	// Truncated: ask once for the remainder. A failed continuation is not
	// fatal, the partial text goes through cleaning like everything else.
	*attempts++
	cont, err := e.provider.Generate(ctx, append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: completion.Content},
		llm.Message{Role: llm.RoleUser, Content: continuationPrompt},
	), opts...)
	if err != nil {
		e.logger.Warn("continuation failed, keeping partial response",
			zap.Error(err))
		return completion.Content, nil
	}
	return completion.Content + cont.Content, nil
}

// degrade finalizes a result nothing validated: the caller's salvaged text,
// or the fallback line when nothing survives. Every terminal state records a
// reflection, degraded ones included, so the stream shows what the caller
// actually received.
func (e *Engine) degrade(ctx context.Context, req *Request, result *Result, salvage string, verdict Verdict) *Result {
	result.State = StateDegraded
	result.Verdict = verdict

	text := strings.TrimSpace(salvage)
	if text == "" {
		text = req.Fallback
	}
	if text == "" {
		text = defaultFallback
	}
	result.Text = EnsureCompletion(text)

	e.logDiagnostic(ctx, req, result, verdict, string(StateDegraded), salvage)
	e.logReflection(ctx, req, result)
	return result
}

// truncate cuts text to at most n runes.
func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// lastParagraph returns the final non-empty paragraph of the text.
func lastParagraph(text string) string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	for i := len(paragraphs) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(paragraphs[i]); p != "" {
			return p
		}
	}
	return ""
}

// logReflection records the validated response in the event stream.
func (e *Engine) logReflection(ctx context.Context, req *Request, result *Result) {
	if e.store == nil {
		return
	}
	_, err := e.store.Append(ctx, &core.Event{
		Source:          req.Source,
		Kind:            core.KindReflection,
		Content:         result.Text,
		AffectiveCharge: req.Charge,
		Metadata: map[string]interface{}{
			"request_id": result.RequestID,
			"state":      string(result.State),
			"attempts":   result.Attempts,
			"model":      e.provider.Model(),
		},
	})
	if err != nil {
		e.logger.Warn("reflection event not recorded",
			zap.String("request_id", result.RequestID),
			zap.Error(err))
	}
}

// logDiagnostic records a validation break or degradation in the event
// stream, with a truncated excerpt of the offending text for offline tuning
// of the classifier.
func (e *Engine) logDiagnostic(ctx context.Context, req *Request, result *Result, verdict Verdict, state, offending string) {
	if e.store == nil {
		return
	}
	_, err := e.store.Append(ctx, &core.Event{
		Source:  req.Source,
		Kind:    core.KindDiagnostic,
		Content: strings.Join(verdict.Evidence, "; "),
		Metadata: map[string]interface{}{
			"offending_text": truncate(offending, 200),
			"request_id":     result.RequestID,
			"state":          state,
			"family":         string(verdict.Family),
			"attempts":       result.Attempts,
		},
	})
	if err != nil {
		e.logger.Warn("diagnostic event not recorded",
			zap.String("request_id", result.RequestID),
			zap.Error(err))
	}
}
