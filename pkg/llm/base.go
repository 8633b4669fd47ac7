// Package llm defines the generator collaborator interface: the language
// model endpoint that produces raw persona responses for the validation
// engine to clean and judge.
package llm

import (
	"context"
)

// Message roles in a generation conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons reported with a completion. FinishLength signals a
// truncated response that the validation engine will ask to continue.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Message is one turn in a generation conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the generator's raw output plus the reason it stopped.
type Completion struct {
	// Content is the raw model output, before any cleaning.
	Content string `json:"content"`

	// FinishReason is the provider-reported stop reason ("stop", "length").
	FinishReason string `json:"finish_reason"`
}

// Truncated reports whether the generator stopped because it ran out of
// output budget rather than completing its thought.
func (c Completion) Truncated() bool {
	return c.FinishReason == FinishLength
}

// GenerateOptions holds per-request generation parameters.
type GenerateOptions struct {
	// Temperature controls randomness. Nil uses the provider default.
	Temperature *float64

	// MaxTokens bounds the response length. Zero uses the provider default.
	MaxTokens int

	// TopP is the nucleus sampling parameter. Nil uses the provider default.
	TopP *float64
}

// GenerateOption configures a single generation request.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature for one request.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &t }
}

// WithMaxTokens bounds the response length for one request.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = n }
}

// WithTopP sets the nucleus sampling parameter for one request.
func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) { o.TopP = &p }
}

// ApplyOptions folds a list of options into a GenerateOptions struct.
func ApplyOptions(opts ...GenerateOption) *GenerateOptions {
	options := &GenerateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Provider is the generator collaborator.
//
// Implementations must map their transport failures onto the core error
// taxonomy: deadline expiry becomes core.ErrGeneratorTimeout and any other
// network or protocol failure becomes core.ErrGeneratorTransport, so the
// validation engine can absorb both without inspecting provider internals.
type Provider interface {
	// Generate produces one completion for the conversation.
	Generate(ctx context.Context, messages []Message, opts ...GenerateOption) (*Completion, error)

	// Model returns the model identifier requests are sent with.
	Model() string
}
