// Package openai implements the generator provider over the OpenAI
// chat-completions wire format. A BaseURL override points the same client at
// any compatible endpoint (Perplexity, local inference servers, proxies).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/llm"
)

var _ llm.Provider = (*Client)(nil)

// Client is an OpenAI-compatible generator provider.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates an OpenAI-compatible generator client.
//
// Parameters:
//   - cfg: Generator configuration (API key, model, optional BaseURL and
//     per-request timeout)
//
// Returns:
//   - *Client: The provider instance
//   - error: Error if required configuration is missing
func NewClient(cfg *core.GeneratorConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, core.NewStoreError("NewOpenAIClient", core.ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = core.DefaultGeneratorTimeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
	}, nil
}

// Model returns the model identifier requests are sent with.
func (c *Client) Model() string {
	return c.model
}

// Generate produces one completion for the conversation.
//
// The configured timeout is applied on top of the caller's context. Deadline
// expiry maps to core.ErrGeneratorTimeout and every other transport or
// protocol failure to core.ErrGeneratorTransport.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (*llm.Completion, error) {
	options := llm.ApplyOptions(opts...)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(messages),
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.MaxTokens > 0 {
		req.MaxTokens = options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", core.ErrGeneratorTransport)
	}

	choice := resp.Choices[0]
	return &llm.Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// toChatMessages converts conversation messages to the wire type.
func toChatMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return out
}

// mapTransportErr folds provider failures into the core taxonomy.
func mapTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrGeneratorTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", core.ErrGeneratorTimeout, err)
	}
	return fmt.Errorf("%w: %v", core.ErrGeneratorTransport, err)
}
