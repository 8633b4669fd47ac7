package resonance

import (
	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/llm"
	"github.com/adam-kernel/resonance-go/pkg/store"
)

// clientOptions holds the optional collaborators a Client can be built with.
type clientOptions struct {
	logger   *zap.Logger
	store    store.Store
	provider llm.Provider
}

// Option configures a Client at construction time.
type Option func(*clientOptions)

// WithLogger sets the structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithStore injects a pre-built event store instead of opening one from the
// configuration. The client takes ownership; Close closes it.
func WithStore(s store.Store) Option {
	return func(o *clientOptions) { o.store = s }
}

// WithProvider injects a generator provider, bypassing the configured one.
// Useful for tests and for endpoints without a stock client.
func WithProvider(p llm.Provider) Option {
	return func(o *clientOptions) { o.provider = p }
}

// applyOptions folds the option list into a clientOptions struct.
func applyOptions(opts ...Option) *clientOptions {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
