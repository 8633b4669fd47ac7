package openai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adam-kernel/resonance-go/pkg/core"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&core.GeneratorConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(&core.GeneratorConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.Model())
	assert.Equal(t, core.DefaultGeneratorTimeout, client.timeout)

	client, err = NewClient(&core.GeneratorConfig{
		APIKey:  "k",
		Model:   "sonar-pro",
		BaseURL: "https://api.perplexity.ai",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "sonar-pro", client.Model())
	assert.Equal(t, 5*time.Second, client.timeout)
}

func TestMapTransportErr(t *testing.T) {
	err := mapTransportErr(context.DeadlineExceeded)
	assert.True(t, errors.Is(err, core.ErrGeneratorTimeout))

	err = mapTransportErr(fmt.Errorf("connection refused"))
	assert.True(t, errors.Is(err, core.ErrGeneratorTransport))
}
