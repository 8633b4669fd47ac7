package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adam-kernel/resonance-go/pkg/core"
)

func TestRouterSurfacePrompts(t *testing.T) {
	r := NewRouter()

	for _, prompt := range []string{
		"what is the current load",
		"how many processes are running",
		"is the disk busy right now",
	} {
		p := r.Route(prompt)
		assert.Equal(t, core.SourceKain, p.Source, "prompt: %s", prompt)
	}
}

func TestRouterDeepPrompts(t *testing.T) {
	r := NewRouter()

	for _, prompt := range []string{
		"why does the load spike every night",
		"do you remember the last crash",
		"what pattern do you see in my commands",
		"who are you really",
	} {
		p := r.Route(prompt)
		assert.Equal(t, core.SourceAbel, p.Source, "prompt: %s", prompt)
	}
}

func TestPersonaRequest(t *testing.T) {
	req := Kain().Request("how does the system feel")

	assert.Equal(t, core.SourceKain, req.Source)
	assert.Equal(t, "Kain", req.PersonaName)
	assert.NotEmpty(t, req.System)
	assert.Equal(t, "how does the system feel", req.Prompt)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.NotEmpty(t, req.Fallback)
	assert.Contains(t, req.Vocabulary, "surface")
	assert.Contains(t, Abel().Request("why").Vocabulary, "depth")
}

func TestPersonaTemperatures(t *testing.T) {
	// The deep mirror runs warmer than the surface.
	assert.Greater(t, Abel().Temperature, Kain().Temperature)
}
