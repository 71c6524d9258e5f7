package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FUSION_CACHE_TTL_MS", "")
	c := Load()
	assert.Equal(t, "127.0.0.1:8080", c.HTTPBind)
	assert.Equal(t, 3*time.Second, c.FusionCacheTTL)
	assert.Equal(t, 1000, c.FusionCacheMax)
	assert.Equal(t, 0.99, c.LTMDecayPerClean)
	assert.Equal(t, 384, c.EmbedDim)
	assert.Equal(t, "", c.OllamaHost)
	assert.Equal(t, "nomic-embed-text", c.OllamaModel)
}

func TestLoadOllamaHostOverride(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")
	c := Load()
	assert.Equal(t, "http://localhost:11434", c.OllamaHost)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STM_MAX_ITEMS", "50")
	t.Setenv("CONSOLIDATE_ACCESS_MIN", "7")
	c := Load()
	assert.Equal(t, 50, c.STMMaxItems)
	assert.Equal(t, 7, c.ConsolidateAccessMin)
}
