package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 2000, cfg.MaxInputLength)
	assert.Equal(t, 10, cfg.MaxHistoryTurns)
	assert.Equal(t, 300*time.Second, cfg.ExactCacheTTL)
	assert.True(t, cfg.AIEnabled)
	assert.True(t, cfg.StreamingEnabled)
	assert.True(t, cfg.CachingEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_TIMEOUT", "90s")
	t.Setenv("LLM_SIMPLE_MODEL", "test-model")
	t.Setenv("CHAT_MAX_INPUT_LENGTH", "500")
	t.Setenv("RATE_LIMIT_GUEST_PER_MINUTE", "3")
	t.Setenv("EDGE_RATE_PER_SECOND", "2.5")
	t.Setenv("AI_ENABLED", "false")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "test-model", cfg.SimpleModel)
	assert.Equal(t, 500, cfg.MaxInputLength)
	assert.Equal(t, 3, cfg.GuestPerMinute)
	assert.Equal(t, 2.5, cfg.EdgeRatePerSecond)
	assert.False(t, cfg.AIEnabled)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("CHAT_MAX_INPUT_LENGTH", "not-a-number")
	t.Setenv("LLM_TIMEOUT", "soon")
	t.Setenv("AI_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 2000, cfg.MaxInputLength)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.True(t, cfg.AIEnabled)
}
