package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, float64(10), cfg.Server.RateLimitRPS)
	assert.Equal(t, 20, cfg.Server.RateLimitBurst)

	assert.Equal(t, "2024-06-01", cfg.LLM.APIVersion)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.Empty(t, cfg.LLM.Endpoint, "endpoint has no sane default")
	assert.Empty(t, cfg.LLM.APIKey, "secrets are never defaulted")

	assert.Equal(t, 30*time.Second, cfg.Identity.Timeout)

	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, 5, cfg.Agent.HistoryWindow)
	assert.Equal(t, 30*time.Second, cfg.Agent.ToolTimeout)

	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "orgagent_audit.db", cfg.Audit.Path)
	assert.Equal(t, 1000, cfg.Audit.QueueSize)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Log.EnableCaller)
	assert.False(t, cfg.Log.EnableStacktrace)
}

func TestDefaultConfig_Independent(t *testing.T) {
	t.Parallel()

	a := DefaultConfig()
	b := DefaultConfig()
	a.Server.HTTPPort = 9999
	a.Log.OutputPaths[0] = "stderr"

	assert.Equal(t, 8080, b.Server.HTTPPort, "defaults must not share state")
	assert.Equal(t, "stdout", b.Log.OutputPaths[0], "defaults must not share slices")
}
