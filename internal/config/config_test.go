package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.Workers)
	assert.Equal(t, 64, cfg.Queue.MaxPending)
	assert.Equal(t, 30*time.Second, cfg.Queue.ResultRetention)

	assert.Equal(t, 0.8, cfg.Guardrail.WarningThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Guardrail.ResetInterval)
	require.Contains(t, cfg.Guardrail.Services, schemas.ServiceReasoning)
	require.Contains(t, cfg.Guardrail.Services, schemas.ServiceSearch)
	assert.Equal(t, 5.0, cfg.Guardrail.Services[schemas.ServiceReasoning].DailyCostUSD)
	assert.Equal(t, 0.01, cfg.Guardrail.Services[schemas.ServiceSearch].CostPerCall)

	assert.Equal(t, 2048, cfg.Engine.MaxTokens)
	assert.Equal(t, 1.5, cfg.Engine.RetryTokenMultiplier)
	assert.Equal(t, 0.25, cfg.Engine.PruneThreshold)

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.LLM.Endpoint)
	assert.Equal(t, "https://api.tavily.com/search", cfg.Search.Endpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("queue.workers", 8)
	v.Set("engine.max_tokens", 512)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 512, cfg.Engine.MaxTokens)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		cfg, err := Load(viper.New())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }, "queue.workers"},
		{"zero pending", func(c *Config) { c.Queue.MaxPending = 0 }, "queue.max_pending"},
		{"retry multiplier below one", func(c *Config) { c.Engine.RetryTokenMultiplier = 0.5 }, "retry_token_multiplier"},
		{"warning threshold above one", func(c *Config) { c.Guardrail.WarningThreshold = 1.2 }, "warning_threshold"},
		{"negative pricing", func(c *Config) {
			budget := c.Guardrail.Services[schemas.ServiceReasoning]
			budget.CostPerCall = -1
			c.Guardrail.Services[schemas.ServiceReasoning] = budget
		}, "pricing"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
