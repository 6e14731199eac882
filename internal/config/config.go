package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for the whole application.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Queue     QueueConfig     `mapstructure:"queue"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
}

// ColorConfig defines console colors for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug"`
	Info  string `mapstructure:"info"`
	Warn  string `mapstructure:"warn"`
	Error string `mapstructure:"error"`
	Fatal string `mapstructure:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	AddSource   bool        `mapstructure:"add_source"`
	ServiceName string      `mapstructure:"service_name"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	Colors      ColorConfig `mapstructure:"colors"`
}

// EngineConfig holds settings for the stage engine.
type EngineConfig struct {
	// CallTimeout bounds each synchronous poll on an external call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// MaxTokens is the default generation budget per reasoning call.
	MaxTokens int `mapstructure:"max_tokens"`
	// RetryTokenMultiplier scales the budget for the single truncation retry.
	RetryTokenMultiplier float64 `mapstructure:"retry_token_multiplier"`
	// PruneThreshold is the mean-confidence floor below which stage 5 marks
	// nodes inactive.
	PruneThreshold float64 `mapstructure:"prune_threshold"`
	// MergeSimilarity is the label-overlap ratio above which stage 5 merges
	// two hypotheses.
	MergeSimilarity float64 `mapstructure:"merge_similarity"`
	// SubgraphThreshold is the mean-confidence floor for stage 6 pathway
	// extraction.
	SubgraphThreshold float64 `mapstructure:"subgraph_threshold"`
	// MaxEvidencePerHypothesis caps search calls issued by stage 4.
	MaxEvidencePerHypothesis int `mapstructure:"max_evidence_per_hypothesis"`
}

// ServiceBudget is the daily ceiling and pricing for one external service.
// A ceiling of zero admits nothing; a negative ceiling disables that metric.
type ServiceBudget struct {
	DailyCostUSD    float64 `mapstructure:"daily_cost_usd"`
	DailyCalls      int     `mapstructure:"daily_calls"`
	DailyTokens     int     `mapstructure:"daily_tokens"`
	CostPer1KTokens float64 `mapstructure:"cost_per_1k_tokens"`
	CostPerCall     float64 `mapstructure:"cost_per_call"`
}

// GuardrailConfig holds the cost guardrail settings.
type GuardrailConfig struct {
	// WarningThreshold is the fraction of any ceiling that triggers a
	// non-blocking warning notification.
	WarningThreshold float64                  `mapstructure:"warning_threshold"`
	ResetInterval    time.Duration            `mapstructure:"reset_interval"`
	Services         map[string]ServiceBudget `mapstructure:"services"`
}

// QueueConfig holds settings for the background task queue.
type QueueConfig struct {
	Workers         int           `mapstructure:"workers"`
	MaxPending      int           `mapstructure:"max_pending"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout"`
	ResultRetention time.Duration `mapstructure:"result_retention"`
}

// LLMConfig holds settings for the reasoning/completion service.
type LLMConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	FastModel     string        `mapstructure:"fast_model"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`
	Temperature   float32       `mapstructure:"temperature"`
}

// SearchConfig holds settings for the search/evidence service.
type SearchConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// PostgresConfig holds settings for the snapshot store.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// Load unmarshals a viper instance into a Config after applying defaults.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that zero values would silently
// break at runtime.
func (c *Config) Validate() error {
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be positive, got %d", c.Queue.Workers)
	}
	if c.Queue.MaxPending <= 0 {
		return fmt.Errorf("queue.max_pending must be positive, got %d", c.Queue.MaxPending)
	}
	if c.Engine.RetryTokenMultiplier < 1 {
		return fmt.Errorf("engine.retry_token_multiplier must be >= 1, got %g", c.Engine.RetryTokenMultiplier)
	}
	if c.Guardrail.WarningThreshold <= 0 || c.Guardrail.WarningThreshold > 1 {
		return fmt.Errorf("guardrail.warning_threshold must be in (0,1], got %g", c.Guardrail.WarningThreshold)
	}
	for name, budget := range c.Guardrail.Services {
		if budget.CostPer1KTokens < 0 || budget.CostPerCall < 0 {
			return fmt.Errorf("guardrail.services.%s pricing cannot be negative", name)
		}
	}
	return nil
}
