package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

// SetDefaults registers default values so the app can run with a minimal
// config file, matching the documented daily budgets.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "asr-nexus")
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("engine.call_timeout", 90*time.Second)
	v.SetDefault("engine.max_tokens", 2048)
	v.SetDefault("engine.retry_token_multiplier", 1.5)
	v.SetDefault("engine.prune_threshold", 0.25)
	v.SetDefault("engine.merge_similarity", 0.8)
	v.SetDefault("engine.subgraph_threshold", 0.45)
	v.SetDefault("engine.max_evidence_per_hypothesis", 2)

	v.SetDefault("guardrail.warning_threshold", 0.8)
	v.SetDefault("guardrail.reset_interval", 24*time.Hour)
	v.SetDefault("guardrail.services."+schemas.ServiceReasoning+".daily_cost_usd", 5.0)
	v.SetDefault("guardrail.services."+schemas.ServiceReasoning+".daily_calls", 200)
	v.SetDefault("guardrail.services."+schemas.ServiceReasoning+".daily_tokens", 500_000)
	v.SetDefault("guardrail.services."+schemas.ServiceReasoning+".cost_per_1k_tokens", 0.01)
	v.SetDefault("guardrail.services."+schemas.ServiceReasoning+".cost_per_call", 0.002)
	v.SetDefault("guardrail.services."+schemas.ServiceSearch+".daily_cost_usd", 2.0)
	v.SetDefault("guardrail.services."+schemas.ServiceSearch+".daily_calls", 100)
	v.SetDefault("guardrail.services."+schemas.ServiceSearch+".daily_tokens", 100_000)
	v.SetDefault("guardrail.services."+schemas.ServiceSearch+".cost_per_1k_tokens", 0.0)
	v.SetDefault("guardrail.services."+schemas.ServiceSearch+".cost_per_call", 0.01)

	v.SetDefault("queue.workers", 3)
	v.SetDefault("queue.max_pending", 64)
	v.SetDefault("queue.task_timeout", 2*time.Minute)
	v.SetDefault("queue.result_retention", 30*time.Second)

	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.fast_model", "gpt-4o-mini")
	v.SetDefault("llm.api_timeout", 60*time.Second)
	v.SetDefault("llm.temperature", 0.3)

	v.SetDefault("search.endpoint", "https://api.tavily.com/search")
	v.SetDefault("search.api_timeout", 30*time.Second)
	v.SetDefault("search.max_results", 5)
}
