package schemas

import "encoding/json"

// Service identifiers used by the cost guardrail.
const (
	ServiceReasoning = "reasoning"
	ServiceSearch    = "search"
)

// CapabilityMode selects the reasoning model tier for a completion call.
type CapabilityMode string

const (
	ModeFast     CapabilityMode = "fast"
	ModePowerful CapabilityMode = "powerful"
)

// FinishReason reports how the reasoning service terminated generation.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishError  FinishReason = "error"
)

// CompletionOptions holds generation parameters for a single call.
type CompletionOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// CompletionRequest is the full input for one reasoning-service call.
type CompletionRequest struct {
	System  string            `json:"system,omitempty"`
	Prompt  string            `json:"prompt"`
	Mode    CapabilityMode    `json:"mode"`
	Schema  json.RawMessage   `json:"schema,omitempty"`
	Options CompletionOptions `json:"options,omitempty"`
}

// CompletionResponse is what the reasoning service returns.
type CompletionResponse struct {
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finish_reason"`
	TokensUsed   int          `json:"tokens_used"`
}

// Truncated reports whether the response was cut off by the token budget.
func (r *CompletionResponse) Truncated() bool {
	return r != nil && r.FinishReason == FinishLength
}

// SearchRequest is the input for one search/evidence-service call.
type SearchRequest struct {
	Query  string `json:"query"`
	Focus  string `json:"focus,omitempty"`
	Recent bool   `json:"recent,omitempty"`
}

// SearchResponse carries the answer text plus its source references.
type SearchResponse struct {
	Text    string      `json:"text"`
	Sources []SourceRef `json:"sources"`
}

// Credentials is the opaque credential bundle handed to the engine at
// construction time. It is never persisted or logged.
type Credentials struct {
	ReasoningAPIKey string
	SearchAPIKey    string
}
