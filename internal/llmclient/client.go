// Package llmclient talks to an OpenAI-compatible chat completions endpoint.
// It maps HTTP failures onto the typed error taxonomy so the engine can
// distinguish credential problems, rate limits, and transient API faults.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/network"
)

// maxResponseBytes bounds how much of an error body we read for diagnostics.
const maxResponseBytes = 1 << 20

// Client is the reasoning-service client.
type Client struct {
	cfg    config.LLMConfig
	http   *network.Client
	logger *zap.Logger
}

// New creates a Client. The API key comes from cfg and is held in memory
// only; it is never logged.
func New(cfg config.LLMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpCfg := network.NewDefaultClientConfig()
	if cfg.APITimeout > 0 {
		httpCfg.RequestTimeout = cfg.APITimeout
	}
	httpCfg.Logger = logger
	return &Client{
		cfg:    cfg,
		http:   network.NewClient(httpCfg),
		logger: logger.Named("llmclient"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete performs one chat completion. The Mode capability selects the
// model; a finish reason of "length" is passed through so the caller can
// decide whether to retry with a larger budget.
func (c *Client) Complete(ctx context.Context, req schemas.CompletionRequest) (*schemas.CompletionResponse, error) {
	if req.Prompt == "" {
		return nil, &schemas.ValidationError{Field: "prompt", Reason: "cannot be empty"}
	}
	if c.cfg.APIKey == "" {
		return nil, &schemas.CredentialError{Service: schemas.ServiceReasoning}
	}

	model := c.cfg.Model
	if req.Mode == schemas.ModeFast && c.cfg.FastModel != "" {
		model = c.cfg.FastModel
	}

	body := chatRequest{
		Model:       model,
		Temperature: float64(c.cfg.Temperature),
		MaxTokens:   req.Options.MaxTokens,
	}
	if req.Options.Temperature > 0 {
		body.Temperature = float64(req.Options.Temperature)
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if len(req.Schema) > 0 {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceReasoning, Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceReasoning, StatusCode: resp.StatusCode, Reason: "reading response body: " + err.Error()}
	}

	if err := c.checkStatus(resp, raw); err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceReasoning, StatusCode: resp.StatusCode, Reason: "malformed response: " + err.Error()}
	}
	if parsed.Error != nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceReasoning, StatusCode: resp.StatusCode, Reason: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceReasoning, StatusCode: resp.StatusCode, Reason: "response contained no choices"}
	}

	choice := parsed.Choices[0]
	finish := schemas.FinishStop
	switch choice.FinishReason {
	case "length":
		finish = schemas.FinishLength
	case "stop", "":
		finish = schemas.FinishStop
	default:
		finish = schemas.FinishError
	}

	c.logger.Debug("Completion finished",
		zap.String("model", model),
		zap.String("finish_reason", string(finish)),
		zap.Int("tokens_used", parsed.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &schemas.CompletionResponse{
		Text:         choice.Message.Content,
		FinishReason: finish,
		TokensUsed:   parsed.Usage.TotalTokens,
	}, nil
}

func (c *Client) checkStatus(resp *http.Response, raw []byte) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &schemas.CredentialError{Service: schemas.ServiceReasoning}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &schemas.RateLimitError{
			Service:    schemas.ServiceReasoning,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return &schemas.ExternalAPIError{
			Service:    schemas.ServiceReasoning,
			StatusCode: resp.StatusCode,
			Reason:     summarize(raw),
		}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// summarize trims an error body to a loggable one-liner.
func summarize(raw []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(raw))
	if len(s) > max {
		s = s[:max] + "..."
	}
	if s == "" {
		s = "no response body"
	}
	return s
}
