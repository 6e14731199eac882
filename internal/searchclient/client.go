// Package searchclient talks to a Tavily-style search API used for evidence
// gathering. Results come back as answer text plus source references the
// engine attaches to evidence nodes.
package searchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/network"
)

const maxResponseBytes = 1 << 20

// Client is the search/evidence-service client.
type Client struct {
	cfg    config.SearchConfig
	http   *network.Client
	logger *zap.Logger
}

// New creates a Client. The API key stays in memory and is never logged.
func New(cfg config.SearchConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	httpCfg := network.NewDefaultClientConfig()
	if cfg.APITimeout > 0 {
		httpCfg.RequestTimeout = cfg.APITimeout
	}
	httpCfg.Logger = logger
	return &Client{
		cfg:    cfg,
		http:   network.NewClient(httpCfg),
		logger: logger.Named("searchclient"),
	}
}

type searchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	Topic         string `json:"topic,omitempty"`
	Days          int    `json:"days,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search posts one query. Focus narrows the query; Recent restricts results
// to the last month.
func (c *Client) Search(ctx context.Context, req schemas.SearchRequest) (*schemas.SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &schemas.ValidationError{Field: "query", Reason: "cannot be empty"}
	}
	if c.cfg.APIKey == "" {
		return nil, &schemas.CredentialError{Service: schemas.ServiceSearch}
	}

	query := req.Query
	if req.Focus != "" {
		query = query + " " + req.Focus
	}
	body := searchRequest{
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: true,
		MaxResults:    c.cfg.MaxResults,
	}
	if req.Recent {
		body.Topic = "news"
		body.Days = 30
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceSearch, Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceSearch, StatusCode: resp.StatusCode, Reason: "reading response body: " + err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &schemas.CredentialError{Service: schemas.ServiceSearch}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &schemas.RateLimitError{Service: schemas.ServiceSearch}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceSearch, StatusCode: resp.StatusCode, Reason: string(bytes.TrimSpace(raw))}
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceSearch, StatusCode: resp.StatusCode, Reason: "malformed response: " + err.Error()}
	}

	out := &schemas.SearchResponse{
		Text:    parsed.Answer,
		Sources: make([]schemas.SourceRef, 0, len(parsed.Results)),
	}
	var snippets []string
	for _, r := range parsed.Results {
		out.Sources = append(out.Sources, schemas.SourceRef{Title: r.Title, URL: r.URL, Snippet: r.Content})
		snippets = append(snippets, r.Content)
		if len(out.Sources) >= c.cfg.MaxResults {
			break
		}
	}
	// Some deployments omit the synthesized answer; fall back to snippets so
	// evidence nodes never end up empty.
	if out.Text == "" {
		out.Text = strings.Join(snippets, "\n")
	}

	c.logger.Debug("Search finished",
		zap.Int("sources", len(out.Sources)),
		zap.Int("status", resp.StatusCode))
	return out, nil
}
