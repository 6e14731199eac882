package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
)

func testClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	return New(config.LLMConfig{
		Endpoint:   endpoint,
		APIKey:     "test-key",
		Model:      "gpt-4o",
		FastModel:  "gpt-4o-mini",
		APITimeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
}

func completionBody(content, finishReason string, tokens int) string {
	resp := map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"content": content},
			"finish_reason": finishReason,
		}},
		"usage": map[string]int{"total_tokens": tokens},
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func TestCompleteSuccess(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(completionBody("the answer", "stop", 120)))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Complete(context.Background(), schemas.CompletionRequest{
		System:  "be brief",
		Prompt:  "what is up",
		Mode:    schemas.ModePowerful,
		Options: schemas.CompletionOptions{MaxTokens: 256},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, schemas.FinishStop, resp.FinishReason)
	assert.Equal(t, 120, resp.TokensUsed)
	assert.False(t, resp.Truncated())

	assert.Equal(t, "gpt-4o", captured.Model)
	assert.Equal(t, 256, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Nil(t, captured.ResponseFormat)
}

func TestCompleteFastModeSelectsFastModel(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(completionBody("ok", "stop", 10)))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Complete(context.Background(), schemas.CompletionRequest{
		Prompt: "hi",
		Mode:   schemas.ModeFast,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
}

func TestCompleteSchemaRequestsJSONFormat(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(completionBody(`{"ok":true}`, "stop", 10)))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Complete(context.Background(), schemas.CompletionRequest{
		Prompt: "hi",
		Schema: json.RawMessage(`{"type":"object"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
}

func TestCompleteTruncation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("partial...", "length", 2048)))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Complete(context.Background(), schemas.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, schemas.FinishLength, resp.FinishReason)
	assert.True(t, resp.Truncated())
}

func TestCompleteValidation(t *testing.T) {
	t.Parallel()

	_, err := testClient(t, "http://unreachable.invalid").Complete(context.Background(), schemas.CompletionRequest{})
	var validationErr *schemas.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "prompt", validationErr.Field)
}

func TestCompleteMissingAPIKey(t *testing.T) {
	t.Parallel()

	c := New(config.LLMConfig{Endpoint: "http://unreachable.invalid"}, zaptest.NewLogger(t))
	_, err := c.Complete(context.Background(), schemas.CompletionRequest{Prompt: "hi"})
	var credErr *schemas.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, schemas.ServiceReasoning, credErr.Service)
}

func TestCompleteStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		header http.Header
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var credErr *schemas.CredentialError
				require.ErrorAs(t, err, &credErr)
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var credErr *schemas.CredentialError
				require.ErrorAs(t, err, &credErr)
			},
		},
		{
			name:   "rate limited with retry-after",
			status: http.StatusTooManyRequests,
			header: http.Header{"Retry-After": []string{"30"}},
			check: func(t *testing.T, err error) {
				var rateErr *schemas.RateLimitError
				require.ErrorAs(t, err, &rateErr)
				assert.Equal(t, 30*time.Second, rateErr.RetryAfter)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var apiErr *schemas.ExternalAPIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for key, values := range tt.header {
					w.Header()[key] = values
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer srv.Close()

			_, err := testClient(t, srv.URL).Complete(context.Background(), schemas.CompletionRequest{Prompt: "hi"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Complete(context.Background(), schemas.CompletionRequest{Prompt: "hi"})
	var apiErr *schemas.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Reason, "no choices")
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 15*time.Second, parseRetryAfter("15"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 50*time.Second)
}
