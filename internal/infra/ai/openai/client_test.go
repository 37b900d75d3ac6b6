package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domai "github.com/stagepass/audioscan/internal/domain/ai"
)

func newTestClient(t *testing.T, model string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewClientWithConfig(cfg, model)
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
	}
}

func TestAnalyze_ReturnsFirstChoice(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(`{"recommendation":"approve"}`))
	})

	out, err := c.Analyze(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"recommendation":"approve"}`, out)

	assert.Equal(t, defaultModel, got["model"])
	assert.EqualValues(t, maxTokens, got["max_tokens"])
	assert.NotContains(t, got, "max_completion_tokens")
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestAnalyze_ReasoningModelUsesCompletionTokens(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, "o3-mini", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion("{}"))
	})

	_, err := c.Analyze(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.EqualValues(t, maxTokens, got["max_completion_tokens"])
	assert.NotContains(t, got, "max_tokens")
}

func TestAnalyze_QuotaExceeded(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	})

	_, err := c.Analyze(context.Background(), "system", "user")
	require.ErrorIs(t, err, domai.ErrQuotaExceeded)
}

func TestAnalyze_ServerErrorIsNotQuota(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := c.Analyze(context.Background(), "system", "user")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domai.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "failed to create chat completion")
}

func TestAnalyze_NoChoices(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","object":"chat.completion","choices":[]}`))
	})

	_, err := c.Analyze(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
