package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/prompter"
)

func completionJSON(model, content string, promptTokens, completionTokens int) string {
	resp := map[string]any{
		"model": model,
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func testModel(t *testing.T, url string) *Model {
	t.Helper()
	p, err := prompter.New(prompter.AnswerBaseName)
	require.NoError(t, err)
	return NewModel(Config{
		Model:     "gpt-4o",
		BaseURL:   url,
		APIKey:    "test-key",
		RetryWait: time.Millisecond,
	}, p)
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(completionJSON("gpt-4o-2024-08-06", "hello there", 120, 40)))
	}))
	defer srv.Close()

	m := testModel(t, srv.URL)
	answer, err := m.Complete(context.Background(), &expe.Prompt{System: "be brief", User: "say hello"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.Equal(t, float64(0), gotReq.Temperature)

	assert.Equal(t, "hello there", answer.Text)
	assert.Equal(t, "gpt-4o", answer.Name)
	assert.Equal(t, "gpt-4o-2024-08-06", answer.FullName)
	assert.False(t, answer.Timestamp.IsZero())
	require.NotNil(t, answer.Duration)
	assert.Greater(t, *answer.Duration, 0.0,
		"wall clock latency is recorded when the endpoint reports no response_ms")
	require.NotNil(t, answer.Cost)
	// 120 prompt tokens at $2.50/M plus 40 completion tokens at $10/M.
	assert.InDelta(t, 120*2.50/1e6+40*10.0/1e6, *answer.Cost, 1e-12)
}

func TestCompleteRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completionJSON("gpt-4o", "finally", 1, 1)))
	}))
	defer srv.Close()

	m := testModel(t, srv.URL)
	answer, err := m.Complete(context.Background(), &expe.Prompt{User: "q"})
	require.NoError(t, err)
	assert.Equal(t, "finally", answer.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteGivesUpAfterNumRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := testModel(t, srv.URL)
	_, err := m.Complete(context.Background(), &expe.Prompt{User: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": "invalid model"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	m := testModel(t, srv.URL)
	_, err := m.Complete(context.Background(), &expe.Prompt{User: "q"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFromConfigFallsBackToModel(t *testing.T) {
	p, err := prompter.New(prompter.AnswerBaseName)
	require.NoError(t, err)

	m, err := FromConfig(Config{Model: "gpt-4o", BaseURL: "https://api.openai.com/v1"}, p)
	require.NoError(t, err)
	assert.IsType(t, &Model{}, m)
	assert.Equal(t, "gpt-4o", m.Name())

	_, err = FromConfig(Config{}, p)
	require.Error(t, err)

	// A model that falls back to the reference driver needs an endpoint
	// up front, not one failed request per question.
	_, err = FromConfig(Config{Model: "gpt-4o"}, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestFindPricing(t *testing.T) {
	_, ok := findPricing("gpt-4o")
	assert.True(t, ok)
	_, ok = findPricing("gpt-4o-2024-08-06")
	assert.True(t, ok, "dated releases use the base model price")
	p, ok := findPricing("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Equal(t, 0.15, p.input, "the longest matching base model wins")
	_, ok = findPricing("totally-local-model")
	assert.False(t, ok)
}
