package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/httpclient"
	"github.com/kadirpekel/ragmark/pkg/prompter"
)

const (
	DefaultMaxTokens  = 4096
	DefaultNumRetries = 3
	DefaultRetryWait  = 3 * time.Second
	DefaultTimeout    = 120 * time.Second
)

// Config describes one model endpoint. Every endpoint speaks the
// OpenAI chat completions protocol.
type Config struct {
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	NumRetries  int           `mapstructure:"num_retries"`
	RetryWait   time.Duration `mapstructure:"retry_wait"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (c *Config) setDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.NumRetries == 0 {
		c.NumRetries = DefaultNumRetries
	}
	if c.RetryWait == 0 {
		c.RetryWait = DefaultRetryWait
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	ResponseMS *float64 `json:"response_ms,omitempty"`
}

// Model is the reference LLM over an OpenAI-compatible endpoint.
// Rate limits are paced here with a fixed wait between attempts; the
// underlying transport handles transient server errors.
type Model struct {
	cfg      Config
	prompter prompter.Prompter
	client   *httpclient.Client
}

func NewModel(cfg Config, p prompter.Prompter) *Model {
	cfg.setDefaults()
	return &Model{
		cfg:      cfg,
		prompter: p,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		),
	}
}

func (m *Model) Name() string                { return m.cfg.Model }
func (m *Model) Prompter() prompter.Prompter { return m.prompter }

// Complete sends the prompt and returns the completion record. On a
// rate limit it sleeps the configured wait and tries again, up to
// NumRetries attempts in total.
func (m *Model) Complete(ctx context.Context, p *expe.Prompt) (*expe.LLMAnswer, error) {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.NumRetries; attempt++ {
		resp, err := m.post(ctx, p)
		if err == nil {
			return m.toAnswer(resp, p, start), nil
		}
		lastErr = err
		if !httpclient.IsRateLimit(err) {
			return nil, err
		}
		if attempt < m.cfg.NumRetries {
			slog.Warn("rate limited, waiting",
				"model", m.cfg.Model, "wait", m.cfg.RetryWait,
				"attempt", attempt, "of", m.cfg.NumRetries)
			select {
			case <-time.After(m.cfg.RetryWait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("rate limited after %d attempts: %w", m.cfg.NumRetries, lastErr)
}

func (m *Model) post(ctx context.Context, p *expe.Prompt) (*completionResponse, error) {
	reqBody := completionRequest{
		Model:       m.cfg.Model,
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	}
	if p.System != "" {
		reqBody.Messages = append(reqBody.Messages, message{Role: "system", Content: p.System})
	}
	reqBody.Messages = append(reqBody.Messages, message{Role: "user", Content: p.User})

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", m.cfg.Model)
	}
	return &parsed, nil
}

// toAnswer builds the completion record. Duration prefers the
// endpoint's response_ms; an endpoint that reports none gets the
// locally measured wall clock so every answer carries a latency.
func (m *Model) toAnswer(resp *completionResponse, p *expe.Prompt, start time.Time) *expe.LLMAnswer {
	answer := &expe.LLMAnswer{
		Text:      resp.Choices[0].Message.Content,
		Meta:      expe.Meta{},
		Name:      m.cfg.Model,
		FullName:  resp.Model,
		Timestamp: start,
	}
	if resp.ResponseMS != nil {
		d := *resp.ResponseMS / 1000
		answer.Duration = &d
	} else {
		d := time.Since(start).Seconds()
		answer.Duration = &d
	}
	if cost, ok := completionCost(m.cfg.Model, resp, p); ok {
		answer.Cost = &cost
	}
	return answer
}
