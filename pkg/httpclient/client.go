// Package httpclient provides the HTTP transport used by the LLM
// driver. Transient server errors are retried in place with short
// delays; rate-limit rejections (HTTP 429) are surfaced as
// RetryableError so the caller can apply its own pacing.
package httpclient

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of an error response is kept for the
// error message.
const maxErrorBody = 2048

// RateLimitInfo is what a provider's rate-limit headers told us.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

// RateLimitHeaderParser extracts RateLimitInfo from response headers.
type RateLimitHeaderParser func(http.Header) RateLimitInfo

type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets how many quick retries transient server errors
// get. Rate limits are never retried here.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 120 * time.Second},
		maxRetries:   2,
		baseDelay:    2 * time.Second,
		headerParser: ParseOpenAIHeaders,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func transient(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Do sends the request. On 2xx the response is returned with its body
// unread. Transient server errors are retried up to maxRetries with
// short fixed delays. Anything else comes back as an error with the
// response body folded into the message; 429 comes back as a
// *RetryableError carrying the server's Retry-After when present.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("recreating request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		msg := drainBody(resp)

		if resp.StatusCode == http.StatusTooManyRequests {
			var info RateLimitInfo
			if c.headerParser != nil {
				info = c.headerParser(resp.Header)
			}
			return nil, &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    msg,
				RetryAfter: info.RetryAfter,
			}
		}

		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		if !transient(resp.StatusCode) {
			return nil, lastErr
		}

		if attempt < c.maxRetries {
			delay := c.baseDelay + time.Duration(attempt)*time.Second
			slog.Warn("server error, retrying",
				"status", resp.StatusCode, "delay", delay,
				"attempt", attempt+1, "of", c.maxRetries)
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("giving up after %d retries: %w", c.maxRetries, lastErr)
}

// drainBody reads and closes an error response body, bounded.
func drainBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return resp.Status
	}
	return string(data)
}
