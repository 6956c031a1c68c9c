// Package openrouter implements the Provider interface against the
// OpenRouter chat-completions endpoint. Transient failures (connection
// errors, 429, 5xx) are retried with exponential backoff; anything else
// fails fast.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/patchpilot/patchpilot/internal/provider/shared"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultTimeout bounds one request end to end.
	DefaultTimeout = 180 * time.Second

	maxAttempts     = 5
	initialInterval = 5 * time.Second
	backoffFactor   = 2
)

// Client calls OpenRouter over HTTP.
type Client struct {
	apiKey           string
	baseURL          string
	title            string
	maxResponseBytes int
	httpClient       *http.Client
	sleepInterval    time.Duration // shortened in tests
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests, proxies).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxResponseBytes caps the response size.
func WithMaxResponseBytes(n int) Option {
	return func(c *Client) { c.maxResponseBytes = n }
}

// WithRetryInterval overrides the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.sleepInterval = d }
}

// NewClient creates an OpenRouter client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		baseURL:       DefaultBaseURL,
		title:         "PatchPilot",
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		sleepInterval: initialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return "openrouter" }

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Generate sends the prompt and returns the response text. Retryable
// failures back off exponentially up to maxAttempts total tries.
func (c *Client) Generate(ctx context.Context, req *shared.Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     req.Model,
		Messages:  []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.sleepInterval
	bo.Multiplier = backoffFactor
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var content string
	operation := func() error {
		var opErr error
		content, opErr = c.callOnce(ctx, body)
		return opErr
	}

	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
	if err != nil {
		return "", err
	}

	return shared.Truncate(content, c.maxResponseBytes), nil
}

func (c *Client) callOnce(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com")
	httpReq.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("[OpenRouter] Request failed, will retry: %v", err)
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("API error: %d - %s", resp.StatusCode, truncateForLog(respBody))
		if retryableStatus(resp.StatusCode) {
			log.Printf("[OpenRouter] %v, will retry", apiErr)
			return "", apiErr
		}
		return "", backoff.Permanent(apiErr)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("API error: %d - %s", parsed.Error.Code, parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("invalid API response: no choices found"))
	}
	content := parsed.Choices[0].Message.Content
	if content == "" {
		return "", backoff.Permanent(fmt.Errorf("invalid API response: empty message content"))
	}
	return content, nil
}

// retryableStatus mirrors the rate-limit and transient server statuses
// worth waiting out.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}

func truncateForLog(b []byte) string {
	const max = 500
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
