// Package anthropic implements the Provider interface on the official
// Anthropic SDK. Retries follow the same transient/permanent split as the
// OpenRouter backend: timeouts, 429 and 5xx back off; everything else
// fails fast.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/patchpilot/patchpilot/internal/provider/shared"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second

	defaultMaxTokens = 4096
)

// Client calls the Anthropic Messages API.
type Client struct {
	client           sdk.Client
	maxResponseBytes int
	maxRetries       int
	initialBackoff   time.Duration
}

// NewClient creates an Anthropic client. baseURL overrides the endpoint
// when non-empty (tests).
func NewClient(apiKey, baseURL string, maxResponseBytes int) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client:           sdk.NewClient(opts...),
		maxResponseBytes: maxResponseBytes,
		maxRetries:       maxRetries,
		initialBackoff:   initialBackoff,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return "anthropic" }

// Generate sends the prompt as a single user message.
func (c *Client) Generate(ctx context.Context, req *shared.Request) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			log.Printf("[Anthropic] Retry %d/%d after %v", attempt, c.maxRetries, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			text, extractErr := firstTextBlock(message)
			if extractErr != nil {
				return "", extractErr
			}
			return shared.Truncate(text, c.maxResponseBytes), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("anthropic API error: %w", err)
		}
	}

	return "", fmt.Errorf("anthropic API failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func firstTextBlock(message *sdk.Message) (string, error) {
	if len(message.Content) == 0 {
		return "", fmt.Errorf("invalid API response: no content blocks")
	}
	block := message.Content[0]
	if block.Type != "text" {
		return "", fmt.Errorf("invalid API response: first block is %q, not text", block.Type)
	}
	if block.Text == "" {
		return "", fmt.Errorf("invalid API response: empty message content")
	}
	return block.Text, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
