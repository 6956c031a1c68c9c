package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/patchpilot/patchpilot/internal/provider/anthropic"
	"github.com/patchpilot/patchpilot/internal/provider/openrouter"
)

// Config selects and configures a backend.
type Config struct {
	// Name selects the backend: "openrouter" or "anthropic".
	Name string

	APIKey  string
	BaseURL string

	// MaxResponseBytes caps the returned response text.
	MaxResponseBytes int

	// Timeout bounds one backend request end to end. Zero selects the
	// backend default.
	Timeout time.Duration
}

// New creates a provider from configuration. New backends slot in as new
// cases without touching call sites.
func New(cfg *Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", cfg.Name)
	}

	switch cfg.Name {
	case "openrouter":
		opts := []openrouter.Option{openrouter.WithMaxResponseBytes(cfg.MaxResponseBytes)}
		if cfg.BaseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, openrouter.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		return openrouter.NewClient(cfg.APIKey, opts...), nil

	case "anthropic":
		return anthropic.NewClient(cfg.APIKey, cfg.BaseURL, cfg.MaxResponseBytes), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: openrouter, anthropic)", cfg.Name)
	}
}
