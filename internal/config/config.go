// Package config loads pipeline configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for a pipeline run.
type Config struct {
	// AI provider selection
	Provider string // "openrouter" or "anthropic"
	Model    string
	APIKey   string
	BaseURL  string // optional custom endpoint

	// Issue tracker settings
	Repository       string // owner/repo
	GitHubToken      string
	GitHubAppID      string
	GitHubPrivateKey string

	// Filesystem settings
	WorkspaceRoot string
	CacheDir      string
	ContextFiles  []string // candidate files for prompt context

	// Output channel for the changes signal
	OutputPath string

	// Size and timing limits
	MaxPromptBytes   int
	MaxResponseBytes int
	RequestTimeout   time.Duration
	ProbeCooldown    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	cfg := &Config{
		Provider:         getEnv("PATCHPILOT_PROVIDER", "openrouter"),
		Model:            getEnv("PATCHPILOT_MODEL", "anthropic/claude-3.5-sonnet"),
		APIKey:           apiKeyFromEnv(),
		BaseURL:          os.Getenv("PATCHPILOT_BASE_URL"),
		Repository:       os.Getenv("GITHUB_REPOSITORY"),
		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
		GitHubAppID:      os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey: normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		WorkspaceRoot:    getEnv("PATCHPILOT_WORKSPACE", wd),
		CacheDir:         getEnv("PATCHPILOT_CACHE_DIR", filepath.Join(wd, ".patchpilot-cache")),
		ContextFiles:     splitList(os.Getenv("PATCHPILOT_CONTEXT_FILES")),
		OutputPath:       os.Getenv("PATCHPILOT_OUTPUT"),
		MaxPromptBytes:   getEnvInt("PATCHPILOT_MAX_PROMPT_BYTES", 48<<10),
		MaxResponseBytes: getEnvInt("PATCHPILOT_MAX_RESPONSE_BYTES", 256<<10),
		RequestTimeout:   time.Duration(getEnvInt("PATCHPILOT_TIMEOUT_SECONDS", 180)) * time.Second,
		ProbeCooldown:    time.Duration(getEnvInt("PATCHPILOT_PROBE_COOLDOWN_SECONDS", 900)) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apiKeyFromEnv picks the credential matching the selected provider,
// falling back through the provider-specific variables.
func apiKeyFromEnv() string {
	if key := os.Getenv("PATCHPILOT_API_KEY"); key != "" {
		return key
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// normalizePrivateKey unwraps shell quoting and escaped newlines that
// survive when a PEM key is passed through an environment variable.
func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.Trim(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.Trim(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}
	return trimmed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	if err := c.validateProviderConfig(); err != nil {
		return err
	}
	if err := c.validateTrackerConfig(); err != nil {
		return err
	}
	return c.validateLimits()
}

func (c *Config) validateProviderConfig() error {
	switch c.Provider {
	case "openrouter", "anthropic":
		if c.APIKey == "" {
			return fmt.Errorf("PATCHPILOT_API_KEY is required for %s provider", c.Provider)
		}
	default:
		return fmt.Errorf("invalid provider: %s (must be 'openrouter' or 'anthropic')", c.Provider)
	}
	return nil
}

func (c *Config) validateTrackerConfig() error {
	if c.Repository == "" {
		return fmt.Errorf("GITHUB_REPOSITORY is required")
	}
	if parts := strings.Split(c.Repository, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid GITHUB_REPOSITORY: %s (expected owner/repo)", c.Repository)
	}

	hasToken := c.GitHubToken != ""
	hasApp := c.GitHubAppID != "" && c.GitHubPrivateKey != ""
	if !hasToken && !hasApp {
		return fmt.Errorf("either GITHUB_TOKEN or GITHUB_APP_ID + GITHUB_PRIVATE_KEY is required")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.MaxPromptBytes <= 0 {
		return fmt.Errorf("PATCHPILOT_MAX_PROMPT_BYTES must be greater than 0")
	}
	if c.MaxResponseBytes <= 0 {
		return fmt.Errorf("PATCHPILOT_MAX_RESPONSE_BYTES must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("PATCHPILOT_TIMEOUT_SECONDS must be greater than 0")
	}
	if c.ProbeCooldown < 0 {
		return fmt.Errorf("PATCHPILOT_PROBE_COOLDOWN_SECONDS must not be negative")
	}
	return nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
