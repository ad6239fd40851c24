package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scribe/types"

	"gopkg.in/yaml.v3"
)

// EnvConfig holds a JSON object that overrides the config file
const EnvConfig = "SCRIBE_CONFIG"

// EnvAPIKey overrides api_key
const EnvAPIKey = "SCRIBE_API_KEY"

// Config is the engine and process configuration
type Config struct {
	// Feature toggles and endpoint selection
	CustomEndpoint      string `yaml:"custom_endpoint" json:"custom_endpoint"`
	DefaultEndpoint     string `yaml:"default_endpoint" json:"default_endpoint"`
	SelectedModel       string `yaml:"selected_model" json:"selected_model"`
	UseAutocorrecting   bool   `yaml:"use_autocorrecting" json:"use_autocorrecting"`
	EnableReplacements  bool   `yaml:"enable_replacements" json:"enable_replacements"`
	EnableContinuations bool   `yaml:"enable_continuations" json:"enable_continuations"`

	// Completion service
	APIKey              string `yaml:"api_key" json:"api_key"`
	Compression         string `yaml:"compression" json:"compression"`                     // "" or "br"
	CompletionTimeoutMs int    `yaml:"completion_timeout_ms" json:"completion_timeout_ms"` // 0 = no timeout
	MaxContextTokens    int    `yaml:"max_context_tokens" json:"max_context_tokens"`       // 0 = no limit

	// Request pipeline
	DebounceMs         int `yaml:"debounce_ms" json:"debounce_ms"`
	MinContextChars    int `yaml:"min_context_chars" json:"min_context_chars"`
	NextParagraphChars int `yaml:"next_paragraph_chars" json:"next_paragraph_chars"`

	// Process
	LogLevel   string `yaml:"log_level" json:"log_level"` // trace, debug, info, warn, error
	MetricsURL string `yaml:"metrics_url" json:"metrics_url"`
	NsID       int    `yaml:"ns_id" json:"ns_id"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		UseAutocorrecting:   true,
		EnableReplacements:  false,
		EnableContinuations: true,
		CompletionTimeoutMs: 10000,
		DebounceMs:          350,
		MinContextChars:     50,
		NextParagraphChars:  50,
		LogLevel:            "info",
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if raw := os.Getenv(EnvConfig); raw != "" {
		if err := json.Unmarshal([]byte(raw), c); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvConfig, err)
		}
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.APIKey = key
	}
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Compression != "" && c.Compression != "br" {
		return fmt.Errorf("unsupported compression %q", c.Compression)
	}
	if c.DebounceMs < 0 || c.CompletionTimeoutMs < 0 || c.MaxContextTokens < 0 {
		return errors.New("durations and limits must not be negative")
	}
	if c.MinContextChars < 0 || c.NextParagraphChars < 0 {
		return errors.New("context thresholds must not be negative")
	}
	return nil
}

// Endpoint returns the custom endpoint, or the default one when unset
func (c *Config) Endpoint() string {
	if c.CustomEndpoint != "" {
		return c.CustomEndpoint
	}
	return c.DefaultEndpoint
}

// Debounce returns the debounce window
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ProviderConfig returns the completion provider settings
func (c *Config) ProviderConfig() *types.ProviderConfig {
	return &types.ProviderConfig{
		Endpoint:          c.Endpoint(),
		APIKey:            c.APIKey,
		Model:             c.SelectedModel,
		Compression:       c.Compression,
		CompletionTimeout: c.CompletionTimeoutMs,
		MaxContextTokens:  c.MaxContextTokens,
	}
}
