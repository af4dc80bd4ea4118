// Package config loads the toolkit configuration from YAML with
// GRAMFLOW_* environment overrides, and provides the validation helpers
// the store backends check their connection settings with.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the grammar server's own: the Flask app listens on
// 5001 and generates 50 tokens of gpt2 with top-k 50 at temperature 1.0.
const (
	DefaultServerURL   = "http://localhost:5001"
	DefaultModel       = "gpt2"
	DefaultMaxTokens   = 50
	DefaultTopK        = 50
	DefaultTemperature = 1.0
	DefaultGatewayAddr = ":8080"
	DefaultTimeoutSecs = 30
)

// Config is the top-level toolkit configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	Store      StoreConfig      `yaml:"store"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	GrammarDir string           `yaml:"grammar_dir"`
}

// ServerConfig points at the grammar server.
type ServerConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// GenerationConfig carries the sampling knobs every comparison starts
// from. MaskWhitespace is a pointer so an absent key means true.
type GenerationConfig struct {
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	GrammarTokens  int     `yaml:"grammar_tokens"`
	TopK           int     `yaml:"top_k"`
	Temperature    float64 `yaml:"temperature"`
	StopOnComplete bool    `yaml:"stop_on_complete"`
	MaskWhitespace *bool   `yaml:"mask_whitespace"`
}

// MaskWhitespaceOn reports the whitespace-masking flag, true unless the
// config explicitly turned it off.
func (g GenerationConfig) MaskWhitespaceOn() bool {
	return g.MaskWhitespace == nil || *g.MaskWhitespace
}

// StoreConfig selects where finished runs are kept. Connection settings
// for the non-memory backends come from their own environment variables.
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// GatewayConfig holds the HTTP gateway's listen address.
type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        DefaultServerURL,
			TimeoutSeconds: DefaultTimeoutSecs,
		},
		Generation: GenerationConfig{
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			TopK:        DefaultTopK,
			Temperature: DefaultTemperature,
		},
		Store:   StoreConfig{Backend: "memory"},
		Gateway: GatewayConfig{Addr: DefaultGatewayAddr},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path when one is given, then GRAMFLOW_* environment overrides, then
// validation. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse unmarshals YAML bytes over the defaults and validates, without
// environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in derived values.
func (c *Config) applyDefaults() {
	if c.Generation.GrammarTokens <= 0 {
		c.Generation.GrammarTokens = c.Generation.MaxTokens
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = DefaultTimeoutSecs
	}
}

// applyEnv layers GRAMFLOW_* environment variables over the config.
func (c *Config) applyEnv() error {
	setString(&c.Server.BaseURL, "GRAMFLOW_SERVER_URL")
	setString(&c.Generation.Model, "GRAMFLOW_MODEL")
	setString(&c.Store.Backend, "GRAMFLOW_STORE")
	setString(&c.Gateway.Addr, "GRAMFLOW_GATEWAY_ADDR")
	setString(&c.GrammarDir, "GRAMFLOW_GRAMMAR_DIR")

	if err := setInt(&c.Server.TimeoutSeconds, "GRAMFLOW_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := setInt(&c.Generation.MaxTokens, "GRAMFLOW_MAX_TOKENS"); err != nil {
		return err
	}
	if err := setInt(&c.Generation.GrammarTokens, "GRAMFLOW_GRAMMAR_TOKENS"); err != nil {
		return err
	}
	if err := setInt(&c.Generation.TopK, "GRAMFLOW_TOP_K"); err != nil {
		return err
	}
	if err := setFloat(&c.Generation.Temperature, "GRAMFLOW_TEMPERATURE"); err != nil {
		return err
	}
	if err := setBool(&c.Generation.StopOnComplete, "GRAMFLOW_STOP_ON_COMPLETE"); err != nil {
		return err
	}

	if raw, ok := lookupEnv("GRAMFLOW_MASK_WHITESPACE"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("config: invalid GRAMFLOW_MASK_WHITESPACE %q: %w", raw, err)
		}
		c.Generation.MaskWhitespace = &v
	}
	return nil
}

// Validate checks the effective configuration with the house validator.
func (c *Config) Validate() error {
	v := NewValidator()
	v.RequireNonEmpty("server.base_url", c.Server.BaseURL)
	v.ValidateURL("server.base_url", c.Server.BaseURL)
	v.RequireNonEmpty("generation.model", c.Generation.Model)
	v.RequirePositive("generation.max_tokens", c.Generation.MaxTokens)
	v.RequirePositive("generation.grammar_tokens", c.Generation.GrammarTokens)
	v.RequirePositive("generation.top_k", c.Generation.TopK)
	v.ValidateFloatRange("generation.temperature", c.Generation.Temperature, 0.0, 2.0)
	v.ValidateOneOf("store.backend", c.Store.Backend, "memory", "redis", "mongo", "postgres")
	v.RequireNonEmpty("gateway.addr", c.Gateway.Addr)
	return v.Error()
}

func lookupEnv(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func setString(dst *string, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	raw, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, key string) error {
	raw, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func setBool(dst *bool, key string) error {
	raw, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
	*dst = v
	return nil
}
