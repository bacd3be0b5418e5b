// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/focusai/internal/model"
	"github.com/jeranaias/focusai/internal/offline"
	"github.com/jeranaias/focusai/internal/util"
)

// Engine backends.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// DefaultTruncationNotice is appended to output cut off by the context window.
const DefaultTruncationNotice = " [output truncated due to context length limit...]"

// =============================================================================
// CONFIG STRUCTURE
// =============================================================================

// Config is the complete focusai configuration.
type Config struct {
	Engine     EngineConfig     `toml:"engine" json:"engine"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Session    SessionConfig    `toml:"session" json:"session"`
	Storage    StorageConfig    `toml:"storage" json:"storage"`
	Logging    LoggingConfig    `toml:"logging" json:"logging"`
	Models     []model.Identity `toml:"models" json:"models"`
}

// EngineConfig describes the inference backend.
type EngineConfig struct {
	// Backend selects the server API: "ollama" or "openai" for
	// OpenAI-compatible servers such as llama.cpp or LM Studio.
	Backend string `toml:"backend" json:"backend"`

	// URL of the server. For the openai backend it includes the version
	// path ("http://127.0.0.1:8080/v1").
	URL string `toml:"url" json:"url"`

	// APIKey is sent to openai backends. Local servers usually ignore it.
	APIKey string `toml:"api_key" json:"-"`

	// KeepAlive is how long the server keeps a loaded model ("30m").
	KeepAlive string `toml:"keep_alive" json:"keep_alive"`

	TimeoutSecs     int `toml:"timeout_secs" json:"timeout_secs"`
	LoadTimeoutSecs int `toml:"load_timeout_secs" json:"load_timeout_secs"`
	MaxRetries      int `toml:"max_retries" json:"max_retries"`

	// AutoStart runs "ollama serve" when the server is not reachable.
	AutoStart bool `toml:"auto_start" json:"auto_start"`

	// GPUProbe checks free VRAM (nvidia-smi, rocm-smi) before loading.
	// When false only system RAM is considered.
	GPUProbe bool `toml:"gpu_probe" json:"gpu_probe"`

	// LocalOnly refuses any server that is not on this machine.
	LocalOnly bool `toml:"local_only" json:"local_only"`
}

// Policy returns the network policy for the server URL.
func (e EngineConfig) Policy() offline.Policy {
	return offline.Policy{LocalOnly: e.LocalOnly}
}

// Timeout returns the request timeout.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// LoadTimeout returns the model load timeout.
func (e EngineConfig) LoadTimeout() time.Duration {
	return time.Duration(e.LoadTimeoutSecs) * time.Second
}

// GenerationConfig holds sampling parameters.
type GenerationConfig struct {
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
	Temperature float64 `toml:"temperature" json:"temperature"`
	TopP        float64 `toml:"top_p" json:"top_p"`
	ContextSize int     `toml:"num_ctx" json:"num_ctx"`
}

// SessionConfig controls the chat session.
type SessionConfig struct {
	// DefaultModel is loaded at startup when set.
	DefaultModel string `toml:"default_model" json:"default_model"`

	TruncationNotice string `toml:"truncation_notice" json:"truncation_notice"`

	// WarmupTokens is the output length of the post-load warm-up call.
	WarmupTokens int `toml:"warmup_tokens" json:"warmup_tokens"`

	// StrictPreconditions panics on requests made from an illegal state
	// instead of returning an error. Meant for development.
	StrictPreconditions bool `toml:"strict_preconditions" json:"strict_preconditions"`
}

// StorageConfig controls the transcript store.
type StorageConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`   // debug, info, warn, error
	Format string `toml:"format" json:"format"` // text, json
	File   string `toml:"file" json:"file"`     // empty for stderr
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with default values.
func Default() *Config {
	storagePath := ""
	if dir, err := Dir(); err == nil {
		storagePath = filepath.Join(dir, "transcripts.db")
	}

	return &Config{
		Engine: EngineConfig{
			Backend:         BackendOllama,
			URL:             "http://127.0.0.1:11434",
			KeepAlive:       "30m",
			TimeoutSecs:     30,
			LoadTimeoutSecs: 300,
			MaxRetries:      3,
			AutoStart:       true,
			GPUProbe:        true,
		},
		Generation: GenerationConfig{
			MaxTokens:   1024,
			Temperature: 0.7,
			TopP:        0.95,
		},
		Session: SessionConfig{
			TruncationNotice: DefaultTruncationNotice,
			WarmupTokens:     1,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    storagePath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// fillDefaults fills in any missing values with defaults. Booleans are
// left alone: a decoded false is indistinguishable from an absent key, so
// Load decodes on top of Default() instead.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Engine.Backend == "" {
		cfg.Engine.Backend = defaults.Engine.Backend
	}
	cfg.Engine.Backend = strings.ToLower(cfg.Engine.Backend)
	if cfg.Engine.URL == "" {
		cfg.Engine.URL = defaults.Engine.URL
	}
	if cfg.Engine.KeepAlive == "" {
		cfg.Engine.KeepAlive = defaults.Engine.KeepAlive
	}
	if cfg.Engine.TimeoutSecs == 0 {
		cfg.Engine.TimeoutSecs = defaults.Engine.TimeoutSecs
	}
	if cfg.Engine.LoadTimeoutSecs == 0 {
		cfg.Engine.LoadTimeoutSecs = defaults.Engine.LoadTimeoutSecs
	}
	if cfg.Session.TruncationNotice == "" {
		cfg.Session.TruncationNotice = defaults.Session.TruncationNotice
	}
	if cfg.Session.WarmupTokens == 0 {
		cfg.Session.WarmupTokens = defaults.Session.WarmupTokens
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaults.Storage.Path
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the focusai configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".focusai"), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the configuration at path, or the default path when empty.
// A missing file yields defaults. Environment overrides are applied last,
// from the process environment or a .env file beside the config file, and
// the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	fillDefaults(cfg)
	cfg.applyOverrides(envLookup(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read JSON config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON config: %w", err)
		}
		return nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML config: %w", err)
	}
	return nil
}

// Save writes the configuration as TOML to path, or the default path when
// empty. The write is atomic and the file is created 0600.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}

	var buf bytes.Buffer
	buf.WriteString("# focusai configuration file\n")
	buf.WriteString("# Models are listed as [[models]] tables with id, lib, path,\n")
	buf.WriteString("# display_name, estimated_vram_bytes and vision.\n\n")

	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Catalog returns the configured models.
func (c *Config) Catalog() *model.Catalog {
	return model.NewCatalog(c.Models...)
}

// String returns the configuration as TOML with the API key masked.
func (c *Config) String() string {
	shown := *c
	if shown.Engine.APIKey != "" {
		shown.Engine.APIKey = "********"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(shown); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Engine.Backend {
	case BackendOllama, BackendOpenAI:
	default:
		add("engine.backend", "invalid backend '%s', must be one of: ollama, openai", c.Engine.Backend)
	}
	if u, err := url.Parse(c.Engine.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("engine.url", "invalid URL '%s', must be http(s)://host[:port]", c.Engine.URL)
	} else if err := c.Engine.Policy().CheckURL(c.Engine.URL); err != nil {
		add("engine.url", "%v", err)
	}
	if c.Engine.TimeoutSecs < 0 {
		add("engine.timeout_secs", "must be >= 0, got %d", c.Engine.TimeoutSecs)
	}
	if c.Engine.LoadTimeoutSecs < 0 {
		add("engine.load_timeout_secs", "must be >= 0, got %d", c.Engine.LoadTimeoutSecs)
	}
	if c.Engine.MaxRetries < 0 {
		add("engine.max_retries", "must be >= 0, got %d", c.Engine.MaxRetries)
	}

	if c.Generation.MaxTokens < 0 {
		add("generation.max_tokens", "must be >= 0, got %d", c.Generation.MaxTokens)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		add("generation.temperature", "must be between 0 and 2, got %g", c.Generation.Temperature)
	}
	if c.Generation.TopP < 0 || c.Generation.TopP > 1 {
		add("generation.top_p", "must be between 0 and 1, got %g", c.Generation.TopP)
	}
	if c.Generation.ContextSize < 0 {
		add("generation.num_ctx", "must be >= 0, got %d", c.Generation.ContextSize)
	}

	if c.Session.WarmupTokens < 0 {
		add("session.warmup_tokens", "must be >= 0, got %d", c.Session.WarmupTokens)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("logging.format", "invalid format '%s', must be one of: text, json", c.Logging.Format)
	}

	if c.Storage.Enabled && c.Storage.Path == "" {
		add("storage.path", "required when storage is enabled")
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		field := "models[" + strconv.Itoa(i) + "]"
		if err := m.Validate(); err != nil {
			add(field, "%v", err)
			continue
		}
		if seen[m.ID] {
			add(field, "duplicate model id '%s'", m.ID)
		}
		seen[m.ID] = true
	}
	if c.Session.DefaultModel != "" && !seen[c.Session.DefaultModel] {
		add("session.default_model", "model '%s' is not listed in [[models]]", c.Session.DefaultModel)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envLookup reads the process environment first, then a .env file in the
// config directory. A missing or unreadable .env file is ignored.
func envLookup(configPath string) func(string) string {
	dotenv, err := godotenv.Read(filepath.Join(filepath.Dir(configPath), ".env"))
	if err != nil {
		dotenv = nil
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}
}

// applyOverrides applies the environment overrides read through getenv:
//   - FOCUSAI_OLLAMA_URL: overrides engine.url
//   - FOCUSAI_BACKEND: overrides engine.backend
//   - FOCUSAI_API_KEY: overrides engine.api_key
//   - FOCUSAI_MODEL: overrides session.default_model
//   - FOCUSAI_MAX_TOKENS: overrides generation.max_tokens
//   - FOCUSAI_LOG_LEVEL: overrides logging.level
//   - FOCUSAI_STORAGE: "0"/"false" disables the transcript store
//   - FOCUSAI_STORAGE_PATH: overrides storage.path
//   - FOCUSAI_LOCAL_ONLY: "1"/"true" accepts loopback servers only
func (c *Config) applyOverrides(getenv func(string) string) {
	if v := getenv("FOCUSAI_OLLAMA_URL"); v != "" {
		c.Engine.URL = v
	}
	if v := getenv("FOCUSAI_BACKEND"); v != "" {
		c.Engine.Backend = strings.ToLower(v)
	}
	if v := getenv("FOCUSAI_API_KEY"); v != "" {
		c.Engine.APIKey = v
	}
	if v := getenv("FOCUSAI_MODEL"); v != "" {
		c.Session.DefaultModel = v
	}
	if v := getenv("FOCUSAI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Generation.MaxTokens = n
		}
	}
	if v := getenv("FOCUSAI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("FOCUSAI_STORAGE"); v != "" {
		c.Storage.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := getenv("FOCUSAI_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := getenv("FOCUSAI_LOCAL_ONLY"); v != "" {
		c.Engine.LocalOnly = v == "1" || strings.EqualFold(v, "true")
	}
}
