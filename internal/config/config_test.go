// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/focusai/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:11434", cfg.Engine.URL)
	require.Equal(t, DefaultTruncationNotice, cfg.Session.TruncationNotice)
	require.Equal(t, 1, cfg.Session.WarmupTokens)
	require.True(t, cfg.Engine.AutoStart)
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[engine]
url = "http://10.0.0.5:11434"
auto_start = false

[generation]
max_tokens = 256
temperature = 0.2

[session]
default_model = "llama"

[[models]]
id = "llama"
lib = "llama3.2:3b"
display_name = "Llama 3.2 3B"
estimated_vram_bytes = 3221225472

[[models]]
id = "llava"
lib = "llava:7b"
vision = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:11434", cfg.Engine.URL)
	require.False(t, cfg.Engine.AutoStart)
	require.Equal(t, "30m", cfg.Engine.KeepAlive, "unset keys keep defaults")
	require.Equal(t, 256, cfg.Generation.MaxTokens)
	require.Equal(t, 0.2, cfg.Generation.Temperature)

	cat := cfg.Catalog()
	require.Equal(t, 2, cat.Len())
	llama, ok := cat.Lookup("llama")
	require.True(t, ok)
	require.Equal(t, uint64(3221225472), llama.EstimatedVRAM)
	llava, _ := cat.Lookup("llava")
	require.True(t, llava.Vision)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"generation": {"max_tokens": 64}, "logging": {"level": "debug"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.Generation.MaxTokens)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[engine\nurl=")
	_, err := Load(path)
	require.Error(t, err)

	writeFile(t, path, "[generation]\ntemperature = 5.0\n")
	_, err = Load(path)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs), "err = %v", err)
	require.Equal(t, "generation.temperature", verrs[0].Field)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FOCUSAI_OLLAMA_URL", "http://example.test:1234")
	t.Setenv("FOCUSAI_MAX_TOKENS", "99")
	t.Setenv("FOCUSAI_LOG_LEVEL", "warn")
	t.Setenv("FOCUSAI_STORAGE", "false")
	t.Setenv("FOCUSAI_LOCAL_ONLY", "0")
	t.Setenv("FOCUSAI_BACKEND", "OPENAI")
	t.Setenv("FOCUSAI_API_KEY", "sk-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, "http://example.test:1234", cfg.Engine.URL)
	require.Equal(t, 99, cfg.Generation.MaxTokens)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.False(t, cfg.Storage.Enabled)
	require.False(t, cfg.Engine.LocalOnly)
	require.Equal(t, BackendOpenAI, cfg.Engine.Backend)
	require.Equal(t, "sk-env", cfg.Engine.APIKey)

	t.Setenv("FOCUSAI_LOCAL_ONLY", "true")
	_, err = Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorContains(t, err, "local-only")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "FOCUSAI_MAX_TOKENS=77\nFOCUSAI_LOG_LEVEL=debug\n")
	t.Setenv("FOCUSAI_LOG_LEVEL", "error")

	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	require.Equal(t, 77, cfg.Generation.MaxTokens)
	// The process environment wins over the file.
	require.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_OpenAIBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[engine]\nbackend = \"OpenAI\"\nurl = \"http://127.0.0.1:8080/v1\"\napi_key = \"sk-local\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendOpenAI, cfg.Engine.Backend)
	require.Equal(t, "sk-local", cfg.Engine.APIKey)

	shown := cfg.String()
	require.NotContains(t, shown, "sk-local")
	require.Contains(t, shown, "********")
	require.Equal(t, "sk-local", cfg.Engine.APIKey)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad backend", func(c *Config) { c.Engine.Backend = "vllm" }, "engine.backend"},
		{"bad url", func(c *Config) { c.Engine.URL = "localhost" }, "engine.url"},
		{"remote url when local only", func(c *Config) {
			c.Engine.LocalOnly = true
			c.Engine.URL = "http://10.0.0.5:11434"
		}, "engine.url"},
		{"negative tokens", func(c *Config) { c.Generation.MaxTokens = -1 }, "generation.max_tokens"},
		{"top_p range", func(c *Config) { c.Generation.TopP = 1.5 }, "generation.top_p"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"model without id", func(c *Config) { c.Models = []model.Identity{{Lib: "x"}} }, "models[0]"},
		{"duplicate model", func(c *Config) {
			c.Models = []model.Identity{{ID: "a", Lib: "a"}, {ID: "a", Lib: "b"}}
		}, "models[1]"},
		{"unknown default", func(c *Config) { c.Session.DefaultModel = "ghost" }, "session.default_model"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.Path = "/tmp/x.db"
			tc.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "err = %v", err)
			require.Equal(t, tc.field, verrs[0].Field)
		})
	}

	cfg := Default()
	cfg.Storage.Path = "/tmp/x.db"
	require.NoError(t, cfg.Validate())
}

// =============================================================================
// SAVE TESTS
// =============================================================================

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Generation.MaxTokens = 333
	cfg.Models = []model.Identity{{ID: "phi", Lib: "phi3:mini", EstimatedVRAM: 1 << 30}}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "# focusai configuration file"))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 333, loaded.Generation.MaxTokens)
	require.Equal(t, cfg.Models, loaded.Models)
	require.Contains(t, loaded.String(), "max_tokens = 333")
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[generation]\nmax_tokens = 10\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, nil, func(c *Config) { changes <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Invalid content is skipped.
	writeFile(t, path, "[generation]\nmax_tokens = -5\n")
	time.Sleep(100 * time.Millisecond)

	// Unrelated files in the directory are ignored.
	writeFile(t, filepath.Join(dir, "other.toml"), "x = 1")

	cfg := Default()
	cfg.Generation.MaxTokens = 42
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-changes:
		require.Equal(t, 42, got.Generation.MaxTokens)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
