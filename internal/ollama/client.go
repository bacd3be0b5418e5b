// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/focusai/internal/engine"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type so wrapped variants compare equal.
func (e *ClientError) Is(target error) bool {
	var t *ClientError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && t.Type != ErrTypeUnknown
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeContextExceeded
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeNoModel
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning      = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound   = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrContextExceeded = &ClientError{Type: ErrTypeContextExceeded, Message: "context window exceeded"}
	ErrNoModelLoaded   = &ClientError{Type: ErrTypeNoModel, Message: "no model loaded"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Uses an explicit IPv4 address to avoid IPv6 resolution issues on Windows.
	BaseURL string

	// Timeout for non-streaming requests (default: 30s). Model loads can be
	// slow on first use, so Load uses LoadTimeout instead.
	Timeout time.Duration

	// LoadTimeout bounds a model load (default: 5m)
	LoadTimeout time.Duration

	// KeepAlive is how long Ollama keeps a loaded model resident (default: "30m")
	KeepAlive string

	// MaxRetries for loads that fail because the server is still starting (default: 3)
	MaxRetries int

	// RetryDelay between retries (default: 1s)
	RetryDelay time.Duration

	// Logger receives startup progress and request failures.
	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:     "http://127.0.0.1:11434",
		Timeout:     30 * time.Second,
		LoadTimeout: 5 * time.Minute,
		KeepAlive:   "30m",
		MaxRetries:  3,
		RetryDelay:  1 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API and implements
// engine.Engine. It tracks the one model it has loaded.
//
// The Client is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger

	mu     sync.Mutex
	loaded string
}

var _ engine.Engine = (*Client)(nil)

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = defaults.LoadTimeout
	}
	if config.KeepAlive == "" {
		config.KeepAlive = defaults.KeepAlive
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		// Streams are bounded by their context, not a client timeout.
		// Ollama runs locally over HTTP, so there is no TLS configuration.
		streamClient: &http.Client{},
		logger:       logger.With("component", "ollama"),
	}
}

// Loaded returns the tag of the resident model, or "".
func (c *Client) Loaded() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}

	return nil
}

// StartOllama attempts to start the Ollama server if it's not running.
// The start logic is platform-specific (see start_windows.go and start_unix.go).
func (c *Client) StartOllama(ctx context.Context) error {
	if err := c.CheckRunning(ctx); err == nil {
		return nil
	}
	return c.startOllamaProcess(ctx)
}

// EnsureRunning checks if Ollama is running, and starts it if not.
func (c *Client) EnsureRunning(ctx context.Context) error {
	if err := c.CheckRunning(ctx); err == nil {
		return nil
	}
	return c.StartOllama(ctx)
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "failed to list models")
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return result.Models, nil
}

// Load implements engine.Engine. Ollama addresses models by tag, so lib is
// used when set and path only as a fallback.
func (c *Client) Load(ctx context.Context, path, lib string) error {
	tag := lib
	if tag == "" {
		tag = path
	}
	if tag == "" {
		return &ClientError{Type: ErrTypeModelNotFound, Message: "no model reference given"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.LoadTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return transportError(ctx.Err())
			case <-time.After(c.config.RetryDelay):
			}
		}

		err = c.generate(ctx, GenerateRequest{Model: tag, KeepAlive: c.config.KeepAlive})
		if err == nil {
			c.mu.Lock()
			c.loaded = tag
			c.mu.Unlock()
			c.logger.Debug("model loaded", "model", tag, "attempts", attempt+1)
			return nil
		}
		if !IsNotRunning(err) {
			return err
		}
	}
	return err
}

// Unload implements engine.Engine.
func (c *Client) Unload(ctx context.Context) error {
	c.mu.Lock()
	tag := c.loaded
	c.loaded = ""
	c.mu.Unlock()

	if tag == "" {
		return nil
	}
	if err := c.generate(ctx, GenerateRequest{Model: tag, KeepAlive: 0}); err != nil {
		return err
	}
	c.logger.Debug("model unloaded", "model", tag)
	return nil
}

// Reset implements engine.Engine. Ollama keeps no conversation state
// between /api/chat calls, so only the loaded model is checked.
func (c *Client) Reset(ctx context.Context) error {
	if c.Loaded() == "" {
		return ErrNoModelLoaded
	}
	return nil
}

func (c *Client) generate(ctx context.Context, reqBody GenerateRequest) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	// Loads can exceed the short request timeout; ctx carries the bound.
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, "generate request failed")
	}
	return nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamCompletion implements engine.Engine.
func (c *Client) StreamCompletion(ctx context.Context, req engine.CompletionRequest) (engine.Stream, error) {
	tag := c.Loaded()
	if tag == "" {
		return nil, ErrNoModelLoaded
	}

	reqBody := ChatRequest{
		Model:     tag,
		Messages:  toMessages(req.Messages),
		Stream:    true,
		KeepAlive: c.config.KeepAlive,
		Options: &Options{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumCtx:      req.ContextSize,
			NumPredict:  req.MaxTokens,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp, "stream request failed")
	}

	return newChatStream(resp.Body), nil
}

func toMessages(msgs []engine.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: m.Role.String(), Content: m.Content, Images: m.Images}
	}
	return out
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
}

// statusError maps a non-200 response to a ClientError, preferring the
// message from Ollama's error body.
func statusError(resp *http.Response, fallback string) error {
	msg := fallback + ": " + resp.Status
	var ollamaErr OllamaError
	if err := json.NewDecoder(resp.Body).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
		msg = ollamaErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &ClientError{Type: ErrTypeModelNotFound, Message: msg}
	case strings.Contains(strings.ToLower(msg), "context length"):
		return &ClientError{Type: ErrTypeContextExceeded, Message: msg}
	default:
		return &ClientError{Type: ErrTypeInvalidResponse, Message: msg}
	}
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
