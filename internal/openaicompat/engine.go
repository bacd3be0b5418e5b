// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openaicompat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/model"
)

var (
	// ErrNoModelLoaded is returned by Reset and StreamCompletion before Load.
	ErrNoModelLoaded = errors.New("no model loaded")

	// ErrModelNotFound is returned when the server rejects the model name.
	ErrModelNotFound = errors.New("model not found on server")
)

// Config configures the engine.
type Config struct {
	// BaseURL is the API root including the version ("http://host:port/v1").
	BaseURL string

	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string

	// MaxRetries for requests that fail before the stream starts.
	MaxRetries int

	Logger *slog.Logger
}

// Engine is an engine.Engine over an OpenAI-compatible server. It is safe
// for concurrent use.
type Engine struct {
	client *openai.Client
	logger *slog.Logger

	mu    sync.Mutex
	model string

	now func() time.Time
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine for cfg.
func New(cfg Config) *Engine {
	base := strings.TrimRight(cfg.BaseURL, "/") + "/"
	key := cfg.APIKey
	if key == "" {
		// The client refuses to send requests without a key.
		key = "local"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client: openai.NewClient(
			option.WithBaseURL(base),
			option.WithAPIKey(key),
			option.WithMaxRetries(cfg.MaxRetries),
		),
		logger: logger.With("component", "openaicompat"),
		now:    time.Now,
	}
}

// Loaded returns the model name set by Load, or "".
func (e *Engine) Loaded() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

// Load implements engine.Engine. lib is the server's model name; path is
// used only when lib is empty.
func (e *Engine) Load(ctx context.Context, path, lib string) error {
	name := lib
	if name == "" {
		name = path
	}
	if name == "" {
		return fmt.Errorf("%w: no model reference given", ErrModelNotFound)
	}
	e.mu.Lock()
	e.model = name
	e.mu.Unlock()
	e.logger.Debug("model selected", "model", name)
	return nil
}

// Unload implements engine.Engine.
func (e *Engine) Unload(ctx context.Context) error {
	e.mu.Lock()
	e.model = ""
	e.mu.Unlock()
	return nil
}

// Reset implements engine.Engine. Chat completions are stateless.
func (e *Engine) Reset(ctx context.Context) error {
	if e.Loaded() == "" {
		return ErrNoModelLoaded
	}
	return nil
}

// StreamCompletion implements engine.Engine. ContextSize is not part of
// the API and is ignored.
func (e *Engine) StreamCompletion(ctx context.Context, req engine.CompletionRequest) (engine.Stream, error) {
	name := e.Loaded()
	if name == "" {
		return nil, ErrNoModelLoaded
	}

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(toMessages(req.Messages)),
		Model:    openai.F(name),
		StreamOptions: openai.F(openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.F(true),
		}),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	s := &sseStream{src: e.client.Chat.Completions.NewStreaming(ctx, params), now: e.now}
	s.start = e.now()
	return s, nil
}

func toMessages(msgs []engine.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{openai.TextPart(m.Content)}
			for _, img := range m.Images {
				parts = append(parts, openai.ImagePart(dataURL(img)))
			}
			out = append(out, openai.UserMessageParts(parts...))
		}
	}
	return out
}

func dataURL(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}

// =============================================================================
// STREAM
// =============================================================================

// chunkSource is the subset of the SSE stream the adapter reads.
type chunkSource interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// sseStream adapts a chat completion stream to engine.Stream.
type sseStream struct {
	src chunkSource
	now func() time.Time

	start      time.Time
	firstDelta time.Time
	once       sync.Once
	closeErr   error
}

// Recv implements engine.Stream.
func (s *sseStream) Recv() (engine.Chunk, error) {
	for s.src.Next() {
		c, ok := s.convert(s.src.Current())
		if ok {
			return c, nil
		}
	}
	if err := s.src.Err(); err != nil {
		return engine.Chunk{}, mapError(err)
	}
	return engine.Chunk{}, io.EOF
}

// Close implements engine.Stream.
func (s *sseStream) Close() error {
	s.once.Do(func() { s.closeErr = s.src.Close() })
	return s.closeErr
}

// convert maps one SSE chunk. Chunks with nothing to report are skipped.
func (s *sseStream) convert(chunk openai.ChatCompletionChunk) (engine.Chunk, bool) {
	var c engine.Chunk
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		c.Delta = choice.Delta.Content
		c.FinishReason = finishReason(string(choice.FinishReason))
	}
	if c.Delta != "" && s.firstDelta.IsZero() {
		s.firstDelta = s.now()
	}
	if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		c.Usage = s.usage(int(chunk.Usage.PromptTokens), int(chunk.Usage.CompletionTokens))
	}
	return c, c.Delta != "" || c.FinishReason != "" || c.Usage != nil
}

func (s *sseStream) usage(prompt, completion int) *engine.Usage {
	u := &engine.Usage{PromptTokens: prompt, CompletionTokens: completion}
	end := s.now()
	if !s.firstDelta.IsZero() {
		u.PromptDuration = s.firstDelta.Sub(s.start)
		u.DecodeDuration = end.Sub(s.firstDelta)
	} else {
		u.PromptDuration = end.Sub(s.start)
	}
	return u
}

func finishReason(r string) string {
	switch r {
	case "":
		return ""
	case "stop":
		return engine.FinishReasonStop
	case "length":
		return engine.FinishReasonLength
	default:
		return r
	}
}

// mapError turns a 404 from the server into ErrModelNotFound.
func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrModelNotFound, err)
	}
	return err
}
