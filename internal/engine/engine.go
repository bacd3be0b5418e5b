// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine defines the contract between a chat session and the
// inference backend that serves it.
//
// A backend loads one model at a time and streams completions for a list
// of role-tagged messages. Streams are finite and not restartable: a retry
// is a new StreamCompletion call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/focusai/internal/model"
)

// FinishReasonStop and FinishReasonLength are the terminal reasons a
// backend reports. Length means the output was cut off by the context
// window or the max token limit.
const (
	FinishReasonStop   = "stop"
	FinishReasonLength = "length"
)

// Engine is an inference backend.
type Engine interface {
	// Load makes the model referenced by path/lib resident.
	Load(ctx context.Context, path, lib string) error

	// Unload releases the resident model. Unloading with nothing loaded
	// is not an error.
	Unload(ctx context.Context) error

	// Reset drops any backend-side conversation state for the loaded model.
	Reset(ctx context.Context) error

	// StreamCompletion starts a completion for req.Messages.
	StreamCompletion(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Stream yields the chunks of one completion.
type Stream interface {
	// Recv returns the next chunk. It returns io.EOF after the last chunk.
	Recv() (Chunk, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// Message is a role-tagged turn sent to the backend.
type Message struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
	Images  [][]byte   `json:"images,omitempty"`
}

// CompletionRequest carries the turns and sampling parameters for one call.
type CompletionRequest struct {
	Messages []Message

	// MaxTokens caps the output length. Zero means backend default.
	MaxTokens   int
	Temperature float64
	TopP        float64

	// ContextSize overrides the backend context window when non-zero.
	ContextSize int
}

// Chunk is one element of a completion stream. Any field may be empty:
// the final chunk usually carries only FinishReason and Usage.
type Chunk struct {
	Delta        string
	FinishReason string
	Usage        *Usage
}

// Usage reports token counts and timings for a finished completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	PromptDuration   time.Duration
	DecodeDuration   time.Duration
}

// PrefillRate returns prompt tokens per second.
func (u Usage) PrefillRate() float64 {
	if u.PromptDuration <= 0 {
		return 0
	}
	return float64(u.PromptTokens) / u.PromptDuration.Seconds()
}

// DecodeRate returns generated tokens per second.
func (u Usage) DecodeRate() float64 {
	if u.DecodeDuration <= 0 {
		return 0
	}
	return float64(u.CompletionTokens) / u.DecodeDuration.Seconds()
}

// Label formats usage for display: "prefill: 812.4 tok/s, decode: 41.7 tok/s".
func (u Usage) Label() string {
	return fmt.Sprintf("prefill: %.1f tok/s, decode: %.1f tok/s", u.PrefillRate(), u.DecodeRate())
}

// Drain reads s to the end and returns the concatenated text and the
// terminal chunk. The stream is closed on return.
func Drain(s Stream) (string, Chunk, error) {
	defer s.Close()

	var text []byte
	var last Chunk
	for {
		c, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(text), last, nil
			}
			return string(text), last, err
		}
		text = append(text, c.Delta...)
		if c.FinishReason != "" {
			last.FinishReason = c.FinishReason
		}
		if c.Usage != nil {
			last.Usage = c.Usage
		}
	}
}
