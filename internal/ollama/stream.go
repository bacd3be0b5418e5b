// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jeranaias/focusai/internal/engine"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	reader *bufio.Reader
	done   bool
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Next returns the next response line. Blank and malformed lines are
// skipped. It returns io.EOF after the done line or at end of input.
func (s *StreamReader) Next() (*ChatResponse, error) {
	for {
		if s.done {
			return nil, io.EOF
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var resp ChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Done {
			s.done = true
		}
		return &resp, nil
	}
}

// =============================================================================
// ENGINE STREAM
// =============================================================================

// chatStream adapts a /api/chat response body to engine.Stream.
type chatStream struct {
	body   io.ReadCloser
	reader *StreamReader
	once   sync.Once
}

func newChatStream(body io.ReadCloser) *chatStream {
	return &chatStream{body: body, reader: NewStreamReader(body)}
}

// Recv implements engine.Stream.
func (s *chatStream) Recv() (engine.Chunk, error) {
	resp, err := s.reader.Next()
	if err != nil {
		return engine.Chunk{}, err
	}
	if resp.Error != "" {
		if isContextError(resp.Error) {
			return engine.Chunk{}, &ClientError{Type: ErrTypeContextExceeded, Message: resp.Error}
		}
		return engine.Chunk{}, &ClientError{Type: ErrTypeInvalidResponse, Message: resp.Error}
	}
	return toChunk(resp), nil
}

// Close implements engine.Stream.
func (s *chatStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

func toChunk(resp *ChatResponse) engine.Chunk {
	c := engine.Chunk{Delta: resp.Message.Content}
	if !resp.Done {
		return c
	}

	c.FinishReason = finishReason(resp.DoneReason)
	c.Usage = &engine.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		PromptDuration:   time.Duration(resp.PromptEvalDuration),
		DecodeDuration:   time.Duration(resp.EvalDuration),
	}
	return c
}

// finishReason normalizes Ollama's done_reason. Older servers omit it.
func finishReason(r string) string {
	switch r {
	case "", "stop":
		return engine.FinishReasonStop
	case "length":
		return engine.FinishReasonLength
	default:
		return r
	}
}

func isContextError(msg string) bool {
	return bytes.Contains(bytes.ToLower([]byte(msg)), []byte("context length"))
}
