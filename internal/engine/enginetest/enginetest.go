// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package enginetest provides an in-memory engine.Engine for tests.
//
// Streams are either scripted up front (Script) or driven chunk by chunk
// from the test (Hold). When nothing is queued, StreamCompletion returns
// an empty stream that finishes with FinishReasonStop.
package enginetest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/jeranaias/focusai/internal/engine"
)

// Engine records every call it receives.
type Engine struct {
	mu       sync.Mutex
	calls    []string
	requests []engine.CompletionRequest
	queue    []engine.Stream
	loaded   string

	// Errors returned by the corresponding calls when set.
	LoadErr   error
	UnloadErr error
	ResetErr  error
	StreamErr error
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{}
}

// Load implements engine.Engine.
func (e *Engine) Load(ctx context.Context, path, lib string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "load:"+lib)
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.loaded = lib
	return nil
}

// Unload implements engine.Engine.
func (e *Engine) Unload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "unload")
	e.loaded = ""
	return e.UnloadErr
}

// Reset implements engine.Engine.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "reset")
	return e.ResetErr
}

// StreamCompletion implements engine.Engine.
func (e *Engine) StreamCompletion(ctx context.Context, req engine.CompletionRequest) (engine.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "stream")

	msgs := make([]engine.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	e.requests = append(e.requests, req)

	if e.StreamErr != nil {
		return nil, e.StreamErr
	}
	if len(e.queue) == 0 {
		return Scripted(engine.Chunk{FinishReason: engine.FinishReasonStop}), nil
	}
	s := e.queue[0]
	e.queue = e.queue[1:]
	if h, ok := s.(*HeldStream); ok {
		close(h.opened)
	}
	return s, nil
}

// Script queues a stream that yields chunks in order and then io.EOF.
func (e *Engine) Script(chunks ...engine.Chunk) {
	e.enqueue(Scripted(chunks...))
}

// ScriptError queues a stream that yields chunks and then fails with err.
func (e *Engine) ScriptError(err error, chunks ...engine.Chunk) {
	s := Scripted(chunks...)
	s.err = err
	e.enqueue(s)
}

// Hold queues a stream the test drives with Send and Finish.
func (e *Engine) Hold() *HeldStream {
	h := &HeldStream{
		items:  make(chan item),
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}
	e.enqueue(h)
	return h
}

func (e *Engine) enqueue(s engine.Stream) {
	e.mu.Lock()
	e.queue = append(e.queue, s)
	e.mu.Unlock()
}

// Calls returns the recorded call log ("load:<lib>", "unload", "reset", "stream").
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

// Requests returns every completion request received.
func (e *Engine) Requests() []engine.CompletionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.CompletionRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

// Loaded returns the lib of the resident model, or "".
func (e *Engine) Loaded() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// =============================================================================
// SCRIPTED STREAM
// =============================================================================

// ScriptedStream replays a fixed list of chunks.
type ScriptedStream struct {
	mu     sync.Mutex
	chunks []engine.Chunk
	err    error
	closed bool
}

// Scripted returns a stream over chunks.
func Scripted(chunks ...engine.Chunk) *ScriptedStream {
	return &ScriptedStream{chunks: chunks}
}

// Recv implements engine.Stream.
func (s *ScriptedStream) Recv() (engine.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.Chunk{}, io.ErrClosedPipe
	}
	if len(s.chunks) == 0 {
		if s.err != nil {
			return engine.Chunk{}, s.err
		}
		return engine.Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

// Close implements engine.Stream.
func (s *ScriptedStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// =============================================================================
// HELD STREAM
// =============================================================================

type item struct {
	chunk engine.Chunk
	err   error
}

// HeldStream delivers chunks only when the test sends them.
type HeldStream struct {
	items  chan item
	opened chan struct{}
	closed chan struct{}
	once   sync.Once
}

// ErrStreamClosed is returned by Send after the consumer closed the stream.
var ErrStreamClosed = errors.New("enginetest: stream closed")

// Opened is closed once StreamCompletion has handed out this stream.
func (h *HeldStream) Opened() <-chan struct{} {
	return h.opened
}

// Closed is closed once the consumer called Close.
func (h *HeldStream) Closed() <-chan struct{} {
	return h.closed
}

// Send blocks until the consumer has received c.
func (h *HeldStream) Send(ctx context.Context, c engine.Chunk) error {
	return h.push(ctx, item{chunk: c})
}

// Delta is Send with a text-only chunk.
func (h *HeldStream) Delta(ctx context.Context, text string) error {
	return h.Send(ctx, engine.Chunk{Delta: text})
}

// Fail makes the next Recv return err.
func (h *HeldStream) Fail(ctx context.Context, err error) error {
	return h.push(ctx, item{err: err})
}

// Finish makes the next Recv return io.EOF.
func (h *HeldStream) Finish(ctx context.Context) error {
	return h.push(ctx, item{err: io.EOF})
}

func (h *HeldStream) push(ctx context.Context, it item) error {
	select {
	case h.items <- it:
		return nil
	case <-h.closed:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv implements engine.Stream.
func (h *HeldStream) Recv() (engine.Chunk, error) {
	select {
	case it := <-h.items:
		return it.chunk, it.err
	case <-h.closed:
		return engine.Chunk{}, io.ErrClosedPipe
	}
}

// Close implements engine.Stream.
func (h *HeldStream) Close() error {
	h.once.Do(func() { close(h.closed) })
	return nil
}
