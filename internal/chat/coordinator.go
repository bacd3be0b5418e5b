// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/history"
	"github.com/jeranaias/focusai/internal/model"
)

// generation is one queued streaming job.
type generation struct {
	prompt   string
	hasImage bool
	reply    model.Message
	params   Generation
	model    string
}

// outcome is what the streaming loop leaves for finalization.
type outcome struct {
	text      string
	truncated bool
	usage     *engine.Usage
	err       error
	cancelled bool
	stats     *model.Statistics
}

// runGeneration streams one completion into the trailing assistant
// message. Every delta is published under the session lock after checking
// that the session is still Generating; once it is not, the loop stops
// and nothing more is published.
func (s *Session) runGeneration(ctx context.Context, g *generation) {
	s.mu.Lock()
	if s.state != StateGenerating {
		s.finishLocked(g, outcome{cancelled: true, stats: model.NewStatistics()})
		s.mu.Unlock()
		return
	}
	req := engine.CompletionRequest{
		Messages:    s.history.Messages(),
		MaxTokens:   g.params.MaxTokens,
		Temperature: g.params.Temperature,
		TopP:        g.params.TopP,
		ContextSize: g.params.ContextSize,
	}
	s.mu.Unlock()

	out := s.stream(ctx, g, req)

	s.mu.Lock()
	s.finishLocked(g, out)
	s.mu.Unlock()
}

func (s *Session) stream(ctx context.Context, g *generation, req engine.CompletionRequest) outcome {
	out := outcome{stats: model.NewStatistics()}

	st, err := s.engine.StreamCompletion(ctx, req)
	if err != nil {
		out.err = err
		return out
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		st.Close()
		out.cancelled = true
		return out
	}
	s.active = st
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
		st.Close()
	}()

	for {
		c, err := st.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			out.err = err
			return out
		}
		if c.Usage != nil {
			out.usage = c.Usage
		}
		truncated := out.truncated || c.FinishReason == engine.FinishReasonLength
		if c.Delta == "" && truncated == out.truncated {
			continue
		}

		s.mu.Lock()
		if s.state != StateGenerating {
			s.mu.Unlock()
			out.cancelled = true
			return out
		}
		if c.Delta != "" {
			out.stats.RecordFirstToken()
		}
		out.text += c.Delta
		out.truncated = truncated
		shown := out.text
		if out.truncated {
			shown += s.notice
		}
		s.replaceDisplayLocked(g.reply.WithContent(shown))
		s.mu.Unlock()
	}
}

// finishLocked commits or discards the pending turn, prunes after a
// truncated answer, and moves the session on. A generation superseded by
// a reset, reload or terminate only drops its pending turn: the request
// that superseded it owns the state from here.
func (s *Session) finishLocked(g *generation, out outcome) {
	log := s.logger.With("model", g.model)

	if s.state != StateGenerating {
		if err := s.history.Discard(); err != nil && !errors.Is(err, history.ErrNoPendingTurn) {
			log.Error("discard turn", "error", err)
		}
		log.Debug("generation superseded", "state", s.state, "chars", len(out.text), "cancelled", out.cancelled)
		return
	}

	completion := 0
	if out.usage != nil {
		completion = out.usage.CompletionTokens
		out.stats.Finalize(out.usage.PromptTokens, completion)
	} else {
		out.stats.Finalize(0, 0)
	}

	if out.text != "" {
		if err := s.history.Commit(out.text); err != nil {
			log.Error("commit turn", "error", err)
		} else {
			s.publishLocked(Update{Kind: UpdateTurnCommitted, State: s.state, Turn: &Turn{
				Session:   s.id,
				Model:     g.model,
				User:      g.prompt,
				Assistant: out.text,
				Truncated: out.truncated,
				HasImage:  g.hasImage,
				Usage:     out.usage,
				TTFT:      out.stats.TTFT,
				Duration:  out.stats.TotalDuration,
				Stats:     out.stats.Format(),
				Committed: time.Now(),
			}})
		}
	} else if err := s.history.Discard(); err != nil {
		log.Error("discard turn", "error", err)
	}

	if out.truncated {
		n, err := s.history.Prune()
		if err != nil {
			log.Error("prune history", "error", err)
		} else if n > 0 {
			log.Info("history pruned after truncation", "removed", n, "remaining", s.history.Len())
			s.publishLocked(Update{Kind: UpdatePruned, State: s.state, Pruned: n})
		}
	}

	if out.usage != nil {
		s.info = out.usage.Label()
		s.publishLocked(Update{Kind: UpdateInfo, State: s.state, Text: s.info})
	}

	if out.err != nil {
		log.Error("generation failed", "error", out.err, "chars", len(out.text))
		s.failLocked(evGenerateFailed, out.err.Error())
		return
	}
	log.Debug("generation finished", "chars", len(out.text), "tokens", completion,
		"ttft", out.stats.TTFT, "tok_per_sec", out.stats.TokensPerSecond)
	if _, err := s.applyLocked(evGenerateDone); err != nil {
		log.Error("generation completion rejected", "error", err)
	}
}
