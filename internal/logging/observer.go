// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"
	"log/slog"

	"github.com/jeranaias/focusai/internal/chat"
)

// SessionObserver logs chat session updates. Streaming replacements are
// logged at debug level only; everything else at info, errors at warn.
type SessionObserver struct {
	logger *slog.Logger
}

// NewSessionObserver creates a SessionObserver that emits to logger.
func NewSessionObserver(logger *slog.Logger) *SessionObserver {
	return &SessionObserver{logger: logger}
}

// OnUpdate implements chat.Observer.
func (o *SessionObserver) OnUpdate(u chat.Update) {
	attrs := []slog.Attr{
		slog.String("session", u.Session),
		slog.Uint64("seq", u.Seq),
		slog.String("state", u.State.String()),
	}
	level := slog.LevelInfo

	switch u.Kind {
	case chat.UpdateMessageAppended, chat.UpdateMessageReplaced:
		level = slog.LevelDebug
		attrs = append(attrs,
			slog.String("role", string(u.Message.Role)),
			slog.Int("chars", len(u.Message.Content)))
		if u.Kind == chat.UpdateMessageAppended && !u.Message.IsEmpty() {
			attrs = append(attrs, slog.String("preview", u.Message.Preview(previewLen)))
		}
	case chat.UpdateError:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("reason", u.Text))
	case chat.UpdateState:
		if u.Text != "" {
			attrs = append(attrs, slog.String("reason", u.Text))
		}
	case chat.UpdateInfo:
		level = slog.LevelDebug
		attrs = append(attrs, slog.String("info", u.Text))
	case chat.UpdateTurnCommitted:
		attrs = append(attrs,
			slog.String("model", u.Turn.Model),
			slog.Bool("truncated", u.Turn.Truncated),
			slog.Duration("ttft", u.Turn.TTFT),
			slog.Duration("duration", u.Turn.Duration),
			slog.String("stats", u.Turn.Stats))
	case chat.UpdatePruned:
		attrs = append(attrs, slog.Int("removed", u.Pruned))
	}

	o.logger.LogAttrs(context.Background(), level, "chat "+u.Kind.String(), attrs...)
}

// previewLen bounds the message text copied into debug records.
const previewLen = 48

// MultiObserver fans updates out to several observers in order.
type MultiObserver []chat.Observer

// NewMultiObserver drops nil observers.
func NewMultiObserver(observers ...chat.Observer) MultiObserver {
	filtered := make(MultiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// OnUpdate implements chat.Observer.
func (m MultiObserver) OnUpdate(u chat.Update) {
	for _, o := range m {
		o.OnUpdate(u)
	}
}
