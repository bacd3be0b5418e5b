// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/jeranaias/focusai/internal/chat"
)

// recordTimeout bounds one transcript write.
const recordTimeout = 5 * time.Second

// Recorder is a chat.Observer that writes every committed turn to a Store.
// Write failures are logged and do not affect the session.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// OnUpdate implements chat.Observer.
func (r *Recorder) OnUpdate(u chat.Update) {
	if u.Kind != chat.UpdateTurnCommitted || u.Turn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.store.RecordTurn(ctx, *u.Turn); err != nil {
		r.logger.Error("record turn", "session", u.Session, "error", err)
	}
}
