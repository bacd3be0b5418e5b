// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/model"
)

// UpdateKind identifies what changed.
type UpdateKind int

const (
	// UpdateState: State (and Text, the reason, for StateError/StateFailed).
	UpdateState UpdateKind = iota
	// UpdateMessageAppended: Message was added to the display list.
	UpdateMessageAppended
	// UpdateMessageReplaced: the display message with Message.ID changed.
	UpdateMessageReplaced
	// UpdateCleared: the display list was emptied.
	UpdateCleared
	// UpdateInfo: Text is the new info line.
	UpdateInfo
	// UpdateError: Text is the new error message.
	UpdateError
	// UpdateTurnCommitted: Turn was added to history.
	UpdateTurnCommitted
	// UpdatePruned: Pruned oldest history entries were dropped.
	UpdatePruned
)

var updateKindNames = [...]string{
	UpdateState:           "state",
	UpdateMessageAppended: "message-appended",
	UpdateMessageReplaced: "message-replaced",
	UpdateCleared:         "cleared",
	UpdateInfo:            "info",
	UpdateError:           "error",
	UpdateTurnCommitted:   "turn-committed",
	UpdatePruned:          "pruned",
}

func (k UpdateKind) String() string {
	if k >= 0 && int(k) < len(updateKindNames) {
		return updateKindNames[k]
	}
	return "unknown"
}

// Update is one observable change. Seq increases by one per update within
// a session.
type Update struct {
	Seq     uint64
	Session string
	Kind    UpdateKind
	State   State
	Message model.Message
	Text    string
	Turn    *Turn
	Pruned  int
}

// Turn is a committed user/assistant exchange.
type Turn struct {
	Session   string
	Model     string
	User      string
	Assistant string
	Truncated bool
	HasImage  bool
	Usage     *engine.Usage
	TTFT      time.Duration
	Duration  time.Duration
	// Stats is the one-line timing summary, as model.Statistics.Format.
	Stats     string
	Committed time.Time
}

// Observer receives updates on the session's dispatcher goroutine, one at
// a time and in order. Observers may call any Session method.
type Observer interface {
	OnUpdate(Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

// OnUpdate calls f(u).
func (f ObserverFunc) OnUpdate(u Update) { f(u) }

// dispatch is one unit of dispatcher work: an update or a callback.
type dispatch struct {
	update *Update
	fn     func()
}
