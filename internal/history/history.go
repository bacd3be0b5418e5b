// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the turns a session sends to the inference backend
// and evicts the oldest of them when the backend truncates its output.
//
// The window holds complete user/assistant pairs. While a generation is in
// flight it also holds one trailing user turn, which is either committed
// with its answer or discarded.
package history

import (
	"errors"
	"sync"

	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/model"
)

var (
	// ErrPendingTurn is returned when a turn is begun or the window pruned
	// while a user turn is still unanswered.
	ErrPendingTurn = errors.New("history: a turn is already pending")

	// ErrNoPendingTurn is returned by Commit and Discard without a pending turn.
	ErrNoPendingTurn = errors.New("history: no pending turn")

	// ErrUnpairedWindow is returned by Prune if the window is not made of pairs.
	ErrUnpairedWindow = errors.New("history: window is not made of complete turns")
)

// Manager owns the backend history of one session.
type Manager struct {
	mu      sync.RWMutex
	turns   []engine.Message
	pending bool
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{}
}

// Begin appends the user turn of a new generation.
func (m *Manager) Begin(user engine.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending {
		return ErrPendingTurn
	}
	user.Role = model.RoleUser
	m.turns = append(m.turns, user)
	m.pending = true
	return nil
}

// Commit appends the assistant answer to the pending user turn.
func (m *Manager) Commit(assistant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		return ErrNoPendingTurn
	}
	m.turns = append(m.turns, engine.Message{Role: model.RoleAssistant, Content: assistant})
	m.pending = false
	return nil
}

// Discard removes the pending user turn so it is never resent.
func (m *Manager) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		return ErrNoPendingTurn
	}
	m.turns = m.turns[:len(m.turns)-1]
	m.pending = false
	return nil
}

// RemoveCount returns how many of the oldest entries Prune drops from a
// window of windowSize entries: about half, in whole pairs.
func RemoveCount(windowSize int) int {
	return ((windowSize + 3) / 4) * 2
}

// Prune drops the oldest RemoveCount(Len()) entries and returns how many
// were removed.
func (m *Manager) Prune() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending {
		return 0, ErrPendingTurn
	}
	n := len(m.turns)
	if n%2 != 0 {
		return 0, ErrUnpairedWindow
	}
	removeEnd := RemoveCount(n)
	if removeEnd > n {
		removeEnd = n
	}
	kept := make([]engine.Message, n-removeEnd)
	copy(kept, m.turns[removeEnd:])
	m.turns = kept
	return removeEnd, nil
}

// Messages returns a copy of the window, pending turn included.
func (m *Manager) Messages() []engine.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Message, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len returns the number of entries in the window.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Pending reports whether a user turn is awaiting its answer.
func (m *Manager) Pending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending
}

// Clear empties the window.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	m.pending = false
}
