// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO drained by a single goroutine. Pushes never
// block, so they are safe while holding the session lock.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) pop() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false
	}
	v := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	return v, true
}

// run calls fn for every item in push order until ctx is done.
func (m *mailbox[T]) run(ctx context.Context, fn func(T)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.signal:
		}
		for {
			if ctx.Err() != nil {
				return nil
			}
			v, ok := m.pop()
			if !ok {
				break
			}
			fn(v)
		}
	}
}
