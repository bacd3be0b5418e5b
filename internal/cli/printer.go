// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// printer.go - Streams session updates to the terminal.

package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jeranaias/focusai/internal/chat"
	"github.com/jeranaias/focusai/internal/model"
)

// streamPrinter is a chat.Observer that writes assistant text as it
// streams, plus status and error lines. It signals settled whenever the
// session reaches a state that is not busy, and turnDone only when that
// state follows Generating.
type streamPrinter struct {
	mu         sync.Mutex
	out        io.Writer
	quiet      bool
	printed    map[string]int // assistant message ID -> bytes already written
	open       bool           // an assistant line is in progress
	generating bool
	stats      string // timing of the last committed turn

	settled  chan struct{}
	turnDone chan struct{}
}

func newStreamPrinter(out io.Writer, quiet bool) *streamPrinter {
	return &streamPrinter{
		out:      out,
		quiet:    quiet,
		printed:  make(map[string]int),
		settled:  make(chan struct{}, 1),
		turnDone: make(chan struct{}, 1),
	}
}

// OnUpdate implements chat.Observer.
func (p *streamPrinter) OnUpdate(u chat.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch u.Kind {
	case chat.UpdateMessageAppended:
		p.message(u.Message, true)

	case chat.UpdateMessageReplaced:
		p.message(u.Message, false)

	case chat.UpdateCleared:
		p.endLine()
		p.printed = make(map[string]int)
		if !p.quiet {
			fmt.Fprintln(p.out, DimStyle.Render("(conversation cleared)"))
		}

	case chat.UpdateInfo:
		if !p.quiet && u.Text != "" {
			p.endLine()
			fmt.Fprintln(p.out, DimStyle.Render(u.Text))
		}

	case chat.UpdateError:
		if u.Text != "" {
			p.endLine()
			fmt.Fprintln(p.out, ErrorStyle.Render("[Error] ")+u.Text)
		}

	case chat.UpdatePruned:
		if !p.quiet {
			p.endLine()
			fmt.Fprintln(p.out, WarningStyle.Render(fmt.Sprintf("(history trimmed: %d older messages dropped)", u.Pruned)))
		}

	case chat.UpdateTurnCommitted:
		if u.Turn != nil {
			p.stats = u.Turn.Stats
		}

	case chat.UpdateState:
		if u.State == chat.StateGenerating {
			p.generating = true
		}
		if !u.State.Busy() {
			p.endLine()
			notify(p.settled)
			if p.generating {
				p.generating = false
				notify(p.turnDone)
			}
		}
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// lastStats returns the timing summary of the last committed turn.
func (p *streamPrinter) lastStats() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *streamPrinter) message(m model.Message, appended bool) {
	switch m.Role {
	case model.RoleAssistant:
		n, seen := p.printed[m.ID]
		if !seen {
			p.endLine()
			fmt.Fprint(p.out, AssistantStyle.Render("assistant> "))
			p.open = true
		}
		if len(m.Content) > n {
			io.WriteString(p.out, m.Content[n:])
		}
		p.printed[m.ID] = len(m.Content)

	case model.RoleSystem:
		if p.quiet && !appended {
			return
		}
		p.endLine()
		fmt.Fprintln(p.out, DimStyle.Render("* "+m.Content))

	case model.RoleUser:
		// Echoed by the terminal already.
	}
}

func (p *streamPrinter) endLine() {
	if p.open {
		fmt.Fprintln(p.out)
		p.open = false
	}
}

// reset drops stale signals before a new request.
func (p *streamPrinter) reset() {
	for _, ch := range []chan struct{}{p.settled, p.turnDone} {
		select {
		case <-ch:
		default:
		}
	}
}

// wait blocks until the session settles, ctx is done, or timeout passes.
// A zero timeout waits indefinitely.
func (p *streamPrinter) wait(ctx context.Context, timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-p.settled:
		return true
	case <-ctx.Done():
		return false
	case <-expired:
		return false
	}
}
