// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/focusai/internal/detect"
	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/history"
	"github.com/jeranaias/focusai/internal/model"
)

// Display texts for the status line of a reload.
const (
	StatusInitializing = "Initializing model..."
	StatusReady        = "Ready to chat"
)

// DefaultTruncationNotice is appended to output cut off by the backend.
const DefaultTruncationNotice = " [output truncated due to context length limit...]"

// Generation holds the sampling parameters sent with each completion.
type Generation struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	ContextSize int
}

// DefaultGeneration returns the parameters used when none are configured.
func DefaultGeneration() Generation {
	return Generation{MaxTokens: 1024, Temperature: 0.7, TopP: 0.95}
}

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers an observer before the session starts.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithMemoryProbe sets the probe consulted before each load. Without one
// the headroom check is skipped.
func WithMemoryProbe(p detect.MemoryProbe) Option {
	return func(s *Session) { s.probe = p }
}

// WithGeneration sets the initial sampling parameters.
func WithGeneration(g Generation) Option {
	return func(s *Session) { s.gen = g }
}

// WithTruncationNotice replaces DefaultTruncationNotice.
func WithTruncationNotice(notice string) Option {
	return func(s *Session) { s.notice = notice }
}

// WithWarmupTokens sets the output cap of the post-load warm-up call.
func WithWarmupTokens(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.warmupTokens = n
		}
	}
}

// WithStrictPreconditions makes rejected requests panic with their
// *IllegalStateError instead of returning it.
func WithStrictPreconditions(strict bool) Option {
	return func(s *Session) { s.strict = strict }
}

// =============================================================================
// SESSION
// =============================================================================

type job func(ctx context.Context)

// Session is one conversation with an inference engine. All methods are
// safe for concurrent use.
type Session struct {
	id           string
	engine       engine.Engine
	probe        detect.MemoryProbe
	logger       *slog.Logger
	notice       string
	warmupTokens int
	strict       bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	jobs   *mailbox[job]
	out    *mailbox[dispatch]

	obsMu     sync.RWMutex
	observers []Observer

	mu       sync.Mutex
	state    State
	identity model.Identity
	display  []model.Message
	history  *history.Manager
	info     string
	errMsg   string
	gen      Generation
	images   [][]byte
	active   engine.Stream
	seq      uint64
	closed   bool
}

// New starts a session bound to eng in state NotLoaded. Call Close to
// stop its goroutines.
func New(eng engine.Engine, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		engine:       eng,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		notice:       DefaultTruncationNotice,
		warmupTokens: 1,
		gen:          DefaultGeneration(),
		history:      history.New(),
		jobs:         newMailbox[job](),
		out:          newMailbox[dispatch](),
		state:        StateNotLoaded,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)

	root, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(root)
	s.ctx, s.cancel, s.group = ctx, cancel, group

	group.Go(func() error {
		return s.jobs.run(ctx, func(j job) { j(ctx) })
	})
	group.Go(func() error {
		return s.out.run(ctx, s.deliver)
	})
	return s
}

// Close stops the session. Queued work that has not started is dropped,
// an in-flight stream is closed, and pending requests return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	active := s.active
	s.mu.Unlock()

	s.cancel()
	if active != nil {
		active.Close()
	}
	return s.group.Wait()
}

func (s *Session) deliver(d dispatch) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panicked", "panic", r)
		}
	}()

	if d.fn != nil {
		d.fn()
		return
	}
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.OnUpdate(*d.update)
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound model, zero before the first reload and after
// a terminate.
func (s *Session) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Messages returns a copy of the display sequence.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.display...)
}

// History returns a copy of the turns sent to the backend.
func (s *Session) History() []engine.Message {
	return s.history.Messages()
}

// InfoText returns the throughput line of the last generation.
func (s *Session) InfoText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// ErrorMessage returns the reason for StateError or StateFailed.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Generation returns the current sampling parameters.
func (s *Session) Generation() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// SetGeneration replaces the sampling parameters for later generations.
func (s *Session) SetGeneration(g Generation) {
	s.mu.Lock()
	s.gen = g
	s.mu.Unlock()
}

// Snapshot is a consistent view of the observable session fields.
type Snapshot struct {
	ID            string
	State         State
	Identity      model.Identity
	Messages      []model.Message
	HistoryLen    int
	InfoText      string
	ErrorMessage  string
	PendingImages int
}

// Snapshot returns all observable fields read under one lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		State:         s.state,
		Identity:      s.identity,
		Messages:      append([]model.Message(nil), s.display...),
		HistoryLen:    s.history.Len(),
		InfoText:      s.info,
		ErrorMessage:  s.errMsg,
		PendingImages: len(s.images),
	}
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (s *Session) publishLocked(u Update) {
	s.seq++
	u.Seq = s.seq
	u.Session = s.id
	s.out.push(dispatch{update: &u})
}

// applyLocked runs ev through the transition table and records the result.
func (s *Session) applyLocked(ev event) ([]effect, error) {
	to, effs, err := transition(s.state, ev)
	if err != nil {
		return nil, err
	}
	s.setStateLocked(to, ev)
	return effs, nil
}

func (s *Session) setStateLocked(to State, ev event) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.logger.Debug("state transition", "from", from, "to", to, "event", ev)

	u := Update{Kind: UpdateState, State: to}
	if to == StateError || to == StateFailed {
		u.Text = s.errMsg
	}
	s.publishLocked(u)
}

// failLocked records reason and applies a failure event.
func (s *Session) failLocked(ev event, reason string) {
	s.errMsg = reason
	s.publishLocked(Update{Kind: UpdateError, State: s.state, Text: reason})
	if _, err := s.applyLocked(ev); err != nil {
		s.logger.Error("failure event rejected", "event", ev, "error", err)
	}
}

func (s *Session) appendDisplayLocked(m model.Message) {
	s.display = append(s.display, m)
	s.publishLocked(Update{Kind: UpdateMessageAppended, State: s.state, Message: m})
}

// replaceDisplayLocked swaps the message with m.ID. Only the trailing
// assistant message and reload status lines are ever replaced.
func (s *Session) replaceDisplayLocked(m model.Message) {
	for i := len(s.display) - 1; i >= 0; i-- {
		if s.display[i].ID == m.ID {
			s.display[i] = m
			s.publishLocked(Update{Kind: UpdateMessageReplaced, State: s.state, Message: m})
			return
		}
	}
	s.appendDisplayLocked(m)
}

func (s *Session) clearLocked() {
	s.history.Clear()
	s.images = nil
	s.info = ""
	if len(s.display) > 0 {
		s.display = nil
		s.publishLocked(Update{Kind: UpdateCleared, State: s.state})
	}
}

func (s *Session) reject(err error) error {
	if s.strict {
		panic(err)
	}
	s.logger.Debug("request rejected", "error", err)
	return err
}

// await blocks until an epilogue reports on done.
func (s *Session) await(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *Session) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf("session %s [%s] model=%q messages=%d", snap.ID, snap.State, snap.Identity.Name(), len(snap.Messages))
}
