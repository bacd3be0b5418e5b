// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/model"
)

// payload carries request arguments to the epilogue.
type payload struct {
	gen          *generation
	identity     model.Identity
	image        []byte
	onTerminated func()
	done         chan error
}

func (p payload) finish(err error) {
	if p.done != nil {
		p.done <- err
	}
}

// scheduleLocked queues one job per effect, in order.
func (s *Session) scheduleLocked(effs []effect, p payload) {
	for _, e := range effs {
		var j job
		switch e {
		case effStream:
			j = func(ctx context.Context) { s.runGeneration(ctx, p.gen) }
		case effResetEngine:
			j = func(ctx context.Context) { p.finish(s.runReset(ctx)) }
		case effReloadEngine:
			j = func(ctx context.Context) { p.finish(s.runReload(ctx, p.identity)) }
		case effUnloadEngine:
			j = func(ctx context.Context) { p.finish(s.runTerminate(ctx, p.onTerminated)) }
		case effProcessImage:
			j = func(ctx context.Context) { p.finish(s.runImage(p.image)) }
		default:
			s.logger.Error("unknown effect", "effect", e)
			continue
		}
		s.jobs.push(j)
	}
}

// request runs the prologue of an interrupt-style request. When when is
// non-nil and reports false the request is a no-op and both results are nil.
func (s *Session) request(ev event, p payload, when func(State) bool) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if when != nil && !when(s.state) {
		return nil, nil
	}
	effs, err := s.applyLocked(ev)
	if err != nil {
		return nil, s.reject(err)
	}
	p.done = make(chan error, 1)
	s.scheduleLocked(effs, p)
	return p.done, nil
}

// =============================================================================
// GENERATE
// =============================================================================

// RequestGenerate starts a generation for prompt and returns once the
// user turn is recorded. Streaming continues on the session goroutine; use
// an observer or Wait to follow it.
func (s *Session) RequestGenerate(prompt string) error {
	prompt = norm.NFC.String(strings.TrimSpace(prompt))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	to, effs, err := transition(s.state, evGenerate)
	if err != nil {
		return s.reject(err)
	}
	if prompt == "" {
		return ErrEmptyPrompt
	}

	images := s.images
	user := engine.Message{Role: model.RoleUser, Content: prompt, Images: images}
	if err := s.history.Begin(user); err != nil {
		return err
	}
	s.images = nil
	s.setStateLocked(to, evGenerate)

	um := model.NewUserMessage(prompt)
	um.HasImage = len(images) > 0
	s.appendDisplayLocked(um)
	reply := model.NewAssistantMessage()
	s.appendDisplayLocked(reply)

	g := &generation{
		prompt:   prompt,
		hasImage: um.HasImage,
		reply:    reply,
		params:   s.gen,
		model:    s.identity.ID,
	}
	s.scheduleLocked(effs, payload{gen: g})
	return nil
}

// =============================================================================
// RESET
// =============================================================================

// RequestResetChat clears the conversation and resets the engine. A
// generation in flight stops publishing at once; the reset itself runs
// after the streaming loop has returned. RequestResetChat blocks until
// then or until ctx is done.
func (s *Session) RequestResetChat(ctx context.Context) error {
	done, err := s.request(evReset, payload{}, nil)
	if err != nil {
		return err
	}
	return s.await(ctx, done)
}

// RequestSwitchToBackground resets the conversation if a generation is in
// flight, and does nothing otherwise.
func (s *Session) RequestSwitchToBackground(ctx context.Context) error {
	done, err := s.request(evReset, payload{}, func(st State) bool { return st == StateGenerating })
	if err != nil || done == nil {
		return err
	}
	return s.await(ctx, done)
}

func (s *Session) runReset(ctx context.Context) error {
	s.mu.Lock()
	loaded := !s.identity.IsZero()
	s.mu.Unlock()

	var err error
	if loaded {
		err = s.engine.Reset(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.errMsg = ""
	if err != nil {
		s.logger.Warn("engine reset failed", "error", err)
		s.errMsg = fmt.Sprintf("reset failed: %v", err)
		s.publishLocked(Update{Kind: UpdateError, State: s.state, Text: s.errMsg})
	}
	if _, terr := s.applyLocked(evResetDone); terr != nil {
		s.logger.Error("reset completion rejected", "error", terr)
	}
	return err
}

// =============================================================================
// RELOAD
// =============================================================================

// RequestReloadChat binds the session to id: it clears the conversation,
// unloads the current model, checks memory headroom, loads id and warms it
// up. It blocks until the session is Ready, Failed or Error, or ctx is
// done, and returns the reason for a Failed or Error outcome.
func (s *Session) RequestReloadChat(ctx context.Context, id model.Identity) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("chat: reload: %w", err)
	}
	done, err := s.request(evReload, payload{identity: id}, nil)
	if err != nil {
		return err
	}
	return s.await(ctx, done)
}

func (s *Session) runReload(ctx context.Context, id model.Identity) error {
	s.mu.Lock()
	s.identity = id
	s.errMsg = ""
	s.clearLocked()
	status := model.NewSystemMessage(StatusInitializing)
	s.appendDisplayLocked(status)
	s.mu.Unlock()

	log := s.logger.With("model", id.ID, "lib", id.BackendRef())

	if err := s.engine.Unload(ctx); err != nil {
		log.Warn("unload before reload failed", "error", err)
	}

	if msg, ok := s.checkMemory(ctx, id); !ok {
		log.Warn("insufficient memory for model", "required_mb", id.EstimatedVRAMMB())
		s.mu.Lock()
		s.replaceDisplayLocked(status.WithContent(msg))
		s.failLocked(evInsufficientMemory, msg)
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInsufficientMemory, msg)
	}

	s.mu.Lock()
	_, err := s.applyLocked(evLoadStart)
	gen := s.gen
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.engine.Load(ctx, id.Path, id.BackendRef()); err != nil {
		log.Error("model load failed", "error", err)
		s.loadFailed(status, err)
		return err
	}

	if err := s.warmUp(ctx, gen); err != nil {
		log.Error("model warm-up failed", "error", err)
		s.loadFailed(status, err)
		return err
	}

	s.mu.Lock()
	s.history.Clear()
	s.replaceDisplayLocked(status.WithContent(StatusReady))
	_, err = s.applyLocked(evLoadDone)
	s.mu.Unlock()

	log.Info("model ready")
	return err
}

// checkMemory reports whether the probe sees room for id. A failing probe
// does not block the load.
func (s *Session) checkMemory(ctx context.Context, id model.Identity) (string, bool) {
	if s.probe == nil || id.EstimatedVRAM == 0 {
		return "", true
	}
	avail, err := s.probe.AvailableMemory(ctx)
	if err != nil {
		s.logger.Warn("memory probe failed, loading anyway", "error", err)
		return "", true
	}
	if avail >= id.EstimatedVRAM {
		return "", true
	}
	return fmt.Sprintf("Sorry, the system cannot provide %.1fMB VRAM as requested to the app, "+
		"so we cannot initialize this model on this device.", id.EstimatedVRAMMB()), false
}

// warmUp runs a one-token completion so the first user turn does not pay
// for prompt cache setup.
func (s *Session) warmUp(ctx context.Context, gen Generation) error {
	stream, err := s.engine.StreamCompletion(ctx, engine.CompletionRequest{
		Messages:    []engine.Message{{Role: model.RoleUser, Content: ""}},
		MaxTokens:   s.warmupTokens,
		Temperature: gen.Temperature,
		TopP:        gen.TopP,
		ContextSize: gen.ContextSize,
	})
	if err != nil {
		return err
	}
	_, _, err = engine.Drain(stream)
	return err
}

func (s *Session) loadFailed(status model.Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceDisplayLocked(status.WithContent("Failed to load model: " + err.Error()))
	s.failLocked(evLoadFailed, err.Error())
}

// =============================================================================
// TERMINATE
// =============================================================================

// RequestTerminateChat unloads the model and clears the session back to
// an unbound Ready state. onTerminated, if set, runs on the dispatcher
// after observers have seen the final state update. The call blocks until
// the terminate is done or ctx is done.
func (s *Session) RequestTerminateChat(ctx context.Context, onTerminated func()) error {
	done, err := s.request(evTerminate, payload{onTerminated: onTerminated}, nil)
	if err != nil {
		return err
	}
	return s.await(ctx, done)
}

func (s *Session) runTerminate(ctx context.Context, onTerminated func()) error {
	if err := s.engine.Unload(ctx); err != nil {
		s.logger.Warn("unload on terminate failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.identity = model.Identity{}
	s.errMsg = ""
	if _, err := s.applyLocked(evTerminateDone); err != nil {
		s.logger.Error("terminate completion rejected", "error", err)
	}
	if onTerminated != nil {
		s.out.push(dispatch{fn: onTerminated})
	}
	return nil
}

// =============================================================================
// IMAGES
// =============================================================================

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// RequestImageUpload moves a Ready session to PendingImageUpload. The
// bound model must accept images.
func (s *Session) RequestImageUpload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state == StateReady && !s.identity.Vision {
		return ErrVisionUnsupported
	}
	if _, err := s.applyLocked(evAwaitImage); err != nil {
		return s.reject(err)
	}
	return nil
}

// AttachImage supplies the image for a pending upload. The image rides
// along with the next user turn. It blocks until the image is accepted or
// rejected, or ctx is done.
func (s *Session) AttachImage(ctx context.Context, data []byte) error {
	done, err := s.request(evAttachImage, payload{image: data}, nil)
	if err != nil {
		return err
	}
	return s.await(ctx, done)
}

func (s *Session) runImage(data []byte) error {
	ct := http.DetectContentType(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 || !imageTypes[ct] {
		s.failLocked(evImageFailed, "unsupported image: "+ct)
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, ct)
	}
	s.images = append(s.images, data)
	s.appendDisplayLocked(model.NewSystemMessage(fmt.Sprintf("Image attached (%s, %d bytes)", ct, len(data))))
	if _, err := s.applyLocked(evImageDone); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// BARRIER
// =============================================================================

// Wait blocks until all work queued before the call has finished.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	done := make(chan error, 1)
	s.jobs.push(func(context.Context) { done <- nil })
	s.mu.Unlock()

	return s.await(ctx, done)
}

// IsIllegalState reports whether err is a rejected request.
func IsIllegalState(err error) bool {
	return errors.Is(err, ErrIllegalState)
}
