// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat session controller: the state machine
// that owns one conversation with a local inference backend.
//
// # Model
//
// Every request runs in two halves. The prologue runs on the caller's
// goroutine under the session lock: it validates the request against the
// current state, records the new state and queues the work. The epilogue
// runs on the session's own goroutine, which drains queued work strictly
// in order. A reset requested mid-generation therefore takes effect at
// once (no second generation can start) while the engine reset and the
// history clear run only after the streaming loop has noticed the state
// change and returned.
//
// State changes go through transition, a pure function from (state,
// event) to (state, effects). Updates for observers are queued under the
// same lock that changes state and delivered on a dispatcher goroutine, so
// observers see them in the order the session produced them and may call
// back into the session.
//
// # Usage
//
//	s := chat.New(client,
//	    chat.WithMemoryProbe(detect.NewSystemProbe()),
//	    chat.WithObserver(chat.ObserverFunc(render)),
//	)
//	defer s.Close()
//
//	if err := s.RequestReloadChat(ctx, identity); err != nil {
//	    return err
//	}
//	if err := s.RequestGenerate("Summarize chapter one"); err != nil {
//	    return err
//	}
//	_ = s.Wait(ctx)
package chat
