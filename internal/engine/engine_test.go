// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/engine/enginetest"
)

func TestUsage_Label(t *testing.T) {
	u := engine.Usage{
		PromptTokens:     100,
		CompletionTokens: 50,
		PromptDuration:   500 * time.Millisecond,
		DecodeDuration:   2 * time.Second,
	}
	require.Equal(t, 200.0, u.PrefillRate())
	require.Equal(t, 25.0, u.DecodeRate())
	require.Equal(t, "prefill: 200.0 tok/s, decode: 25.0 tok/s", u.Label())

	require.Zero(t, engine.Usage{CompletionTokens: 5}.DecodeRate())
}

func TestDrain(t *testing.T) {
	s := enginetest.Scripted(
		engine.Chunk{Delta: "Hel"},
		engine.Chunk{Delta: "lo"},
		engine.Chunk{FinishReason: engine.FinishReasonLength, Usage: &engine.Usage{CompletionTokens: 2}},
	)

	text, last, err := engine.Drain(s)
	require.NoError(t, err)
	require.Equal(t, "Hello", text)
	require.Equal(t, engine.FinishReasonLength, last.FinishReason)
	require.NotNil(t, last.Usage)
	require.Equal(t, 2, last.Usage.CompletionTokens)

	_, err = s.Recv()
	require.Error(t, err, "Drain must close the stream")
}

func TestDrain_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	e := enginetest.New()
	e.ScriptError(boom, engine.Chunk{Delta: "partial"})

	s, err := e.StreamCompletion(t.Context(), engine.CompletionRequest{})
	require.NoError(t, err)

	text, _, err := engine.Drain(s)
	require.ErrorIs(t, err, boom)
	require.Equal(t, "partial", text)
}
