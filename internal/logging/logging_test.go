// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/focusai/internal/chat"
	"github.com/jeranaias/focusai/internal/config"
	"github.com/jeranaias/focusai/internal/model"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "shown", rec["msg"])
	require.Equal(t, "v", rec["k"])
}

func TestNew_FileAndConsole(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "focusai.log")

	logger, closeFn, err := New(config.LoggingConfig{Level: "debug", Format: "text", File: path}, &console)
	require.NoError(t, err)

	logger.Debug("debug line")
	logger.Warn("warn line")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "debug line")
	require.Contains(t, string(data), "warn line")

	require.NotContains(t, console.String(), "debug line")
	require.Contains(t, console.String(), "warn line")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestSessionObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewMultiObserver(nil, NewSessionObserver(logger))

	obs.OnUpdate(chat.Update{Seq: 1, Session: "s1", Kind: chat.UpdateState, State: chat.StateGenerating})
	obs.OnUpdate(chat.Update{Seq: 2, Session: "s1", Kind: chat.UpdateMessageReplaced, State: chat.StateGenerating})
	obs.OnUpdate(chat.Update{Seq: 3, Session: "s1", Kind: chat.UpdateError, State: chat.StateGenerating, Text: "backend gone"})
	obs.OnUpdate(chat.Update{Seq: 4, Session: "s1", Kind: chat.UpdatePruned, State: chat.StateGenerating, Pruned: 6})
	obs.OnUpdate(chat.Update{Seq: 5, Session: "s1", Kind: chat.UpdateTurnCommitted, State: chat.StateGenerating,
		Turn: &chat.Turn{Model: "tiny:1b", Stats: "1.2s | 8 tokens | 6.7 tok/s | TTFT 200ms"}})

	out := buf.String()
	require.Contains(t, out, `msg="chat state"`)
	require.Contains(t, out, "state=Generating")
	require.NotContains(t, out, "message-replaced")
	require.Contains(t, out, `reason="backend gone"`)
	require.Contains(t, out, "removed=6")
	require.Contains(t, out, `stats="1.2s | 8 tokens | 6.7 tok/s | TTFT 200ms"`)
	require.Len(t, obs, 1)
}

func TestSessionObserver_DebugPreview(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewSessionObserver(logger)

	long := strings.Repeat("photosynthesis ", 10)
	obs.OnUpdate(chat.Update{Kind: chat.UpdateMessageAppended, Message: model.NewUserMessage(long)})
	obs.OnUpdate(chat.Update{Kind: chat.UpdateMessageAppended, Message: model.NewAssistantMessage()})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "preview=")
	require.Contains(t, lines[0], "...")
	require.NotContains(t, lines[0], long)
	require.NotContains(t, lines[1], "preview=")
}
