// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/model"
)

// fakeServer records request bodies per path and answers /api/chat with
// the configured NDJSON lines.
type fakeServer struct {
	mu        sync.Mutex
	bodies    map[string][]map[string]any
	chatLines []string
	status    int
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	fs := &fakeServer{bodies: make(map[string][]map[string]any), status: http.StatusOK}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	client := NewClientWithConfig(&ClientConfig{
		BaseURL:    srv.URL,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
	return fs, client
}

func (fs *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
	}

	fs.mu.Lock()
	fs.bodies[r.URL.Path] = append(fs.bodies[r.URL.Path], body)
	status := fs.status
	lines := fs.chatLines
	fs.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":"model 'nope' not found"}`)
		return
	}

	switch r.URL.Path {
	case "/":
		fmt.Fprint(w, "Ollama is running")
	case "/api/generate":
		fmt.Fprint(w, `{"model":"m","done":true,"done_reason":"load"}`)
	case "/api/chat":
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	case "/api/tags":
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:3b","size":2019393189}]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fs *fakeServer) requests(path string) []map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.bodies[path]
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestClient_CheckRunning(t *testing.T) {
	_, client := newFakeServer(t)
	require.NoError(t, client.CheckRunning(t.Context()))
}

func TestClient_LoadUnload(t *testing.T) {
	fs, client := newFakeServer(t)

	require.NoError(t, client.Load(t.Context(), "/models/ignored", "llama3.2:3b"))
	require.Equal(t, "llama3.2:3b", client.Loaded())

	gen := fs.requests("/api/generate")
	require.Len(t, gen, 1)
	require.Equal(t, "llama3.2:3b", gen[0]["model"])
	require.Equal(t, "30m", gen[0]["keep_alive"])

	require.NoError(t, client.Unload(t.Context()))
	require.Empty(t, client.Loaded())

	gen = fs.requests("/api/generate")
	require.Len(t, gen, 2)
	require.Equal(t, float64(0), gen[1]["keep_alive"])

	// Nothing loaded: no request.
	require.NoError(t, client.Unload(t.Context()))
	require.Len(t, fs.requests("/api/generate"), 2)
}

func TestClient_LoadFallsBackToPath(t *testing.T) {
	fs, client := newFakeServer(t)
	require.NoError(t, client.Load(t.Context(), "phi3:mini", ""))
	require.Equal(t, "phi3:mini", fs.requests("/api/generate")[0]["model"])

	err := client.Load(t.Context(), "", "")
	require.True(t, IsModelNotFound(err))
}

func TestClient_LoadModelNotFound(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.status = http.StatusNotFound

	err := client.Load(t.Context(), "", "nope")
	require.True(t, IsModelNotFound(err), "err = %v", err)
	require.Contains(t, err.Error(), "not found")
	require.Empty(t, client.Loaded())
}

func TestClient_LoadNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: url, MaxRetries: 1, RetryDelay: time.Millisecond})
	err := client.Load(t.Context(), "", "llama3.2:3b")
	require.True(t, IsNotRunning(err), "err = %v", err)
	require.Error(t, client.CheckRunning(t.Context()))
}

func TestClient_Reset(t *testing.T) {
	_, client := newFakeServer(t)
	require.ErrorIs(t, client.Reset(t.Context()), ErrNoModelLoaded)

	require.NoError(t, client.Load(t.Context(), "", "m"))
	require.NoError(t, client.Reset(t.Context()))
}

func TestClient_ListModels(t *testing.T) {
	_, client := newFakeServer(t)
	models, err := client.ListModels(t.Context())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "llama3.2:3b", models[0].Name)
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestClient_StreamCompletionRequiresModel(t *testing.T) {
	_, client := newFakeServer(t)
	_, err := client.StreamCompletion(t.Context(), engine.CompletionRequest{})
	require.ErrorIs(t, err, ErrNoModelLoaded)
}

func TestClient_StreamCompletion(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.chatLines = []string{
		`{"model":"m","message":{"role":"assistant","content":"Hel"},"done":false}`,
		``,
		`not json`,
		`{"model":"m","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"length",` +
			`"prompt_eval_count":12,"prompt_eval_duration":100000000,"eval_count":2,"eval_duration":50000000}`,
	}
	require.NoError(t, client.Load(t.Context(), "", "m"))

	stream, err := client.StreamCompletion(t.Context(), engine.CompletionRequest{
		Messages:    []engine.Message{{Role: model.RoleUser, Content: "hi", Images: [][]byte{[]byte("img")}}},
		MaxTokens:   64,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	text, last, err := engine.Drain(stream)
	require.NoError(t, err)
	require.Equal(t, "Hello", text)
	require.Equal(t, engine.FinishReasonLength, last.FinishReason)
	require.NotNil(t, last.Usage)
	require.Equal(t, 12, last.Usage.PromptTokens)
	require.Equal(t, 2, last.Usage.CompletionTokens)
	require.Equal(t, 100*time.Millisecond, last.Usage.PromptDuration)

	chat := fs.requests("/api/chat")
	require.Len(t, chat, 1)
	require.Equal(t, true, chat[0]["stream"])
	opts := chat[0]["options"].(map[string]any)
	require.Equal(t, float64(64), opts["num_predict"])
	require.Equal(t, 0.7, opts["temperature"])
	msgs := chat[0]["messages"].([]any)
	first := msgs[0].(map[string]any)
	require.Equal(t, "user", first["role"])
	require.Equal(t, []any{"aW1n"}, first["images"], "images are base64 encoded")
}

func TestClient_StreamErrorLine(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.chatLines = []string{
		`{"message":{"content":"par"},"done":false}`,
		`{"error":"input exceeds context length"}`,
	}
	require.NoError(t, client.Load(t.Context(), "", "m"))

	stream, err := client.StreamCompletion(t.Context(), engine.CompletionRequest{})
	require.NoError(t, err)

	text, _, err := engine.Drain(stream)
	require.Equal(t, "par", text)
	require.ErrorIs(t, err, ErrContextExceeded)
}

func TestClient_StreamStatusError(t *testing.T) {
	fs, client := newFakeServer(t)
	require.NoError(t, client.Load(t.Context(), "", "m"))
	fs.status = http.StatusInternalServerError

	_, err := client.StreamCompletion(t.Context(), engine.CompletionRequest{})
	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, ErrTypeInvalidResponse, ce.Type)
}

func TestStreamReader_EOFWithoutDone(t *testing.T) {
	r := NewStreamReader(strings.NewReader(`{"model":"x","message":{"content":"a"}}`))
	resp, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "a", resp.Message.Content)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestFinishReason(t *testing.T) {
	require.Equal(t, engine.FinishReasonStop, finishReason(""))
	require.Equal(t, engine.FinishReasonStop, finishReason("stop"))
	require.Equal(t, engine.FinishReasonLength, finishReason("length"))
	require.Equal(t, "unload", finishReason("unload"))
}
