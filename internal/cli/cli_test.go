// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/focusai/internal/benchmark"
	"github.com/jeranaias/focusai/internal/chat"
	"github.com/jeranaias/focusai/internal/config"
	"github.com/jeranaias/focusai/internal/detect"
	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/engine/enginetest"
	"github.com/jeranaias/focusai/internal/logging"
	"github.com/jeranaias/focusai/internal/model"
	"github.com/jeranaias/focusai/internal/ollama"
	"github.com/jeranaias/focusai/internal/openaicompat"
	"github.com/jeranaias/focusai/internal/storage"
)

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		bools    []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"list"},
			wantSub: "list",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"list", "--limit", "5"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				require.Equal(t, "5", p.Flag("limit"))
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"export", "abcd", "--format=json"},
			wantSub: "export",
			validate: func(t *testing.T, p *ArgParser) {
				require.Equal(t, "json", p.Flag("format"))
				require.Equal(t, "abcd", p.Positional(1))
			},
		},
		{
			name:    "explicit boolean value",
			args:    []string{"--force=false"},
			wantSub: "",
			validate: func(t *testing.T, p *ArgParser) {
				require.False(t, p.BoolFlag("force"))
				require.Empty(t, p.Flag("force"))
			},
		},
		{
			name:    "declared boolean does not consume",
			args:    []string{"clear", "--confirm", "now"},
			bools:   []string{"confirm"},
			wantSub: "clear",
			validate: func(t *testing.T, p *ArgParser) {
				require.True(t, p.BoolFlag("confirm"))
				require.Equal(t, "now", p.Positional(1))
			},
		},
		{
			name:    "undeclared flag consumes value",
			args:    []string{"clear", "--confirm", "now"},
			wantSub: "clear",
			validate: func(t *testing.T, p *ArgParser) {
				require.False(t, p.BoolFlag("confirm"))
				require.Equal(t, "now", p.Flag("confirm"))
			},
		},
		{
			name:    "multiple positional args",
			args:    []string{"search", "error", "in", "notes"},
			wantSub: "search",
			validate: func(t *testing.T, p *ArgParser) {
				require.Equal(t, 4, p.PositionalCount())
				require.Equal(t, "error in notes", JoinPositionalArgs(p, 1))
			},
		},
		{
			name:    "double dash ends flags",
			args:    []string{"what", "is", "--", "--verbose"},
			wantSub: "what",
			validate: func(t *testing.T, p *ArgParser) {
				require.Equal(t, []string{"what", "is", "--verbose"}, p.PositionalFrom(0))
				require.False(t, p.BoolFlag("verbose"))
			},
		},
		{
			name:    "short and long aliases",
			args:    []string{"-o", "out.md"},
			validate: func(t *testing.T, p *ArgParser) {
				require.Equal(t, "out.md", p.Flag("output", "o"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewArgParser(tt.args, tt.bools...)
			require.Equal(t, tt.wantSub, p.Subcommand())
			if tt.validate != nil {
				tt.validate(t, p)
			}
		})
	}
}

func TestArgParser_FlagInt(t *testing.T) {
	p := NewArgParser([]string{"--limit", "7", "--bad", "x", "--neg", "-3"})

	n, err := p.FlagInt("limit", 20)
	require.NoError(t, err)
	require.Equal(t, 7, n)

	n, err = p.FlagInt("missing", 20)
	require.NoError(t, err)
	require.Equal(t, 20, n)

	_, err = p.FlagInt("bad", 20)
	require.Error(t, err)

	// "-3" looks like a flag, so --neg is boolean and -3 is its own flag.
	require.True(t, p.BoolFlag("neg"))
}

func TestArgParser_OutOfRange(t *testing.T) {
	p := NewArgParser(nil)
	require.Equal(t, "", p.Subcommand())
	require.Equal(t, "", p.Positional(-1))
	require.Equal(t, "", p.Positional(3))
	require.Empty(t, p.PositionalFrom(1))
	require.Equal(t, "fallback", p.FlagOrDefault("format", "fallback"))
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantErr bool
		check   func(*testing.T, Args)
	}{
		{
			name: "no args starts chat",
			argv: nil,
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdChat, a.Command)
				require.NotNil(t, a.Flags)
			},
		},
		{
			name: "chat with model",
			argv: []string{"chat", "-m", "llama3.2:3b"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdChat, a.Command)
				require.Equal(t, "llama3.2:3b", a.Model)
			},
		},
		{
			name: "ask joins the question",
			argv: []string{"ask", "what", "is", "entropy", "--model=phi3:mini", "--image", "fig.png"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdAsk, a.Command)
				require.Equal(t, "what is entropy", a.Query)
				require.Equal(t, "phi3:mini", a.Model)
				require.Equal(t, "fig.png", a.Image)
			},
		},
		{
			name:    "ask without a question",
			argv:    []string{"ask"},
			wantErr: true,
		},
		{
			name: "global flags anywhere",
			argv: []string{"history", "show", "abcd", "--json", "-c", "/tmp/f.toml", "-q"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdHistory, a.Command)
				require.Equal(t, "show", a.Subcommand)
				require.Equal(t, "abcd", a.Flags.Positional(1))
				require.True(t, a.JSON)
				require.True(t, a.Quiet)
				require.Equal(t, "/tmp/f.toml", a.ConfigPath)
			},
		},
		{
			name: "history clear confirm",
			argv: []string{"sessions", "clear", "--confirm"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdHistory, a.Command)
				require.True(t, a.Flags.BoolFlag("confirm"))
			},
		},
		{
			name: "bench quick before model",
			argv: []string{"bench", "--quick", "tiny", "phi3:mini"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdBench, a.Command)
				require.True(t, a.Flags.BoolFlag("quick"))
				require.Equal(t, 2, a.Flags.PositionalCount())
				require.Equal(t, "tiny", a.Flags.Positional(0))
			},
		},
		{
			name: "config init force",
			argv: []string{"config", "init", "--force"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdConfig, a.Command)
				require.Equal(t, "init", a.Subcommand)
				require.True(t, a.Flags.BoolFlag("force"))
			},
		},
		{
			name: "help flag",
			argv: []string{"models", "--help"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdHelp, a.Command)
			},
		},
		{
			name: "version flag",
			argv: []string{"--version"},
			check: func(t *testing.T, a Args) {
				require.Equal(t, CmdVersion, a.Command)
			},
		},
		{
			name:    "model flag without value",
			argv:    []string{"chat", "--model"},
			wantErr: true,
		},
		{
			name:    "unknown command",
			argv:    []string{"frobnicate"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := Parse(tt.argv)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUsage)
				return
			}
			require.NoError(t, err)
			tt.check(t, args)
		})
	}
}

func TestCommandString(t *testing.T) {
	require.Equal(t, "history", CmdHistory.String())
	require.Equal(t, "unknown", Command(99).String())
}

func TestCopyLastAnswer(t *testing.T) {
	var got string
	write := func(s string) error { got = s; return nil }

	_, err := copyLastAnswer([]model.Message{model.NewUserMessage("hi")}, write)
	require.ErrorIs(t, err, errNothingToCopy)

	msgs := []model.Message{
		model.NewUserMessage("hi"),
		{Role: model.RoleAssistant, Content: "first"},
		model.NewUserMessage("again"),
		{Role: model.RoleAssistant, Content: "héllo"},
	}
	n, err := copyLastAnswer(msgs, write)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "héllo", got)

	// An empty placeholder left by a stopped answer is skipped.
	n, err = copyLastAnswer(append(msgs, model.NewUserMessage("more"), model.NewAssistantMessage()), write)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, err = copyLastAnswer(msgs, func(string) error { return errors.New("no display") })
	require.ErrorContains(t, err, "clipboard: no display")
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"illegal state", &chat.IllegalStateError{Op: "generate", State: chat.StateGenerating}, "cannot generate while Generating"},
		{"vision", chat.ErrVisionUnsupported, "does not accept images"},
		{"ollama model missing", fmt.Errorf("load: %w", ollama.ErrModelNotFound), "model not pulled"},
		{"openai model missing", openaicompat.ErrModelNotFound, "model not pulled"},
		{"timeout", &ollama.ClientError{Type: ollama.ErrTypeTimeout, Message: "request timed out"}, "timed out (raise engine.timeout_secs)"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Contains(t, describeError(tc.err), tc.want)
		})
	}
}

func TestCompleteCommand(t *testing.T) {
	require.Equal(t, []string{"/reload", "/reset"}, completeCommand("/re"))
	require.Nil(t, completeCommand("hello"))
	require.Len(t, completeCommand("/"), len(slashCommands))
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestFitLabel(t *testing.T) {
	avail := detect.Reading{Source: detect.SourceSystem, Available: 1000 << 20}

	require.Equal(t, "fits", fitLabel(500, avail, nil))
	require.Equal(t, "tight", fitLabel(900, avail, nil))
	require.Equal(t, "fail", fitLabel(1200, avail, nil))
	require.Equal(t, "unknown", fitLabel(0, avail, nil))
	require.Equal(t, "unknown", fitLabel(500, avail, errors.New("no probe")))
}

func TestWrapText(t *testing.T) {
	out := WrapText("the quick brown fox jumps over the lazy dog", 22)
	for _, line := range strings.Split(out, "\n") {
		require.LessOrEqual(t, len(line), 20, "line %q too wide", line)
	}
	require.Equal(t, "short\nlines", WrapText("short\nlines", 40))
}

func TestReadFileForContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("mitochondria\n\n"), 0600))

	got, err := readFileForContext(path)
	require.NoError(t, err)
	require.Equal(t, "mitochondria", got)

	_, err = readFileForContext(dir)
	require.Error(t, err)

	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte("x"), MaxFileSize+1), 0600))
	_, err = readFileForContext(big)
	require.ErrorContains(t, err, "too large")
}

// =============================================================================
// STREAM PRINTER TESTS
// =============================================================================

func TestStreamPrinter_WritesSuffixes(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf, false)

	reply := model.NewAssistantMessage()
	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateGenerating})
	p.OnUpdate(chat.Update{Kind: chat.UpdateMessageAppended, Message: model.NewUserMessage("hi")})
	p.OnUpdate(chat.Update{Kind: chat.UpdateMessageAppended, Message: reply})
	p.OnUpdate(chat.Update{Kind: chat.UpdateMessageReplaced, Message: reply.WithContent("Hel")})
	p.OnUpdate(chat.Update{Kind: chat.UpdateMessageReplaced, Message: reply.WithContent("Hello!")})
	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateReady})
	p.OnUpdate(chat.Update{Kind: chat.UpdateInfo, Text: "prefill: 1.0 tok/s, decode: 2.0 tok/s"})

	out := buf.String()
	require.Contains(t, out, "assistant>")
	require.Contains(t, out, "Hello!\n")
	require.Equal(t, 1, strings.Count(out, "Hel"))
	require.NotContains(t, out, "hi")
	require.Contains(t, out, "decode: 2.0 tok/s")

	select {
	case <-p.settled:
	default:
		t.Fatal("printer did not settle on Ready")
	}
}

func TestStreamPrinter_QuietHidesStatusReplacements(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf, true)

	status := model.NewSystemMessage(chat.StatusInitializing)
	p.OnUpdate(chat.Update{Kind: chat.UpdateMessageAppended, Message: status})
	p.OnUpdate(chat.Update{Kind: chat.UpdateMessageReplaced, Message: status.WithContent(chat.StatusReady)})
	p.OnUpdate(chat.Update{Kind: chat.UpdatePruned, Pruned: 6})
	p.OnUpdate(chat.Update{Kind: chat.UpdateError, Text: "backend went away"})

	out := buf.String()
	require.Contains(t, out, chat.StatusInitializing)
	require.NotContains(t, out, chat.StatusReady)
	require.NotContains(t, out, "history trimmed")
	require.Contains(t, out, "backend went away")
}

func TestStreamPrinter_TurnDoneIgnoresEarlierReady(t *testing.T) {
	p := newStreamPrinter(&bytes.Buffer{}, true)
	turnDone := func() bool {
		select {
		case <-p.turnDone:
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}

	// An image attach settles twice; the second Ready can still be queued
	// when the next prompt is sent.
	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StatePendingImageUpload})
	p.reset()
	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateReady})
	require.False(t, turnDone())

	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateGenerating})
	require.False(t, turnDone())
	p.OnUpdate(chat.Update{Kind: chat.UpdateTurnCommitted, Turn: &chat.Turn{Stats: "1.0s | 4 tokens"}})
	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateReady})
	require.True(t, turnDone())
	require.Equal(t, "1.0s | 4 tokens", p.lastStats())

	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateGenerating})
	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateError})
	require.True(t, turnDone())
}

func TestStreamPrinter_WaitTimesOut(t *testing.T) {
	p := newStreamPrinter(&bytes.Buffer{}, true)
	require.False(t, p.wait(context.Background(), 10*time.Millisecond))

	p.OnUpdate(chat.Update{Kind: chat.UpdateState, State: chat.StateFailed})
	p.reset()
	require.False(t, p.wait(context.Background(), 10*time.Millisecond))
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func testApp(t *testing.T) (*app, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New()
	return &app{
		cfg:     config.Default(),
		logger:  logging.Discard(),
		catalog: model.NewCatalog(model.Identity{ID: "tiny", Lib: "tiny:1b", DisplayName: "Tiny"}),
		engine:  eng,
	}, eng
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewApp_Backend(t *testing.T) {
	t.Setenv("FOCUSAI_BACKEND", "")
	t.Setenv("FOCUSAI_OLLAMA_URL", "")
	t.Setenv("FOCUSAI_LOCAL_ONLY", "")
	t.Setenv("FOCUSAI_STORAGE", "")

	write := func(t *testing.T, body string) string {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))
		return path
	}

	t.Run("ollama", func(t *testing.T) {
		path := write(t, "[storage]\nenabled = false\n")
		a, err := newApp(testContext(t), Args{ConfigPath: path}, io.Discard)
		require.NoError(t, err)
		defer a.Close()

		require.NotNil(t, a.client)
		require.IsType(t, &ollama.Client{}, a.engine)
	})

	t.Run("openai", func(t *testing.T) {
		path := write(t, "[engine]\nbackend = \"openai\"\nurl = \"http://127.0.0.1:8080/v1\"\n\n[storage]\nenabled = false\n")
		a, err := newApp(testContext(t), Args{ConfigPath: path}, io.Discard)
		require.NoError(t, err)
		defer a.Close()

		require.Nil(t, a.client)
		require.IsType(t, &openaicompat.Engine{}, a.engine)
		require.NoError(t, a.ensureBackend(testContext(t)))
	})
}

func TestResolveModel(t *testing.T) {
	a, _ := testApp(t)

	id, err := a.resolveModel("tiny")
	require.NoError(t, err)
	require.Equal(t, "tiny:1b", id.BackendRef())
	require.Equal(t, detect.EstimateVRAM("tiny:1b"), id.EstimatedVRAM)

	id, err = a.resolveModel("qwen2.5:7b")
	require.NoError(t, err)
	require.Equal(t, "qwen2.5:7b", id.ID)
	require.NotZero(t, id.EstimatedVRAM)

	a.cfg.Session.DefaultModel = ""
	_, err = a.resolveModel("")
	require.ErrorIs(t, err, ErrUsage)
}

func TestRunAsk_JSON(t *testing.T) {
	a, eng := testApp(t)
	// First stream answers the warm-up.
	eng.Script(engine.Chunk{FinishReason: engine.FinishReasonStop})
	eng.Script(
		engine.Chunk{Delta: "A measure of "},
		engine.Chunk{Delta: "disorder."},
		engine.Chunk{FinishReason: engine.FinishReasonStop, Usage: &engine.Usage{
			PromptTokens: 12, CompletionTokens: 4,
			PromptDuration: time.Second, DecodeDuration: time.Second,
		}},
	)

	var out bytes.Buffer
	args := Args{Command: CmdAsk, Model: "tiny", Query: "what is entropy", JSON: true, Flags: NewArgParser(nil)}
	require.NoError(t, runAsk(testContext(t), a, args, &out))

	var res askResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, "A measure of disorder.", res.Answer)
	require.Equal(t, "tiny", res.Model)
	require.Equal(t, 12, res.PromptTokens)
	require.Equal(t, 4, res.CompletionTokens)
	require.Equal(t, "prefill: 12.0 tok/s, decode: 4.0 tok/s", res.Info)
	require.False(t, res.Truncated)
	require.Contains(t, res.Stats, "4 tokens")
	require.Contains(t, res.Stats, "TTFT ")
}

func TestRunBench_JSON(t *testing.T) {
	a, eng := testApp(t)
	for i := 0; i < 2; i++ {
		eng.Script(engine.Chunk{Delta: "ready"}, engine.Chunk{FinishReason: engine.FinishReasonStop, Usage: &engine.Usage{
			PromptTokens: 8, CompletionTokens: 10,
			PromptDuration: time.Second, DecodeDuration: time.Second,
		}})
	}

	var out bytes.Buffer
	args := Args{Command: CmdBench, JSON: true, Flags: NewArgParser([]string{"tiny", "--quick", "--max-tokens", "32"}, "all", "quick")}
	require.NoError(t, runBench(testContext(t), a, args, &out))

	var cmp benchmark.Comparison
	require.NoError(t, json.Unmarshal(out.Bytes(), &cmp))
	require.Len(t, cmp.Results, 1)
	require.Equal(t, "tiny", cmp.Results[0].Model)
	require.Equal(t, 2, cmp.Results[0].Passed)
	require.InDelta(t, 10.0, cmp.Results[0].AvgDecodeRate, 0.01)

	require.Equal(t, []string{"load:tiny:1b", "stream", "stream", "unload"}, eng.Calls())
	require.Equal(t, 32, eng.Requests()[0].MaxTokens)
}

func TestRunBench_BadFlag(t *testing.T) {
	a, _ := testApp(t)
	args := Args{Command: CmdBench, Flags: NewArgParser([]string{"tiny", "--max-tokens", "0"}, "all", "quick")}
	require.ErrorIs(t, runBench(testContext(t), a, args, io.Discard), ErrUsage)
}

func TestRunAsk_IncludesFile(t *testing.T) {
	a, eng := testApp(t)
	eng.Script(engine.Chunk{FinishReason: engine.FinishReasonStop})
	eng.Script(engine.Chunk{Delta: "ok"}, engine.Chunk{FinishReason: engine.FinishReasonStop})

	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("the krebs cycle"), 0600))

	var out bytes.Buffer
	args := Args{
		Command: CmdAsk,
		Model:   "tiny",
		Query:   "summarize",
		Quiet:   true,
		Flags:   NewArgParser([]string{"summarize", "--file", path}),
	}
	require.NoError(t, runAsk(testContext(t), a, args, &out))
	require.Equal(t, "ok\n", out.String())

	reqs := eng.Requests()
	require.NotEmpty(t, reqs)
	last := reqs[len(reqs)-1].Messages
	require.Contains(t, last[len(last)-1].Content, "the krebs cycle")
}

func TestRunAsk_StreamError(t *testing.T) {
	a, eng := testApp(t)
	eng.Script(engine.Chunk{FinishReason: engine.FinishReasonStop})
	eng.ScriptError(errors.New("connection reset"), engine.Chunk{Delta: "partial"})

	args := Args{Command: CmdAsk, Model: "tiny", Query: "hi", Flags: NewArgParser(nil)}
	err := runAsk(testContext(t), a, args, &bytes.Buffer{})
	require.ErrorContains(t, err, "connection reset")
}

func TestRunHistory(t *testing.T) {
	ctx := testContext(t)
	a, _ := testApp(t)

	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	a.store = store

	require.NoError(t, store.RecordTurn(ctx, chat.Turn{
		Session:   "5f2c9a10-0000-7000-8000-000000000001",
		Model:     "tiny",
		User:      "what is entropy",
		Assistant: "A measure of disorder.",
		Committed: time.Now(),
	}))

	run := func(argv ...string) (string, error) {
		args, err := Parse(append([]string{"history"}, argv...))
		require.NoError(t, err)
		var out bytes.Buffer
		err = runHistory(ctx, a, args, &out)
		return out.String(), err
	}

	out, err := run()
	require.NoError(t, err)
	require.Contains(t, out, "5f2c9a10")
	require.Contains(t, out, "what is entropy")

	out, err = run("search", "DISORDER")
	require.NoError(t, err)
	require.Contains(t, out, "5f2c9a10")

	out, err = run("show", "5f2c9a10")
	require.NoError(t, err)
	require.Contains(t, out, "A measure of disorder.")

	exported := filepath.Join(t.TempDir(), "out.json")
	_, err = run("export", "5f2c9a10", "--format", "json", "--output", exported)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	var tr storage.Transcript
	require.NoError(t, json.Unmarshal(data, &tr))
	require.Len(t, tr.Turns, 1)

	out, err = run("export", "5f2c9a10", "--format", "html", "--theme", "light")
	require.NoError(t, err)
	require.Contains(t, out, `<body class="light">`)
	require.Contains(t, out, "A measure of disorder.")

	_, err = run("export", "5f2c9a10", "--format", "pdf")
	require.ErrorIs(t, err, ErrUsage)

	_, err = run("clear")
	require.ErrorIs(t, err, ErrUsage)

	_, err = run("delete", "5f2c9a10")
	require.NoError(t, err)
	_, err = run("show", "5f2c9a10")
	require.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestRunHistory_Disabled(t *testing.T) {
	a, _ := testApp(t)
	err := runHistory(testContext(t), a, Args{Command: CmdHistory, Flags: NewArgParser(nil)}, &bytes.Buffer{})
	require.ErrorIs(t, err, ErrStorageDisabled)
}

func TestRunConfig(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	run := func(argv ...string) (string, error) {
		args, err := Parse(append([]string{"--config", path, "config"}, argv...))
		require.NoError(t, err)
		var out bytes.Buffer
		err = Run(ctx, args, &out, &bytes.Buffer{})
		return out.String(), err
	}

	out, err := run("path")
	require.NoError(t, err)
	require.Equal(t, path+"\n", out)

	_, err = run("init")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run("init")
	require.ErrorIs(t, err, ErrUsage)
	_, err = run("init", "--force")
	require.NoError(t, err)

	out, err = run("validate")
	require.NoError(t, err)
	require.Contains(t, out, "is valid")

	out, err = run("show")
	require.NoError(t, err)
	require.Contains(t, out, "[engine]")

	require.NoError(t, os.WriteFile(path, []byte("[generation]\nmax_tokens = -5\n"), 0600))
	_, err = run("validate")
	require.Error(t, err)
}

func TestRunVersionJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), Args{Command: CmdVersion, JSON: true}, &out, &bytes.Buffer{}))

	var v map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	require.Equal(t, Version, v["version"])
}
