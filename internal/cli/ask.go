// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command.
//
// Command: ask [question]
//
// Examples:
//   focusai ask "Summarize the causes of the French Revolution"
//   focusai ask "Explain these notes" --file notes.md
//   focusai ask "What is in this diagram?" --image figure.png -m llava:7b
//   focusai ask --json "Define entropy"
//
// Flags:
//   -f, --file FILE     Include file content with the question
//   -i, --image FILE    Attach an image (vision models only)
//   --json              Output the exchange as JSON
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jeranaias/focusai/internal/chat"
	"github.com/jeranaias/focusai/internal/model"
)

// MaxFileSize is the largest file ask will include (50KB).
const MaxFileSize = 50 * 1024

// askResult is the --json output.
type askResult struct {
	Session          string `json:"session"`
	Model            string `json:"model"`
	Question         string `json:"question"`
	Answer           string `json:"answer"`
	Truncated        bool   `json:"truncated,omitempty"`
	Info             string `json:"info,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	DurationMs       int64  `json:"duration_ms,omitempty"`
	Stats            string `json:"stats,omitempty"`
}

// turnCollector keeps the last committed turn and signals when a
// generation has ended and the session is no longer busy.
type turnCollector struct {
	mu         sync.Mutex
	turn       *chat.Turn
	generating bool
	settled    chan struct{}
}

func newTurnCollector() *turnCollector {
	return &turnCollector{settled: make(chan struct{}, 1)}
}

// OnUpdate implements chat.Observer.
func (c *turnCollector) OnUpdate(u chat.Update) {
	switch {
	case u.Kind == chat.UpdateTurnCommitted && u.Turn != nil:
		c.mu.Lock()
		t := *u.Turn
		c.turn = &t
		c.mu.Unlock()
	case u.Kind == chat.UpdateState && u.State == chat.StateGenerating:
		c.generating = true
	case u.Kind == chat.UpdateState && c.generating && !u.State.Busy():
		c.generating = false
		select {
		case c.settled <- struct{}{}:
		default:
		}
	}
}

func (c *turnCollector) lastTurn() *chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

func runAsk(ctx context.Context, a *app, args Args, out io.Writer) error {
	question := args.Query
	if file := args.Flags.Flag("file", "f"); file != "" {
		content, err := readFileForContext(file)
		if err != nil {
			return err
		}
		question = fmt.Sprintf("%s\n\nFile: %s\n```\n%s\n```", question, file, content)
	}

	id, err := a.resolveModel(args.Model)
	if err != nil {
		return err
	}
	if err := a.ensureBackend(ctx); err != nil {
		return err
	}

	col := newTurnCollector()
	sess := a.newSession(col)
	defer sess.Close()

	if err := sess.RequestReloadChat(ctx, id); err != nil {
		return err
	}
	if args.Image != "" {
		if err := attachImageFile(ctx, sess, args.Image); err != nil {
			return err
		}
	}

	if err := sess.RequestGenerate(question); err != nil {
		return err
	}
	select {
	case <-col.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	if sess.State() == chat.StateError {
		return errors.New(sess.ErrorMessage())
	}

	answer := lastAssistant(sess.Messages())
	if args.JSON {
		res := askResult{
			Session:  sess.ID(),
			Model:    id.ID,
			Question: args.Query,
			Answer:   answer,
			Info:     sess.InfoText(),
		}
		if t := col.lastTurn(); t != nil {
			res.Truncated = t.Truncated
			res.DurationMs = t.Duration.Milliseconds()
			res.Stats = t.Stats
			if t.Usage != nil {
				res.PromptTokens = t.Usage.PromptTokens
				res.CompletionTokens = t.Usage.CompletionTokens
			}
		}
		return writeJSON(out, res)
	}

	displayMarkdown(out, answer)
	if info := sess.InfoText(); info != "" && !args.Quiet {
		fmt.Fprintln(out, DimStyle.Render(info))
	}
	return nil
}

func attachImageFile(ctx context.Context, sess *chat.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if err := sess.RequestImageUpload(); err != nil {
		return err
	}
	return sess.AttachImage(ctx, data)
}

// readFileForContext reads a text file to include with a question.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot read file %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("file %s is too large (%d bytes, max %d)", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read file %s: %w", path, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// lastAssistant returns the newest non-empty assistant message.
func lastAssistant(msgs []model.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && !msgs[i].IsEmpty() {
			return msgs[i].Content
		}
	}
	return ""
}
