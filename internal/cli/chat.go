// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// Command: chat (default)
//
// Examples:
//   focusai                       Start chat with session.default_model
//   focusai chat -m llama3.2:3b   Start chat with a specific model
//
// Chat commands are listed by /help. Ctrl+C while an answer streams stops
// it; Ctrl+C or Ctrl+D at the prompt exits.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"

	"github.com/jeranaias/focusai/internal/chat"
	"github.com/jeranaias/focusai/internal/config"
	"github.com/jeranaias/focusai/internal/model"
	"github.com/jeranaias/focusai/internal/ollama"
	"github.com/jeranaias/focusai/internal/openaicompat"
)

// settleTimeout bounds how long the prompt waits for the printer to see
// the state a finished request left behind.
const settleTimeout = 2 * time.Second

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides input history and line editing for the REPL.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *lineReader) read(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history (0600) and restores the terminal.
func (r *lineReader) Close() error {
	defer r.line.Close()

	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.line.WriteHistory(f)
	return err
}

var slashCommands = []string{"/copy", "/help", "/image", "/models", "/quit", "/reload", "/reset", "/status", "/terminate"}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	app     *app
	sess    *chat.Session
	printer *streamPrinter
	out     io.Writer
	quiet   bool
}

func runChat(ctx context.Context, a *app, args Args, out io.Writer) error {
	if err := a.ensureBackend(ctx); err != nil {
		return err
	}

	printer := newStreamPrinter(out, args.Quiet)
	r := &repl{
		app:     a,
		sess:    a.newSession(printer),
		printer: printer,
		out:     out,
		quiet:   args.Quiet,
	}
	defer r.sess.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.watchConfig(ctx)

	if !r.quiet {
		fmt.Fprintln(out, TitleStyle.Render("focusai "+Version))
		fmt.Fprintln(out, DimStyle.Render("Type /help for commands, /quit to exit."))
	}

	name := args.Model
	if name == "" {
		name = a.cfg.Session.DefaultModel
	}
	if name != "" {
		r.reload(ctx, name)
	} else if !r.quiet {
		fmt.Fprintln(out, WarningStyle.Render("No model selected. Use /reload <id> or /models."))
	}

	input := newLineReader()
	defer input.Close()

	for {
		line, err := input.read("you> ")
		if err != nil {
			// Ctrl+C, Ctrl+D and closed stdin all end the session.
			fmt.Fprintln(out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if !r.command(ctx, line) {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}
		r.send(ctx, line)
	}
}

// send starts a generation and waits for it, turning Ctrl+C into a
// background switch that stops the stream.
func (r *repl) send(ctx context.Context, prompt string) {
	r.printer.reset()
	if err := r.sess.RequestGenerate(prompt); err != nil {
		r.report(err)
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	// A Ready left over from an earlier request may still be queued, so
	// only the end of this generation counts.
	for {
		select {
		case <-r.printer.turnDone:
			return
		case <-ctx.Done():
			return
		case <-sigs:
			fmt.Fprintln(r.out, "\n"+WarningStyle.Render("[Stopped]"))
			if err := r.sess.RequestSwitchToBackground(ctx); err != nil && !chat.IsIllegalState(err) {
				r.report(err)
			}
		}
	}
}

// command runs a slash command. It returns false to exit.
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, rest := strings.ToLower(fields[0]), strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "/quit", "/q", "/exit":
		return false

	case "/help", "/h", "/?":
		r.help()

	case "/reload", "/model", "/m":
		if rest == "" {
			fmt.Fprintln(r.out, "Usage: /reload <model id>")
			break
		}
		r.reload(ctx, rest)

	case "/reset", "/clear", "/c":
		r.do(ctx, func() error { return r.sess.RequestResetChat(ctx) })

	case "/terminate":
		err := r.do(ctx, func() error {
			done := make(chan struct{})
			if err := r.sess.RequestTerminateChat(ctx, func() { close(done) }); err != nil {
				return err
			}
			<-done
			return nil
		})
		if err == nil && !r.quiet {
			fmt.Fprintln(r.out, DimStyle.Render("Model unloaded. Use /reload <id> to continue."))
		}

	case "/image", "/img":
		r.image(ctx, rest)

	case "/models":
		r.listModels()

	case "/status", "/s":
		r.status()

	case "/copy", "/cp":
		n, err := copyLastAnswer(r.sess.Messages(), writeClipboard)
		if err != nil {
			r.report(err)
			break
		}
		fmt.Fprintf(r.out, "%s Copied %d characters\n", RenderStatus("ok"), n)

	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", cmd)
	}
	return true
}

func (r *repl) reload(ctx context.Context, name string) {
	id, err := r.app.resolveModel(name)
	if err != nil {
		r.report(err)
		return
	}
	r.do(ctx, func() error { return r.sess.RequestReloadChat(ctx, id) })
}

func (r *repl) image(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(r.out, "Usage: /image <path>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.report(err)
		return
	}
	if err := r.sess.RequestImageUpload(); err != nil {
		r.report(err)
		return
	}
	r.do(ctx, func() error { return r.sess.AttachImage(ctx, data) })
}

// do runs a blocking session request, reports its error and waits for
// the printer to catch up so the next prompt is not interleaved with
// session output. Rejected requests change nothing and are not waited on.
func (r *repl) do(ctx context.Context, req func() error) error {
	r.printer.reset()
	err := req()
	if err != nil {
		r.report(err)
		if chat.IsIllegalState(err) || errors.Is(err, chat.ErrClosed) {
			return err
		}
	}
	r.printer.wait(ctx, settleTimeout)
	return err
}

func (r *repl) report(err error) {
	fmt.Fprintln(r.out, describeError(err))
}

// describeError turns a request error into one styled line.
func describeError(err error) string {
	var ise *chat.IllegalStateError
	switch {
	case errors.As(err, &ise):
		return fmt.Sprintf("%s cannot %s while %s", WarningStyle.Render("[Busy]"), ise.Op, ise.State)
	case errors.Is(err, chat.ErrVisionUnsupported):
		return WarningStyle.Render("[Info] ") + "the loaded model does not accept images"
	case ollama.IsModelNotFound(err), errors.Is(err, openaicompat.ErrModelNotFound):
		return ErrorStyle.Render("[Error] ") + "model not pulled on the server (try: ollama pull <tag>): " + err.Error()
	case ollama.IsTimeout(err):
		return ErrorStyle.Render("[Error] ") + "the backend timed out (raise engine.timeout_secs): " + err.Error()
	default:
		return ErrorStyle.Render("[Error] ") + err.Error()
	}
}

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

var errNothingToCopy = errors.New("no answer to copy yet")

// copyLastAnswer writes the newest assistant message with write and
// returns its length in runes.
func copyLastAnswer(msgs []model.Message, write func(string) error) (int, error) {
	answer := lastAssistant(msgs)
	if answer == "" {
		return 0, errNothingToCopy
	}
	if err := write(answer); err != nil {
		return 0, fmt.Errorf("clipboard: %w", err)
	}
	return utf8.RuneCountInString(answer), nil
}

func (r *repl) help() {
	fmt.Fprintln(r.out, SectionStyle.Render("Chat commands"))
	rows := [][2]string{
		{"/reload <id>", "Load another model"},
		{"/reset", "Clear the conversation"},
		{"/terminate", "Unload the model and clear the session"},
		{"/image <path>", "Attach an image to the next message"},
		{"/models", "List configured models"},
		{"/status", "Show session state"},
		{"/copy", "Copy the last answer to the clipboard"},
		{"/quit", "Exit"},
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "  %s %s\n", RenderLabel(row[0], 16), row[1])
	}
}

func (r *repl) listModels() {
	models := r.app.catalog.List()
	if len(models) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No models configured. Any Ollama tag works with /reload."))
		return
	}
	current := r.sess.Identity().ID
	for _, m := range models {
		marker := "  "
		if m.ID == current {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(r.out, "%s%s %s\n", marker, RenderLabel(m.ID, 24), DimStyle.Render(m.Name()))
	}
}

func (r *repl) status() {
	snap := r.sess.Snapshot()
	model := "(none)"
	if !snap.Identity.IsZero() {
		model = fmt.Sprintf("%s (%s)", snap.Identity.Name(), snap.Identity.BackendRef())
	}
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Session:"), snap.ID)
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("State:"), RenderState(snap.State))
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Model:"), model)
	fmt.Fprintf(r.out, "%s %d\n", RenderLabel("History entries:"), snap.HistoryLen)
	if snap.PendingImages > 0 {
		fmt.Fprintf(r.out, "%s %d\n", RenderLabel("Pending images:"), snap.PendingImages)
	}
	if snap.InfoText != "" {
		fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Last turn:"), snap.InfoText)
	}
	if stats := r.printer.lastStats(); stats != "" {
		fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Timing:"), stats)
	}
	if snap.ErrorMessage != "" {
		fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Error:"), ErrorStyle.Render(snap.ErrorMessage))
	}
}

// watchConfig applies sampling changes from the config file to the next
// turn. Other settings take effect on restart.
func (r *repl) watchConfig(ctx context.Context) {
	if _, err := os.Stat(r.app.cfgPath); err != nil {
		return
	}
	w, err := config.NewWatcher(r.app.cfgPath, 0, r.app.logger, func(cfg *config.Config) {
		r.sess.SetGeneration(generationFrom(cfg.Generation))
	})
	if err != nil {
		r.app.logger.Warn("config watch disabled", "error", err)
		return
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.app.logger.Warn("config watcher stopped", "error", err)
		}
	}()
}
