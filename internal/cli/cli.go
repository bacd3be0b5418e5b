// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for focusai.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdModels
	CmdProbe
	CmdHistory
	CmdConfig
	CmdBench
	CmdVersion
	CmdHelp
)

var commandNames = [...]string{
	CmdChat:    "chat",
	CmdAsk:     "ask",
	CmdModels:  "models",
	CmdProbe:   "probe",
	CmdHistory: "history",
	CmdConfig:  "config",
	CmdBench:   "bench",
	CmdVersion: "version",
	CmdHelp:    "help",
}

func (c Command) String() string {
	if c >= 0 && int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	Command Command

	// Global flags
	ConfigPath string
	Model      string
	Quiet      bool
	Verbose    bool
	JSON       bool

	// Command-specific
	Query      string
	Image      string
	Subcommand string

	// Flags holds the command's own arguments.
	Flags *ArgParser
}

// ErrUsage marks command-line errors; the caller prints the usage text.
var ErrUsage = errors.New("usage error")

const usageText = `focusai - private on-device study assistant

Chat with a local model served by Ollama. Models are loaded only when the
machine has the memory for them, and every exchange is kept in a local
transcript store.

Usage:
  focusai [chat]                  Interactive chat (default)
  focusai ask "question"          Ask a single question
  focusai models                  List configured and installed models
  focusai probe                   Show memory available for models
  focusai history [subcommand]    Stored transcripts
  focusai config [subcommand]     Configuration
  focusai bench [model...]        Measure model speed on study prompts
  focusai version                 Show version
  focusai help                    Show this help

Global Flags:
  -m, --model ID        Model to load (catalog id or Ollama tag)
  -c, --config PATH     Config file (default: ~/.focusai/config.toml)
  -q, --quiet           Minimal output
  -v, --verbose         Debug logging
  --json                JSON output where supported

Ask:
  focusai ask "question" [--image PATH]

History Commands:
  focusai history list [--limit N]      List stored sessions (default)
  focusai history show <id>             Render a transcript
  focusai history search <text>         Find sessions mentioning text
  focusai history export <id>           Export a transcript
    --format md|json|html               Export format (default: md)
    --theme dark|light                  HTML theme (default: dark)
    --output FILE                       Write to file (default: stdout)
    --save                              Write to a generated file name
  focusai history delete <id>           Delete a session
  focusai history clear --confirm       Delete all sessions

Bench:
  focusai bench [model...]              Benchmark models (default: -m or default model)
    --all                               Benchmark every configured model
    --quick                             Run the two-prompt suite
    --max-tokens N                      Cap each answer (default: 256)

Config Commands:
  focusai config show                   Print the effective configuration
  focusai config path                   Print the config file path
  focusai config init [--force]         Write a default config file
  focusai config validate               Check the config file

Chat Commands:
  /help                 Show chat commands
  /reload <id>          Load another model
  /reset                Clear the conversation
  /terminate            Unload the model and clear the session
  /image <path>         Attach an image to the next message
  /models               List configured models
  /status               Show session state
  /copy                 Copy the last answer to the clipboard
  /quit                 Exit
  Ctrl+C                Stop the current answer

Environment:
  FOCUSAI_BACKEND       Overrides engine.backend (ollama or openai)
  FOCUSAI_OLLAMA_URL    Overrides engine.url
  FOCUSAI_API_KEY       Overrides engine.api_key
  FOCUSAI_MODEL         Overrides session.default_model
  FOCUSAI_LOG_LEVEL     Overrides logging.level
  FOCUSAI_LOCAL_ONLY    Accept only a server on this machine
  NO_COLOR              Disable colored output
`

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Args, error) {
	remaining, args, err := parseGlobalFlags(argv)
	if err != nil {
		return args, err
	}

	if len(remaining) == 0 {
		args.Command = CmdChat
		args.Flags = NewArgParser(nil)
		return args, nil
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]

	switch cmd {
	case "chat":
		args.Command = CmdChat
		args.Flags = NewArgParser(remaining)

	case "ask", "a":
		args.Command = CmdAsk
		args.Flags = NewArgParser(remaining)
		args.Query = JoinPositionalArgs(args.Flags, 0)
		args.Image = args.Flags.Flag("image", "i")
		if strings.TrimSpace(args.Query) == "" {
			return args, fmt.Errorf("%w: ask needs a question", ErrUsage)
		}

	case "models", "model":
		args.Command = CmdModels
		args.Flags = NewArgParser(remaining)

	case "probe":
		args.Command = CmdProbe
		args.Flags = NewArgParser(remaining)

	case "history", "sessions":
		args.Command = CmdHistory
		args.Flags = NewArgParser(remaining, "confirm", "save")
		args.Subcommand = args.Flags.Subcommand()

	case "config":
		args.Command = CmdConfig
		args.Flags = NewArgParser(remaining, "force")
		args.Subcommand = args.Flags.Subcommand()

	case "bench", "benchmark":
		args.Command = CmdBench
		args.Flags = NewArgParser(remaining, "all", "quick")

	case "version":
		args.Command = CmdVersion
		args.Flags = NewArgParser(remaining)

	case "help":
		args.Command = CmdHelp
		args.Flags = NewArgParser(remaining)

	default:
		return args, fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	return args, nil
}

// parseGlobalFlags extracts global flags anywhere in argv.
func parseGlobalFlags(argv []string) ([]string, Args, error) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "-h", "--help":
			args.Command = CmdHelp
			return []string{"help"}, args, nil
		case "--version":
			return []string{"version"}, args, nil
		case "-m", "--model", "-c", "--config":
			if i+1 >= len(argv) {
				return nil, args, fmt.Errorf("%w: %s needs a value", ErrUsage, arg)
			}
			i++
			if arg == "-m" || arg == "--model" {
				args.Model = argv[i]
			} else {
				args.ConfigPath = argv[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--config="):
				args.ConfigPath = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}
	return remaining, args, nil
}

// Run executes the parsed command.
func Run(ctx context.Context, args Args, stdout, stderr io.Writer) error {
	switch args.Command {
	case CmdHelp:
		PrintUsage(stdout)
		return nil
	case CmdVersion:
		return runVersion(args, stdout)
	case CmdConfig:
		return runConfig(ctx, args, stdout)
	}

	a, err := newApp(ctx, args, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args.Command {
	case CmdChat:
		return runChat(ctx, a, args, stdout)
	case CmdAsk:
		return runAsk(ctx, a, args, stdout)
	case CmdModels:
		return runModels(ctx, a, args, stdout)
	case CmdProbe:
		return runProbe(ctx, a, args, stdout)
	case CmdHistory:
		return runHistory(ctx, a, args, stdout)
	case CmdBench:
		return runBench(ctx, a, args, stdout)
	default:
		return fmt.Errorf("%w: unknown command", ErrUsage)
	}
}

func runVersion(args Args, w io.Writer) error {
	if args.JSON {
		return writeJSON(w, map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"go_version": runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		})
	}
	fmt.Fprintf(w, "focusai %s\n", Version)
	fmt.Fprintf(w, "  Commit:   %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:    %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:       %s\n", runtime.Version())
	fmt.Fprintf(w, "  Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
