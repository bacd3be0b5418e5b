// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Stored transcript commands.
//
// Command: history [subcommand]
// Aliases: sessions
//
// Subcommands:
//   list (default)        List stored sessions
//   show <id>             Render a transcript
//   search <text>         Find sessions mentioning text
//   export <id>           Export a transcript (--format md|json|html,
//                         --theme dark|light, --output FILE or --save)
//   delete <id>           Delete a session
//   clear --confirm       Delete all sessions
//
// Session IDs may be shortened to a unique prefix of four or more
// characters.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/focusai/internal/export"
	"github.com/jeranaias/focusai/internal/storage"
	"github.com/jeranaias/focusai/internal/util"
)

// ErrStorageDisabled is returned by history commands without a store.
var ErrStorageDisabled = errors.New("transcript storage is disabled (set [storage] enabled = true)")

const defaultListLimit = 20

func runHistory(ctx context.Context, a *app, args Args, out io.Writer) error {
	if a.store == nil {
		return ErrStorageDisabled
	}
	p := args.Flags

	switch sub := strings.ToLower(args.Subcommand); sub {
	case "", "list", "ls":
		limit, err := p.FlagInt("limit", defaultListLimit)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		sessions, err := a.store.List(ctx, limit)
		if err != nil {
			return err
		}
		return printSessions(out, sessions, args.JSON)

	case "search", "find":
		query := JoinPositionalArgs(p, 1)
		if query == "" {
			return fmt.Errorf("%w: history search needs text", ErrUsage)
		}
		sessions, err := a.store.Search(ctx, query)
		if err != nil {
			return err
		}
		return printSessions(out, sessions, args.JSON)

	case "show", "view":
		tr, err := loadTranscript(ctx, a.store, p)
		if err != nil {
			return err
		}
		if args.JSON {
			return writeJSON(out, tr)
		}
		displayMarkdown(out, tr.ExportMarkdown())
		return nil

	case "export":
		tr, err := loadTranscript(ctx, a.store, p)
		if err != nil {
			return err
		}
		exp, err := export.ForFormat(p.FlagOrDefault("format", "md"), exportOptions(p))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		data, err := exp.Export(tr)
		if err != nil {
			return err
		}
		path := p.Flag("output", "o")
		if path == "" && p.BoolFlag("save") {
			path = export.Filename(tr, exp)
		}
		if path != "" {
			if err := util.AtomicWriteFile(path, data, 0600); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Exported %s to %s\n", RenderStatus("ok"), shortID(tr.ID), path)
			return nil
		}
		_, err = out.Write(data)
		return err

	case "delete", "rm":
		tr, err := loadTranscript(ctx, a.store, p)
		if err != nil {
			return err
		}
		if err := a.store.Delete(ctx, tr.ID); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Deleted session %s\n", RenderStatus("ok"), shortID(tr.ID))
		return nil

	case "clear":
		if !p.BoolFlag("confirm") {
			return fmt.Errorf("%w: history clear deletes every transcript; add --confirm", ErrUsage)
		}
		if err := a.store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s All sessions deleted\n", RenderStatus("ok"))
		return nil

	default:
		return fmt.Errorf("%w: unknown history subcommand %q", ErrUsage, sub)
	}
}

func loadTranscript(ctx context.Context, store *storage.Store, p *ArgParser) (*storage.Transcript, error) {
	id := p.Positional(1)
	if id == "" {
		return nil, fmt.Errorf("%w: session id required", ErrUsage)
	}
	return store.Load(ctx, id)
}

func printSessions(w io.Writer, sessions []storage.SessionMeta, asJSON bool) error {
	if asJSON {
		if sessions == nil {
			sessions = []storage.SessionMeta{}
		}
		return writeJSON(w, sessions)
	}
	fmt.Fprint(w, storage.FormatSessionList(sessions))
	if len(sessions) > 0 {
		fmt.Fprintln(w, DimStyle.Render("Use 'focusai history show <id>' to read a transcript."))
	} else {
		fmt.Fprintln(w)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func exportOptions(p *ArgParser) *export.Options {
	opts := export.DefaultOptions()
	opts.Theme = strings.ToLower(p.FlagOrDefault("theme", opts.Theme))
	return opts
}
