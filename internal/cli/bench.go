// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// bench.go - Model benchmark command.
//
// Command: bench [model...]
// Aliases: benchmark
//
// Flags:
//   --all              Benchmark every configured model
//   --quick            Run the two-prompt suite
//   --max-tokens N     Cap each answer

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jeranaias/focusai/internal/benchmark"
	"github.com/jeranaias/focusai/internal/model"
)

func runBench(ctx context.Context, a *app, args Args, out io.Writer) error {
	p := args.Flags

	var ids []model.Identity
	switch {
	case p.BoolFlag("all"):
		for _, c := range a.catalog.List() {
			id, err := a.resolveModel(c.ID)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: no models configured for --all", ErrUsage)
		}
	case p.PositionalCount() > 0:
		for i := 0; i < p.PositionalCount(); i++ {
			id, err := a.resolveModel(p.Positional(i))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	default:
		id, err := a.resolveModel(args.Model)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	maxTokens, err := p.FlagInt("max-tokens", 256)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	prompts := benchmark.StandardSuite()
	if p.BoolFlag("quick") {
		prompts = benchmark.QuickSuite()
	}

	if err := a.ensureBackend(ctx); err != nil {
		return err
	}

	runner := benchmark.NewRunner(a.engine, a.memory)
	runner.MaxTokens = maxTokens

	if !args.JSON && !args.Quiet {
		fmt.Fprintf(out, "%s %d model(s), %d prompt(s)\n", TitleStyle.Render("Benchmark"), len(ids), len(prompts))
	}
	cmp, err := runner.RunComparison(ctx, ids, prompts)
	if args.JSON {
		if jerr := writeJSON(out, cmp); jerr != nil {
			return jerr
		}
		return err
	}

	for _, r := range cmp.Results {
		fmt.Fprintln(out)
		fmt.Fprint(out, r.Summary())
	}
	if len(cmp.Results) > 1 {
		fmt.Fprintln(out)
		fmt.Fprint(out, cmp.Table())
	}
	return err
}
