// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/focusai/internal/detect"
	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/model"
)

// ErrInsufficientMemory is recorded when a model's estimate exceeds the
// memory the probe reports.
var ErrInsufficientMemory = errors.New("insufficient memory for model")

// Runner benchmarks models on one engine. It is not safe for concurrent
// use: the engine holds a single resident model.
type Runner struct {
	eng    engine.Engine
	memory detect.MemoryProbe

	// MaxTokens caps each answer. Zero uses the backend default.
	MaxTokens int

	// Temperature is fixed low so runs are comparable.
	Temperature float64

	now func() time.Time
}

// NewRunner creates a runner. memory may be nil to skip the headroom check.
func NewRunner(eng engine.Engine, memory detect.MemoryProbe) *Runner {
	return &Runner{
		eng:         eng,
		memory:      memory,
		MaxTokens:   256,
		Temperature: 0.2,
		now:         time.Now,
	}
}

// Run loads id, runs every prompt and unloads the model again. Prompt
// failures are recorded in the result; the returned error is reserved for
// load failures and cancellation.
func (r *Runner) Run(ctx context.Context, id model.Identity, prompts []Prompt) (*Result, error) {
	res := &Result{Model: id.ID, StartTime: r.now()}
	defer func() {
		res.EndTime = r.now()
		res.Duration = res.EndTime.Sub(res.StartTime)
	}()

	if err := r.checkMemory(ctx, id); err != nil {
		res.Skipped = err.Error()
		return res, err
	}

	loadStart := r.now()
	if err := r.eng.Load(ctx, id.Path, id.BackendRef()); err != nil {
		return res, fmt.Errorf("load %s: %w", id.ID, err)
	}
	res.LoadTime = r.now().Sub(loadStart)
	defer func() {
		// The next model needs the memory back.
		_ = r.eng.Unload(context.WithoutCancel(ctx))
	}()

	for _, p := range prompts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Prompts = append(res.Prompts, r.runPrompt(ctx, p))
	}
	res.computeAggregates()
	return res, nil
}

// RunComparison benchmarks each model in turn. It returns an error only
// when no model produced a result.
func (r *Runner) RunComparison(ctx context.Context, ids []model.Identity, prompts []Prompt) (*Comparison, error) {
	cmp := &Comparison{StartTime: r.now()}
	var errs []error
	for _, id := range ids {
		res, err := r.Run(ctx, id, prompts)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cmp, ctxErr
		}
		if err != nil {
			errs = append(errs, err)
			if res.Skipped == "" {
				res.Skipped = err.Error()
			}
		}
		cmp.Results = append(cmp.Results, res)
	}
	cmp.EndTime = r.now()
	cmp.Duration = cmp.EndTime.Sub(cmp.StartTime)

	if len(errs) == len(ids) && len(ids) > 0 {
		return cmp, errors.Join(errs...)
	}
	return cmp, nil
}

func (r *Runner) checkMemory(ctx context.Context, id model.Identity) error {
	if r.memory == nil || id.EstimatedVRAM == 0 {
		return nil
	}
	avail, err := r.memory.AvailableMemory(ctx)
	if err != nil {
		// Same as a reload: an unreadable probe does not block the load.
		return nil
	}
	if id.EstimatedVRAM > avail {
		return fmt.Errorf("%w: %s needs %.0fMB, %.0fMB available",
			ErrInsufficientMemory, id.ID, id.EstimatedVRAMMB(), float64(avail)/(1<<20))
	}
	return nil
}

func (r *Runner) runPrompt(ctx context.Context, p Prompt) PromptResult {
	pr := PromptResult{Name: p.Name, Kind: p.Kind, Status: StatusFailed}

	start := r.now()
	stream, err := r.eng.StreamCompletion(ctx, engine.CompletionRequest{
		Messages:    []engine.Message{{Role: model.RoleUser, Content: p.Text}},
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	})
	if err != nil {
		pr.Error = err.Error()
		return pr
	}
	defer stream.Close()

	var sb strings.Builder
	var usage *engine.Usage
	for {
		c, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			pr.Error = err.Error()
			pr.Response = sb.String()
			pr.Duration = r.now().Sub(start)
			return pr
		}
		if c.Delta != "" && pr.TTFT == 0 {
			pr.TTFT = r.now().Sub(start)
		}
		sb.WriteString(c.Delta)
		if c.Usage != nil {
			usage = c.Usage
		}
	}

	pr.Duration = r.now().Sub(start)
	pr.Response = sb.String()
	pr.Status = StatusPassed
	if usage != nil {
		pr.PromptTokens = usage.PromptTokens
		pr.CompletionTokens = usage.CompletionTokens
		pr.PrefillRate = usage.PrefillRate()
		pr.DecodeRate = usage.DecodeRate()
	}
	if pr.DecodeRate == 0 && pr.CompletionTokens > 0 && pr.Duration > 0 {
		pr.DecodeRate = float64(pr.CompletionTokens) / pr.Duration.Seconds()
	}
	if p.Evaluator != nil {
		pr.Quality = p.Evaluator(pr.Response)
	}
	return pr
}
