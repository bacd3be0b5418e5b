// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/focusai/internal/util"
)

// Status is the outcome of one prompt.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// PromptResult holds the measurements for one prompt.
type PromptResult struct {
	Name             string        `json:"name"`
	Kind             Kind          `json:"kind"`
	Status           Status        `json:"status"`
	TTFT             time.Duration `json:"ttft"`
	Duration         time.Duration `json:"duration"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	PrefillRate      float64       `json:"prefill_tok_per_sec"`
	DecodeRate       float64       `json:"decode_tok_per_sec"`
	Quality          float64       `json:"quality"`
	Response         string        `json:"response,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// Result is the benchmark of one model.
type Result struct {
	Model     string         `json:"model"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  time.Duration  `json:"duration"`
	LoadTime  time.Duration  `json:"load_time"`
	Prompts   []PromptResult `json:"prompts"`

	// Skipped explains why no prompt ran.
	Skipped string `json:"skipped,omitempty"`

	AvgTTFT        time.Duration `json:"avg_ttft"`
	AvgPrefillRate float64       `json:"avg_prefill_tok_per_sec"`
	AvgDecodeRate  float64       `json:"avg_decode_tok_per_sec"`
	AvgQuality     float64       `json:"avg_quality"`
	Passed         int           `json:"passed"`
	Failed         int           `json:"failed"`
}

// Comparison holds the results of several models, in run order.
type Comparison struct {
	Results   []*Result     `json:"results"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// computeAggregates averages the passed prompts. Zero measurements are
// left out of the averages.
func (r *Result) computeAggregates() {
	var ttft time.Duration
	var prefill, decode, quality float64
	var nTTFT, nPrefill, nDecode, nQuality int

	r.Passed, r.Failed = 0, 0
	for _, p := range r.Prompts {
		if p.Status != StatusPassed {
			r.Failed++
			continue
		}
		r.Passed++
		if p.TTFT > 0 {
			ttft += p.TTFT
			nTTFT++
		}
		if p.PrefillRate > 0 {
			prefill += p.PrefillRate
			nPrefill++
		}
		if p.DecodeRate > 0 {
			decode += p.DecodeRate
			nDecode++
		}
		quality += p.Quality
		nQuality++
	}

	if nTTFT > 0 {
		r.AvgTTFT = ttft / time.Duration(nTTFT)
	}
	if nPrefill > 0 {
		r.AvgPrefillRate = prefill / float64(nPrefill)
	}
	if nDecode > 0 {
		r.AvgDecodeRate = decode / float64(nDecode)
	}
	if nQuality > 0 {
		r.AvgQuality = quality / float64(nQuality)
	}
}

// Fastest returns the result with the highest average decode rate, or
// nil when no model ran.
func (c *Comparison) Fastest() *Result {
	var best *Result
	for _, r := range c.Results {
		if r.Passed == 0 {
			continue
		}
		if best == nil || r.AvgDecodeRate > best.AvgDecodeRate {
			best = r
		}
	}
	return best
}

// Summary renders one model's result as text.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s\n", r.Model)
	if r.Skipped != "" {
		fmt.Fprintf(&sb, "  skipped: %s\n", r.Skipped)
		return sb.String()
	}
	fmt.Fprintf(&sb, "  load: %s  ttft: %s  prefill: %s  decode: %s  quality: %s  (%d/%d passed)\n",
		FormatDuration(r.LoadTime), FormatDuration(r.AvgTTFT),
		FormatRate(r.AvgPrefillRate), FormatRate(r.AvgDecodeRate),
		FormatQuality(r.AvgQuality), r.Passed, r.Passed+r.Failed)
	for _, p := range r.Prompts {
		line := fmt.Sprintf("    %s %s ttft %s, decode %s, quality %s",
			util.PadRight(p.Name, 12), util.PadRight(string(p.Status), 6),
			FormatDuration(p.TTFT), FormatRate(p.DecodeRate), FormatQuality(p.Quality))
		if p.Error != "" {
			line += " (" + util.Truncate(p.Error, 40) + ")"
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// Table renders a comparison as an aligned table.
func (c *Comparison) Table() string {
	var sb strings.Builder
	sb.WriteString(util.PadRight("Model", 20) + " " + util.PadRight("Load", 8) + " " +
		util.PadRight("TTFT", 8) + " " + util.PadRight("Prefill", 12) + " " +
		util.PadRight("Decode", 12) + " Quality\n")
	sb.WriteString(strings.Repeat("-", 72) + "\n")
	for _, r := range c.Results {
		name := util.PadRight(util.Truncate(r.Model, 20), 20)
		if r.Skipped != "" {
			sb.WriteString(name + " skipped: " + util.Truncate(r.Skipped, 50) + "\n")
			continue
		}
		sb.WriteString(name + " " + util.PadRight(FormatDuration(r.LoadTime), 8) + " " +
			util.PadRight(FormatDuration(r.AvgTTFT), 8) + " " +
			util.PadRight(FormatRate(r.AvgPrefillRate), 12) + " " +
			util.PadRight(FormatRate(r.AvgDecodeRate), 12) + " " +
			FormatQuality(r.AvgQuality) + "\n")
	}
	if best := c.Fastest(); best != nil && len(c.Results) > 1 {
		sb.WriteString("\nFastest: " + best.Model + "\n")
	}
	return sb.String()
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// FormatDuration formats short durations for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "N/A"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// FormatRate formats tokens per second.
func FormatRate(tps float64) string {
	if tps <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f tok/s", tps)
}

// FormatQuality formats a 0-100 score.
func FormatQuality(score float64) string {
	return fmt.Sprintf("%.0f%%", score)
}
