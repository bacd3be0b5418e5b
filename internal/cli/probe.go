// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// probe.go - Memory probe command.
//
// Command: probe
//
// Shows the memory reading a reload checks a model's estimate against,
// and whether the Ollama server answers.

package cli

import (
	"context"
	"fmt"
	"io"
)

type probeResult struct {
	Source      string  `json:"source"`
	AvailableMB float64 `json:"available_mb"`
	TotalMB     float64 `json:"total_mb"`
	GPUProbe    bool    `json:"gpu_probe"`
	Backend     string  `json:"backend"`
	Network     string  `json:"network"`
	BackendUp   bool    `json:"backend_up"`
	BackendErr  string  `json:"backend_error,omitempty"`
}

func runProbe(ctx context.Context, a *app, args Args, out io.Writer) error {
	reading, err := a.probe.Read(ctx)
	if err != nil {
		return fmt.Errorf("memory probe: %w", err)
	}

	res := probeResult{
		Source:      string(reading.Source),
		AvailableMB: mb(reading.Available),
		TotalMB:     mb(reading.Total),
		GPUProbe:    a.probe.UseGPU,
		Backend:     a.cfg.Engine.Backend + " " + a.cfg.Engine.URL,
		Network:     a.cfg.Engine.Policy().String(),
		BackendUp:   true,
	}
	if a.client != nil {
		if err := a.client.CheckRunning(ctx); err != nil {
			res.BackendUp = false
			res.BackendErr = err.Error()
		}
	}

	if args.JSON {
		return writeJSON(out, res)
	}

	fmt.Fprintln(out, TitleStyle.Render("Resource Probe"))
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Source:"), ValueStyle.Render(res.Source))
	fmt.Fprintf(out, "%s %.1fMB\n", RenderLabel("Available:"), res.AvailableMB)
	fmt.Fprintf(out, "%s %.1fMB\n", RenderLabel("Total:"), res.TotalMB)
	fmt.Fprintf(out, "%s %t\n", RenderLabel("GPU probe:"), res.GPUProbe)
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Network:"), res.Network)
	status := "ok"
	if !res.BackendUp {
		status = "fail"
	}
	fmt.Fprintf(out, "%s %s %s\n", RenderLabel("Backend:"), RenderStatus(status), res.Backend)
	if res.BackendErr != "" {
		fmt.Fprintln(out, DimStyle.Render("  "+res.BackendErr))
	}
	return nil
}
