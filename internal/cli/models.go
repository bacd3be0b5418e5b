// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model listing with a memory fit check.
//
// Command: models
//
// Lists the models from the config file, then the models installed in
// Ollama that are not configured. Each row shows whether the estimated
// requirement fits the memory available right now.

package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jeranaias/focusai/internal/detect"
	"github.com/jeranaias/focusai/internal/model"
	"github.com/jeranaias/focusai/internal/util"
)

// fitTightRatio marks a model as tight when it needs more than this
// share of the available memory.
const fitTightRatio = 0.85

// modelRow is one line of the listing and one element of --json output.
type modelRow struct {
	ID            string  `json:"id"`
	Ref           string  `json:"ref"`
	Name          string  `json:"name"`
	Configured    bool    `json:"configured"`
	Installed     bool    `json:"installed"`
	Vision        bool    `json:"vision,omitempty"`
	EstimatedMB   float64 `json:"estimated_mb,omitempty"`
	Quantization  string  `json:"quantization,omitempty"`
	ParameterSize string  `json:"parameter_size,omitempty"`
	Fit           string  `json:"fit"`
}

func runModels(ctx context.Context, a *app, args Args, out io.Writer) error {
	reading, probeErr := a.probe.Read(ctx)
	if probeErr != nil {
		a.logger.Warn("memory probe failed", "error", probeErr)
	}

	rows := make(map[string]*modelRow)
	for _, id := range a.catalog.List() {
		rows[id.BackendRef()] = configuredRow(id)
	}

	if a.client == nil {
		a.logger.Debug("installed models not listed", "backend", a.cfg.Engine.Backend)
	} else if err := a.ensureBackend(ctx); err != nil {
		a.logger.Warn("installed models unavailable", "error", err)
	} else {
		installed, err := a.client.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, m := range installed {
			row, ok := rows[m.Name]
			if !ok {
				row = &modelRow{
					ID:          m.Name,
					Ref:         m.Name,
					Name:        m.Name,
					EstimatedMB: mb(detect.EstimateVRAM(m.Name)),
				}
				rows[m.Name] = row
			}
			row.Installed = true
			row.Quantization = m.Details.QuantizationLevel
			row.ParameterSize = m.Details.ParameterSize
		}
	}

	list := make([]modelRow, 0, len(rows))
	for _, row := range rows {
		row.Fit = fitLabel(row.EstimatedMB, reading, probeErr)
		list = append(list, *row)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Configured != list[j].Configured {
			return list[i].Configured
		}
		return list[i].ID < list[j].ID
	})

	if args.JSON {
		return writeJSON(out, list)
	}
	return printModels(out, list, reading, probeErr)
}

func configuredRow(id model.Identity) *modelRow {
	est := id.EstimatedVRAM
	if est == 0 {
		est = detect.EstimateVRAM(id.BackendRef())
	}
	return &modelRow{
		ID:          id.ID,
		Ref:         id.BackendRef(),
		Name:        id.Name(),
		Configured:  true,
		Vision:      id.Vision,
		EstimatedMB: mb(est),
	}
}

// fitLabel compares an estimate with the available memory.
func fitLabel(estimatedMB float64, r detect.Reading, probeErr error) string {
	switch {
	case probeErr != nil:
		return "unknown"
	case estimatedMB == 0:
		return "unknown"
	case estimatedMB > mb(r.Available):
		return "fail"
	case estimatedMB > mb(r.Available)*fitTightRatio:
		return "tight"
	default:
		return "fits"
	}
}

func printModels(w io.Writer, rows []modelRow, r detect.Reading, probeErr error) error {
	fmt.Fprintln(w, TitleStyle.Render("Models"))
	if probeErr == nil {
		fmt.Fprintf(w, "%s %s\n\n", RenderLabel("Available memory:"), r.String())
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No models configured or installed."))
		return nil
	}

	for _, row := range rows {
		source := "installed"
		switch {
		case row.Configured && row.Installed:
			source = "configured"
		case row.Configured:
			source = "not pulled"
		}
		size := "?"
		if row.EstimatedMB > 0 {
			size = fmt.Sprintf("%.0fMB", row.EstimatedMB)
		}
		vision := ""
		if row.Vision {
			vision = " vision"
		}
		fmt.Fprintf(w, "%s %s %s %s %s%s\n",
			RenderStatus(row.Fit),
			util.PadRight(util.Truncate(row.ID, 28), 28),
			util.PadRight(size, 9),
			DimStyle.Render(util.PadRight(source, 11)),
			DimStyle.Render(row.Ref),
			vision)
	}
	return nil
}

func mb(b uint64) float64 {
	return float64(b) / (1 << 20)
}
