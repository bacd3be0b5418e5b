// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// probeTimeout bounds one probe, including any vendor tool invocation.
const probeTimeout = 5 * time.Second

// ErrUnsupported is returned where no memory source exists for the platform.
var ErrUnsupported = errors.New("detect: memory probe not supported on this platform")

// =============================================================================
// PROBE INTERFACE
// =============================================================================

// MemoryProbe reports memory available for a model, in bytes.
type MemoryProbe interface {
	AvailableMemory(ctx context.Context) (uint64, error)
}

// ProbeFunc adapts a function to MemoryProbe.
type ProbeFunc func(ctx context.Context) (uint64, error)

// AvailableMemory implements MemoryProbe.
func (f ProbeFunc) AvailableMemory(ctx context.Context) (uint64, error) {
	return f(ctx)
}

// Fixed returns a probe that always reports n bytes.
func Fixed(n uint64) MemoryProbe {
	return ProbeFunc(func(context.Context) (uint64, error) { return n, nil })
}

// =============================================================================
// SOURCE
// =============================================================================

// Source identifies where a reading came from.
type Source string

const (
	SourceNvidia Source = "nvidia"
	SourceAMD    Source = "amd"
	SourceSystem Source = "system"
)

// Reading is one memory measurement.
type Reading struct {
	Source    Source
	Available uint64
	Total     uint64
}

// String formats the reading for display.
func (r Reading) String() string {
	return fmt.Sprintf("%s: %.1fMB available of %.1fMB", r.Source, mb(r.Available), mb(r.Total))
}

func mb(b uint64) float64 {
	return float64(b) / (1 << 20)
}

// =============================================================================
// SYSTEM PROBE
// =============================================================================

// SystemProbe prefers free GPU memory and falls back to system RAM.
type SystemProbe struct {
	// UseGPU enables the vendor tool queries.
	UseGPU bool

	// Overridable for tests.
	nvidia func(ctx context.Context) (Reading, error)
	amd    func(ctx context.Context) (Reading, error)
	system func(ctx context.Context) (Reading, error)
}

// NewSystemProbe creates a probe over the real machine.
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{
		UseGPU: true,
		nvidia: queryNvidia,
		amd:    queryAMD,
		system: querySystem,
	}
}

// AvailableMemory implements MemoryProbe.
func (p *SystemProbe) AvailableMemory(ctx context.Context) (uint64, error) {
	r, err := p.Read(ctx)
	if err != nil {
		return 0, err
	}
	return r.Available, nil
}

// Read returns the best available reading.
func (p *SystemProbe) Read(ctx context.Context) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if p.UseGPU {
		for _, q := range []func(context.Context) (Reading, error){p.nvidia, p.amd} {
			if q == nil {
				continue
			}
			if r, err := q(ctx); err == nil && r.Total > 0 {
				return r, nil
			}
			if ctx.Err() != nil {
				return Reading{}, ctx.Err()
			}
		}
	}

	if p.system == nil {
		return Reading{}, ErrUnsupported
	}
	r, err := p.system(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("system memory: %w", err)
	}
	return r, nil
}
