// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestParseNvidiaMemory(t *testing.T) {
	r, err := parseNvidiaMemory("24564, 20123\n8192, 1024\n")
	require.NoError(t, err)
	require.Equal(t, SourceNvidia, r.Source)
	require.Equal(t, uint64(24564)<<20, r.Total)
	require.Equal(t, uint64(20123)<<20, r.Available)

	_, err = parseNvidiaMemory("")
	require.ErrorIs(t, err, errNoGPU)

	_, err = parseNvidiaMemory("N/A, N/A")
	require.ErrorIs(t, err, errNoGPU)
}

func TestParseRocmMemory(t *testing.T) {
	out := `
========================= ROCm System Management Interface =========================
GPU[0]		: VRAM Total Memory (B): 17163091968
GPU[0]		: VRAM Total Used Memory (B): 1073741824
====================================================================================
`
	r, err := parseRocmMemory(out)
	require.NoError(t, err)
	require.Equal(t, SourceAMD, r.Source)
	require.Equal(t, uint64(17163091968), r.Total)
	require.Equal(t, uint64(17163091968-1073741824), r.Available)

	_, err = parseRocmMemory("nothing here")
	require.ErrorIs(t, err, errNoGPU)
}

// =============================================================================
// PROBE TESTS
// =============================================================================

func TestSystemProbe_PrefersGPU(t *testing.T) {
	p := &SystemProbe{
		UseGPU: true,
		nvidia: func(context.Context) (Reading, error) {
			return Reading{Source: SourceNvidia, Total: 8 << 30, Available: 6 << 30}, nil
		},
		system: func(context.Context) (Reading, error) {
			return Reading{Source: SourceSystem, Total: 32 << 30, Available: 20 << 30}, nil
		},
	}

	avail, err := p.AvailableMemory(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(6<<30), avail)

	p.UseGPU = false
	avail, err = p.AvailableMemory(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(20<<30), avail)
}

func TestSystemProbe_FallsBackToSystem(t *testing.T) {
	noGPU := func(context.Context) (Reading, error) { return Reading{}, errNoGPU }
	p := &SystemProbe{
		UseGPU: true,
		nvidia: noGPU,
		amd:    noGPU,
		system: func(context.Context) (Reading, error) {
			return Reading{Source: SourceSystem, Total: 16 << 30, Available: 4 << 30}, nil
		},
	}

	r, err := p.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, SourceSystem, r.Source)
	require.Contains(t, r.String(), "4096.0MB available")
}

func TestSystemProbe_SystemError(t *testing.T) {
	boom := errors.New("boom")
	p := &SystemProbe{system: func(context.Context) (Reading, error) { return Reading{}, boom }}

	_, err := p.AvailableMemory(context.Background())
	require.ErrorIs(t, err, boom)

	_, err = (&SystemProbe{}).AvailableMemory(context.Background())
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestFixed(t *testing.T) {
	n, err := Fixed(42).AvailableMemory(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)
}

// =============================================================================
// ESTIMATE TESTS
// =============================================================================

func TestParamCount(t *testing.T) {
	tests := []struct {
		ref  string
		want float64
	}{
		{"qwen2.5-coder:14b", 14},
		{"llama3.2:3b", 3},
		{"tinyllama:1.1b", 1.1},
		{"Llama-3.2-3B-Instruct", 3},
		{"mistral", 0},
		{"phi3:mini", 0},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, ParamCount(tc.ref), tc.ref)
	}
}

func TestEstimateVRAM(t *testing.T) {
	require.Zero(t, EstimateVRAM("mistral"))

	small := EstimateVRAM("llama3.2:3b")
	large := EstimateVRAM("qwen2.5:14b")
	require.Greater(t, small, uint64(overheadBytes))
	require.Greater(t, large, small)
}
