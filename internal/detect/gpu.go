// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

var (
	errNoGPU = errors.New("detect: no gpu reported")

	// PERFORMANCE: compiled once
	amdNumericRegex = regexp.MustCompile(`\d+`)
)

// =============================================================================
// NVIDIA
// =============================================================================

// nvidiaSmiPaths returns possible paths for nvidia-smi based on OS.
func nvidiaSmiPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{
			"nvidia-smi",
			`C:\Windows\System32\nvidia-smi.exe`,
			`C:\Program Files\NVIDIA Corporation\NVSMI\nvidia-smi.exe`,
		}
	}
	return []string{"nvidia-smi"}
}

func queryNvidia(ctx context.Context) (Reading, error) {
	var output []byte
	var err error
	for _, path := range nvidiaSmiPaths() {
		cmd := exec.CommandContext(ctx, path,
			"--query-gpu=memory.total,memory.free",
			"--format=csv,noheader,nounits")
		output, err = cmd.Output()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return Reading{}, ctx.Err()
		}
	}
	if err != nil {
		return Reading{}, err
	}
	return parseNvidiaMemory(string(output))
}

// parseNvidiaMemory parses "total, free" MiB lines. Multi-GPU hosts report
// one line per device; the device with the most free memory wins since a
// model is placed on one device first.
func parseNvidiaMemory(output string) (Reading, error) {
	var best Reading
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) < 2 {
			continue
		}
		total, err1 := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		free, err2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if r := (Reading{Source: SourceNvidia, Total: total << 20, Available: free << 20}); r.Available >= best.Available {
			best = r
		}
	}
	if best.Total == 0 {
		return Reading{}, errNoGPU
	}
	return best, nil
}

// =============================================================================
// AMD
// =============================================================================

func queryAMD(ctx context.Context) (Reading, error) {
	if runtime.GOOS != "linux" {
		return Reading{}, ErrUnsupported
	}
	output, err := exec.CommandContext(ctx, "rocm-smi", "--showmeminfo", "vram").Output()
	if err != nil {
		return Reading{}, err
	}
	return parseRocmMemory(string(output))
}

// parseRocmMemory reads the "Total Memory" and "Total Used Memory" lines of
// rocm-smi. Values may be bytes, KB or MB depending on the ROCm version.
func parseRocmMemory(output string) (Reading, error) {
	var total, used uint64
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "total") {
			continue
		}
		v := lastNumber(line)
		if v == 0 {
			continue
		}
		if strings.Contains(lower, "used") {
			used = toBytes(v)
		} else {
			total = toBytes(v)
		}
	}
	if total == 0 {
		return Reading{}, errNoGPU
	}
	if used > total {
		used = total
	}
	return Reading{Source: SourceAMD, Total: total, Available: total - used}, nil
}

func lastNumber(line string) uint64 {
	matches := amdNumericRegex.FindAllString(line, -1)
	if len(matches) == 0 {
		return 0
	}
	v, err := strconv.ParseUint(matches[len(matches)-1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func toBytes(v uint64) uint64 {
	switch {
	case v > 1_000_000_000:
		return v
	case v > 1_000_000:
		return v << 10
	default:
		return v << 20
	}
}
