// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"regexp"
	"strconv"
	"strings"
)

// PERFORMANCE: compiled once
var paramCountRegex = regexp.MustCompile(`(?:^|[:\-_ ])(\d+(?:\.\d+)?)b(?:$|[\-_ .])`)

// Estimate VRAM for a Q4_K_M quantized model: roughly 4.5 bits per
// parameter plus KV cache and runtime context.
const (
	bytesPerParam = 0.56
	overheadBytes = 1536 << 20
)

// ParamCount extracts the parameter count in billions from a model
// reference such as "qwen2.5-coder:14b" or "llama-3.2-3b-instruct".
// It returns 0 when the name carries no size.
func ParamCount(ref string) float64 {
	m := paramCountRegex.FindStringSubmatch(strings.ToLower(ref))
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// EstimateVRAM returns the bytes a model is expected to need, or 0 when
// the size cannot be inferred from its name.
func EstimateVRAM(ref string) uint64 {
	billions := ParamCount(ref)
	if billions == 0 {
		return 0
	}
	return uint64(billions*1e9*bytesPerParam) + overheadBytes
}
