// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build darwin

package detect

import (
	"context"

	"golang.org/x/sys/unix"
)

// querySystem reports half of physical memory as available. Unified memory
// is shared with the GPU and macOS does not expose a reliable free figure.
func querySystem(ctx context.Context) (Reading, error) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return Reading{}, err
	}
	return Reading{Source: SourceSystem, Total: total, Available: total / 2}, nil
}
