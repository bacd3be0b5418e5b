// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detect reports how much memory is free for loading a model.
//
// The session asks a MemoryProbe for available bytes before every reload
// and refuses to load when the model's estimate does not fit.
//
// Sources, in order of preference:
//   - NVIDIA free VRAM (via nvidia-smi)
//   - AMD free VRAM (via rocm-smi on Linux)
//   - Available system RAM (MemAvailable, sysinfo(2) or hw.memsize)
//
// # Usage
//
//	probe := detect.NewSystemProbe()
//	avail, err := probe.AvailableMemory(ctx)
package detect
