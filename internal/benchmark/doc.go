// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package benchmark measures how fast local models answer study prompts.
//
// A Runner loads each model through an engine.Engine, streams a small
// suite of prompts and records time to first token, prefill and decode
// rates, and a rough quality score per prompt. Models whose memory
// estimate exceeds what the probe reports are skipped rather than loaded.
//
// Usage:
//
//	r := benchmark.NewRunner(eng, probe)
//	res, err := r.Run(ctx, id, benchmark.QuickSuite())
//	fmt.Print(res.Summary())
package benchmark
