// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openaicompat implements engine.Engine for local servers that
// speak the OpenAI chat completions API (llama.cpp server, LM Studio,
// vLLM).
//
// These servers load models on their own, so Load only records the model
// name; the warm-up request that follows a reload surfaces a bad name.
// Streams use server-sent events with usage reporting enabled. The API
// reports token counts but not timings, so prefill and decode durations
// are measured client-side around the first content delta.
//
// Usage:
//
//	eng := openaicompat.New(openaicompat.Config{BaseURL: "http://127.0.0.1:8080/v1"})
//	if err := eng.Load(ctx, "", "qwen2.5-7b-instruct"); err != nil {
//		return err
//	}
//	stream, err := eng.StreamCompletion(ctx, req)
package openaicompat
