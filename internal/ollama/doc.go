// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama implements engine.Engine on top of a local Ollama server.
//
// Loading a model is a keep-alive request against /api/generate with an
// empty prompt; unloading sends keep_alive 0. Completions stream from
// /api/chat as newline-delimited JSON and are surfaced as engine chunks,
// with done_reason "length" mapped to engine.FinishReasonLength.
//
// # Key Types
//
//   - Client: HTTP client and engine.Engine implementation
//   - ClientError: categorized client error
//   - StreamReader: NDJSON line reader for /api/chat responses
//
// # Usage
//
//	client := ollama.NewClient()
//	if err := client.EnsureRunning(ctx); err != nil {
//	    return err
//	}
//	if err := client.Load(ctx, "", "llama3.2:3b"); err != nil {
//	    return err
//	}
//	stream, err := client.StreamCompletion(ctx, engine.CompletionRequest{
//	    Messages: []engine.Message{{Role: model.RoleUser, Content: "Hello"}},
//	})
package ollama
