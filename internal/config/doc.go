// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves focusai configuration.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: the whole file
//   - EngineConfig: how to reach the inference backend
//   - GenerationConfig: sampling parameters applied to every turn
//   - SessionConfig: chat session behaviour
//   - Watcher: reloads the file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (FOCUSAI_*)
//   - ~/.focusai/config.toml (or the path given with --config)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	catalog := cfg.Catalog()
package config
