// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for focusai.
//
// # Key Types
//
//   - Command: Enumeration of the CLI commands
//   - Args: Parsed global flags plus the command's own ArgParser
//   - ArgParser: Uniform flag and positional argument parsing
//
// # Usage
//
//	args, err := cli.Parse(os.Args[1:])
//	if err != nil {
//	    // print usage
//	}
//	err = cli.Run(ctx, args, os.Stdout, os.Stderr)
//
// # Commands Overview
//
//   - chat: Interactive session over a chat.Session (default)
//   - ask: One prompt, one answer
//   - models: Configured and installed models with a memory fit check
//   - probe: Memory available for model loading
//   - history: Stored transcripts (list, show, search, export, delete, clear)
//   - config: Configuration file (show, path, init, validate)
//
// Commands that print data accept --json.
package cli
