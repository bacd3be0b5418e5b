// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the config, storage and CLI
// packages: crash-safe file writes and width-aware text shortening for
// terminal tables.
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	row := util.PadRight(util.Truncate(title, 30), 30)
package util
