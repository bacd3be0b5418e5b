// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders stored transcripts as Markdown, JSON or a
// standalone HTML page.
//
// Usage:
//
//	exp, err := export.ForFormat("html", nil)
//	if err != nil {
//		return err
//	}
//	data, err := exp.Export(tr)
//	name := export.Filename(tr, exp)
package export
