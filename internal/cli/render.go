// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown rendering for answers and transcripts.

package cli

import (
	"io"
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	markdownOnce     sync.Once
	markdownRenderer *glamour.TermRenderer
)

// renderMarkdown renders content for the terminal. It falls back to word
// wrapping when the renderer cannot be built or fails.
func renderMarkdown(content string) string {
	markdownOnce.Do(func() {
		width := GetTerminalWidth() - 4
		if width > 100 {
			width = 100
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return WrapText(content, 0)
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return WrapText(content, 0)
	}
	return rendered
}

// displayMarkdown writes content, rendered only when stdout is a terminal
// so piped output stays plain.
func displayMarkdown(w io.Writer, content string) {
	if ColorsEnabled() {
		io.WriteString(w, renderMarkdown(content))
		return
	}
	io.WriteString(w, content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		io.WriteString(w, "\n")
	}
}
