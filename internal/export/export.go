// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/focusai/internal/storage"
)

// ErrUnknownFormat is returned by ForFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown export format")

// Exporter converts a transcript to one output format.
type Exporter interface {
	// Export renders the transcript.
	Export(tr *storage.Transcript) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the rendered output.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the model, creation time and turn count.
	IncludeMetadata bool

	// IncludeStats adds per-turn token counts and timings.
	IncludeStats bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata: true,
		IncludeStats:    true,
		Theme:           "dark",
	}
}

// Formats lists the names ForFormat accepts.
func Formats() []string {
	return []string{"md", "json", "html"}
}

// ForFormat returns the exporter for a format name.
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "md", "markdown":
		return MarkdownExporter{}, nil
	case "json":
		return JSONExporter{}, nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w %q (use %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
}

// Filename suggests a file name for an exported transcript.
func Filename(tr *storage.Transcript, exp Exporter) string {
	id := tr.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := "session_" + id
	if s := sanitizeFilename(tr.Summary); s != "" {
		name += "_" + s
	}
	return name + "_" + tr.CreatedAt.Format("20060102_150405") + exp.FileExtension()
}

func validate(tr *storage.Transcript) error {
	if tr == nil {
		return errors.New("transcript is nil")
	}
	if tr.CreatedAt.IsZero() {
		return errors.New("transcript has no creation timestamp")
	}
	return nil
}

// sanitizeFilename keeps letters, digits, dashes and underscores.
func sanitizeFilename(s string) string {
	const maxLen = 40
	var sb strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		if sb.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
			lastDash = false
		case !lastDash && sb.Len() > 0:
			sb.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(sb.String(), "-")
}

// =============================================================================
// MARKDOWN AND JSON
// =============================================================================

// MarkdownExporter renders the transcript as Markdown.
type MarkdownExporter struct{}

// Export implements Exporter.
func (MarkdownExporter) Export(tr *storage.Transcript) ([]byte, error) {
	if err := validate(tr); err != nil {
		return nil, err
	}
	return []byte(tr.ExportMarkdown()), nil
}

// FileExtension implements Exporter.
func (MarkdownExporter) FileExtension() string { return ".md" }

// MimeType implements Exporter.
func (MarkdownExporter) MimeType() string { return "text/markdown" }

// JSONExporter renders the transcript as indented JSON.
type JSONExporter struct{}

// Export implements Exporter.
func (JSONExporter) Export(tr *storage.Transcript) ([]byte, error) {
	if err := validate(tr); err != nil {
		return nil, err
	}
	return tr.ExportJSON()
}

// FileExtension implements Exporter.
func (JSONExporter) FileExtension() string { return ".json" }

// MimeType implements Exporter.
func (JSONExporter) MimeType() string { return "application/json" }
