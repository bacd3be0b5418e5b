// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/focusai/internal/model"
	"github.com/jeranaias/focusai/internal/storage"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter renders a transcript as a self-contained HTML page.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates an HTML exporter. nil options use the defaults.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export implements Exporter.
func (e *HTMLExporter) Export(tr *storage.Transcript) ([]byte, error) {
	if err := validate(tr); err != nil {
		return nil, err
	}

	title := tr.Summary
	if title == "" {
		title = tr.Preview()
	}
	if title == "" {
		title = "Session " + tr.ID
	}
	theme := "dark"
	if e.options.Theme == "light" {
		theme = "light"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("<meta name=\"generator\" content=\"focusai\">\n")
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s\">\n<div class=\"container\">\n", theme)

	fmt.Fprintf(&sb, "<header>\n<h1>%s</h1>\n", html.EscapeString(title))
	if e.options.IncludeMetadata {
		sb.WriteString("<div class=\"meta\">")
		fmt.Fprintf(&sb, "<span><strong>Model:</strong> %s</span> ", html.EscapeString(tr.Model))
		fmt.Fprintf(&sb, "<span><strong>Created:</strong> %s</span> ", tr.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "<span><strong>Turns:</strong> %d</span>", len(tr.Turns))
		sb.WriteString("</div>\n")
	}
	sb.WriteString("</header>\n<main>\n")

	for i := range tr.Turns {
		e.renderTurn(&sb, tr, &tr.Turns[i])
	}

	sb.WriteString("</main>\n</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType implements Exporter.
func (e *HTMLExporter) MimeType() string { return "text/html" }

func (e *HTMLExporter) renderTurn(sb *strings.Builder, tr *storage.Transcript, turn *storage.StoredTurn) {
	at := turn.CommittedAt.Format("15:04")

	sb.WriteString("<section class=\"msg user\">\n")
	fmt.Fprintf(sb, "<div class=\"role\">%s <span class=\"time\">%s</span></div>\n", model.RoleUser.DisplayName(), at)
	if turn.HasImage {
		sb.WriteString("<div class=\"note\">[image attached]</div>\n")
	}
	sb.WriteString(e.formatContent(turn.User))
	sb.WriteString("</section>\n")

	sb.WriteString("<section class=\"msg assistant\">\n")
	sb.WriteString("<div class=\"role\">" + model.RoleAssistant.DisplayName())
	if turn.Model != "" && turn.Model != tr.Model {
		fmt.Fprintf(sb, " <span class=\"time\">(%s)</span>", html.EscapeString(turn.Model))
	}
	sb.WriteString("</div>\n")
	sb.WriteString(e.formatContent(turn.Assistant))
	if turn.Truncated {
		sb.WriteString("<div class=\"note\">[truncated]</div>\n")
	}
	if e.options.IncludeStats && turn.CompletionTokens > 0 {
		fmt.Fprintf(sb, "<div class=\"stats\">%d tokens, %dms</div>\n", turn.CompletionTokens, turn.DurationMs)
	}
	sb.WriteString("</section>\n")
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

var inlineCode = regexp.MustCompile("`([^`\n]+)`")

// formatContent escapes text and turns fenced code into <pre> blocks,
// highlighted when the fence names a language. Other text is grouped into
// paragraphs on blank lines.
func (e *HTMLExporter) formatContent(content string) string {
	var sb strings.Builder
	var para []string
	var code []string
	inFence := false
	lang := ""

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		text := html.EscapeString(strings.Join(para, "\n"))
		text = inlineCode.ReplaceAllString(text, "<code>$1</code>")
		sb.WriteString("<p>" + strings.ReplaceAll(text, "\n", "<br>\n") + "</p>\n")
		para = para[:0]
	}
	flushCode := func() {
		text := strings.Join(code, "\n")
		if lang != "" {
			if out, err := highlightCode(lang, text, e.options.Theme); err == nil {
				fmt.Fprintf(&sb, "<div class=\"code\" data-lang=\"%s\">%s</div>\n", html.EscapeString(lang), out)
				code = code[:0]
				return
			}
		}
		fmt.Fprintf(&sb, "<pre><code>%s</code></pre>\n", html.EscapeString(text))
		code = code[:0]
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				flushCode()
				inFence = false
			} else {
				flushPara()
				inFence = true
				lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			}
			continue
		}
		switch {
		case inFence:
			code = append(code, line)
		case trimmed == "":
			flushPara()
		default:
			para = append(para, line)
		}
	}
	if inFence {
		// Unterminated fence, common in truncated replies.
		flushCode()
	}
	flushPara()
	return sb.String()
}

// highlightCode renders code as HTML with inline styles. Languages chroma
// does not know are an error so the caller can fall back to plain text.
func highlightCode(lang, code, theme string) (string, error) {
	lexer := lexers.Get(lang)
	if lexer == nil {
		return "", fmt.Errorf("no lexer for %q", lang)
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if theme == "light" {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(false)).Format(&buf, style, iterator); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const css = `<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; line-height: 1.5; }
body.dark { background: #1e1e2e; color: #cdd6f4; }
body.light { background: #fafafa; color: #1e1e2e; }
.container { max-width: 860px; margin: 0 auto; padding: 24px; }
header { border-bottom: 1px solid #585b70; margin-bottom: 16px; }
.meta span { margin-right: 16px; font-size: 0.9em; }
.msg { border-radius: 8px; padding: 12px 16px; margin: 12px 0; }
.dark .user { background: #313244; }
.dark .assistant { background: #181825; }
.light .user { background: #e6e9ef; }
.light .assistant { background: #ffffff; border: 1px solid #dce0e8; }
.role { font-weight: bold; margin-bottom: 4px; }
.time, .stats, .note { font-size: 0.8em; opacity: 0.7; font-weight: normal; }
pre { padding: 12px; border-radius: 6px; overflow-x: auto; background: #11111b; color: #cdd6f4; }
code { font-family: "JetBrains Mono", Consolas, monospace; }
</style>
`
