// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/focusai/internal/model"
	"github.com/jeranaias/focusai/internal/util"
)

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList renders sessions as a plain table.
func FormatSessionList(sessions []SessionMeta) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 72) + "\n"
	sb.WriteString("Sessions:\n")
	sb.WriteString(rule)
	sb.WriteString(util.PadRight("ID", 10) + " " + util.PadRight("Updated", 17) + " " +
		util.PadRight("Turns", 5) + " " + util.PadRight("Model", 14) + " Summary\n")
	sb.WriteString(rule)

	for _, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		sb.WriteString(util.PadRight(id, 10) + " " +
			util.PadRight(s.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadRight(strconv.Itoa(s.TurnCount), 5) + " " +
			util.PadRight(util.Truncate(s.Model, 14), 14) + " " +
			util.Truncate(s.Summary, 30) + "\n")
	}
	return sb.String()
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the transcript as Markdown.
func (t *Transcript) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# Session " + t.ID + "\n\n")
	sb.WriteString("Model: " + t.Model + "  \n")
	sb.WriteString("Created: " + t.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, turn := range t.Turns {
		at := turn.CommittedAt.Format("15:04")
		sb.WriteString("**" + model.RoleUser.DisplayName() + "** (" + at + "):\n\n")
		if turn.HasImage {
			sb.WriteString("_[image attached]_\n\n")
		}
		sb.WriteString(turn.User)
		sb.WriteString("\n\n**" + model.RoleAssistant.DisplayName() + "**")
		if turn.Model != t.Model {
			sb.WriteString(" (" + turn.Model + ")")
		}
		sb.WriteString(":\n\n")
		sb.WriteString(turn.Assistant)
		if turn.Truncated {
			sb.WriteString("\n\n_[truncated]_")
		}
		if turn.CompletionTokens > 0 {
			fmt.Fprintf(&sb, "\n\n<sub>%d tokens, %dms</sub>", turn.CompletionTokens, turn.DurationMs)
		}
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// ExportJSON renders the transcript as indented JSON.
func (t *Transcript) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Preview returns the first prompt of the transcript, shortened.
func (t *Transcript) Preview() string {
	for _, turn := range t.Turns {
		if turn.User != "" {
			return util.Summary(turn.User, 80)
		}
	}
	return ""
}
