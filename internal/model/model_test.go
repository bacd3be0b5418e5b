// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage_AssignsUniqueIDs(t *testing.T) {
	a := NewUserMessage("hi")
	b := NewUserMessage("hi")
	if a.ID == "" || b.ID == "" {
		t.Fatal("NewUserMessage() produced empty ID")
	}
	if a.ID == b.ID {
		t.Errorf("IDs should differ, both = %q", a.ID)
	}
	if a.Role != RoleUser {
		t.Errorf("Role = %v, want %v", a.Role, RoleUser)
	}
}

func TestMessage_WithContentKeepsIdentity(t *testing.T) {
	placeholder := NewAssistantMessage()
	if !placeholder.IsEmpty() {
		t.Fatal("placeholder should be empty")
	}

	replaced := placeholder.WithContent("Hello")
	if replaced.ID != placeholder.ID {
		t.Errorf("ID changed: %q -> %q", placeholder.ID, replaced.ID)
	}
	if !replaced.Timestamp.Equal(placeholder.Timestamp) {
		t.Error("Timestamp should be preserved")
	}
	if placeholder.Content != "" {
		t.Error("WithContent must not modify the receiver")
	}
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		content string
		max     int
		want    string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer message body", 10, "a longe..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 2, "ab"},
	}

	for _, tc := range tests {
		m := Message{Content: tc.content}
		if got := m.Preview(tc.max); got != tc.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tc.content, tc.max, got, tc.want)
		}
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("RoleUser.DisplayName() = %q", RoleUser.DisplayName())
	}
	if Role("custom").DisplayName() != "custom" {
		t.Error("unknown roles should display as-is")
	}
}

// =============================================================================
// STATISTICS TESTS
// =============================================================================

func TestStatistics_Finalize(t *testing.T) {
	s := &Statistics{StartTime: time.Now().Add(-2 * time.Second)}
	s.RecordFirstToken()
	first := s.FirstTokenTime
	s.RecordFirstToken()
	if !s.FirstTokenTime.Equal(first) {
		t.Error("RecordFirstToken should only record once")
	}

	s.Finalize(12, 100)
	if s.CompletionTokens != 100 || s.PromptTokens != 12 {
		t.Errorf("tokens = %d/%d, want 12/100", s.PromptTokens, s.CompletionTokens)
	}
	if s.TokensPerSecond <= 0 || s.TokensPerSecond > 100 {
		t.Errorf("TokensPerSecond = %v, want (0, 100]", s.TokensPerSecond)
	}
	if !strings.Contains(s.Format(), "100 tokens") {
		t.Errorf("Format() = %q, want token count", s.Format())
	}
}

// =============================================================================
// IDENTITY / CATALOG TESTS
// =============================================================================

func TestIdentity_BackendRef(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want string
	}{
		{"lib wins", Identity{ID: "a", Lib: "llama3.2:3b", Path: "/m/x"}, "llama3.2:3b"},
		{"path base", Identity{ID: "a", Path: "/models/phi3/"}, "phi3"},
		{"id fallback", Identity{ID: "mistral"}, "mistral"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.id.BackendRef(); got != tc.want {
				t.Errorf("BackendRef() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIdentity_Validate(t *testing.T) {
	if err := (Identity{}).Validate(); err == nil {
		t.Error("empty identity should not validate")
	}
	if err := (Identity{ID: "x", Lib: "x:1b"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if !(Identity{}).IsZero() {
		t.Error("zero identity should report IsZero")
	}
}

func TestIdentity_EstimatedVRAMMB(t *testing.T) {
	id := Identity{EstimatedVRAM: 3 << 30}
	if got := id.EstimatedVRAMMB(); got != 3072 {
		t.Errorf("EstimatedVRAMMB() = %v, want 3072", got)
	}
}

func TestCatalog_LookupAndList(t *testing.T) {
	cat := NewCatalog(
		Identity{ID: "phi3", Lib: "phi3:mini"},
		Identity{ID: "llama", Lib: "llama3.2:3b"},
		Identity{ID: "phi3", Lib: "phi3:medium"},
	)

	if cat.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cat.Len())
	}
	m, ok := cat.Lookup("phi3")
	if !ok || m.Lib != "phi3:medium" {
		t.Errorf("Lookup(phi3) = %+v, %v; want later entry", m, ok)
	}

	list := cat.List()
	if list[0].ID != "llama" || list[1].ID != "phi3" {
		t.Errorf("List() not sorted: %v", list)
	}

	if _, err := cat.Get("nope"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Get(nope) err = %v, want ErrUnknownModel", err)
	}

	var nilCat *Catalog
	if _, ok := nilCat.Lookup("x"); ok || nilCat.Len() != 0 {
		t.Error("nil catalog should be empty")
	}
}
