// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/focusai/internal/chat"
	"github.com/jeranaias/focusai/internal/util"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// summaryWidth bounds the session summary taken from its first prompt.
const summaryWidth = 60

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound is returned when no transcript has the requested ID.
// Use errors.Is(err, ErrSessionNotFound) to check for this error.
var ErrSessionNotFound = &TranscriptError{Message: "session not found"}

// TranscriptError is a storage-level error that compares by message.
type TranscriptError struct {
	Message string
}

// Error implements the error interface.
func (e *TranscriptError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing transcript errors.
func (e *TranscriptError) Is(target error) bool {
	t, ok := target.(*TranscriptError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// TYPES
// =============================================================================

// SessionMeta describes one stored transcript.
type SessionMeta struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}

// StoredTurn is one committed exchange.
type StoredTurn struct {
	ID               int64     `json:"id"`
	Model            string    `json:"model"`
	User             string    `json:"user"`
	Assistant        string    `json:"assistant"`
	Truncated        bool      `json:"truncated,omitempty"`
	HasImage         bool      `json:"has_image,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	TTFTMs           int64     `json:"ttft_ms,omitempty"`
	DurationMs       int64     `json:"duration_ms,omitempty"`
	CommittedAt      time.Time `json:"committed_at"`
}

// Transcript is a session with all of its turns, oldest first.
type Transcript struct {
	SessionMeta
	Turns []StoredTurn `json:"turns"`
}

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed transcript store. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("storage: empty database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, initMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// RecordTurn appends t to its session's transcript, creating the session
// on its first turn.
func (s *Store) RecordTurn(ctx context.Context, t chat.Turn) error {
	if t.Session == "" {
		return errors.New("storage: turn has no session id")
	}
	committed := t.Committed
	if committed.IsZero() {
		committed = time.Now()
	}
	at := committed.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, model, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET model = excluded.model, updated_at = excluded.updated_at`,
		t.Session, t.Model, util.Summary(t.User, summaryWidth), at, at)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	var prompt, completion int
	if t.Usage != nil {
		prompt, completion = t.Usage.PromptTokens, t.Usage.CompletionTokens
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, model, user_text, assistant_text, truncated, has_image,
			prompt_tokens, completion_tokens, ttft_ms, duration_ms, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Session, t.Model, t.User, t.Assistant, t.Truncated, t.HasImage,
		prompt, completion, t.TTFT.Milliseconds(), t.Duration.Milliseconds(), at)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

// Delete removes a transcript.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Clear removes every transcript.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

const metaQuery = `
	SELECT s.id, s.model, s.summary, s.created_at, s.updated_at, COUNT(t.id)
	FROM sessions s LEFT JOIN turns t ON t.session_id = s.id`

// List returns the most recently updated transcripts first. A limit of
// zero or less returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]SessionMeta, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, metaQuery+`
		GROUP BY s.id ORDER BY s.updated_at DESC, s.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return scanMetas(rows)
}

// Search returns transcripts with a prompt or answer containing query,
// case-insensitively, most recent first.
func (s *Store) Search(ctx context.Context, query string) ([]SessionMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, 0)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, metaQuery+`
		WHERE s.id IN (
			SELECT session_id FROM turns
			WHERE lower(user_text) LIKE ? ESCAPE '\' OR lower(assistant_text) LIKE ? ESCAPE '\'
		)
		GROUP BY s.id ORDER BY s.updated_at DESC, s.rowid DESC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	return scanMetas(rows)
}

// Load returns the transcript with the given ID. A unique ID prefix of
// at least four characters is also accepted.
func (s *Store) Load(ctx context.Context, id string) (*Transcript, error) {
	meta, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, user_text, assistant_text, truncated, has_image,
			prompt_tokens, completion_tokens, ttft_ms, duration_ms, committed_at
		FROM turns WHERE session_id = ? ORDER BY id`, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	tr := &Transcript{SessionMeta: meta}
	for rows.Next() {
		var t StoredTurn
		var committed int64
		if err := rows.Scan(&t.ID, &t.Model, &t.User, &t.Assistant, &t.Truncated, &t.HasImage,
			&t.PromptTokens, &t.CompletionTokens, &t.TTFTMs, &t.DurationMs, &committed); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CommittedAt = time.UnixMilli(committed)
		tr.Turns = append(tr.Turns, t)
	}
	return tr, rows.Err()
}

func (s *Store) lookup(ctx context.Context, id string) (SessionMeta, error) {
	if id == "" {
		return SessionMeta{}, ErrSessionNotFound
	}
	rows, err := s.db.QueryContext(ctx, metaQuery+`
		WHERE s.id = ? OR (length(?) >= 4 AND s.id LIKE ? ESCAPE '\')
		GROUP BY s.id ORDER BY s.id = ? DESC LIMIT 2`, id, id, escapeLike(id)+"%", id)
	if err != nil {
		return SessionMeta{}, fmt.Errorf("lookup session: %w", err)
	}
	metas, err := scanMetas(rows)
	if err != nil {
		return SessionMeta{}, err
	}
	switch {
	case len(metas) == 0:
		return SessionMeta{}, ErrSessionNotFound
	case metas[0].ID == id || len(metas) == 1:
		return metas[0], nil
	}
	return SessionMeta{}, &TranscriptError{Message: fmt.Sprintf("session id prefix %q is ambiguous", id)}
}

func scanMetas(rows *sql.Rows) ([]SessionMeta, error) {
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var m SessionMeta
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.Model, &m.Summary, &created, &updated, &m.TurnCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		m.UpdatedAt = time.UnixMilli(updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
