// Package store persists drafts and the investigator profile in a local
// SQLite database. Drafts are keyed by form type with a seven-day TTL,
// enforced lazily at read time; the profile is a single row with no TTL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evidenceworks/reqforms/internal/forms"
)

// SQLiteStore is the SQLite-backed draft and profile database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// draftPayload is the JSON blob a draft row stores.
type draftPayload struct {
	Values map[string]string     `json:"values"`
	Groups []forms.GroupInstance `json:"groups"`
}

// SaveDraft writes or replaces the draft for the draft's form type.
func (s *SQLiteStore) SaveDraft(ctx context.Context, d forms.Draft) error {
	data, err := json.Marshal(draftPayload{Values: d.Values, Groups: d.Groups})
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	savedAt := d.SavedAt
	if savedAt.IsZero() {
		savedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (form_type, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(form_type) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`, string(d.FormType), string(data), savedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the stored draft for a form type, or nil when none
// exists. An expired draft is treated as absent and deleted on the spot.
func (s *SQLiteStore) LoadDraft(ctx context.Context, ft forms.FormType) (*forms.Draft, error) {
	var payload, savedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, saved_at FROM drafts WHERE form_type = ?
	`, string(ft)).Scan(&payload, &savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}

	saved, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("parse draft timestamp: %w", err)
	}

	draft := forms.Draft{FormType: ft, SavedAt: saved}
	if draft.Expired(s.now()) {
		if err := s.DeleteDraft(ctx, ft); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var blob draftPayload
	if err := json.Unmarshal([]byte(payload), &blob); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	draft.Values = blob.Values
	draft.Groups = blob.Groups
	return &draft, nil
}

// DeleteDraft removes the draft for a form type. Deleting an absent draft is
// not an error.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, ft forms.FormType) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE form_type = ?`, string(ft)); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// DraftInfo summarizes a stored draft for listings.
type DraftInfo struct {
	FormType forms.FormType `json:"form_type"`
	SavedAt  time.Time      `json:"saved_at"`
	Expires  time.Time      `json:"expires"`
}

// ListDrafts returns a summary of every unexpired draft, oldest first.
// Expired rows encountered along the way are deleted.
func (s *SQLiteStore) ListDrafts(ctx context.Context) ([]DraftInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT form_type, saved_at FROM drafts ORDER BY saved_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []DraftInfo
	var expired []forms.FormType
	for rows.Next() {
		var ft, savedAt string
		if err := rows.Scan(&ft, &savedAt); err != nil {
			return nil, fmt.Errorf("scan draft row: %w", err)
		}
		saved, err := time.Parse(time.RFC3339Nano, savedAt)
		if err != nil {
			return nil, fmt.Errorf("parse draft timestamp: %w", err)
		}
		info := DraftInfo{
			FormType: forms.FormType(ft),
			SavedAt:  saved,
			Expires:  saved.Add(forms.DraftTTL),
		}
		if (forms.Draft{SavedAt: saved}).Expired(s.now()) {
			expired = append(expired, info.FormType)
			continue
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}

	for _, ft := range expired {
		if err := s.DeleteDraft(ctx, ft); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PurgeExpired deletes every expired draft and reports how many went.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-forms.DraftTTL).UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	return int(n), nil
}

// SaveProfile overwrites the investigator profile as one atomic row.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p forms.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile (id, name, badge, phone, email)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, badge = excluded.badge,
			phone = excluded.phone, email = excluded.email
	`, p.Name, p.Badge, p.Phone, p.Email)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// LoadProfile returns the stored profile, or the zero profile when none has
// been saved.
func (s *SQLiteStore) LoadProfile(ctx context.Context) (forms.Profile, error) {
	var p forms.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT name, badge, phone, email FROM profile WHERE id = 1
	`).Scan(&p.Name, &p.Badge, &p.Phone, &p.Email)
	if err == sql.ErrNoRows {
		return forms.Profile{}, nil
	}
	if err != nil {
		return forms.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// ClearProfile removes the stored profile.
func (s *SQLiteStore) ClearProfile(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profile WHERE id = 1`); err != nil {
		return fmt.Errorf("clear profile: %w", err)
	}
	return nil
}
