package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Singleton document names.
const (
	DocumentLibrary  = "library"
	DocumentSettings = "settings"
)

// GetDocument decodes the named document into out. It returns ErrNotFound
// when the document was never written.
func (r *Repository) GetDocument(ctx context.Context, name string, out any) error {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("decode document %s: %w", name, err)
	}
	return nil
}

// PutDocument stores value as the named document.
func (r *Repository) PutDocument(ctx context.Context, name string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}
	now := formatTime(r.now())
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (name, body, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			body=excluded.body,
			updated_at=excluded.updated_at`,
		name, string(body), now, now,
	)
	return err
}
