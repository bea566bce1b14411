package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Repository persists the development server's records in sqlite.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if logger == nil {
		logger = slog.Default()
	}
	repo := &Repository{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			build_server TEXT NOT NULL DEFAULT '',
			deploy_server TEXT NOT NULL DEFAULT '',
			database_name TEXT NOT NULL DEFAULT '',
			environment TEXT NOT NULL DEFAULT '',
			backup_location TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS components (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			developer TEXT NOT NULL DEFAULT '',
			vcs_type TEXT NOT NULL DEFAULT '',
			vcs_url TEXT NOT NULL DEFAULT '',
			build_command TEXT NOT NULL DEFAULT '',
			component_url TEXT NOT NULL DEFAULT '',
			enabled INTEGER,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			jira_id TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			project_id INTEGER NOT NULL,
			component_id INTEGER,
			environment TEXT NOT NULL DEFAULT '',
			vcs_url TEXT NOT NULL DEFAULT '',
			developer_name TEXT NOT NULL DEFAULT '',
			build_server TEXT NOT NULL DEFAULT '',
			deploy_server TEXT NOT NULL DEFAULT '',
			database_name TEXT NOT NULL DEFAULT '',
			db_backup_location TEXT NOT NULL DEFAULT '',
			database_script TEXT NOT NULL DEFAULT '',
			previous_build_backup TEXT NOT NULL DEFAULT '',
			build_status TEXT NOT NULL DEFAULT '',
			deploy_status TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			deployed_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_components_project ON components(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_project ON deployments(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_timestamp ON deployments(timestamp);`,
	}
	for _, stmt := range indexes {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func fromInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func fromBoolPtr(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
