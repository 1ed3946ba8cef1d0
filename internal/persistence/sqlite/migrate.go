package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one versioned schema step. Versions are applied in ascending
// order exactly once and recorded in schema_migrations.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL,
				role TEXT NOT NULL CHECK (role IN ('auditor', 'fixer', 'admin')),
				password_hash TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS sites (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				level INTEGER NOT NULL CHECK (level BETWEEN 0 AND 2),
				parent_id TEXT REFERENCES sites(id),
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sites_parent ON sites(parent_id)`,
			`CREATE TABLE IF NOT EXISTS checklist_items (
				id TEXT PRIMARY KEY,
				site_id TEXT NOT NULL REFERENCES sites(id),
				text TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				image_ids TEXT NOT NULL DEFAULT '[]',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_checklist_items_site ON checklist_items(site_id)`,
			`CREATE TABLE IF NOT EXISTS site_checks (
				site_id TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
				check_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				PRIMARY KEY (site_id, check_id)
			)`,
			`CREATE TABLE IF NOT EXISTS breaks (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id),
				start_date TEXT NOT NULL,
				end_date TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_breaks_user ON breaks(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_breaks_window ON breaks(start_date, end_date)`,
			// site_id deliberately carries no foreign key: audits outlive
			// site deletions and keep the site name as a snapshot.
			`CREATE TABLE IF NOT EXISTS audits (
				id TEXT PRIMARY KEY,
				site_id TEXT NOT NULL,
				site_name TEXT NOT NULL,
				on_date TEXT NOT NULL,
				started_at TEXT,
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (site_id, on_date)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audits_on_date ON audits(on_date)`,
			`CREATE TABLE IF NOT EXISTS audit_participants (
				audit_id TEXT NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				PRIMARY KEY (audit_id, user_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_participants_user ON audit_participants(user_id)`,
			`CREATE TABLE IF NOT EXISTS audit_results (
				audit_id TEXT NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
				check_id TEXT NOT NULL,
				text TEXT NOT NULL,
				passed INTEGER,
				comment TEXT NOT NULL DEFAULT '',
				image_id TEXT NOT NULL DEFAULT '',
				position INTEGER NOT NULL,
				PRIMARY KEY (audit_id, check_id)
			)`,
			`CREATE TABLE IF NOT EXISTS recurring_schedules (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				site_ids TEXT NOT NULL DEFAULT '[]',
				frequency TEXT NOT NULL CHECK (frequency IN ('daily', 'weekly', 'monthly')),
				auditor_pool TEXT NOT NULL DEFAULT '[]',
				auditors_per_audit INTEGER NOT NULL,
				max_audits_per_day INTEGER NOT NULL DEFAULT 0,
				active INTEGER NOT NULL DEFAULT 1,
				last_generated_date TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token TEXT NOT NULL UNIQUE,
				expires_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				revoked_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		},
	},
}

// Migrate applies all pending schema migrations in version order. Each
// migration runs inside its own transaction.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	if _, err := cp.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := cp.migrationApplied(ctx, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		err = cp.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
				}
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.version, m.name, time.Now().UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (cp *ConnectionPool) migrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := cp.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return count > 0, nil
}
