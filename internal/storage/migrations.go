package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{Version: "1.0.0", Up: migrationV1Up, Down: migrationV1Down},
	{Version: "1.1.0", Up: migrationV11Up, Down: migrationV11Down},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per chunk. seq backs the FTS rowid, id is the deterministic record ID.
CREATE TABLE IF NOT EXISTS records (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    file_path TEXT NOT NULL,
    file_name TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_key TEXT NOT NULL,
    content TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    context_id TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    last_modified INTEGER NOT NULL DEFAULT 0,
    vector BLOB,
    dimension INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_file ON records(file_path, chunk_index);
CREATE INDEX IF NOT EXISTS idx_records_context ON records(context_id);

CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
    content, title,
    content='records',
    content_rowid='seq'
);

CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
    INSERT INTO records_fts(rowid, content, title)
    VALUES (new.seq, new.content, new.title);
END;

CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, content, title)
    VALUES ('delete', old.seq, old.content, old.title);
END;

CREATE TRIGGER IF NOT EXISTS records_au AFTER UPDATE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, content, title)
    VALUES ('delete', old.seq, old.content, old.title);
    INSERT INTO records_fts(rowid, content, title)
    VALUES (new.seq, new.content, new.title);
END;
`

const migrationV1Down = `
DROP TRIGGER IF EXISTS records_au;
DROP TRIGGER IF EXISTS records_ad;
DROP TRIGGER IF EXISTS records_ai;
DROP TABLE IF EXISTS records_fts;
DROP TABLE IF EXISTS records;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
-- Tag filter lookups
CREATE TABLE IF NOT EXISTS record_tags (
    record_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY (record_id, tag),
    FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_record_tags_tag ON record_tags(tag);
CREATE INDEX IF NOT EXISTS idx_records_chunk_key ON records(chunk_key);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_records_chunk_key;
DROP TABLE IF EXISTS record_tags;
`

// SchemaVersion returns the most recently applied migration, or 0.0.0.
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// applied_at has second resolution, so compare versions instead of ordering by time
	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		version, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !current.LessThan(version) {
			continue
		}

		if err := runMigration(ctx, db, migration.Up, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		current = version
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return errors.New("no migrations to rollback")
	}

	for i := len(AllMigrations) - 1; i >= 0; i-- {
		m := AllMigrations[i]
		if m.Version != current.Original() && m.Version != current.String() {
			continue
		}
		// The 1.0.0 down script drops schema_version itself
		record := "DELETE FROM schema_version WHERE version = ?"
		if i == 0 {
			record = ""
		}
		if err := runMigration(ctx, db, m.Down, record, m.Version); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", m.Version, err)
		}
		return nil
	}

	return fmt.Errorf("migration %s not found", current)
}

func runMigration(ctx context.Context, db *sql.DB, script, record, version string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if record != "" {
		if _, err := tx.ExecContext(ctx, record, version); err != nil {
			return err
		}
	}
	return tx.Commit()
}
