package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is the journal schema version.
const CurrentSchemaVersion = 1

func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}
	if currentVersion == 0 {
		return createSchema(db)
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}
	return nil
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			from_stage TEXT NOT NULL,
			to_stage   TEXT,
			status     TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at   TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			from_state    TEXT NOT NULL,
			to_state      TEXT NOT NULL,
			at            TEXT NOT NULL,
			metadata_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS side_effect_failures (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			kind       TEXT NOT NULL,
			item       TEXT NOT NULL,
			error      TEXT NOT NULL,
			at         TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notification_resolutions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			dedupe_key TEXT NOT NULL,
			audience   TEXT NOT NULL,
			outcome    TEXT NOT NULL,
			at         TEXT NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_side_effects_session ON side_effect_failures(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_dedupe ON notification_resolutions(dedupe_key)",
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the applied schema version, or 0 for an empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
