package persistence

import (
	"database/sql"
	"fmt"
)

// currentSchemaVersion guards future migrations. Version 1 is the initial
// sessions/checkpoints/verdicts layout.
const currentSchemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	incident_id TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	rounds      INTEGER NOT NULL DEFAULT 0,
	consensus   INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	round      INTEGER NOT NULL,
	loop_round INTEGER NOT NULL DEFAULT 0,
	phase      TEXT NOT NULL,
	worker     TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	summary    TEXT NOT NULL DEFAULT '',
	conclusion TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, id);

CREATE TABLE IF NOT EXISTS verdicts (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// initializeSchema creates the schema on a fresh database and is a no-op on
// a current one. Unknown future versions are rejected rather than guessed at.
func initializeSchema(db *sql.DB) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		if _, err := db.Exec(schemaDDL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case version == currentSchemaVersion:
		return nil
	default:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
}

// schemaVersion reads the recorded schema version; 0 means a fresh database.
func schemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}
	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
