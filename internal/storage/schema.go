package storage

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database.
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		schema := `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY
			);

			-- One immutable analysis result per (repository, branch, commit).
			CREATE TABLE IF NOT EXISTS analyses (
				repo TEXT NOT NULL,
				branch TEXT NOT NULL,
				commit_id TEXT NOT NULL,
				result_gz BLOB NOT NULL,
				result_hash TEXT NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (repo, branch, commit_id)
			);
			CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC);

			-- Terminal task records, for the history/audit collaborator.
			CREATE TABLE IF NOT EXISTS task_archive (
				request_id TEXT PRIMARY KEY,
				user_id TEXT,
				repo TEXT NOT NULL,
				branch TEXT NOT NULL,
				commit_id TEXT,
				state TEXT NOT NULL,
				error_code TEXT,
				created_at TEXT NOT NULL,
				completed_at TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_task_archive_repo ON task_archive(repo, branch);
		`
		if _, err := tx.Exec(schema); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})
		return nil
	})
}

// runMigrations brings an existing database up to the current schema.
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}
	if version == currentSchemaVersion {
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Migration steps are added here as the schema evolves.
	return nil
}

func (db *DB) getSchemaVersion() (int, error) {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
