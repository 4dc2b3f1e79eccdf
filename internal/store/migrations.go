package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all choppy tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id           TEXT PRIMARY KEY,
		project_name TEXT NOT NULL,
		app          TEXT NOT NULL,
		server       TEXT NOT NULL DEFAULT 'localhost',
		username     TEXT NOT NULL DEFAULT '',
		dry_run      INTEGER NOT NULL DEFAULT 0,
		succeeded    INTEGER NOT NULL DEFAULT 0,
		failed       INTEGER NOT NULL DEFAULT 0,
		project_dir  TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS batch_records (
		batch_id    TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		sample_id   TEXT NOT NULL,
		workflow_id TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		record      TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (batch_id, position)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_batches_project_name ON batches(project_name)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_username ON batches(username)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at)`,
	// Lookup of a batch record from an engine workflow id (query, abort).
	`CREATE INDEX IF NOT EXISTS idx_batch_records_workflow_id ON batch_records(workflow_id) WHERE workflow_id != ''`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
