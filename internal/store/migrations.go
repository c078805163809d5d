package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all tessera tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS descriptions (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		stages      TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS submissions (
		id          TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		backend_id  TEXT NOT NULL,
		target_idx  INTEGER NOT NULL,
		resume_from INTEGER,
		created_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_submissions_workflow_id ON submissions(workflow_id)`,
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
