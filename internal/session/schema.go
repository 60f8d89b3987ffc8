package session

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL,
		saved_at TEXT NOT NULL,
		state TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS iterations (
		number INTEGER PRIMARY KEY,
		task_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		outcome TEXT,
		switches TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_iterations_task_id ON iterations(task_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
