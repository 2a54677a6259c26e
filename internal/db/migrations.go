package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: lookup indexes for per-job report queries.
	`CREATE INDEX IF NOT EXISTS idx_tasks_job ON tasks(job_id, position, id)`,
	`CREATE INDEX IF NOT EXISTS idx_follow_ups_job ON follow_ups(job_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_media_job ON media(job_id, id)`,

	// Migration 2: at most one open shift and one open break per user.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_clock_entries_open
	     ON clock_entries(user_id) WHERE clocked_out_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_break_entries_open
	     ON break_entries(user_id) WHERE ended_at IS NULL`,
}

// Migrate ensures the schema and then runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
