package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'technician' CHECK (role IN ('admin', 'dispatcher', 'technician')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    address    TEXT,
    latitude   REAL NOT NULL,
    longitude  REAL NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS jobs (
    id           INTEGER PRIMARY KEY,
    title        TEXT NOT NULL,
    description  TEXT,
    site_id      INTEGER NOT NULL REFERENCES sites(id),
    status       TEXT NOT NULL DEFAULT 'scheduled' CHECK (status IN ('scheduled', 'in_progress', 'completed', 'cancelled')),
    scheduled_at DATETIME,
    started_at   DATETIME,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS technician_jobs (
    id                          INTEGER PRIMARY KEY,
    job_id                      INTEGER NOT NULL REFERENCES jobs(id),
    technician_id               INTEGER NOT NULL REFERENCES users(id),
    is_service_report_submitted INTEGER NOT NULL DEFAULT 0,
    assigned_at                 DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    submitted_at                DATETIME,
    UNIQUE (job_id, technician_id)
);

CREATE TABLE IF NOT EXISTS tasks (
    id                INTEGER PRIMARY KEY,
    client_token      TEXT NOT NULL UNIQUE,
    job_id            INTEGER NOT NULL REFERENCES jobs(id),
    technician_job_id INTEGER REFERENCES technician_jobs(id),
    name              TEXT NOT NULL,
    description       TEXT,
    position          INTEGER NOT NULL DEFAULT 0,
    completed         INTEGER NOT NULL DEFAULT 0,
    created_by        INTEGER REFERENCES users(id),
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS follow_ups (
    id                INTEGER PRIMARY KEY,
    client_token      TEXT NOT NULL UNIQUE,
    job_id            INTEGER NOT NULL REFERENCES jobs(id),
    technician_job_id INTEGER REFERENCES technician_jobs(id),
    notes             TEXT NOT NULL,
    type              TEXT,
    priority          TEXT NOT NULL DEFAULT 'normal' CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
    status            TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'logged', 'in_progress', 'closed', 'cancelled', 'completed')),
    due_date          DATETIME,
    created_by        INTEGER REFERENCES users(id),
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS media (
    id                INTEGER PRIMARY KEY,
    client_token      TEXT NOT NULL UNIQUE,
    job_id            INTEGER NOT NULL REFERENCES jobs(id),
    technician_job_id INTEGER REFERENCES technician_jobs(id),
    kind              TEXT NOT NULL CHECK (kind IN ('image', 'video')),
    description       TEXT,
    mime              TEXT NOT NULL,
    data              BLOB NOT NULL,
    created_by        INTEGER REFERENCES users(id),
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS clock_entries (
    id             INTEGER PRIMARY KEY,
    user_id        INTEGER NOT NULL REFERENCES users(id),
    clocked_in_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    clocked_out_at DATETIME
);

CREATE TABLE IF NOT EXISTS break_entries (
    id         INTEGER PRIMARY KEY,
    user_id    INTEGER NOT NULL REFERENCES users(id),
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    ended_at   DATETIME
);

CREATE TABLE IF NOT EXISTS drafts (
    job_id     INTEGER PRIMARY KEY,
    payload    BLOB NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
