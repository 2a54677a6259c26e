package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const (
	busyTimeout = 5000 // milliseconds
	maxRetries  = 5
	initialWait = 50 * time.Millisecond
)

var pragmas = []string{
	"journal_mode(WAL)",
	fmt.Sprintf("busy_timeout(%d)", busyTimeout),
	"foreign_keys(ON)",
	"synchronous(NORMAL)",
}

// Open opens the SQLite database at path, creating its directory if needed.
// The pool holds a single connection: writers are serialized by SQLite
// anyway and an in-memory database lives only as long as its connection.
func Open(path string) (*sql.DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := pingWithRetry(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}

func dsn(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	for i, p := range pragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// pingWithRetry retries while another process holds the database locked.
func pingWithRetry(ctx context.Context, db *sql.DB) error {
	wait := initialWait
	var err error
	for range maxRetries {
		if err = db.PingContext(ctx); err == nil || !IsBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
