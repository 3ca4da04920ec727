// Package db is the local sqlite journal: visit status transitions and the
// history of backend calls. The backend stays the source of truth; nothing
// here is replayed into session state.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dbFile = "fieldops.db"

// DB wraps the database connection
type DB struct {
	conn    *sql.DB
	baseDir string
}

// Open opens (creating if needed) the journal under dataDir and runs any
// pending migrations
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite", filepath.Join(dataDir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets `fieldops log` read while `fieldops track` writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	db, err := attach(conn, dataDir)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// attach creates the schema on an open connection. An empty baseDir
// disables the cross-process write lock.
func attach(conn *sql.DB, baseDir string) (*DB, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	db := &DB{conn: conn, baseDir: baseDir}
	if _, err := db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the journal file path for a data dir
func Path(dataDir string) string {
	return filepath.Join(dataDir, dbFile)
}

// withWriteLock runs fn while holding the cross-process journal lock.
// In-memory journals (no directory) skip the lock.
func (db *DB) withWriteLock(ctx context.Context, fn func() error) error {
	if db.baseDir == "" {
		return fn()
	}
	ctx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	l := newJournalLock(db.baseDir)
	if err := l.lock(ctx); err != nil {
		return err
	}
	defer l.unlock()
	return fn()
}

// Timestamps are stored as UTC RFC3339Nano text so every driver reads them
// back the same way.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339Nano, Value: s}
}
