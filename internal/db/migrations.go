package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// step upgrades the journal by one schema version inside a transaction.
type step struct {
	version int
	what    string
	apply   func(tx *sql.Tx) error
}

var steps = []step{
	{2, "record call latency", func(tx *sql.Tx) error {
		return addColumn(tx, "sync_history", "elapsed_ms", "INTEGER DEFAULT 0")
	}},
}

// addColumn is idempotent so a journal touched by a newer build still opens.
func addColumn(tx *sql.Tx, table, column, decl string) error {
	var n int
	err := tx.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// GetSchemaVersion reports the journal's schema version. A journal without
// a recorded version is at the base schema.
func (db *DB) GetSchemaVersion() (int, error) {
	var raw string
	err := db.conn.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("schema version %q: %w", raw, err)
	}
	return v, nil
}

// RunMigrations applies the steps newer than the journal and returns how
// many ran. Each step commits together with its version bump.
func (db *DB) RunMigrations() (int, error) {
	current, err := db.GetSchemaVersion()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	ran := 0
	for _, s := range steps {
		if s.version <= current {
			continue
		}
		if err := db.runStep(s); err != nil {
			return ran, fmt.Errorf("migrate to v%d (%s): %w", s.version, s.what, err)
		}
		ran++
	}
	return ran, nil
}

func (db *DB) runStep(s step) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		strconv.Itoa(s.version)); err != nil {
		return err
	}
	return tx.Commit()
}
