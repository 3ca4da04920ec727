package db

import (
	"context"
	"log/slog"
	"time"
)

// maxSyncHistory caps the sync_history table.
const maxSyncHistory = 5000

// SyncHistoryEntry represents a row from the sync_history table.
type SyncHistoryEntry struct {
	ID         int64
	Op         string // "visit-checkin", "location-update", ...
	StatusCode int    // 0 when no response arrived
	Error      string
	Elapsed    time.Duration
	Timestamp  time.Time
}

// RecordCall implements syncclient.Recorder. Failures are logged, never
// returned to the caller making the request.
func (db *DB) RecordCall(op string, statusCode int, callErr error, elapsed time.Duration) {
	msg := ""
	if callErr != nil {
		msg = callErr.Error()
	}
	err := db.withWriteLock(context.Background(), func() error {
		_, err := db.conn.Exec(`
			INSERT INTO sync_history (op, status_code, error, elapsed_ms, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, op, statusCode, msg, elapsed.Milliseconds(), formatTimestamp(time.Now()))
		return err
	})
	if err != nil {
		slog.Debug("journal: sync history", "op", op, "err", err)
	}
}

// GetSyncHistoryTail returns the last N entries in chronological order (oldest first).
func (db *DB) GetSyncHistoryTail(limit int) ([]SyncHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, op, COALESCE(status_code, 0), COALESCE(error, ''), COALESCE(elapsed_ms, 0), timestamp
		FROM sync_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SyncHistoryEntry
	for rows.Next() {
		var e SyncHistoryEntry
		var ts string
		var ms int64
		if err := rows.Scan(&e.ID, &e.Op, &e.StatusCode, &e.Error, &ms, &ts); err != nil {
			return nil, err
		}
		e.Elapsed = time.Duration(ms) * time.Millisecond
		parsed, parseErr := parseTimestamp(ts)
		if parseErr != nil {
			return nil, parseErr
		}
		e.Timestamp = parsed
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// PruneSyncHistory deletes rows not in the newest maxRows entries.
func (db *DB) PruneSyncHistory(maxRows int) error {
	if maxRows <= 0 {
		maxRows = maxSyncHistory
	}
	return db.withWriteLock(context.Background(), func() error {
		_, err := db.conn.Exec(`
			DELETE FROM sync_history WHERE id NOT IN (
				SELECT id FROM sync_history ORDER BY id DESC LIMIT ?
			)
		`, maxRows)
		return err
	})
}
