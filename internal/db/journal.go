package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/fieldops/internal/models"
)

const journalPrefix = "vt-"

// RecordTransition appends one visit status transition
func (db *DB) RecordTransition(ctx context.Context, t models.VisitTransition) error {
	if t.ID == "" {
		t.ID = journalPrefix + uuid.NewString()
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}
	return db.withWriteLock(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO visit_journal (id, visit_id, customer_name, from_status, to_status, cause, detail, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.VisitID, t.CustomerName, string(t.From), string(t.To), t.Trigger, t.Detail, formatTimestamp(t.At))
		if err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
		return nil
	})
}

// TransitionTail returns the last limit transitions, oldest first
func (db *DB) TransitionTail(limit int) ([]models.VisitTransition, error) {
	rows, err := db.conn.Query(`
		SELECT id, visit_id, customer_name, from_status, to_status, cause, detail, timestamp
		FROM visit_journal
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VisitTransition
	for rows.Next() {
		var t models.VisitTransition
		var from, to, ts string
		if err := rows.Scan(&t.ID, &t.VisitID, &t.CustomerName, &from, &to, &t.Trigger, &t.Detail, &ts); err != nil {
			return nil, err
		}
		t.From = models.VisitStatus(from)
		t.To = models.VisitStatus(to)
		if t.At, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// VisitTransitions returns every transition recorded for one visit, oldest first
func (db *DB) VisitTransitions(visitID int64) ([]models.VisitTransition, error) {
	rows, err := db.conn.Query(`
		SELECT id, visit_id, customer_name, from_status, to_status, cause, detail, timestamp
		FROM visit_journal
		WHERE visit_id = ?
		ORDER BY seq ASC
	`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VisitTransition
	for rows.Next() {
		var t models.VisitTransition
		var from, to, ts string
		if err := rows.Scan(&t.ID, &t.VisitID, &t.CustomerName, &from, &to, &t.Trigger, &t.Detail, &ts); err != nil {
			return nil, err
		}
		t.From = models.VisitStatus(from)
		t.To = models.VisitStatus(to)
		if t.At, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
