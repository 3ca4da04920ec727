package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/marcus/fieldops/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

func TestOpenCreatesJournal(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(Path(dir)); err != nil {
		t.Fatalf("journal file: %v", err)
	}
	v, err := db.GetSchemaVersion()
	if err != nil || v != SchemaVersion {
		t.Fatalf("schema version = %d, %v", v, err)
	}
}

func TestReopenDoesNotRerunMigrations(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	n, err := db.RunMigrations()
	if err != nil || n != 0 {
		t.Fatalf("RunMigrations = %d, %v", n, err)
	}
}

func TestTransitionsRoundTrip(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	steps := []models.VisitTransition{
		{VisitID: 0, CustomerName: "Acme", From: models.VisitIdle, To: models.VisitStarting, Trigger: "start", At: at},
		{VisitID: 7, CustomerName: "Acme", From: models.VisitStarting, To: models.VisitActive, Trigger: "ack", At: at.Add(time.Second)},
		{VisitID: 7, CustomerName: "Acme", From: models.VisitActive, To: models.VisitEnding, Trigger: "end", At: at.Add(time.Hour)},
		{VisitID: 7, CustomerName: "Acme", From: models.VisitEnding, To: models.VisitIdle, Trigger: "ack", Detail: "already closed on server", At: at.Add(time.Hour + time.Second)},
	}
	for _, s := range steps {
		if err := db.RecordTransition(context.Background(), s); err != nil {
			t.Fatalf("RecordTransition: %v", err)
		}
	}

	tail, err := db.TransitionTail(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 3 {
		t.Fatalf("tail = %d entries", len(tail))
	}
	if tail[0].To != models.VisitActive || tail[2].Detail != "already closed on server" {
		t.Errorf("tail order wrong: %+v", tail)
	}
	if !tail[0].At.Equal(at.Add(time.Second)) || tail[0].ID == "" {
		t.Errorf("entry = %+v", tail[0])
	}

	visit, err := db.VisitTransitions(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(visit) != 3 {
		t.Fatalf("visit 7 transitions = %d, want 3", len(visit))
	}
}

func TestRecordCallAndPrune(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	db.RecordCall("active-visit", 200, nil, 40*time.Millisecond)
	db.RecordCall("visit-checkout", 404, errors.New("not found"), 10*time.Millisecond)
	db.RecordCall("location-update", 0, errors.New("network timeout"), time.Second)

	entries, err := db.GetSyncHistoryTail(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Op != "active-visit" || entries[0].Elapsed != 40*time.Millisecond {
		t.Errorf("first = %+v", entries[0])
	}
	if entries[1].StatusCode != 404 || entries[1].Error != "not found" {
		t.Errorf("second = %+v", entries[1])
	}

	if err := db.PruneSyncHistory(1); err != nil {
		t.Fatal(err)
	}
	entries, _ = db.GetSyncHistoryTail(10)
	if len(entries) != 1 || entries[0].Op != "location-update" {
		t.Fatalf("after prune = %+v", entries)
	}
}

// The schema must work under both sqlite drivers the project links.
func TestSchemaOnMattnDriver(t *testing.T) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	db, err := attach(conn, "")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	at := time.Date(2026, 3, 2, 9, 0, 0, 123000000, time.UTC)
	if err := db.RecordTransition(context.Background(), models.VisitTransition{
		VisitID: 7, From: models.VisitIdle, To: models.VisitActive, Trigger: "reconcile", At: at,
	}); err != nil {
		t.Fatal(err)
	}
	tail, err := db.TransitionTail(1)
	if err != nil || len(tail) != 1 {
		t.Fatalf("tail = %+v, %v", tail, err)
	}
	if !tail[0].At.Equal(at) {
		t.Fatalf("timestamp = %v, want %v", tail[0].At, at)
	}
}
