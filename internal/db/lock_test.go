//go:build unix

package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func lockWithin(t *testing.T, l *journalLock, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.lock(ctx)
}

func TestJournalLockStampsHolder(t *testing.T) {
	dir := t.TempDir()
	l := newJournalLock(dir)
	if err := lockWithin(t, l, time.Second); err != nil {
		t.Fatalf("lock: %v", err)
	}

	holder := describeHolder(filepath.Join(dir, lockFileName))
	if !strings.HasPrefix(holder, fmt.Sprintf("pid %d (", os.Getpid())) || strings.Contains(holder, "stale") {
		t.Errorf("holder = %q", holder)
	}

	l.unlock()
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("stamp left after unlock: %q", data)
	}
}

func TestJournalLockSerializesWriters(t *testing.T) {
	dir := t.TempDir()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
		total   int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				l := newJournalLock(dir)
				if err := lockWithin(t, l, 5*time.Second); err != nil {
					t.Errorf("lock: %v", err)
					return
				}
				mu.Lock()
				inside++
				overlap = overlap || inside > 1
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				total++
				mu.Unlock()
				l.unlock()
			}
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("two holders at once")
	}
	if total != 20 {
		t.Errorf("total = %d, want 20", total)
	}
}

func TestJournalLockBusy(t *testing.T) {
	dir := t.TempDir()
	holder := newJournalLock(dir)
	if err := lockWithin(t, holder, time.Second); err != nil {
		t.Fatal(err)
	}
	defer holder.unlock()

	err := lockWithin(t, newJournalLock(dir), 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if !strings.Contains(err.Error(), "journal busy") || !strings.Contains(err.Error(), "pid ") {
		t.Errorf("error should name the holder: %v", err)
	}
}

func TestDescribeHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)

	tests := []struct {
		content string
		want    string
	}{
		{"", "unknown process"},
		{"garbage", "unknown process"},
		{"2147483646 2026-03-02T09:00:00Z fieldops\n", "pid 2147483646 (fieldops) since 2026-03-02T09:00:00Z, stale"},
		{fmt.Sprintf("%d 2026-03-02T09:00:00Z\n", os.Getpid()), fmt.Sprintf("pid %d since 2026-03-02T09:00:00Z", os.Getpid())},
	}
	for _, tt := range tests {
		if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
			t.Fatal(err)
		}
		if got := describeHolder(path); got != tt.want {
			t.Errorf("describeHolder(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}
