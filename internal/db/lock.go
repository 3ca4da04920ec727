package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFileName = "journal.lock"

	// lockWait bounds how long one journal write waits for another process.
	lockWait = 500 * time.Millisecond
)

// journalLock serializes journal writes between fieldops processes, usually a
// long-running `track` and one-shot commands. The OS drops the lock when the
// holder exits, crashes included.
type journalLock struct {
	path string
	f    *os.File
}

func newJournalLock(dir string) *journalLock {
	return &journalLock{path: filepath.Join(dir, lockFileName)}
}

// lock polls until the lock is held or ctx is done.
func (l *journalLock) lock(ctx context.Context) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open journal lock: %w", err)
	}

	wait := 2 * time.Millisecond
	for {
		if tryLockFile(f) == nil {
			l.f = f
			l.stamp()
			return nil
		}
		select {
		case <-ctx.Done():
			f.Close()
			return fmt.Errorf("journal busy, held by %s: %w", describeHolder(l.path), ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, 40*time.Millisecond)
	}
}

func (l *journalLock) unlock() {
	if l.f == nil {
		return
	}
	_ = l.f.Truncate(0)
	unlockFile(l.f)
	l.f.Close()
	l.f = nil
}

// stamp writes "<pid> <since> <program>" for describeHolder.
func (l *journalLock) stamp() {
	line := fmt.Sprintf("%d %s %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339), filepath.Base(os.Args[0]))
	_ = l.f.Truncate(0)
	_, _ = l.f.WriteAt([]byte(line), 0)
}

// describeHolder renders a lock file's stamp, e.g.
// "pid 4121 (fieldops) since 2026-03-02T09:00:00Z".
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown process"
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return "unknown process"
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return "unknown process"
	}

	s := fmt.Sprintf("pid %d", pid)
	if len(fields) > 2 {
		s += " (" + fields[2] + ")"
	}
	s += " since " + fields[1]
	if !processAlive(pid) {
		s += ", stale"
	}
	return s
}
