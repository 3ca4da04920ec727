// Package schedule runs the periodic housekeeping jobs of a tracking
// session: drift reconcile against the server, the business-day rollover
// and journal pruning.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job names
const (
	JobReconcile = "reconcile"
	JobRollover  = "rollover"
	JobPrune     = "prune"
)

const (
	rolloverSpec = "0 0 * * *"
	pruneSpec    = "30 3 * * *"

	// DefaultJobTimeout bounds one reconcile run.
	DefaultJobTimeout = time.Minute
)

// Jobs are the callbacks the scheduler drives. Nil jobs are not scheduled.
type Jobs struct {
	// Reconcile re-reads the server's active visit.
	Reconcile func(ctx context.Context) error
	// Rollover runs at midnight in the business timezone.
	Rollover func()
	// Prune trims local history tables.
	Prune func() error
}

// Options configure a Scheduler.
type Options struct {
	ReconcileSchedule string         // standard 5-field cron spec
	Location          *time.Location // business timezone; default time.Local
	JobTimeout        time.Duration
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	timeout time.Duration
	ids     map[string]cron.EntryID
}

// New registers jobs without starting them.
func New(jobs Jobs, opts Options) (*Scheduler, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		loc:     loc,
		timeout: opts.JobTimeout,
		ids:     make(map[string]cron.EntryID),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultJobTimeout
	}

	logger := slogLogger{}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)

	if jobs.Reconcile != nil {
		reconcile := jobs.Reconcile
		if err := s.add(JobReconcile, opts.ReconcileSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := reconcile(ctx); err != nil {
				slog.Debug("schedule: reconcile", "err", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	if jobs.Rollover != nil {
		if err := s.add(JobRollover, rolloverSpec, jobs.Rollover); err != nil {
			return nil, err
		}
	}
	if jobs.Prune != nil {
		prune := jobs.Prune
		if err := s.add(JobPrune, pruneSpec, func() {
			if err := prune(); err != nil {
				slog.Warn("schedule: prune", "err", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, fn func()) error {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.ids[name] = id
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns when job next fires after t, or the zero time if the job
// is not scheduled.
func (s *Scheduler) NextRun(job string, after time.Time) time.Time {
	id, ok := s.ids[job]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Schedule.Next(after.In(s.loc))
}

// slogLogger adapts cron's logger to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Warn("cron: "+msg, append(keysAndValues, "err", err)...)
}
