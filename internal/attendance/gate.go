// Package attendance answers whether today's attendance is marked and
// performs the once-per-day attendance check-in.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/location"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/permission"
	"github.com/marcus/fieldops/internal/syncclient"
)

// DefaultTimezone is the business timezone of the backend.
const DefaultTimezone = "Asia/Kolkata"

// Client is the subset of the sync client the gate needs.
type Client interface {
	AttendanceToday(ctx context.Context) (*models.AttendanceRecord, error)
	CheckInAttendance(ctx context.Context, in *syncclient.AttendanceCheckIn) (*models.AttendanceRecord, error)
}

// Permissions aborts a flow when a capability is not granted.
type Permissions interface {
	Require(ctx context.Context, caps ...permission.Capability) error
}

// Deps are the collaborators of a Gate. Locator and Permissions are only
// needed for CheckIn.
type Deps struct {
	Client      Client
	Locator     location.Locator
	Permissions Permissions
}

// Options tune a Gate.
type Options struct {
	Location   *time.Location // business timezone; defaults to DefaultTimezone
	FixTimeout time.Duration
	Now        func() time.Time
}

// LoadLocation resolves a timezone name, falling back to a fixed IST offset
// when the zone database is unavailable.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultTimezone {
		return time.FixedZone("IST", 5*3600+30*60), nil
	}
	return nil, fmt.Errorf("%w: timezone %q: %v", fielderr.ErrInvalidInput, name, err)
}

// Gate caches the marked attendance record per business date. A marked
// record never changes, so only positive answers are cached.
type Gate struct {
	client  Client
	locator location.Locator
	perms   Permissions
	opts    Options

	mu     sync.Mutex
	date   string
	record *models.AttendanceRecord
}

// New creates a gate.
func New(deps Deps, opts Options) *Gate {
	if opts.Location == nil {
		opts.Location, _ = LoadLocation(DefaultTimezone)
	}
	if opts.FixTimeout <= 0 {
		opts.FixTimeout = location.DefaultFixTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{client: deps.Client, locator: deps.Locator, perms: deps.Permissions, opts: opts}
}

// BusinessDate returns today's date (YYYY-MM-DD) in the business timezone.
func (g *Gate) BusinessDate() string {
	return g.opts.Now().In(g.opts.Location).Format(time.DateOnly)
}

func (g *Gate) cached(date string) *models.AttendanceRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.date != date {
		return nil
	}
	return g.record
}

func (g *Gate) store(date string, rec *models.AttendanceRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.date = date
	g.record = rec
}

// Today returns today's attendance record, or nil when not marked.
func (g *Gate) Today(ctx context.Context) (*models.AttendanceRecord, error) {
	date := g.BusinessDate()
	if rec := g.cached(date); rec != nil {
		return rec, nil
	}
	rec, err := g.client.AttendanceToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("attendance today: %w", err)
	}
	if rec == nil || !rec.Status.Marked() {
		return nil, nil
	}
	if rec.Date != "" && rec.Date != date {
		// Server and client disagree about the day; trust the server but do
		// not cache across the boundary.
		slog.Debug("attendance: date mismatch", "server", rec.Date, "local", date)
		return rec, nil
	}
	g.store(date, rec)
	return rec, nil
}

// IsMarkedToday reports whether attendance is marked for the current
// business date.
func (g *Gate) IsMarkedToday(ctx context.Context) (bool, error) {
	rec, err := g.Today(ctx)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// CheckIn marks today's attendance with a photo and the current fix. It
// refuses with ErrAlreadyMarked when today is already marked.
func (g *Gate) CheckIn(ctx context.Context, photo io.Reader, photoName string) (*models.AttendanceRecord, error) {
	marked, err := g.IsMarkedToday(ctx)
	if err != nil {
		return nil, err
	}
	if marked {
		return nil, fielderr.ErrAlreadyMarked
	}
	if photo == nil {
		return nil, fmt.Errorf("%w: attendance photo is required", fielderr.ErrInvalidInput)
	}
	if g.perms != nil {
		if err := g.perms.Require(ctx, permission.Camera, permission.Location); err != nil {
			return nil, err
		}
	}
	if g.locator == nil {
		return nil, fmt.Errorf("%w: no location source", fielderr.ErrLocationUnavailable)
	}

	fixCtx, cancel := context.WithTimeout(ctx, g.opts.FixTimeout)
	fix, err := g.locator.Fix(fixCtx, location.AccuracyHigh)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fielderr.ErrLocationUnavailable, err)
	}

	now := g.opts.Now().In(g.opts.Location)
	rec, err := g.client.CheckInAttendance(ctx, &syncclient.AttendanceCheckIn{
		Photo:     photo,
		PhotoName: photoName,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Time:      now.Format(time.TimeOnly),
	})
	if err != nil {
		var rej *fielderr.RejectedError
		if errors.As(err, &rej) && rej.StatusCode == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(rej.Message), "already") {
			return nil, fmt.Errorf("%w: %v", fielderr.ErrAlreadyMarked, err)
		}
		return nil, fmt.Errorf("attendance check-in: %w", err)
	}
	if rec.Date == "" {
		rec.Date = now.Format(time.DateOnly)
	}
	if rec.Status == models.AttendanceNotMarked {
		rec.Status = models.AttendancePresent
	}
	g.store(g.BusinessDate(), rec)
	return rec, nil
}

// CheckOut is accepted and does nothing: attendance rows are never mutated
// after check-in.
func (g *Gate) CheckOut(ctx context.Context) error {
	slog.Debug("attendance: check-out is a no-op", "date", g.BusinessDate())
	return nil
}

// Invalidate drops the cached record, e.g. at the business-day rollover.
func (g *Gate) Invalidate() {
	g.store("", nil)
}
