// Package report enforces the one-submission-per-day daily report policy.
// Opening today's report yields either a Draft, which can be submitted once,
// or a Submitted report, which only accepts partial updates.
package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/syncclient"
)

// Client is the subset of the sync client the controller needs.
type Client interface {
	ReportPrefill(ctx context.Context) (*syncclient.ReportPrefill, error)
	SubmitReport(ctx context.Context, sub *syncclient.ReportSubmission) (*models.DailyReport, error)
	UpdateReport(ctx context.Context, date string, patch *syncclient.ReportPatch) (*syncclient.ReportUpdate, error)
	Report(ctx context.Context, date string) (*models.DailyReport, error)
}

// AttendanceGate answers whether today's attendance is marked.
type AttendanceGate interface {
	IsMarkedToday(ctx context.Context) (bool, error)
	BusinessDate() string
}

// Controller opens daily reports.
type Controller struct {
	client Client
	gate   AttendanceGate
}

// New creates a controller.
func New(client Client, gate AttendanceGate) *Controller {
	return &Controller{client: client, gate: gate}
}

// Sheet is today's report in one of its two forms: *Draft or *Submitted.
type Sheet interface {
	Report() models.DailyReport
	sheet()
}

// Open loads today's report.
func (c *Controller) Open(ctx context.Context) (Sheet, error) {
	p, err := c.client.ReportPrefill(ctx)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	r := p.Report()
	if r.Date == "" && c.gate != nil {
		r.Date = c.gate.BusinessDate()
	}
	if p.AlreadySubmitted {
		return &Submitted{c: c, report: r}, nil
	}
	return &Draft{c: c, report: r, attendanceMarked: p.AttendanceMarked}, nil
}

// Get returns the stored report for date (YYYY-MM-DD), or nil.
func (c *Controller) Get(ctx context.Context, date string) (*models.DailyReport, error) {
	r, err := c.client.Report(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", date, err)
	}
	return r, nil
}

// Fields is the free text of a submission.
type Fields struct {
	Achievements string
	Challenges   string
	TomorrowPlan string
	Notes        string
}

func (f Fields) trimmed() Fields {
	return Fields{
		Achievements: strings.TrimSpace(f.Achievements),
		Challenges:   strings.TrimSpace(f.Challenges),
		TomorrowPlan: strings.TrimSpace(f.TomorrowPlan),
		Notes:        strings.TrimSpace(f.Notes),
	}
}

func (f Fields) validate() error {
	var missing []string
	if f.Achievements == "" {
		missing = append(missing, "achievements")
	}
	if f.Challenges == "" {
		missing = append(missing, "challenges")
	}
	if f.TomorrowPlan == "" {
		missing = append(missing, "tomorrow plan")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", fielderr.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// Draft is an unsubmitted report. It can be submitted once.
type Draft struct {
	c                *Controller
	attendanceMarked bool // as reported by the prefill; the gate decides

	mu     sync.Mutex
	report models.DailyReport
	spent  bool
}

func (*Draft) sheet() {}

// Report returns the prefilled report.
func (d *Draft) Report() models.DailyReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.report
}

// AttendanceMarked reports the prefill's view of today's attendance.
func (d *Draft) AttendanceMarked() bool { return d.attendanceMarked }

// Submit creates today's report. It fails with ErrAttendanceRequired before
// any network call when attendance is not marked.
func (d *Draft) Submit(ctx context.Context, f Fields) (*Submitted, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spent {
		return nil, &fielderr.StateError{Op: "submit report", State: "submitted"}
	}

	if d.c.gate != nil {
		marked, err := d.c.gate.IsMarkedToday(ctx)
		if err != nil {
			return nil, fmt.Errorf("submit report: %w", err)
		}
		if !marked {
			return nil, fielderr.ErrAttendanceRequired
		}
	}

	f = f.trimmed()
	if err := f.validate(); err != nil {
		return nil, err
	}

	created, err := d.c.client.SubmitReport(ctx, &syncclient.ReportSubmission{
		Achievements: f.Achievements,
		Challenges:   f.Challenges,
		TomorrowPlan: f.TomorrowPlan,
		ReportNotes:  f.Notes,
	})
	if err != nil {
		return nil, classify(err)
	}
	d.spent = true

	r := d.report
	r.ID = created.ID
	r.Submitted = true
	r.Achievements = created.Achievements
	r.Challenges = created.Challenges
	r.TomorrowPlan = created.TomorrowPlan
	r.SubmissionTime = created.SubmissionTime
	if created.Date != "" {
		r.Date = created.Date
	}
	return &Submitted{c: d.c, report: r}, nil
}

// classify maps the backend's submit refusals onto the error taxonomy.
func classify(err error) error {
	var rej *fielderr.RejectedError
	if !errors.As(err, &rej) || rej.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("submit report: %w", err)
	}
	msg := strings.ToLower(rej.Message)
	switch {
	case strings.Contains(msg, "attendance"):
		return fmt.Errorf("%w: %v", fielderr.ErrAttendanceRequired, err)
	case strings.Contains(msg, "already submitted"):
		return &fielderr.StateError{Op: "submit report", State: "submitted"}
	}
	return fmt.Errorf("submit report: %w", err)
}

// Patch is a partial update. Nil fields are left unchanged; blank text is
// ignored.
type Patch struct {
	ManualCalls    *int
	ManualMeetings *int
	ManualOrders   *int
	Achievements   *string
	Challenges     *string
	TomorrowPlan   *string
}

func (p Patch) wire() (*syncclient.ReportPatch, error) {
	w := &syncclient.ReportPatch{
		ManualCalls:    p.ManualCalls,
		ManualMeetings: p.ManualMeetings,
		ManualOrders:   p.ManualOrders,
		Achievements:   nonBlank(p.Achievements),
		Challenges:     nonBlank(p.Challenges),
		TomorrowPlan:   nonBlank(p.TomorrowPlan),
	}
	for name, v := range map[string]*int{"manual calls": w.ManualCalls, "manual meetings": w.ManualMeetings, "manual orders": w.ManualOrders} {
		if v != nil && *v < 0 {
			return nil, fmt.Errorf("%w: %s must not be negative", fielderr.ErrInvalidInput, name)
		}
	}
	if w.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", fielderr.ErrInvalidInput)
	}
	return w, nil
}

func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// Submitted is a report that exists on the server. Only counters and text
// can change; it is never submitted again.
type Submitted struct {
	c *Controller

	mu     sync.Mutex
	report models.DailyReport
}

func (*Submitted) sheet() {}

// Report returns the current report.
func (s *Submitted) Report() models.DailyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Update applies a partial patch and returns the updated report.
func (s *Submitted) Update(ctx context.Context, p Patch) (models.DailyReport, error) {
	w, err := p.wire()
	if err != nil {
		return s.Report(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.c.client.UpdateReport(ctx, s.report.Date, w)
	if err != nil {
		return s.report, fmt.Errorf("update report: %w", err)
	}

	r := s.report
	r.ManualCalls = resp.ManualCalls
	r.ManualMeetings = resp.ManualMeetings
	r.ManualOrders = resp.ManualOrders
	if resp.CallsMade != 0 || resp.ShopsVisited != 0 || resp.SalesClosed != 0 {
		r.CallsMade = resp.CallsMade
		r.MeetingsDone = resp.ShopsVisited
		r.OrdersClosed = resp.SalesClosed
	}
	if w.Achievements != nil {
		r.Achievements = *w.Achievements
	}
	if w.Challenges != nil {
		r.Challenges = *w.Challenges
	}
	if w.TomorrowPlan != nil {
		r.TomorrowPlan = *w.TomorrowPlan
	}
	s.report = r
	return r, nil
}
