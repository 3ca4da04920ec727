package report

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/syncclient"
)

type fakeClient struct {
	mu        sync.Mutex
	prefill   syncclient.ReportPrefill
	submitErr error
	calls     map[string]int
	patches   []syncclient.ReportPatch
	dates     []string
	rows      int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		prefill: syncclient.ReportPrefill{Date: "2026-03-02", AttendanceMarked: true, CallsMade: 4, MeetingsDone: 2, OrdersClosed: 1},
		calls:   make(map[string]int),
	}
}

func (f *fakeClient) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

func (f *fakeClient) ReportPrefill(context.Context) (*syncclient.ReportPrefill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["prefill"]++
	p := f.prefill
	return &p, nil
}

func (f *fakeClient) SubmitReport(_ context.Context, sub *syncclient.ReportSubmission) (*models.DailyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["submit"]++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.rows++
	id := int64(f.rows)
	f.prefill.AlreadySubmitted = true
	f.prefill.ExistingReportID = &id
	return &models.DailyReport{
		ID: id, Date: "2026-03-02", Submitted: true,
		Achievements: sub.Achievements, Challenges: sub.Challenges, TomorrowPlan: sub.TomorrowPlan,
	}, nil
}

func (f *fakeClient) UpdateReport(_ context.Context, date string, patch *syncclient.ReportPatch) (*syncclient.ReportUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	f.patches = append(f.patches, *patch)
	f.dates = append(f.dates, date)
	resp := &syncclient.ReportUpdate{ID: 1, CallsMade: 4, ShopsVisited: 2, SalesClosed: 1}
	if patch.ManualCalls != nil {
		resp.ManualCalls = *patch.ManualCalls
	}
	if patch.ManualMeetings != nil {
		resp.ManualMeetings = *patch.ManualMeetings
	}
	if patch.ManualOrders != nil {
		resp.ManualOrders = *patch.ManualOrders
	}
	return resp, nil
}

func (f *fakeClient) Report(_ context.Context, date string) (*models.DailyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	if date != "2026-03-02" || f.rows == 0 {
		return nil, nil
	}
	return &models.DailyReport{ID: 1, Date: date, Submitted: true}, nil
}

type fakeGate struct {
	marked bool
	err    error
	calls  int
}

func (g *fakeGate) IsMarkedToday(context.Context) (bool, error) {
	g.calls++
	return g.marked, g.err
}

func (g *fakeGate) BusinessDate() string { return "2026-03-02" }

var fields = Fields{Achievements: "Closed Acme", Challenges: "Traffic", TomorrowPlan: "Visit Beta"}

func TestOpenReturnsDraftWhenNotSubmitted(t *testing.T) {
	c := New(newFakeClient(), &fakeGate{marked: true})
	sheet, err := c.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	d, ok := sheet.(*Draft)
	if !ok {
		t.Fatalf("sheet = %T, want *Draft", sheet)
	}
	r := d.Report()
	if r.Submitted || r.CallsMade != 4 || r.Date != "2026-03-02" {
		t.Fatalf("report = %+v", r)
	}
}

func TestOpenReturnsSubmittedWhenAlreadySubmitted(t *testing.T) {
	fc := newFakeClient()
	fc.prefill.AlreadySubmitted = true
	ach := "done"
	fc.prefill.Achievements = &ach
	c := New(fc, &fakeGate{marked: true})

	sheet, err := c.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// A submitted day offers no Submit method at all.
	if _, ok := sheet.(interface {
		Submit(context.Context, Fields) (*Submitted, error)
	}); ok {
		t.Fatal("submitted sheet must not be submittable")
	}
	s, ok := sheet.(*Submitted)
	if !ok {
		t.Fatalf("sheet = %T, want *Submitted", sheet)
	}
	if !s.Report().Submitted || s.Report().Achievements != "done" {
		t.Fatalf("report = %+v", s.Report())
	}
}

func TestSubmitRequiresAttendanceBeforeNetwork(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, &fakeGate{marked: false})
	sheet, _ := c.Open(context.Background())
	before := fc.total()

	_, err := sheet.(*Draft).Submit(context.Background(), fields)
	if !errors.Is(err, fielderr.ErrAttendanceRequired) {
		t.Fatalf("err = %v, want ErrAttendanceRequired", err)
	}
	if fc.total() != before {
		t.Fatal("network call issued before attendance check")
	}
}

func TestSubmitGateError(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, &fakeGate{err: fielderr.ErrNetworkTimeout})
	sheet, _ := c.Open(context.Background())
	if _, err := sheet.(*Draft).Submit(context.Background(), fields); !errors.Is(err, fielderr.ErrNetworkTimeout) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmitRequiresText(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, &fakeGate{marked: true})
	sheet, _ := c.Open(context.Background())

	_, err := sheet.(*Draft).Submit(context.Background(), Fields{Achievements: "x", Challenges: "  "})
	if !errors.Is(err, fielderr.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if fc.calls["submit"] != 0 {
		t.Fatal("submit sent with blank fields")
	}
}

func TestSubmitOnce(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, &fakeGate{marked: true})
	sheet, _ := c.Open(context.Background())
	d := sheet.(*Draft)

	s, err := d.Submit(context.Background(), fields)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r := s.Report()
	if !r.Submitted || r.ID != 1 || r.Achievements != "Closed Acme" || r.CallsMade != 4 {
		t.Fatalf("report = %+v", r)
	}

	if _, err := d.Submit(context.Background(), fields); !errors.Is(err, fielderr.ErrInvalidState) {
		t.Fatalf("second submit err = %v", err)
	}
	if fc.calls["submit"] != 1 || fc.rows != 1 {
		t.Fatalf("submits = %d rows = %d", fc.calls["submit"], fc.rows)
	}

	reopened, _ := c.Open(context.Background())
	if _, ok := reopened.(*Submitted); !ok {
		t.Fatalf("reopened sheet = %T", reopened)
	}
}

func TestSubmitServerRefusals(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"attendance", fielderr.Rejected(http.StatusBadRequest, "Attendance must be marked before submitting report"), fielderr.ErrAttendanceRequired},
		{"duplicate", fielderr.Rejected(http.StatusBadRequest, "Report already submitted for today"), fielderr.ErrInvalidState},
		{"other", fielderr.Rejected(http.StatusInternalServerError, "boom"), fielderr.ErrServerRejected},
		{"timeout", fielderr.ErrNetworkTimeout, fielderr.ErrNetworkTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeClient()
			fc.submitErr = tt.err
			c := New(fc, &fakeGate{marked: true})
			sheet, _ := c.Open(context.Background())
			d := sheet.(*Draft)
			if _, err := d.Submit(context.Background(), fields); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			fc.submitErr = nil
			if _, err := d.Submit(context.Background(), fields); err != nil {
				t.Fatalf("retry after failure: %v", err)
			}
		})
	}
}

func intp(v int) *int       { return &v }
func strp(s string) *string { return &s }

func TestUpdateNeverCreatesOrUnsubmits(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, &fakeGate{marked: true})
	sheet, _ := c.Open(context.Background())
	s, err := sheet.(*Draft).Submit(context.Background(), fields)
	if err != nil {
		t.Fatal(err)
	}

	r, err := s.Update(context.Background(), Patch{ManualCalls: intp(3), Challenges: strp("Rain"), TomorrowPlan: strp("   ")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !r.Submitted || r.ManualCalls != 3 || r.TotalCalls() != 7 || r.Challenges != "Rain" || r.TomorrowPlan != "Visit Beta" {
		t.Fatalf("report = %+v", r)
	}
	if fc.rows != 1 || fc.calls["submit"] != 1 {
		t.Fatal("update created a report row")
	}

	fc.mu.Lock()
	p := fc.patches[0]
	date := fc.dates[0]
	fc.mu.Unlock()
	if date != "2026-03-02" {
		t.Errorf("patched date = %s", date)
	}
	if p.TomorrowPlan != nil || p.Achievements != nil || p.ManualMeetings != nil {
		t.Errorf("patch carried untouched fields: %+v", p)
	}
}

func TestUpdateValidation(t *testing.T) {
	fc := newFakeClient()
	fc.prefill.AlreadySubmitted = true
	c := New(fc, &fakeGate{marked: true})
	sheet, _ := c.Open(context.Background())
	s := sheet.(*Submitted)

	tests := []struct {
		name  string
		patch Patch
	}{
		{"empty", Patch{}},
		{"blank text only", Patch{Achievements: strp(" ")}},
		{"negative counter", Patch{ManualOrders: intp(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Update(context.Background(), tt.patch); !errors.Is(err, fielderr.ErrInvalidInput) {
				t.Fatalf("err = %v", err)
			}
		})
	}
	if fc.calls["update"] != 0 {
		t.Fatal("invalid patch reached the server")
	}
}

func TestGet(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, &fakeGate{marked: true})
	r, err := c.Get(context.Background(), "2026-03-02")
	if err != nil || r != nil {
		t.Fatalf("before submit: %+v, %v", r, err)
	}
	sheet, _ := c.Open(context.Background())
	sheet.(*Draft).Submit(context.Background(), fields)
	r, err = c.Get(context.Background(), "2026-03-02")
	if err != nil || r == nil || !r.Submitted {
		t.Fatalf("after submit: %+v, %v", r, err)
	}
}
