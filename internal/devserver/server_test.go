package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcus/fieldops/internal/attendance"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/location"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/permission"
	"github.com/marcus/fieldops/internal/report"
	"github.com/marcus/fieldops/internal/session"
	"github.com/marcus/fieldops/internal/syncclient"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// 09:45 IST, after the 09:30 cutoff
var fixedNow = time.Date(2026, 3, 2, 4, 15, 0, 0, time.UTC)

func startServer(t *testing.T, opts Options) (*Server, *syncclient.Client) {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Location == nil {
		opts.Location = ist
	}
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	c := syncclient.New(ts.URL, opts.Token)
	c.Timeout = 5 * time.Second
	return s, c
}

func fix(lat, lon float64) models.LocationSample {
	return models.LocationSample{Latitude: lat, Longitude: lon, Accuracy: 5, CapturedAt: fixedNow}
}

func TestHealth(t *testing.T) {
	s := New(Options{})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestVisitLifecycle(t *testing.T) {
	s, c := startServer(t, Options{})
	ctx := context.Background()

	av, err := c.ActiveVisit(ctx)
	if err != nil || av.Active {
		t.Fatalf("initial active = %+v, %v", av, err)
	}

	ack, err := c.CheckIn(ctx, syncclient.NewCheckIn("Acme", "demo", "MG Road", fix(12.9716, 77.5946)))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	_, err = c.CheckIn(ctx, syncclient.NewCheckIn("Beta", "", "", fix(12.9, 77.5)))
	var rej *fielderr.RejectedError
	if !errors.As(err, &rej) || rej.StatusCode != 400 || !strings.Contains(rej.Message, "already have an active visit") {
		t.Fatalf("second check-in = %v", err)
	}

	av, err = c.ActiveVisit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !av.Active || av.VisitID != ack.VisitID || av.CustomerName != "Acme" || av.Location == nil {
		t.Fatalf("active = %+v", av)
	}

	if err := c.PushLocation(ctx, fix(12.98, 77.60)); err != nil {
		t.Fatalf("PushLocation: %v", err)
	}

	res, err := c.CheckOut(ctx, syncclient.NewCheckOut(ack.VisitID, fix(12.98, 77.60)))
	if err != nil || res.SoftSuccess {
		t.Fatalf("CheckOut = %+v, %v", res, err)
	}
	res, err = c.CheckOut(ctx, syncclient.NewCheckOut(ack.VisitID, fix(12.98, 77.60)))
	if err != nil || !res.SoftSuccess {
		t.Fatalf("repeat CheckOut should be soft success: %+v, %v", res, err)
	}

	hist, err := c.VisitHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || !hist[0].Completed || hist[0].CheckoutTime == nil {
		t.Fatalf("history = %+v", hist)
	}
	if pts := s.Locations(); len(pts) != 2 || pts[1].Latitude != 12.98 {
		t.Errorf("locations = %+v", pts)
	}
}

func TestLocationWithoutVisitIsIgnored(t *testing.T) {
	s, c := startServer(t, Options{})
	if err := c.PushLocation(context.Background(), fix(1, 2)); err != nil {
		t.Fatalf("PushLocation: %v", err)
	}
	if n := len(s.Locations()); n != 0 {
		t.Errorf("locations = %d, want 0", n)
	}
}

func TestInvalidCoordinatesGetFieldList(t *testing.T) {
	s := New(Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"customername":"Acme","latitude":123,"longitude":0,"accuracy":1}`
	resp, err := http.Post(ts.URL+"/api/tracking/visits/check-in", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Detail []struct {
			Loc []string `json:"loc"`
		} `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Detail) != 1 || out.Detail[0].Loc[1] != "Latitude" {
		t.Errorf("detail = %+v", out.Detail)
	}
}

func TestTokenRequired(t *testing.T) {
	_, c := startServer(t, Options{Token: "secret"})
	c.Token = "wrong"
	_, err := c.ActiveVisit(context.Background())
	if !errors.Is(err, fielderr.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	c.Token = "secret"
	if _, err := c.ActiveVisit(context.Background()); err != nil {
		t.Fatalf("with token: %v", err)
	}
}

func newGate(c *syncclient.Client) *attendance.Gate {
	return attendance.New(attendance.Deps{
		Client:      c,
		Locator:     &location.StaticLocator{Latitude: 12.97, Longitude: 77.59, Accuracy: 10},
		Permissions: permission.NewGate(permission.StaticPlatform{}),
	}, attendance.Options{Location: ist, Now: func() time.Time { return fixedNow }})
}

func TestAttendanceOncePerDay(t *testing.T) {
	_, c := startServer(t, Options{})
	ctx := context.Background()

	rec, err := c.AttendanceToday(ctx)
	if err != nil || rec != nil {
		t.Fatalf("before = %+v, %v", rec, err)
	}

	gate := newGate(c)
	rec, err = gate.CheckIn(ctx, strings.NewReader("jpeg"), "selfie.jpg")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if rec.Status != models.AttendanceLate || rec.Date != "2026-03-02" || rec.CheckInTime != "09:45:00" {
		t.Errorf("record = %+v", rec)
	}

	// A fresh gate has no cache and must learn from the server.
	if _, err := newGate(c).CheckIn(ctx, strings.NewReader("jpeg"), "again.jpg"); !errors.Is(err, fielderr.ErrAlreadyMarked) {
		t.Fatalf("second gate CheckIn = %v", err)
	}

	_, err = c.CheckInAttendance(ctx, &syncclient.AttendanceCheckIn{
		Photo: strings.NewReader("jpeg"), Latitude: 1, Longitude: 1, Time: "10:00:00",
	})
	var rej *fielderr.RejectedError
	if !errors.As(err, &rej) || rej.StatusCode != 400 || !strings.Contains(rej.Message, "Already checked in") {
		t.Fatalf("raw second check-in = %v", err)
	}
}

func TestAttendanceBeforeCutoffIsPresent(t *testing.T) {
	early := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) // 08:30 IST
	_, c := startServer(t, Options{Now: func() time.Time { return early }})

	rec, err := c.CheckInAttendance(context.Background(), &syncclient.AttendanceCheckIn{
		Photo: strings.NewReader("jpeg"), Latitude: 1, Longitude: 1, Time: "08:30:00",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.AttendancePresent {
		t.Errorf("status = %s, want present", rec.Status)
	}
}

func TestAttendancePhotoRequired(t *testing.T) {
	s := New(Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var buf bytes.Buffer
	buf.WriteString("--x\r\nContent-Disposition: form-data; name=\"latitude\"\r\n\r\n1\r\n--x--\r\n")
	resp, err := http.Post(ts.URL+"/api/attendance/check-in", "multipart/form-data; boundary=x", &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(data), "Photo required") {
		t.Fatalf("status = %d body = %s", resp.StatusCode, data)
	}
}

func TestDailyReportRules(t *testing.T) {
	_, c := startServer(t, Options{})
	ctx := context.Background()
	gate := newGate(c)
	reports := report.New(c, gate)

	fields := report.Fields{Achievements: "Closed Acme", Challenges: "Traffic", TomorrowPlan: "Beta"}

	// The server refuses before attendance even when the client is bypassed.
	_, err := c.SubmitReport(ctx, &syncclient.ReportSubmission{
		Achievements: "a", Challenges: "b", TomorrowPlan: "c",
	})
	var rej *fielderr.RejectedError
	if !errors.As(err, &rej) || !strings.Contains(rej.Message, "attendance") {
		t.Fatalf("submit before attendance = %v", err)
	}

	sheet, err := reports.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	draft, ok := sheet.(*report.Draft)
	if !ok {
		t.Fatalf("sheet = %T, want draft", sheet)
	}
	if _, err := draft.Submit(ctx, fields); !errors.Is(err, fielderr.ErrAttendanceRequired) {
		t.Fatalf("Submit without attendance = %v", err)
	}

	if _, err := gate.CheckIn(ctx, strings.NewReader("jpeg"), "selfie.jpg"); err != nil {
		t.Fatal(err)
	}
	sheet, err = reports.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	submitted, err := sheet.(*report.Draft).Submit(ctx, fields)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !submitted.Report().Submitted {
		t.Fatal("report should be submitted")
	}

	sheet, err = reports.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	again, ok := sheet.(*report.Submitted)
	if !ok {
		t.Fatalf("reopened sheet = %T, want submitted", sheet)
	}
	calls := 3
	updated, err := again.Update(ctx, report.Patch{ManualCalls: &calls})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ManualCalls != 3 || !updated.Submitted {
		t.Errorf("updated = %+v", updated)
	}

	stored, err := reports.Get(ctx, "2026-03-02")
	if err != nil || stored == nil {
		t.Fatalf("Get = %+v, %v", stored, err)
	}
	if stored.Achievements != "Closed Acme" || stored.ManualCalls != 3 {
		t.Errorf("stored = %+v", stored)
	}
	if missing, err := reports.Get(ctx, "2026-03-01"); err != nil || missing != nil {
		t.Errorf("other day = %+v, %v", missing, err)
	}

	_, err = c.SubmitReport(ctx, &syncclient.ReportSubmission{Achievements: "a", Challenges: "b", TomorrowPlan: "c"})
	if !errors.As(err, &rej) || !strings.Contains(rej.Message, "already submitted") {
		t.Fatalf("second submit = %v", err)
	}
}

func TestUpdateMissingReportIs404(t *testing.T) {
	_, c := startServer(t, Options{})
	n := 1
	_, err := c.UpdateReport(context.Background(), "2026-03-02", &syncclient.ReportPatch{ManualCalls: &n})
	if !errors.Is(err, fielderr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestSessionAgainstServer(t *testing.T) {
	s, c := startServer(t, Options{})
	ctx := context.Background()
	ctrl := session.New(session.Deps{
		Client:      c,
		Locator:     &location.StaticLocator{Latitude: 12.97, Longitude: 77.59, Accuracy: 8},
		Permissions: permission.NewGate(permission.StaticPlatform{}),
	}, session.Options{Interval: 20 * time.Millisecond})
	defer ctrl.Close()

	snap, err := ctrl.StartVisit(ctx, "Acme", "demo")
	if err != nil || snap.Status != models.VisitActive {
		t.Fatalf("StartVisit = %+v, %v", snap, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Locations()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(s.Locations()) < 3 {
		t.Fatalf("sampler pushed %d points", len(s.Locations()))
	}

	// The server closes the visit on its own; ending locally still succeeds.
	if n := s.CloseOpenVisits(); n != 1 {
		t.Fatalf("closed %d visits", n)
	}
	snap, err = ctrl.EndVisit(ctx)
	if err != nil || snap.Status != models.VisitIdle {
		t.Fatalf("EndVisit = %+v, %v", snap, err)
	}

	after := len(s.Locations())
	time.Sleep(100 * time.Millisecond)
	if got := len(s.Locations()); got != after {
		t.Errorf("locations grew after end: %d -> %d", after, got)
	}
}
