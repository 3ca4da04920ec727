package devserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

type reportRow struct {
	ID              int64      `json:"id"`
	ReportDate      string     `json:"report_date"`
	CallsMade       int        `json:"calls_made"`
	ShopsVisited    int        `json:"shops_visited"`
	SalesClosed     int        `json:"sales_closed"`
	Achievements    string     `json:"achievements"`
	Challenges      string     `json:"challenges"`
	TomorrowPlan    string     `json:"tomorrow_plan"`
	ReportNotes     string     `json:"report_notes,omitempty"`
	ManualCalls     int        `json:"manual_calls"`
	ManualMeetings  int        `json:"manual_meetings"`
	ManualOrders    int        `json:"manual_orders"`
	ReportSubmitted bool       `json:"report_submitted"`
	SubmissionTime  *time.Time `json:"submission_time"`
	AttendanceID    int64      `json:"attendance_id"`
}

type reportBody struct {
	Achievements string `json:"achievements"`
	Challenges   string `json:"challenges"`
	TomorrowPlan string `json:"tomorrow_plan"`
	ReportNotes  string `json:"report_notes"`
}

// metricsLocked derives the day's counters from visit activity.
func (s *Server) metricsLocked(date string) (calls, meetings, orders int) {
	for _, v := range s.visits {
		if v.CheckinTime.In(s.opts.Location).Format(time.DateOnly) != date {
			continue
		}
		calls++
		if v.CheckoutTime != nil {
			meetings++
		}
	}
	return calls, meetings, 0
}

func (s *Server) reportPrefill(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := s.today()
	calls, meetings, orders := s.metricsLocked(date)

	out := fiber.Map{
		"date":               date,
		"attendance_marked":  false,
		"attendance_id":      nil,
		"already_submitted":  false,
		"existing_report_id": nil,
		"calls_made":         calls,
		"meetings_done":      meetings,
		"orders_closed":      orders,
		"manual_calls":       0,
		"manual_meetings":    0,
		"manual_orders":      0,
		"achievements":       nil,
		"challenges":         nil,
		"tomorrow_plan":      nil,
		"submission_time":    nil,
	}
	if att := s.attendance[date]; att != nil {
		out["attendance_marked"] = true
		out["attendance_id"] = att.ID
	}
	if r := s.reports[date]; r != nil {
		out["already_submitted"] = r.ReportSubmitted
		out["existing_report_id"] = r.ID
		out["calls_made"] = r.CallsMade
		out["meetings_done"] = r.ShopsVisited
		out["orders_closed"] = r.SalesClosed
		out["manual_calls"] = r.ManualCalls
		out["manual_meetings"] = r.ManualMeetings
		out["manual_orders"] = r.ManualOrders
		out["achievements"] = r.Achievements
		out["challenges"] = r.Challenges
		out["tomorrow_plan"] = r.TomorrowPlan
		if r.SubmissionTime != nil {
			out["submission_time"] = r.SubmissionTime.UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(out)
}

func (s *Server) submitReport(c *fiber.Ctx) error {
	var body reportBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	date := s.today()
	att := s.attendance[date]
	if att == nil {
		return fiber.NewError(fiber.StatusBadRequest, "You must mark attendance before submitting daily report")
	}
	if r := s.reports[date]; r != nil && r.ReportSubmitted {
		return fiber.NewError(fiber.StatusBadRequest, "Daily report already submitted for today. Reports cannot be edited.")
	}
	required := []struct{ value, msg string }{
		{body.Achievements, "Achievements field is required"},
		{body.Challenges, "Challenges field is required"},
		{body.TomorrowPlan, "Tomorrow's plan is required"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fiber.NewError(fiber.StatusBadRequest, r.msg)
		}
	}

	calls, meetings, orders := s.metricsLocked(date)
	now := s.opts.Now().UTC()
	row := &reportRow{
		ID:              s.id(),
		ReportDate:      date,
		CallsMade:       calls,
		ShopsVisited:    meetings,
		SalesClosed:     orders,
		Achievements:    strings.TrimSpace(body.Achievements),
		Challenges:      strings.TrimSpace(body.Challenges),
		TomorrowPlan:    strings.TrimSpace(body.TomorrowPlan),
		ReportNotes:     strings.TrimSpace(body.ReportNotes),
		ReportSubmitted: true,
		SubmissionTime:  &now,
		AttendanceID:    att.ID,
	}
	s.reports[date] = row
	return c.JSON(row)
}

func (s *Server) getReport(c *fiber.Ctx) error {
	date, err := time.Parse(time.DateOnly, c.Params("date"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
	}
	s.mu.Lock()
	row := s.reports[date.Format(time.DateOnly)]
	s.mu.Unlock()
	if row == nil {
		return c.JSON(nil)
	}
	return c.JSON(row)
}

func (s *Server) updateReport(c *fiber.Ctx) error {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	date := c.Params("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		date = s.today()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.reports[date]
	if row == nil {
		return fiber.NewError(fiber.StatusNotFound, "No report found for this date")
	}

	var fields fieldErrors
	counter := func(key string, dst *int) {
		raw, ok := body[key]
		if !ok {
			return
		}
		n, ok := toInt(raw)
		if !ok || n < 0 {
			fields = append(fields, fiber.Map{"loc": []string{"body", key}, "msg": "must be a non-negative integer", "type": "value_error"})
			return
		}
		*dst = n
	}
	text := func(key string, dst *string) {
		if v, ok := body[key].(string); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	// Validate first so a bad field leaves the row untouched.
	next := *row
	counter("manual_calls", &next.ManualCalls)
	counter("manual_meetings", &next.ManualMeetings)
	counter("manual_orders", &next.ManualOrders)
	if len(fields) > 0 {
		return fields
	}
	text("achievements", &next.Achievements)
	text("challenges", &next.Challenges)
	text("tomorrow_plan", &next.TomorrowPlan)
	*row = next

	return c.JSON(fiber.Map{
		"id":              row.ID,
		"calls_made":      row.CallsMade,
		"manual_calls":    row.ManualCalls,
		"shops_visited":   row.ShopsVisited,
		"manual_meetings": row.ManualMeetings,
		"sales_closed":    row.SalesClosed,
		"manual_orders":   row.ManualOrders,
		"message":         "Report updated successfully",
	})
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
