package syncclient

import (
	"context"
	"net/url"

	"github.com/marcus/fieldops/internal/models"
)

const (
	pathReportToday = "/api/sales/salesman/daily-report/today"
	pathReport      = "/api/sales/salesman/daily-report"
)

// ReportPrefill is the body of GET daily-report/today.
type ReportPrefill struct {
	Date             string    `json:"date"`
	AttendanceMarked bool      `json:"attendance_marked"`
	AttendanceID     *int64    `json:"attendance_id"`
	AlreadySubmitted bool      `json:"already_submitted"`
	ExistingReportID *int64    `json:"existing_report_id"`
	CallsMade        int       `json:"calls_made"`
	MeetingsDone     int       `json:"meetings_done"`
	OrdersClosed     int       `json:"orders_closed"`
	ManualCalls      int       `json:"manual_calls"`
	ManualMeetings   int       `json:"manual_meetings"`
	ManualOrders     int       `json:"manual_orders"`
	Achievements     *string   `json:"achievements"`
	Challenges       *string   `json:"challenges"`
	TomorrowPlan     *string   `json:"tomorrow_plan"`
	SubmissionTime   *flexTime `json:"submission_time"`
}

// Report converts the prefill into the report model.
func (p *ReportPrefill) Report() models.DailyReport {
	r := models.DailyReport{
		Date:           p.Date,
		Submitted:      p.AlreadySubmitted,
		CallsMade:      p.CallsMade,
		MeetingsDone:   p.MeetingsDone,
		OrdersClosed:   p.OrdersClosed,
		ManualCalls:    p.ManualCalls,
		ManualMeetings: p.ManualMeetings,
		ManualOrders:   p.ManualOrders,
		SubmissionTime: p.SubmissionTime.ptr(),
	}
	if p.ExistingReportID != nil {
		r.ID = *p.ExistingReportID
	}
	if p.Achievements != nil {
		r.Achievements = *p.Achievements
	}
	if p.Challenges != nil {
		r.Challenges = *p.Challenges
	}
	if p.TomorrowPlan != nil {
		r.TomorrowPlan = *p.TomorrowPlan
	}
	return r
}

// ReportSubmission is the body for POST daily-report.
type ReportSubmission struct {
	Achievements string `json:"achievements" validate:"required,max=5000"`
	Challenges   string `json:"challenges" validate:"required,max=5000"`
	TomorrowPlan string `json:"tomorrow_plan" validate:"required,max=5000"`
	ReportNotes  string `json:"report_notes,omitempty" validate:"max=5000"`
}

// submittedReport is the created report as the backend serializes it.
type submittedReport struct {
	ID              int64     `json:"id"`
	ReportDate      string    `json:"report_date"`
	CallsMade       int       `json:"calls_made"`
	ShopsVisited    int       `json:"shops_visited"`
	SalesClosed     int       `json:"sales_closed"`
	Achievements    string    `json:"achievements"`
	Challenges      string    `json:"challenges"`
	TomorrowPlan    string    `json:"tomorrow_plan"`
	ManualCalls     int       `json:"manual_calls"`
	ManualMeetings  int       `json:"manual_meetings"`
	ManualOrders    int       `json:"manual_orders"`
	ReportSubmitted bool      `json:"report_submitted"`
	SubmissionTime  *flexTime `json:"submission_time"`
}

func (r *submittedReport) report() *models.DailyReport {
	return &models.DailyReport{
		ID:             r.ID,
		Date:           r.ReportDate,
		Submitted:      r.ReportSubmitted,
		Achievements:   r.Achievements,
		Challenges:     r.Challenges,
		TomorrowPlan:   r.TomorrowPlan,
		ManualCalls:    r.ManualCalls,
		ManualMeetings: r.ManualMeetings,
		ManualOrders:   r.ManualOrders,
		CallsMade:      r.CallsMade,
		MeetingsDone:   r.ShopsVisited,
		OrdersClosed:   r.SalesClosed,
		SubmissionTime: r.SubmissionTime.ptr(),
	}
}

// ReportPatch is the partial body for PATCH daily-report/{date}. Only
// manual counters and text fields exist here; there is no way to express a
// change to the submitted flag.
type ReportPatch struct {
	ManualCalls    *int    `json:"manual_calls,omitempty" validate:"omitempty,gte=0"`
	ManualMeetings *int    `json:"manual_meetings,omitempty" validate:"omitempty,gte=0"`
	ManualOrders   *int    `json:"manual_orders,omitempty" validate:"omitempty,gte=0"`
	Achievements   *string `json:"achievements,omitempty" validate:"omitempty,max=5000"`
	Challenges     *string `json:"challenges,omitempty" validate:"omitempty,max=5000"`
	TomorrowPlan   *string `json:"tomorrow_plan,omitempty" validate:"omitempty,max=5000"`
}

// Empty reports whether the patch changes nothing.
func (p *ReportPatch) Empty() bool {
	return p.ManualCalls == nil && p.ManualMeetings == nil && p.ManualOrders == nil &&
		p.Achievements == nil && p.Challenges == nil && p.TomorrowPlan == nil
}

// ReportUpdate is the response of PATCH daily-report/{date}.
type ReportUpdate struct {
	ID             int64  `json:"id"`
	CallsMade      int    `json:"calls_made"`
	ManualCalls    int    `json:"manual_calls"`
	ShopsVisited   int    `json:"shops_visited"`
	ManualMeetings int    `json:"manual_meetings"`
	SalesClosed    int    `json:"sales_closed"`
	ManualOrders   int    `json:"manual_orders"`
	Message        string `json:"message"`
}

// ReportPrefill loads today's report screen data.
func (c *Client) ReportPrefill(ctx context.Context) (*ReportPrefill, error) {
	var resp ReportPrefill
	if err := c.do(ctx, "report-today", "GET", pathReportToday, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitReport creates today's report.
func (c *Client) SubmitReport(ctx context.Context, sub *ReportSubmission) (*models.DailyReport, error) {
	if err := c.check(sub); err != nil {
		return nil, err
	}
	var resp submittedReport
	if err := c.do(ctx, "report-submit", "POST", pathReport, sub, &resp); err != nil {
		return nil, err
	}
	r := resp.report()
	r.Submitted = true
	return r, nil
}

// Report returns the stored report for date (YYYY-MM-DD), or nil when none exists.
func (c *Client) Report(ctx context.Context, date string) (*models.DailyReport, error) {
	var resp *submittedReport
	if err := c.do(ctx, "report-get", "GET", pathReport+"/"+url.PathEscape(date), nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil || resp.ID == 0 {
		return nil, nil
	}
	return resp.report(), nil
}

// UpdateReport applies a partial patch to the report for date (YYYY-MM-DD).
func (c *Client) UpdateReport(ctx context.Context, date string, patch *ReportPatch) (*ReportUpdate, error) {
	if err := c.check(patch); err != nil {
		return nil, err
	}
	var resp ReportUpdate
	if err := c.do(ctx, "report-update", "PATCH", pathReport+"/"+url.PathEscape(date), patch, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
