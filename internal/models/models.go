package models

import (
	"fmt"
	"time"
)

// VisitStatus represents the lifecycle state of a field visit session
type VisitStatus string

const (
	VisitIdle     VisitStatus = "idle"
	VisitStarting VisitStatus = "starting" // check-in sent, waiting for ack
	VisitActive   VisitStatus = "active"
	VisitEnding   VisitStatus = "ending" // check-out sent, waiting for ack
	VisitError    VisitStatus = "error"
)

// IsPending reports whether a server acknowledgment is outstanding
func (s VisitStatus) IsPending() bool {
	return s == VisitStarting || s == VisitEnding
}

// AttendanceStatus represents the attendance state for one business day
type AttendanceStatus string

const (
	AttendanceNotMarked AttendanceStatus = "not_marked"
	AttendancePresent   AttendanceStatus = "present"
	AttendanceLate      AttendanceStatus = "late" // checked in after the cutoff
)

// Marked reports whether the status counts as attendance for the day
func (s AttendanceStatus) Marked() bool {
	return s == AttendancePresent || s == AttendanceLate
}

// ParseAttendanceStatus maps the backend's free-form status text
func ParseAttendanceStatus(s string) AttendanceStatus {
	switch s {
	case "Present", "present", "On Time", "on_time":
		return AttendancePresent
	case "Late", "late":
		return AttendanceLate
	case "":
		return AttendanceNotMarked
	}
	// Any other recorded status still means a row exists for the day.
	return AttendancePresent
}

// LocationSample is one GPS fix
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

// String formats the sample the way the backend formats unresolved addresses
func (s LocationSample) String() string {
	return fmt.Sprintf("Lat: %.6f, Lng: %.6f", s.Latitude, s.Longitude)
}

// VisitSession is the client-side view of one customer visit
type VisitSession struct {
	ID                int64           `json:"id,omitempty"`
	CustomerName      string          `json:"customer_name"`
	Purpose           string          `json:"purpose,omitempty"`
	CheckinTime       time.Time       `json:"checkin_time"`
	CheckoutTime      *time.Time      `json:"checkout_time,omitempty"`
	Status            VisitStatus     `json:"status"`
	LastKnownLocation *LocationSample `json:"last_known_location,omitempty"`
	LastSyncAttempt   time.Time       `json:"last_sync_attempt,omitempty"`
}

// VisitRecord is one row of the server-side visit history
type VisitRecord struct {
	ID                int64      `json:"id"`
	CustomerName      string     `json:"customer_name"`
	Notes             string     `json:"notes,omitempty"`
	CheckinTime       time.Time  `json:"checkin_time"`
	CheckoutTime      *time.Time `json:"checkout_time,omitempty"`
	CheckinLatitude   float64    `json:"checkin_latitude"`
	CheckinLongitude  float64    `json:"checkin_longitude"`
	CheckoutLatitude  *float64   `json:"checkout_latitude,omitempty"`
	CheckoutLongitude *float64   `json:"checkout_longitude,omitempty"`
	Completed         bool       `json:"completed"`
}

// AttendanceRecord is the attendance row for one business day
type AttendanceRecord struct {
	ID             int64            `json:"id"`
	Date           string           `json:"date"` // YYYY-MM-DD business date
	CheckInTime    string           `json:"check_in_time"`
	PhotoReference string           `json:"photo_reference,omitempty"`
	Location       string           `json:"location,omitempty"`
	Latitude       float64          `json:"latitude"`
	Longitude      float64          `json:"longitude"`
	Status         AttendanceStatus `json:"status"`
}

// DailyReport is a salesman's end-of-day report
type DailyReport struct {
	ID             int64      `json:"id,omitempty"`
	Date           string     `json:"date"`
	Submitted      bool       `json:"submitted"`
	Achievements   string     `json:"achievements,omitempty"`
	Challenges     string     `json:"challenges,omitempty"`
	TomorrowPlan   string     `json:"tomorrow_plan,omitempty"`
	ManualCalls    int        `json:"manual_calls"`
	ManualMeetings int        `json:"manual_meetings"`
	ManualOrders   int        `json:"manual_orders"`
	CallsMade      int        `json:"calls_made"`
	MeetingsDone   int        `json:"meetings_done"`
	OrdersClosed   int        `json:"orders_closed"`
	SubmissionTime *time.Time `json:"submission_time,omitempty"`
}

// TotalCalls is the auto-derived count plus the manual adjustment
func (r DailyReport) TotalCalls() int { return r.CallsMade + r.ManualCalls }

// TotalMeetings is the auto-derived count plus the manual adjustment
func (r DailyReport) TotalMeetings() int { return r.MeetingsDone + r.ManualMeetings }

// TotalOrders is the auto-derived count plus the manual adjustment
func (r DailyReport) TotalOrders() int { return r.OrdersClosed + r.ManualOrders }

// LifecycleEvent is an app foreground/background transition
type LifecycleEvent int

const (
	Foreground LifecycleEvent = iota
	Background
)

func (e LifecycleEvent) String() string {
	if e == Background {
		return "background"
	}
	return "foreground"
}

// VisitTransition is one journaled status change of a visit session
type VisitTransition struct {
	ID           string      `json:"id"`
	VisitID      int64       `json:"visit_id,omitempty"`
	CustomerName string      `json:"customer_name,omitempty"`
	From         VisitStatus `json:"from"`
	To           VisitStatus `json:"to"`
	Trigger      string      `json:"trigger"`
	Detail       string      `json:"detail,omitempty"`
	At           time.Time   `json:"at"`
}
