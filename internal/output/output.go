// Package output provides styled terminal output helpers (success, error,
// warning, visit and report formatting) using lipgloss.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[models.VisitStatus]lipgloss.Style{
		models.VisitIdle:     lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		models.VisitStarting: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.VisitActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.VisitEnding:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.VisitError:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	statusSymbols = map[models.VisitStatus]string{
		models.VisitIdle:     "○",
		models.VisitStarting: "◔",
		models.VisitActive:   "▶",
		models.VisitEnding:   "◕",
		models.VisitError:    "✗",
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Hint prints a dimmed follow-up suggestion
func Hint(format string, args ...any) {
	fmt.Println(subtleStyle.Render(fmt.Sprintf(format, args...)))
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodePermissionDenied    = "permission_denied"
	ErrCodeLocationUnavailable = "location_unavailable"
	ErrCodeNetworkTimeout      = "network_timeout"
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeNotFound            = "not_found"
	ErrCodeServerRejected      = "server_rejected"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeAttendanceRequired  = "attendance_required"
	ErrCodeAlreadyMarked       = "already_marked"
	ErrCodeInvalidInput        = "invalid_input"
	ErrCodeInternal            = "internal"
)

// ErrorCode maps err onto a structured error code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, fielderr.ErrPermissionDenied):
		return ErrCodePermissionDenied
	case errors.Is(err, fielderr.ErrLocationUnavailable):
		return ErrCodeLocationUnavailable
	case errors.Is(err, fielderr.ErrNetworkTimeout):
		return ErrCodeNetworkTimeout
	case errors.Is(err, fielderr.ErrUnauthorized):
		return ErrCodeUnauthorized
	case errors.Is(err, fielderr.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, fielderr.ErrAttendanceRequired):
		return ErrCodeAttendanceRequired
	case errors.Is(err, fielderr.ErrAlreadyMarked):
		return ErrCodeAlreadyMarked
	case errors.Is(err, fielderr.ErrInvalidState):
		return ErrCodeInvalidState
	case errors.Is(err, fielderr.ErrInvalidInput):
		return ErrCodeInvalidInput
	case errors.Is(err, fielderr.ErrServerRejected):
		return ErrCodeServerRejected
	}
	return ErrCodeInternal
}

// JSONError outputs err as {"error":{"code":...,"message":...}}
func JSONError(err error) {
	result := map[string]any{
		"error": map[string]any{
			"code":    ErrorCode(err),
			"message": fielderr.Message(err),
		},
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// FormatStatus formats a visit status with color
func FormatStatus(s models.VisitStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// StatusBadge returns a status indicator with symbol, e.g. "▶ active"
func StatusBadge(s models.VisitStatus) string {
	symbol, ok := statusSymbols[s]
	if !ok {
		symbol = "?"
	}
	if style, ok := statusStyles[s]; ok {
		return style.Render(fmt.Sprintf("%s %s", symbol, s))
	}
	return fmt.Sprintf("%s %s", symbol, s)
}

// FormatElapsed renders a visit duration as "1h05m" or "12m"
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

// FormatVisit formats the current visit session in long form
func FormatVisit(v models.VisitSession, now time.Time) string {
	var sb strings.Builder
	if v.Status == models.VisitIdle {
		sb.WriteString(StatusBadge(v.Status))
		sb.WriteString("  no visit in progress\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "%s  %s\n", StatusBadge(v.Status), titleStyle.Render(v.CustomerName))
	if v.ID != 0 {
		fmt.Fprintf(&sb, "Visit:    #%d\n", v.ID)
	}
	if v.Purpose != "" {
		fmt.Fprintf(&sb, "Purpose:  %s\n", v.Purpose)
	}
	if !v.CheckinTime.IsZero() {
		fmt.Fprintf(&sb, "Checked in: %s (%s)\n",
			v.CheckinTime.Local().Format("15:04"), FormatElapsed(now.Sub(v.CheckinTime)))
	}
	if v.LastKnownLocation != nil {
		loc := v.LastKnownLocation
		fmt.Fprintf(&sb, "Location: %s ±%.0fm %s\n", loc.String(), loc.Accuracy,
			subtleStyle.Render(FormatTimeAgoFrom(loc.CapturedAt, now)))
	}
	if !v.LastSyncAttempt.IsZero() {
		fmt.Fprintf(&sb, "Last sync: %s\n", subtleStyle.Render(FormatTimeAgoFrom(v.LastSyncAttempt, now)))
	}
	return sb.String()
}

// FormatVisitRecord formats one visit history row on a single line
func FormatVisitRecord(r models.VisitRecord) string {
	when := r.CheckinTime.Local().Format("2006-01-02 15:04")
	state := successStyle.Render("open")
	if r.CheckoutTime != nil {
		state = subtleStyle.Render(FormatElapsed(r.CheckoutTime.Sub(r.CheckinTime)))
	}
	line := fmt.Sprintf("#%-5d %s  %s  %s", r.ID, when, titleStyle.Render(r.CustomerName), state)
	if r.Notes != "" {
		line += subtleStyle.Render("  " + r.Notes)
	}
	return line
}

// FormatTransition formats one journaled transition
func FormatTransition(t models.VisitTransition) string {
	line := fmt.Sprintf("%s  %-8s → %-8s  %s",
		t.At.Local().Format("2006-01-02 15:04:05"), t.From, t.To, subtleStyle.Render(t.Trigger))
	if t.CustomerName != "" {
		line += "  " + t.CustomerName
	}
	if t.Detail != "" {
		line += subtleStyle.Render("  (" + t.Detail + ")")
	}
	return line
}

// FormatAttendance formats the attendance state for a business date
func FormatAttendance(date string, rec *models.AttendanceRecord) string {
	if rec == nil || !rec.Status.Marked() {
		return warningStyle.Render(fmt.Sprintf("Attendance %s: not marked", date))
	}
	line := successStyle.Render(fmt.Sprintf("Attendance %s: %s at %s", date, rec.Status, rec.CheckInTime))
	if rec.Location != "" {
		line += subtleStyle.Render("  " + rec.Location)
	}
	return line
}

// ReportMarkdown renders a daily report as markdown for glamour
func ReportMarkdown(r models.DailyReport) string {
	var sb strings.Builder
	state := "draft"
	if r.Submitted {
		state = "submitted"
		if r.SubmissionTime != nil {
			state += " at " + r.SubmissionTime.Local().Format("15:04")
		}
	}
	fmt.Fprintf(&sb, "# Daily report %s\n\n_%s_\n\n", r.Date, state)

	sb.WriteString("| | Auto | Manual | Total |\n|---|---:|---:|---:|\n")
	fmt.Fprintf(&sb, "| Calls | %d | %d | %d |\n", r.CallsMade, r.ManualCalls, r.TotalCalls())
	fmt.Fprintf(&sb, "| Meetings | %d | %d | %d |\n", r.MeetingsDone, r.ManualMeetings, r.TotalMeetings())
	fmt.Fprintf(&sb, "| Orders | %d | %d | %d |\n\n", r.OrdersClosed, r.ManualOrders, r.TotalOrders())

	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", title, body)
	}
	section("Achievements", r.Achievements)
	section("Challenges", r.Challenges)
	section("Tomorrow", r.TomorrowPlan)
	return sb.String()
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	return FormatTimeAgoFrom(t, time.Now())
}

// FormatTimeAgoFrom is FormatTimeAgo relative to now
func FormatTimeAgoFrom(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nVISIT:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}
