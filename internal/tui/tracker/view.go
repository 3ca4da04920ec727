package tracker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/models"
	"github.com/marcus/fieldops/internal/output"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}
	if m.ShowHelp {
		return m.renderHelp()
	}

	visitHeight := 9
	journalHeight := m.Height - visitHeight - 2
	visit := m.renderVisitPanel(visitHeight)
	journal := m.renderJournalPanel(journalHeight)

	return lipgloss.JoinVertical(lipgloss.Left, visit, journal, m.renderFooter())
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("fieldops track (resize for full view)\n\n")
	s.WriteString(m.statusLine())
	s.WriteString("\n")
	if v := m.Snap.Visit; v != nil {
		s.WriteString(v.CustomerName)
		s.WriteString("\n")
	}
	s.WriteString("\nq:quit s:start e:end ?:help")
	return s.String()
}

func (m Model) statusLine() string {
	line := formatStatus(m.Snap.Status)
	if m.Snap.Status.IsPending() {
		line = m.spinner.View() + " " + line
	}
	if m.Snap.Sampling {
		line += " " + samplingBadge.Render("GPS")
	}
	if m.Background {
		line += " " + backgroundBadge.Render("BACKGROUND")
	}
	return line
}

// renderVisitPanel renders the current visit
func (m Model) renderVisitPanel(height int) string {
	var content strings.Builder
	content.WriteString(m.statusLine())
	content.WriteString("\n")

	now := m.opts.Now()
	if v := m.Snap.Visit; v != nil {
		fmt.Fprintf(&content, "%s", titleStyle.Render(v.CustomerName))
		if v.ID != 0 {
			fmt.Fprintf(&content, "  #%d", v.ID)
		}
		if v.Purpose != "" {
			content.WriteString(subtleStyle.Render("  " + v.Purpose))
		}
		content.WriteString("\n")
		if !v.CheckinTime.IsZero() {
			fmt.Fprintf(&content, "On site %s since %s\n",
				output.FormatElapsed(now.Sub(v.CheckinTime)), v.CheckinTime.Local().Format("15:04"))
		}
		if loc := v.LastKnownLocation; loc != nil {
			fmt.Fprintf(&content, "%s ±%.0fm %s\n", loc.String(), loc.Accuracy,
				timestampStyle.Render(output.FormatTimeAgoFrom(loc.CapturedAt, now)))
		}
		if !v.LastSyncAttempt.IsZero() {
			content.WriteString(subtleStyle.Render("last push " + output.FormatTimeAgoFrom(v.LastSyncAttempt, now)))
			content.WriteString("\n")
		}
	} else {
		content.WriteString(subtleStyle.Render("No visit in progress. Press s to start one."))
		content.WriteString("\n")
	}

	if m.Prompting {
		content.WriteString("\nCustomer[/purpose]: ")
		content.WriteString(m.input.View())
		content.WriteString("\n")
	} else if m.Err != nil {
		content.WriteString(errorStyle.Render(fielderr.Message(m.Err)))
		content.WriteString("\n")
	}

	return m.wrapPanel("VISIT", content.String(), height, true)
}

// renderJournalPanel renders recent transitions, newest first
func (m Model) renderJournalPanel(height int) string {
	var content strings.Builder
	if len(m.Transitions) == 0 {
		content.WriteString(subtleStyle.Render("No transitions yet"))
		content.WriteString("\n")
	}
	for i := len(m.Transitions) - 1; i >= 0; i-- {
		content.WriteString(m.formatTransition(m.Transitions[i]))
		content.WriteString("\n")
	}
	return m.wrapPanel("JOURNAL", content.String(), height, false)
}

func (m Model) formatTransition(t models.VisitTransition) string {
	line := fmt.Sprintf("%s %s → %s %s",
		timestampStyle.Render(t.At.Local().Format("15:04:05")),
		formatStatus(t.From), formatStatus(t.To), subtleStyle.Render(t.Trigger))
	if t.CustomerName != "" {
		line += " " + t.CustomerName
	}
	return line
}

// renderFooter renders key help plus refresh and reconcile times
func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit s:start e:end b/f:bg/fg r:reconcile ?:help")

	right := ""
	if m.LastAction != "" {
		right += subtleStyle.Render(m.LastAction) + "  "
	}
	if m.opts.NextReconcile != nil {
		if next := m.opts.NextReconcile(); !next.IsZero() {
			right += timestampStyle.Render("sync " + next.Local().Format("15:04")) + "  "
		}
	}
	if !m.LastRefresh.IsZero() {
		right += timestampStyle.Render(m.LastRefresh.Format("15:04:05"))
	}

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(right) - 2
	if padding < 1 {
		return ansi.Truncate(keys, m.Width, "…")
	}
	return " " + keys + strings.Repeat(" ", padding) + right
}

// renderHelp renders the key reference
func (m Model) renderHelp() string {
	help := `
FIELDOPS TRACK

  s      start a visit (type "customer/purpose", enter to send)
  e      end the active visit
  b      simulate moving to the background
  f      return to the foreground (re-checks the server)
  r      reconcile with the server now
  ?      toggle this help
  q      quit

GPS pushes run only while a visit is active. In the background they pause
unless background tracking is enabled.
`
	return m.wrapPanel("HELP", help, m.Height, true)
}

// wrapPanel wraps content in a panel with title and border
func (m Model) wrapPanel(title, content string, height int, active bool) string {
	style := panelStyle
	if active {
		style = activePanelStyle
	}
	contentWidth := m.Width - 4

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	contentHeight := height - 3
	if contentHeight < 1 {
		contentHeight = 1
	}
	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}
	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, panelTitleStyle.Render(title), strings.Join(lines, "\n"))
	return style.Width(m.Width - 2).Render(inner)
}
