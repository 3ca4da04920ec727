package tracker

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/fieldops/internal/models"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	pendingStyle   = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)

	backgroundBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(warningColor).
			Padding(0, 1)

	samplingBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(successColor).
			Padding(0, 1)

	statusStyles = map[models.VisitStatus]lipgloss.Style{
		models.VisitIdle:     lipgloss.NewStyle().Foreground(mutedColor),
		models.VisitStarting: lipgloss.NewStyle().Foreground(warningColor),
		models.VisitActive:   lipgloss.NewStyle().Foreground(successColor).Bold(true),
		models.VisitEnding:   lipgloss.NewStyle().Foreground(warningColor),
		models.VisitError:    lipgloss.NewStyle().Foreground(errorColor),
	}
)

// formatStatus renders a status with color
func formatStatus(s models.VisitStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}
