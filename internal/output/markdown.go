package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth is the stdout width, then $COLUMNS, then fallback (80 when
// fallback is not positive).
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if w, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && w > 0 {
		return w
	}
	if fallback > 0 {
		return fallback
	}
	return 80
}

// RenderMarkdown renders a report sheet for the current terminal.
func RenderMarkdown(text string) (string, error) {
	return RenderMarkdownWithWidth(text, TerminalWidth(0))
}

// RenderMarkdownWithWidth wraps at width (at least 20 columns). Piped output
// gets glamour's plain "notty" style.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(width, 20))}
	if IsTerminal(os.Stdout) {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	return strings.TrimRight(out, "\n"), err
}
