// Package input expands text flag values given as - (stdin) or @file.
package input

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcus/fieldops/internal/fielderr"
)

// Expander expands flag values. Stdin can be consumed once per Expander.
type Expander struct {
	Stdin io.Reader

	stdinUsed bool
}

// Expand returns v, the whole of stdin for "-", or the contents of the file
// for "@path". Surrounding whitespace is trimmed from expanded text.
func (e *Expander) Expand(v string) (string, error) {
	switch {
	case v == "-":
		if e.stdinUsed {
			return "", fmt.Errorf("%w: stdin already used by another flag", fielderr.ErrInvalidInput)
		}
		e.stdinUsed = true
		r := e.Stdin
		if r == nil {
			r = os.Stdin
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case strings.HasPrefix(v, "@") && len(v) > 1:
		data, err := os.ReadFile(v[1:])
		if err != nil {
			return "", fmt.Errorf("%w: %v", fielderr.ErrInvalidInput, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return v, nil
}
