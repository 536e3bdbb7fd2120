package render

import (
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI codes kept minimal and local to the Renderer: color is a terminal
// presentation concern, not something the Broker's baked variants should
// carry (a variant gathered by the Runner has no terminal to be
// color-capable or not).
const (
	colorReset    = "\033[0m"
	colorGreen    = "\033[32m"
	colorYellow   = "\033[33m"
	colorRed      = "\033[31m"
	healthyStatus = "healthy"
)

// colorCapable reports whether standard output is an actual terminal
// (github.com/mattn/go-isatty, per SPEC_FULL.md §11) - colorizing a
// pipe or file redirect would corrupt the output for any consumer that
// isn't a human looking at a terminal.
func colorCapable() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func statusColor(status string) string {
	switch status {
	case "critical":
		return colorRed
	case "warning":
		return colorYellow
	default:
		return colorGreen
	}
}

// applyColor wraps line in the overall-status color when stdout is a
// real terminal. model is currently unused for coloring decisions but
// kept in the signature so callers don't need a separate no-color path
// for the minimal-line cases.
func applyColor(_ string, overallStatus, line string) string {
	if line == "" || !colorCapable() {
		return line
	}
	return statusColor(overallStatus) + line + colorReset
}
