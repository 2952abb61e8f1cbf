package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
	colorRed      = "\033[91m"
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func PrintBanner(w io.Writer) {
	banner := `
   ______                __           __
  / ____/___  ____  ____/ /_  _______/ /_____  _____
 / /   / __ \/ __ \/ __  / / / / ___/ __/ __ \/ ___/
/ /___/ /_/ / / / / /_/ / /_/ / /__/ /_/ /_/ / /
\____/\____/_/ /_/\__,_/\__,_/\___/\__/\____/_/

        >> HTTP + BROWSER TASK ORCHESTRATOR <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// Colorize wraps a run status for terminal output.
func Colorize(status string) string {
	if !IsTerminal() {
		return status
	}
	switch status {
	case "completed":
		return colorNeonCyan + status + colorReset
	case "cancelled":
		return colorNeonMag + status + colorReset
	default:
		return colorRed + status + colorReset
	}
}
