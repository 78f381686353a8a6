package cli

import (
	"fmt"
	"io"
	"os"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// colorsEnabled is cleared by NO_COLOR, a non-terminal stdout or --no-ansi.
var colorsEnabled = stdoutIsTerminal() && os.Getenv("NO_COLOR") == ""

func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// paint wraps s in an ANSI sequence when colors are enabled.
func paint(code, s string) string {
	if !colorsEnabled {
		return s
	}
	return code + s + ansiReset
}

func printMark(w io.Writer, mark, code, msg string) {
	fmt.Fprintf(w, "  %s %s\n", paint(code, mark), msg)
}

func printSetupStep(w io.Writer, msg string)    { printMark(w, "⏳", ansiCyan, msg) }
func printSetupSuccess(w io.Writer, msg string) { printMark(w, "✓", ansiGreen, msg) }
func printFailure(w io.Writer, msg string)      { printMark(w, "✗", ansiRed, msg) }

// formatDuration renders d as "850ms", "12.3s" or "4m 5s".
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
