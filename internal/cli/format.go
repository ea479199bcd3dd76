package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiDim    = "\033[2m"
)

// useColor reports whether w is a terminal that should get ANSI colors.
func useColor(w io.Writer) bool {
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorState pads and colors an order, operation or machine state.
func colorState(w io.Writer, state string) string {
	padded := fmt.Sprintf("%-11s", state)
	if !useColor(w) {
		return padded
	}
	switch state {
	case "COMPLETED":
		return ansiGreen + padded + ansiReset
	case "IN_PROGRESS", "BUSY":
		return ansiYellow + padded + ansiReset
	case "IDLE":
		return ansiDim + padded + ansiReset
	case "FORCED":
		return ansiRed + padded + ansiReset
	}
	return padded
}

// fmtDuration renders d with its two most significant units.
func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	days := int(d / (24 * time.Hour))
	h := int(d/time.Hour) % 24
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %02dh", days, h)
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// fmtTime renders t in local time with a relative hint.
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04") + " (" + humanize.Time(t) + ")"
}

func fmtCount(n int) string {
	return humanize.Comma(int64(n))
}
