// Package ctl implements the client-side commands for transctl.
// It talks to a running transitiond over HTTP and WebSocket and renders the results to the terminal.
package ctl

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

const rule = "─"

// colorEnabled reports whether stdout is a terminal. When output is piped
// or redirected, ANSI escape codes are suppressed.
func colorEnabled() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// stateColor returns the ANSI color code for a lifecycle or fallback state.
func stateColor(state string) string {
	if !colorEnabled() {
		return ""
	}
	switch strings.ToUpper(strings.ReplaceAll(state, "-", "_")) {
	case "IDLE", "NORMAL":
		return green
	case "PREPARING", "RECOVERING":
		return yellow
	case "IN_PROGRESS":
		return blue
	case "FALLBACK":
		return red
	case "BOOTING":
		return dim
	default:
		return white
	}
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return color + text + reset
}

// header returns a bold section header, or plain text when color is off.
func header(title string) string {
	if colorEnabled() {
		return bold + title + reset
	}
	return title
}

func divider(width int) string {
	return colorize(dim, "  "+strings.Repeat(rule, width))
}

// field prints one aligned "label: value" line.
func field(label string, val any) {
	fmt.Printf("  %s %v\n", colorize(dim, padRight(label+":", 14)), val)
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// formatDuration renders a time.Duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatMs renders a millisecond count, switching to seconds above 10s.
func formatMs(ms float64) string {
	if ms >= 10_000 {
		return fmt.Sprintf("%.1fs", ms/1000)
	}
	return fmt.Sprintf("%.0fms", ms)
}

func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func yesNo(b bool) string {
	if b {
		return colorize(green, "yes")
	}
	return colorize(dim, "no")
}

// formatBytes renders a byte count as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// table collects rows and prints them with columns sized to fit. Widths
// are measured on the plain text, so cells must not carry color codes.
type table struct {
	indent string
	head   []string
	rows   [][]string
	right  map[int]bool
}

func newTable(indent string, head ...string) *table {
	return &table{indent: indent, head: head, right: map[int]bool{}}
}

func (t *table) alignRight(cols ...int) {
	for _, c := range cols {
		t.right[c] = true
	}
}

func (t *table) row(cells ...string) { t.rows = append(t.rows, cells) }

func (t *table) flush() {
	widths := make([]int, len(t.head))
	for i, h := range t.head {
		widths[i] = len(h)
	}
	for _, r := range t.rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			widths[i] = max(widths[i], len(r[i]))
		}
	}
	line := func(cells []string, color string) {
		var b strings.Builder
		b.WriteString(t.indent)
		for i, w := range widths {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			if t.right[i] {
				c = padLeft(c, w)
			} else if i < len(widths)-1 {
				c = padRight(c, w)
			}
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(c)
		}
		fmt.Println(colorize(color, strings.TrimRight(b.String(), " ")))
	}
	line(t.head, dim)
	for _, r := range t.rows {
		line(r, "")
	}
	t.rows = nil
}
