// Package output provides formatted terminal output for command results,
// task events and batch runs.
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/eugenetaranov/dasctl/internal/runner"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Stats holds batch statistics for output.
type Stats interface {
	GetOK() int
	GetChanged() int
	GetFailed() int
	GetSkipped() int
	GetDuration() time.Duration
}

// Output handles formatted output. It is safe for concurrent use, so it
// can serve as a listener for commands running on a pool.
type Output struct {
	mu       sync.Mutex
	w        io.Writer
	useColor bool
	debug    bool
}

// Ensure Output implements runner.Listener.
var _ runner.Listener = (*Output)(nil)

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// BatchStart prints the batch start banner.
func (o *Output) BatchStart(name, server string) {
	o.printf("\n%s %s %s\n", o.color(colorBold, "BATCH"), name, o.color(colorGray, "→ "+server))
	if o.debug {
		o.printf("%s\n", strings.Repeat("-", 60))
	}
}

// BatchEnd prints the batch summary.
func (o *Output) BatchEnd(stats Stats) {
	o.printf("\n%s ", o.color(colorBold, "RECAP"))

	ok := o.color(colorGreen, fmt.Sprintf("ok=%d", stats.GetOK()))
	changed := o.color(colorYellow, fmt.Sprintf("changed=%d", stats.GetChanged()))
	failed := o.color(colorRed, fmt.Sprintf("failed=%d", stats.GetFailed()))
	skipped := o.color(colorCyan, fmt.Sprintf("skipped=%d", stats.GetSkipped()))

	o.printf("%s %s %s %s", ok, changed, failed, skipped)
	o.printf(" %s\n", o.color(colorGray, fmt.Sprintf("(%.2fs)", stats.GetDuration().Seconds())))
}

// StepResult prints one step result in a single line.
// Format: [indicator] name, then the message in debug mode or on failure.
func (o *Output) StepResult(name, status, message string) {
	var indicator string
	var statusColor string

	switch {
	case strings.HasPrefix(status, "ok"):
		indicator = "✓"
		statusColor = colorGreen
	case strings.HasPrefix(status, "changed"):
		indicator = "✓"
		statusColor = colorYellow
	case strings.HasPrefix(status, "skipped"):
		indicator = "○"
		statusColor = colorCyan
	case strings.HasPrefix(status, "failed"):
		indicator = "✗"
		statusColor = colorRed
	default:
		indicator = "?"
		statusColor = colorGray
	}

	o.printf("  %s %s", o.color(statusColor, indicator), name)
	if status != "ok" && status != "changed" {
		o.printf(" %s", o.color(statusColor, "("+status+")"))
	}
	o.printf("\n")

	if message != "" && (o.debug || strings.HasPrefix(status, "failed")) {
		for _, line := range strings.Split(strings.TrimRight(message, "\n"), "\n") {
			o.printf("    %s %s\n", o.color(colorGray, "→"), line)
		}
	}
}

// Value prints a command value: one line per list item or key=value pair.
func (o *Output) Value(v any) {
	s := runner.Format(v)
	if s == "" {
		return
	}
	o.printf("%s\n", s)
}

// Transcript prints the captured output of a local process.
func (o *Output) Transcript(lines []string) {
	for _, line := range lines {
		o.printf("  %s %s\n", o.color(colorGray, "|"), line)
	}
}

// StateChanged prints task transitions in debug mode, and retries always.
func (o *Output) StateChanged(state runner.State, event runner.Event, args ...string) {
	if !o.debug && event != runner.EventRetry {
		return
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	switch event {
	case runner.EventRetry:
		o.Warn("%s: server busy, retrying", name)
	default:
		o.Debug("%s: %s (%s) %s", name, state, event, strings.Join(args[min(len(args), 1):], " "))
	}
}

// Section prints a section header.
func (o *Output) Section(name string) {
	o.printf("\n%s\n", o.color(colorBold, name))
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format, args...)
}
