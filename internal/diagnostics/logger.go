package diagnostics

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Logger is the trait every sink implements. Filtering is by level; no
// dynamic per-kind suppression is required by the core.
type Logger interface {
	Log(d Diagnostic)
	IsEnabled(s Severity) bool
}

// LevelFilter wraps a sink and drops anything below Min before it reaches it.
type LevelFilter struct {
	Min  Severity
	Sink Logger
}

func (f *LevelFilter) IsEnabled(s Severity) bool {
	return s >= f.Min && f.Sink.IsEnabled(s)
}

func (f *LevelFilter) Log(d Diagnostic) {
	if d.Severity >= f.Min {
		f.Sink.Log(d)
	}
}

// WriterSink renders diagnostics to an io.Writer, one line per message.
type WriterSink struct {
	W     io.Writer
	Min   Severity
	Color bool
}

// NewStdoutSink builds the default sink, enabling ANSI color only when
// stdout is an actual terminal (mirrors the teacher's isatty.IsTerminal
// check before emitting escape codes).
func NewStdoutSink(min Severity) *WriterSink {
	fd := os.Stdout.Fd()
	color := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return &WriterSink{W: os.Stdout, Min: min, Color: color}
}

func (s *WriterSink) IsEnabled(sev Severity) bool { return sev >= s.Min }

func (s *WriterSink) Log(d Diagnostic) {
	if d.Severity < s.Min {
		return
	}
	line := d.Format()
	if s.Color {
		line = colorFor(d.Severity) + line + colorReset
	}
	fmt.Fprintln(s.W, line)
}

const colorReset = "\x1b[0m"

func colorFor(s Severity) string {
	switch s {
	case Fatal, Error:
		return "\x1b[31m"
	case Warning:
		return "\x1b[33m"
	case Info:
		return "\x1b[36m"
	default:
		return "\x1b[90m"
	}
}

// MultiLogger fans a diagnostic out to every attached sink.
type MultiLogger struct {
	Sinks []Logger
}

func (m *MultiLogger) IsEnabled(s Severity) bool {
	for _, sink := range m.Sinks {
		if sink.IsEnabled(s) {
			return true
		}
	}
	return false
}

func (m *MultiLogger) Log(d Diagnostic) {
	for _, sink := range m.Sinks {
		sink.Log(d)
	}
}
