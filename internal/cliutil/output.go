// Package cliutil provides consistent CLI output formatting, adapted from
// the teacher's internal/output.Writer and trimmed to the subset the CLI
// subcommands actually need: status/success/warning/error lines plus a
// generic JSON encoder for --json flags. The teacher's progress-bar
// helpers are dropped — memorized has no chunked-indexing progress loop
// to drive them, and internal/ui's RunWatch covers the one place this repo
// needs a live view.
package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// Writer prints human-readable status lines to an io.Writer.
type Writer struct {
	out io.Writer
}

// New creates a Writer over out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a message with an optional icon prefix.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
	}
}

// Statusf is Status with fmt.Sprintf formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a checkmarked message.
func (w *Writer) Success(msg string) { w.Status("✓", msg) }

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints a warning-marked message.
func (w *Writer) Warning(msg string) { w.Status("!", msg) }

// Error prints an error-marked message.
func (w *Writer) Error(msg string) { w.Status("✗", msg) }

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Newline prints a blank line.
func (w *Writer) Newline() { _, _ = fmt.Fprintln(w.out) }

// JSON encodes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
