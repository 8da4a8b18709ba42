// Package output formats short CLI messages: outcomes, key/value fields
// and indented blocks.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer writes CLI messages. Write errors are ignored; this is console
// output.
type Writer struct {
	out io.Writer
}

// New creates a Writer on out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints msg after icon, or indented under the previous line when
// icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints an outcome that went well.
func (w *Writer) Success(msg string) {
	w.Status("✓", msg)
}

// Warning prints an outcome that needs attention.
func (w *Writer) Warning(msg string) {
	w.Status("!", msg)
}

// Error prints a failed outcome.
func (w *Writer) Error(msg string) {
	w.Status("✗", msg)
}

// Field prints an indented label and value, padding labels to width.
func (w *Writer) Field(label string, width int, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-*s %v\n", width, label+":", value)
}

// Block prints content indented by two spaces between blank lines.
func (w *Writer) Block(content string) {
	content = strings.TrimRight(content, "\n")
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
