// Package output provides consistent CLI output formatting. Icons and
// decoration are enabled only on interactive terminals; piped output
// stays plain for scripting.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out   io.Writer
	fancy bool
}

// New creates a Writer. Decoration follows whether out is a terminal.
func New(out io.Writer) *Writer {
	return &Writer{
		out:   out,
		fancy: isTerminal(out),
	}
}

// NewPlain creates a Writer with decoration forced off.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Interactive reports whether decorated output is enabled.
func (w *Writer) Interactive() bool {
	return w.fancy
}

// Status prints a message with an icon on interactive terminals.
func (w *Writer) Status(icon, msg string) {
	if w.fancy && icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✓", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("!", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("✗", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Field prints an aligned "label: value" line for status listings.
func (w *Writer) Field(label string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-18s %v\n", label+":", value)
}

// Section prints a section heading.
func (w *Writer) Section(title string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", title)
	if w.fancy {
		_, _ = fmt.Fprintln(w.out, strings.Repeat("─", len([]rune(title))))
	}
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Printf writes formatted text as-is.
func (w *Writer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}
