// Package render writes conversation turns to a terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Sink receives turns for display.
type Sink interface {
	Render(role, content string) error
	// Status shows a transient line (such as "Thinking...") until the next
	// Render or Error.
	Status(msg string)
	Error(err error)
	// Fatal reports an error that ends the program. The caller exits.
	Fatal(msg string)
}

// Terminal renders to a writer. Markdown is styled with glamour only when
// the writer is a terminal.
type Terminal struct {
	out      io.Writer
	markdown bool
	style    string

	status     string
	userStyle  lipgloss.Style
	asstStyle  lipgloss.Style
	errorStyle lipgloss.Style
	dimStyle   lipgloss.Style
}

// NewTerminal returns a Terminal writing to f, with markdown rendering
// enabled when f is a TTY.
func NewTerminal(f *os.File) *Terminal {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	return New(f, tty)
}

// New returns a Terminal writing to w.
func New(w io.Writer, markdown bool) *Terminal {
	r := lipgloss.NewRenderer(w)
	return &Terminal{
		out:        w,
		markdown:   markdown,
		style:      "dark",
		userStyle:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		asstStyle:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		errorStyle: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		dimStyle:   r.NewStyle().Foreground(lipgloss.Color("246")),
	}
}

func (t *Terminal) label(role string) string {
	switch role {
	case "user":
		return t.userStyle.Render("You")
	case "assistant":
		return t.asstStyle.Render("Assistant")
	default:
		return t.dimStyle.Render(role)
	}
}

// Render writes one turn with its role label.
func (t *Terminal) Render(role, content string) error {
	t.clearStatus()

	body := content
	if t.markdown && role == "assistant" {
		styled, err := glamour.Render(content, t.style)
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		body = strings.TrimRight(styled, "\n")
	}

	_, err := fmt.Fprintf(t.out, "%s: %s\n", t.label(role), body)
	return err
}

func (t *Terminal) Status(msg string) {
	t.clearStatus()
	t.status = msg
	if t.markdown {
		fmt.Fprint(t.out, t.dimStyle.Render(msg))
		return
	}
	fmt.Fprintln(t.out, msg)
}

func (t *Terminal) clearStatus() {
	if t.status == "" {
		return
	}
	if t.markdown {
		// Carriage return plus erase-line removes the status in place.
		fmt.Fprint(t.out, "\r\x1b[2K")
	}
	t.status = ""
}

func (t *Terminal) Error(err error) {
	t.clearStatus()
	fmt.Fprintln(t.out, t.errorStyle.Render("Error: "+err.Error()))
}

func (t *Terminal) Fatal(msg string) {
	t.clearStatus()
	fmt.Fprintln(t.out, t.errorStyle.Render(msg))
}
