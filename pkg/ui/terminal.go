package ui

import (
	"fmt"
	"io"
)

// Printer writes styled one-line messages
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter creates a Printer for w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, styles: NewStyles(w)}
}

// Error prints an error message, optionally followed by its cause
func (p *Printer) Error(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	fmt.Fprintln(p.out, p.styles.Error.Render(msg))
}

// Success prints a success message
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, p.styles.Success.Render(msg))
}

// Info prints a label and value pair
func (p *Printer) Info(label, value string) {
	fmt.Fprintf(p.out, "%s: %s\n", p.styles.Label.Render(label), p.styles.Value.Render(value))
}

// Warning prints a warning message
func (p *Printer) Warning(msg string) {
	fmt.Fprintln(p.out, p.styles.Warning.Render(msg))
}

// Highlight prints a highlighted message
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.out, p.styles.Highlight.Render(msg))
}

// Title prints a section title
func (p *Printer) Title(msg string) {
	fmt.Fprintln(p.out, p.styles.Title.Render(msg))
}
