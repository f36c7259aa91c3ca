package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorBold  = "\033[1m"
)

var colorEnabled = true

// DisableColors turns off ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors turns on ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

// Format renders the error for a terminal.
func (e *CodedError) Format() string {
	var b strings.Builder

	b.WriteString(color(colorRed+colorBold, "ERROR "))
	if e.Code != "" {
		b.WriteString(color(colorBold, e.Code+": "))
	}
	b.WriteString(e.Message)
	b.WriteString("\n")

	detail := e.Detail
	if e.Wrapped != nil {
		if detail != "" {
			detail += ": "
		}
		detail += e.Wrapped.Error()
	}
	if detail != "" {
		b.WriteString("\n")
		for _, line := range wrapText(detail, 72) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if e.Suggestion != "" {
		b.WriteString("\n  ")
		b.WriteString(color(colorCyan, "Hint: "))
		b.WriteString(e.Suggestion)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatCompact renders the error on a single line.
func (e *CodedError) FormatCompact() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+len(word)+1 > width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// Fprint writes err to w, using Format for coded errors.
func Fprint(w io.Writer, err error) {
	var ce *CodedError
	if stderrors.As(err, &ce) {
		fmt.Fprint(w, ce.Format())
		return
	}
	fmt.Fprintf(w, "%s %s\n", color(colorRed+colorBold, "ERROR"), err.Error())
}

// PrintError writes err to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}
