package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Reporter writes user-facing diagnostics, one line each, to the error
// stream. Prefixes are colored only when the stream is a terminal.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	warnC    *color.Color
	errC     *color.Color
	warnings int
	errors   int
}

// NewReporter creates a Reporter writing to w
func NewReporter(w io.Writer) *Reporter {
	warnC := color.New(color.FgYellow, color.Bold)
	errC := color.New(color.FgRed, color.Bold)
	if IsTerminal(w) {
		warnC.EnableColor()
		errC.EnableColor()
	} else {
		warnC.DisableColor()
		errC.DisableColor()
	}
	return &Reporter{w: w, warnC: warnC, errC: errC}
}

// Warnf prints "Warning: <message>"
func (r *Reporter) Warnf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings++
	r.line(r.warnC.Sprint("Warning:"), fmt.Sprintf(format, args...))
}

// Error prints "Error: <cause chain>"
func (r *Reporter) Error(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
	r.line(r.errC.Sprint("Error:"), err.Error())
}

// Counts returns how many warnings and errors were printed
func (r *Reporter) Counts() (warnings, errors int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warnings, r.errors
}

func (r *Reporter) line(prefix, msg string) {
	// File names may contain newlines; keep one diagnostic per line
	msg = strings.ReplaceAll(msg, "\n", `\n`)
	fmt.Fprintf(r.w, "%s %s\n", prefix, msg)
}
