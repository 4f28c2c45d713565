// Package output provides formatted CLI output for connection and command
// events.
package output

import (
	"fmt"
	"io"
	"strings"
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

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

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

// Connected prints the connection banner.
func (o *Output) Connected(target string) {
	o.printf("%s %s\n", o.color(colorGreen, "✓ connected"), target)
}

// Disconnected prints the disconnection notice. reason may be empty for an
// explicit, clean disconnect.
func (o *Output) Disconnected(reason string) {
	if reason == "" {
		o.printf("%s\n", o.color(colorGray, "disconnected"))
		return
	}
	o.printf("%s %s\n", o.color(colorRed, "✗ connection lost:"), reason)
}

// CommandStart traces an outgoing command (debug only).
func (o *Output) CommandStart(key, description string) {
	if o.debug && description != "" {
		o.printf("  %s [%s] %s\n", o.color(colorGray, "→"), key, description)
	}
}

// CommandResult prints a command outcome. Successful results are silent
// outside debug mode; failures always print.
func (o *Output) CommandResult(key, description string, err error) {
	if err != nil {
		o.printf("  %s [%s] %s: %v\n", o.color(colorRed, "✗"), key, description, err)
		return
	}
	if o.debug {
		o.printf("  %s [%s] %s\n", o.color(colorGreen, "✓"), key, description)
	}
}

// StateChange traces a connection state transition (debug only).
func (o *Output) StateChange(from, to string) {
	if o.debug {
		o.printf("%s %s → %s\n", o.color(colorGray, "state"), from, to)
	}
}

// Heartbeat traces a liveness check (debug only).
func (o *Output) Heartbeat(ok bool) {
	if !o.debug {
		return
	}
	if ok {
		o.printf("%s\n", o.color(colorGray, "heartbeat ok"))
	} else {
		o.printf("%s\n", o.color(colorYellow, "heartbeat failed"))
	}
}

// Status prints a playback status line.
func (o *Output) Status(app, title, artist string, playing bool) {
	indicator := o.color(colorCyan, "⏸")
	if playing {
		indicator = o.color(colorGreen, "▶")
	}
	label := title
	if artist != "" {
		label = fmt.Sprintf("%s — %s", title, artist)
	}
	if strings.TrimSpace(label) == "" {
		label = o.color(colorGray, "nothing playing")
	}
	o.printf("%s %s %s\n", indicator, o.color(colorBold, app), label)
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
	fmt.Fprintf(o.w, format, args...)
}
