// Package protocol defines the wire conventions for running scripts on a
// remote shell channel: heredoc wrapping for one-shot execution, line
// streaming for a persistent interpreter, and the delimited status record
// format.
package protocol

import (
	"fmt"
	"strings"
)

// FieldDelimiter separates fields in a status record. Three characters,
// chosen to be vanishingly unlikely in track titles or artist names.
const FieldDelimiter = "|||"

// DefaultInterpreter is the scripting interpreter on the target host.
const DefaultInterpreter = "osascript"

// statusFieldCount is the fixed field count of a status record:
// title, artist, playing flag, in that order.
const statusFieldCount = 3

// WrapScript wraps a script body in a shell invocation that pipes it into
// the interpreter via a here-document. Interpreter-level errors are folded
// into stdout (2>&1) so an unsupported operation comes back as application
// data instead of failing the channel. The marker line after the heredoc
// bounds the response: the reader collects output until it sees the marker.
func WrapScript(script, marker, interpreter string) string {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	var b strings.Builder
	b.WriteString(interpreter)
	b.WriteString(" <<'MEDIACTL_EOF' 2>&1\n")
	b.WriteString(strings.TrimRight(script, "\n"))
	b.WriteString("\nMEDIACTL_EOF\n")
	fmt.Fprintf(&b, "printf '%%s\\n' '%s'\n", marker)
	return b.String()
}

// ShellPrelude silences the remote login shell on a fresh channel and bounds
// its startup noise. Prompts are emptied (a pty merges them into the output
// stream, where they would prefix the first response) and terminal echo is
// switched off for shells that re-enable it; the trailing marker line tells
// the reader where clean output begins. Everything before the marker is
// startup garbage to be discarded.
func ShellPrelude(marker string) string {
	return fmt.Sprintf("stty -echo 2>/dev/null; PS1=''; PS2=''; PROMPT=''; RPROMPT=''; printf '%%s\\n' '%s'\n", marker)
}

// InterpreterBootstrap is the command injected into a fresh shell channel to
// leave the interpreter running in interactive mode, ready to evaluate
// streamed statements. exec replaces the shell so channel teardown kills the
// interpreter with it.
func InterpreterBootstrap(interpreter string) string {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return "exec " + interpreter + " -i\n"
}

// InteractiveLine formats a script for streaming into a running interactive
// interpreter. The interpreter evaluates one statement per line, so the
// script must already be a single statement; embedded newlines are collapsed.
func InteractiveLine(script string) string {
	script = strings.TrimSpace(script)
	script = strings.ReplaceAll(script, "\n", " ")
	return script + "\n"
}

// Status is a parsed playback status record.
type Status struct {
	// Title is the primary label (track or media title).
	Title string

	// Artist is the secondary label (artist or subtitle).
	Artist string

	// Playing reports whether playback is active.
	Playing bool

	// Valid is false when the raw record could not be parsed; the other
	// fields then hold their defaults.
	Valid bool
}

// ParseStatus parses a delimited status record. A record with fewer than the
// expected fields yields a zero-valued, invalid Status rather than an error:
// malformed remote output is an application condition, not a channel failure.
func ParseStatus(raw string) Status {
	fields := strings.Split(strings.TrimSpace(raw), FieldDelimiter)
	if len(fields) < statusFieldCount {
		return Status{}
	}
	return Status{
		Title:   strings.TrimSpace(fields[0]),
		Artist:  strings.TrimSpace(fields[1]),
		Playing: parseFlag(fields[2]),
		Valid:   true,
	}
}

// parseFlag interprets the boolean-as-text playing flag.
func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "playing", "yes", "1":
		return true
	default:
		return false
	}
}

// StripPrompt removes interactive-interpreter prompt and result decorations
// from an output line.
func StripPrompt(line string) string {
	for _, p := range []string{">> ", "?> ", "=> ", ">>", "?>", "=>"} {
		line = strings.TrimPrefix(line, p)
	}
	return strings.TrimSpace(line)
}
