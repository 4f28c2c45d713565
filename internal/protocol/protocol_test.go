package protocol

import (
	"strings"
	"testing"
)

func TestWrapScript(t *testing.T) {
	wrapped := WrapScript(`get volume settings`, "MARK-1", "")

	if !strings.HasPrefix(wrapped, "osascript <<'MEDIACTL_EOF' 2>&1\n") {
		t.Errorf("missing heredoc header: %q", wrapped)
	}
	if !strings.Contains(wrapped, "get volume settings\nMEDIACTL_EOF\n") {
		t.Errorf("script body not terminated by heredoc end: %q", wrapped)
	}
	if !strings.Contains(wrapped, "printf '%s\\n' 'MARK-1'\n") {
		t.Errorf("marker line missing: %q", wrapped)
	}
}

func TestWrapScriptCustomInterpreter(t *testing.T) {
	wrapped := WrapScript("echo hi", "M", "/bin/sh -s")
	if !strings.HasPrefix(wrapped, "/bin/sh -s <<'MEDIACTL_EOF'") {
		t.Errorf("interpreter not honored: %q", wrapped)
	}
}

func TestShellPrelude(t *testing.T) {
	prelude := ShellPrelude("READY-1")

	for _, want := range []string{"stty -echo", "PS1=''", "PS2=''", "PROMPT=''"} {
		if !strings.Contains(prelude, want) {
			t.Errorf("prelude missing %q: %q", want, prelude)
		}
	}
	if !strings.HasSuffix(prelude, "printf '%s\\n' 'READY-1'\n") {
		t.Errorf("prelude must end with the readiness marker line: %q", prelude)
	}
	if strings.Count(prelude, "\n") != 1 {
		t.Errorf("prelude must be a single line: %q", prelude)
	}
}

func TestInterpreterBootstrap(t *testing.T) {
	if got := InterpreterBootstrap(""); got != "exec osascript -i\n" {
		t.Errorf("unexpected bootstrap: %q", got)
	}
}

func TestInteractiveLine(t *testing.T) {
	got := InteractiveLine("  tell application \"Music\" to playpause\n")
	want := "tell application \"Music\" to playpause\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// Embedded newlines are collapsed to keep one statement per line.
	got = InteractiveLine("a\nb")
	if got != "a b\n" {
		t.Errorf("newlines not collapsed: %q", got)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Status
	}{
		{
			name: "playing",
			raw:  "Bohemian Rhapsody|||Queen|||true",
			want: Status{Title: "Bohemian Rhapsody", Artist: "Queen", Playing: true, Valid: true},
		},
		{
			name: "paused",
			raw:  "Track|||Artist|||false",
			want: Status{Title: "Track", Artist: "Artist", Valid: true},
		},
		{
			name: "whitespace trimmed",
			raw:  "  Title ||| Artist ||| playing \n",
			want: Status{Title: "Title", Artist: "Artist", Playing: true, Valid: true},
		},
		{
			name: "too few fields",
			raw:  "Title|||Artist",
			want: Status{},
		},
		{
			name: "empty",
			raw:  "",
			want: Status{},
		},
		{
			name: "interpreter error text",
			raw:  "execution error: Music got an error (-1728)",
			want: Status{},
		},
		{
			name: "extra fields ignored",
			raw:  "a|||b|||true|||junk",
			want: Status{Title: "a", Artist: "b", Playing: true, Valid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseStatus(tt.raw); got != tt.want {
				t.Errorf("ParseStatus(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStripPrompt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{">> 42", "42"},
		{"?> pong", "pong"},
		{"=> \"pong\"", "\"pong\""},
		{"plain", "plain"},
		{">>", ""},
		{"=>", ""},
	}
	for _, tt := range tests {
		if got := StripPrompt(tt.in); got != tt.want {
			t.Errorf("StripPrompt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
