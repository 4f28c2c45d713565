// Package channel multiplexes logical command streams over a bounded set of
// physical shell channels: each Executor owns one channel and runs commands
// on it one at a time; the Registry routes logical keys to executors,
// creating them lazily and evicting them on failure.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/avolokh/mediactl/internal/protocol"
	"github.com/avolokh/mediactl/internal/transport"
)

// Mode selects the per-channel execution protocol.
type Mode int

const (
	// ModeShell streams heredoc-wrapped one-shot interpreter invocations
	// into a plain shell. Used by the dedicated channels.
	ModeShell Mode = iota

	// ModeInterpreter bootstraps a persistent interactive interpreter on
	// the channel and streams statements into it, amortizing interpreter
	// startup across calls. Used by the pooled application channels.
	ModeInterpreter
)

// DefaultCommandTimeout bounds a single Run call.
const DefaultCommandTimeout = 5 * time.Second

// Executor runs commands on one physical channel, one at a time, with
// bounded latency. It never retries; whether the channel is reusable after a
// failure is the Registry's decision.
type Executor struct {
	key         string
	mode        Mode
	interpreter string
	timeout     time.Duration
	shell       transport.Shell

	// ready bounds the remote shell's startup noise: the read loop discards
	// everything before this marker appears.
	ready string

	lines chan string
	done  chan struct{}

	mu           sync.Mutex // serializes Run; queued callers wait here
	closeOnce    sync.Once
	broken       atomic.Bool
	lastActivity atomic.Int64
}

// newExecutor binds an executor to an open shell channel, silences the remote
// shell's prompts, and, in interpreter mode, performs the interactive
// bootstrap.
func newExecutor(key string, shell transport.Shell, mode Mode, interpreter string, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	e := &Executor{
		key:         key,
		mode:        mode,
		interpreter: interpreter,
		timeout:     timeout,
		shell:       shell,
		ready:       "MEDIACTL-READY-" + uuid.NewString(),
		lines:       make(chan string, 64),
		done:        make(chan struct{}),
	}
	e.touch()
	go e.readLoop()

	if _, err := shell.Write([]byte(protocol.ShellPrelude(e.ready))); err != nil {
		e.broken.Store(true)
		return e
	}
	if mode == ModeInterpreter {
		if _, err := shell.Write([]byte(protocol.InterpreterBootstrap(interpreter))); err != nil {
			e.broken.Store(true)
		}
	}
	return e
}

// Key returns the physical key this executor is bound to.
func (e *Executor) Key() string {
	return e.key
}

// Broken reports whether the channel has failed and must not be reused.
func (e *Executor) Broken() bool {
	return e.broken.Load()
}

// LastActivity returns the time of the most recent command activity.
func (e *Executor) LastActivity() time.Time {
	return time.Unix(0, e.lastActivity.Load())
}

func (e *Executor) touch() {
	e.lastActivity.Store(time.Now().UnixNano())
}

// readLoop drains the channel's output into the line queue. Output before
// the readiness marker is shell startup noise and is discarded. The loop
// exits when the channel closes, fails, or Close is called; the closed queue
// is how Run learns about it.
func (e *Executor) readLoop() {
	defer func() {
		e.broken.Store(true)
		close(e.lines)
	}()

	sc := bufio.NewScanner(e.shell)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	synced := false
	for sc.Scan() {
		if !synced {
			synced = strings.Contains(sc.Text(), e.ready)
			continue
		}
		select {
		case e.lines <- sc.Text():
		case <-e.done:
			return
		}
	}
}

// Run executes command on this channel and returns its trimmed output. A
// second caller targeting a busy channel queues; the channel processes one
// command fully before starting the next. On timeout the call fails and the
// executor is marked broken, but the underlying channel is not forcibly
// closed here; eviction is the Registry's call.
func (e *Executor) Run(ctx context.Context, command, description string) (string, error) {
	if e.broken.Load() {
		return "", transport.NewError(transport.KindChannelError, "channel is no longer usable")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.touch()
	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()

	switch e.mode {
	case ModeInterpreter:
		return e.runInteractive(ctx, command, deadline.C)
	default:
		return e.runWrapped(ctx, command, deadline.C)
	}
}

// runWrapped sends a heredoc-wrapped one-shot invocation and collects output
// until the bounding marker line appears.
func (e *Executor) runWrapped(ctx context.Context, command string, deadline <-chan time.Time) (string, error) {
	marker := "MEDIACTL-DONE-" + uuid.NewString()
	payload := protocol.WrapScript(command, marker, e.interpreter)

	if _, err := e.shell.Write([]byte(payload)); err != nil {
		e.broken.Store(true)
		return "", transport.WrapError(transport.KindChannelError, "write failed", err)
	}

	var out []string
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				e.broken.Store(true)
				return "", transport.NewError(transport.KindChannelError, "channel closed mid-command")
			}
			if strings.Contains(line, marker) {
				e.touch()
				return strings.TrimSpace(strings.Join(out, "\n")), nil
			}
			out = append(out, line)
		case <-deadline:
			e.broken.Store(true)
			return "", transport.NewError(transport.KindTimeout, "command timed out")
		case <-ctx.Done():
			e.broken.Store(true)
			return "", transport.WrapError(transport.KindTimeout, "command cancelled", ctx.Err())
		}
	}
}

// runInteractive streams one statement into the persistent interpreter,
// followed by a marker literal the interpreter echoes back. Collecting until
// the marker bounds statements that produce no result value (actions like
// play or pause), which would otherwise hang until the timeout.
func (e *Executor) runInteractive(ctx context.Context, command string, deadline <-chan time.Time) (string, error) {
	marker := "MEDIACTL-DONE-" + uuid.NewString()
	payload := protocol.InteractiveLine(command) + protocol.InteractiveLine(fmt.Sprintf("%q", marker))

	if _, err := e.shell.Write([]byte(payload)); err != nil {
		e.broken.Store(true)
		return "", transport.WrapError(transport.KindChannelError, "write failed", err)
	}

	var out []string
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				e.broken.Store(true)
				return "", transport.NewError(transport.KindChannelError, "channel closed mid-command")
			}
			if strings.Contains(line, marker) {
				e.touch()
				return strings.TrimSpace(strings.Join(out, "\n")), nil
			}
			if stripped := protocol.StripPrompt(line); stripped != "" {
				out = append(out, stripped)
			}
		case <-deadline:
			e.broken.Store(true)
			return "", transport.NewError(transport.KindTimeout, "command timed out")
		case <-ctx.Done():
			e.broken.Store(true)
			return "", transport.WrapError(transport.KindTimeout, "command cancelled", ctx.Err())
		}
	}
}

// Close releases the channel and stops the read loop even when the shell's
// reader does not unblock on close. Best-effort; never returns an error to
// callers that no longer care.
func (e *Executor) Close() {
	e.broken.Store(true)
	e.closeOnce.Do(func() { close(e.done) })
	_ = e.shell.Close()
}
