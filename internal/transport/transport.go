// Package transport establishes and holds one authenticated SSH connection
// and hands out interactive shell sub-channels over it.
package transport

import (
	"context"
	"io"
	"time"
)

// Default timing for connection establishment. The TCP phase is bounded
// tighter than the overall budget so a TCP-level failure can be classified
// before the outer timeout fires generically.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultDialTimeout    = 4 * time.Second
)

// Config holds the parameters for one connection attempt. Credentials are
// consumed for the duration of the attempt and never persisted.
type Config struct {
	// Host is the target hostname or IP address.
	Host string

	// Port is the SSH port (defaults to 22 when unset).
	Port int

	// User is the username for password authentication.
	User string

	// Password is the password for authentication.
	Password string

	// ConnectTimeout bounds the whole connect (TCP + handshake + auth).
	ConnectTimeout time.Duration

	// DialTimeout bounds the TCP phase only.
	DialTimeout time.Duration
}

// withDefaults fills in zero-valued timing and port fields.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// Shell is one interactive shell sub-channel. Writes feed the remote shell's
// stdin; reads drain its pty output. Close releases the sub-channel and is
// best-effort.
type Shell interface {
	io.ReadWriteCloser
}

// Client is an established, authenticated connection capable of opening
// shell sub-channels.
type Client interface {
	// OpenShell opens a new pty-allocated interactive shell sub-channel.
	OpenShell(ctx context.Context) (Shell, error)

	// Close tears down every open sub-channel and the connection.
	// Idempotent; safe when already closed.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}

// dial performs the actual connection. Tests swap this for a fake so the
// rest of the stack never needs a live sshd.
var dial = sshDial

// Connect establishes an authenticated connection to cfg.Host. It completes
// or fails within cfg.ConnectTimeout; on expiry the attempt is abandoned and
// a timeout error returned.
func Connect(ctx context.Context, cfg Config) (Client, error) {
	cfg = cfg.withDefaults()

	type outcome struct {
		client Client
		err    error
	}
	ch := make(chan outcome, 1)

	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	go func() {
		c, err := dial(dctx, cfg)
		ch <- outcome{client: c, err: err}
	}()

	select {
	case out := <-ch:
		return out.client, out.err
	case <-dctx.Done():
		// The dial goroutine will deliver into the buffered channel and
		// close any half-open socket on its own.
		go func() {
			if out := <-ch; out.client != nil {
				_ = out.client.Close()
			}
		}()
		if ctx.Err() != nil {
			return nil, WrapError(KindTimeout, "connect cancelled", ctx.Err())
		}
		return nil, NewError(KindTimeout, "connect timed out")
	}
}
