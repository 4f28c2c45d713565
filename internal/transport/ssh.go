package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshClient wraps an x/crypto/ssh client as a Client.
type sshClient struct {
	client *ssh.Client
	host   string
	user   string

	mu     sync.Mutex
	closed bool
}

// sshDial performs the TCP dial and SSH handshake with password auth.
func sshDial(ctx context.Context, cfg Config) (Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	d := net.Dialer{Timeout: cfg.DialTimeout}
	tcp, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(cfg.Host, err)
	}

	// Bound the handshake by the caller's overall budget; a stuck server
	// would otherwise block NewClientConn indefinitely.
	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetDeadline(deadline)
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		// Target hosts are user-picked machines on the local network;
		// there is no known_hosts store to verify against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	conn, chans, reqs, err := ssh.NewClientConn(tcp, addr, sshCfg)
	if err != nil {
		_ = tcp.Close()
		return nil, classifyHandshakeError(err)
	}
	_ = tcp.SetDeadline(time.Time{})

	return &sshClient{
		client: ssh.NewClient(conn, chans, reqs),
		host:   cfg.Host,
		user:   cfg.User,
	}, nil
}

// OpenShell opens a session sub-channel, allocates a pty with echo disabled,
// and starts the remote user's shell.
func (c *sshClient) OpenShell(ctx context.Context) (Shell, error) {
	select {
	case <-ctx.Done():
		return nil, WrapError(KindTimeout, "open shell cancelled", ctx.Err())
	default:
	}

	sess, err := c.client.NewSession()
	if err != nil {
		var oce *ssh.OpenChannelError
		if errors.As(err, &oce) && oce.Reason == ssh.UnknownChannelType {
			return nil, WrapError(KindInvalidChannelType, "server rejected session channel type", err)
		}
		return nil, WrapError(KindChannelError, "open session channel", err)
	}

	// Echo off: the pty would otherwise reflect every command back into
	// the output stream and corrupt response framing.
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm", 24, 80, modes); err != nil {
		_ = sess.Close()
		return nil, WrapError(KindChannelError, "pty request rejected", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return nil, WrapError(KindChannelError, "stdin pipe", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, WrapError(KindChannelError, "stdout pipe", err)
	}

	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		return nil, WrapError(KindChannelError, "start shell", err)
	}

	return &sshShell{sess: sess, stdin: stdin, stdout: stdout}, nil
}

// Close tears down the connection. Idempotent.
func (c *sshClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// String returns a description of the connection.
func (c *sshClient) String() string {
	return fmt.Sprintf("ssh://%s@%s", c.user, c.host)
}

// sshShell adapts an ssh.Session with pty to the Shell interface.
type sshShell struct {
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader

	mu     sync.Mutex
	closed bool
}

func (s *sshShell) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *sshShell) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Close releases the sub-channel; best-effort, never reports an error twice.
func (s *sshShell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdin.Close()
	return s.sess.Close()
}
