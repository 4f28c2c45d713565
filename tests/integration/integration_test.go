package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/avolokh/mediactl/internal/channel"
	"github.com/avolokh/mediactl/internal/manager"
	"github.com/avolokh/mediactl/internal/transport"
)

const (
	sshUser     = "media"
	sshPassword = "integration-secret"
)

// sshTarget is a running sshd container plus its reachable address.
type sshTarget struct {
	container testcontainers.Container
	host      string
	port      int
}

// setupSSHContainer starts an OpenSSH server with password authentication
// enabled.
func setupSSHContainer(t *testing.T, ctx context.Context) *sshTarget {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "lscr.io/linuxserver/openssh-server:latest",
		ExposedPorts: []string{"2222/tcp"},
		Env: map[string]string{
			"PASSWORD_ACCESS": "true",
			"USER_NAME":       sshUser,
			"USER_PASSWORD":   sshPassword,
			"SUDO_ACCESS":     "false",
		},
		WaitingFor: wait.ForListeningPort("2222/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start sshd container")

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "2222/tcp")
	require.NoError(t, err)

	return &sshTarget{container: container, host: host, port: mapped.Int()}
}

func TestTransportConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	target := setupSSHContainer(t, ctx)

	client, err := transport.Connect(ctx, transport.Config{
		Host:           target.host,
		Port:           target.port,
		User:           sshUser,
		Password:       sshPassword,
		ConnectTimeout: 15 * time.Second,
		DialTimeout:    10 * time.Second,
	})
	if err != nil {
		dumpSSHDLog(t, ctx, target.container)
	}
	require.NoError(t, err)
	defer client.Close()

	shell, err := client.OpenShell(ctx)
	require.NoError(t, err)
	require.NoError(t, shell.Close())

	// Close is idempotent.
	require.NoError(t, client.Close())
}

func TestTransportAuthFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	target := setupSSHContainer(t, ctx)

	_, err := transport.Connect(ctx, transport.Config{
		Host:           target.host,
		Port:           target.port,
		User:           sshUser,
		Password:       "wrong-password",
		ConnectTimeout: 15 * time.Second,
		DialTimeout:    10 * time.Second,
	})
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindAuthenticationFailed), "got %v", err)
}

func TestTransportConnectionRefused(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Nothing listens on this port.
	_, err := transport.Connect(context.Background(), transport.Config{
		Host:           "127.0.0.1",
		Port:           1,
		User:           sshUser,
		Password:       sshPassword,
		ConnectTimeout: 5 * time.Second,
		DialTimeout:    3 * time.Second,
	})
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindConnectionFailed), "got %v", err)
}

func TestManagerEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	target := setupSSHContainer(t, ctx)

	// The target has no AppleScript interpreter; a plain shell fills in.
	mgr := manager.New(manager.Config{
		Port:              target.port,
		CommandTimeout:    15 * time.Second,
		HealthTimeout:     15 * time.Second,
		ConnectTimeout:    15 * time.Second,
		DialTimeout:       10 * time.Second,
		HeartbeatInterval: -1,
		Interpreter:       "/bin/sh -s",
	}, nil)

	err := mgr.Connect(ctx, target.host, sshUser, sshPassword)
	if err != nil {
		dumpSSHDLog(t, ctx, target.container)
	}
	require.NoError(t, err)
	defer mgr.Disconnect()
	require.Equal(t, manager.StateConnected, mgr.State())

	// Exact match: the channel prelude must have stripped every prompt and
	// login banner from the stream.
	out, err := mgr.Execute(ctx, channel.KeySystem, "echo integration-ok", "echo check")
	require.NoError(t, err)
	assert.Equal(t, "integration-ok", out)

	// The channel survives and is reused for the next command.
	out, err = mgr.Execute(ctx, channel.KeySystem, "echo second-round", "echo check")
	require.NoError(t, err)
	assert.Equal(t, "second-round", out)

	// A batch ends with a single verification round trip.
	mgr.BeginBatch()
	_, err = mgr.Execute(ctx, channel.KeySystem, "echo in-batch", "echo check")
	require.NoError(t, err)
	mgr.EndBatch(ctx)
	require.Equal(t, manager.StateConnected, mgr.State())

	mgr.Disconnect()
	require.Equal(t, manager.StateDisconnected, mgr.State())
}
