package integration

import (
	"bytes"
	"context"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/testcontainers/testcontainers-go"
)

// execInContainer runs a command in the container and returns stdout
func execInContainer(ctx context.Context, container testcontainers.Container, cmd []string) (int, string, error) {
	exitCode, reader, err := container.Exec(ctx, cmd)
	if err != nil {
		return exitCode, "", err
	}

	// Demux the Docker stream (stdout/stderr are multiplexed)
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, reader)

	return exitCode, stdout.String(), nil
}

// dumpSSHDLog prints the container's sshd log to aid debugging a failed
// connect.
func dumpSSHDLog(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()
	_, out, err := execInContainer(ctx, container, []string{"sh", "-c", "cat /config/logs/openssh/current 2>/dev/null || true"})
	if err != nil {
		t.Logf("could not read sshd log: %v", err)
		return
	}
	t.Logf("sshd log:\n%s", out)
}
