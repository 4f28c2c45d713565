// Package hostinfo gathers system information from the target machine over
// an established command runner.
package hostinfo

import (
	"context"
	"strings"
)

// Runner executes a script on the target and returns its collected output.
// The connection manager satisfies this.
type Runner interface {
	Execute(ctx context.Context, key, command, description string) (string, error)
}

// runnerKey routes every probe through the dedicated system channel so that
// gathering never competes with playback commands.
const runnerKey = "system"

// Gather collects host facts from the target. Probes that fail are skipped
// rather than failing the whole gather.
func Gather(ctx context.Context, r Runner) (map[string]string, error) {
	info := make(map[string]string)

	probes := []struct {
		fact   string
		script string
	}{
		{"computer_name", `computer name of (system info)`},
		{"host_name", `host name of (system info)`},
		{"user_name", `short user name of (system info)`},
		{"os_version", `system version of (system info)`},
		{"cpu_type", `CPU type of (system info)`},
		{"physical_memory", `physical memory of (system info)`},
		{"ip_address", `IPv4 address of (system info)`},
		{"output_volume", `output volume of (get volume settings)`},
	}

	for _, p := range probes {
		out, err := r.Execute(ctx, runnerKey, p.script, "gather "+p.fact)
		if err != nil {
			if ctx.Err() != nil {
				return info, ctx.Err()
			}
			continue
		}
		if v := strings.TrimSpace(out); v != "" {
			info[p.fact] = v
		}
	}

	return info, nil
}

// RunningPlayers reports which of the named applications are currently
// running on the target.
func RunningPlayers(ctx context.Context, r Runner, names []string) (map[string]bool, error) {
	running := make(map[string]bool, len(names))
	for _, name := range names {
		script := `tell application "System Events" to (name of processes) contains "` + name + `"`
		out, err := r.Execute(ctx, runnerKey, script, "probe "+name)
		if err != nil {
			if ctx.Err() != nil {
				return running, ctx.Err()
			}
			continue
		}
		running[name] = strings.EqualFold(strings.TrimSpace(out), "true")
	}
	return running, nil
}
