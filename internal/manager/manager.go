// Package manager owns the transport connection and presents the
// connect/execute/disconnect façade: it classifies failures, detects
// connection loss, announces it at most once per episode, and keeps the
// connection verified with a low-frequency heartbeat.
package manager

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avolokh/mediactl/internal/channel"
	"github.com/avolokh/mediactl/internal/output"
	"github.com/avolokh/mediactl/internal/transport"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRecovering
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Default timing. The heartbeat is deliberately low-frequency: it exists to
// catch silent transport death between user commands, not to measure latency.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHealthTimeout     = 3 * time.Second
)

// noopScript is the trivial round-trip command used for health checks and
// heartbeats. The interpreter evaluates the literal and echoes it back; only
// the completed round trip matters, not the output.
const noopScript = `"pong"`

// Config holds manager tuning. Zero values get defaults.
type Config struct {
	// Port is the SSH port (default 22).
	Port int

	// PoolSize is the shared application channel count (default 1).
	PoolSize int

	// CommandTimeout bounds each command round trip.
	CommandTimeout time.Duration

	// HealthTimeout bounds health-check and heartbeat round trips.
	HealthTimeout time.Duration

	// ConnectTimeout and DialTimeout bound connection establishment
	// (see transport.Config).
	ConnectTimeout time.Duration
	DialTimeout    time.Duration

	// HeartbeatInterval is the liveness probe period; <0 disables the
	// heartbeat, 0 means the default.
	HeartbeatInterval time.Duration

	// Interpreter overrides the remote scripting interpreter.
	Interpreter string

	// Dial overrides connection establishment. Tests use this to keep the
	// whole stack hermetic.
	Dial func(ctx context.Context, cfg transport.Config) (transport.Client, error)
}

// Manager owns at most one live transport connection and the channel
// registry over it.
type Manager struct {
	cfg Config
	out *output.Output

	mu        sync.Mutex
	state     State
	client    transport.Client
	registry  *channel.Registry
	onLoss    func(error)
	lossFired bool
	hbStop    chan struct{}

	batchDepth atomic.Int32
}

// New creates a manager. out may be nil for silent operation.
func New(cfg Config, out *output.Output) *Manager {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = transport.Connect
	}
	if out == nil {
		out = output.New(io.Discard)
	}
	return &Manager{
		cfg:   cfg,
		out:   out,
		state: StateDisconnected,
	}
}

// OnConnectionLoss registers the loss callback. It is invoked at most once
// per loss episode, from the goroutine that observed the loss.
func (m *Manager) OnConnectionLoss(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLoss = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// setStateLocked transitions the state machine. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.out.StateChange(m.state.String(), s.String())
	m.state = s
}

// Connect tears down any existing connection, then establishes a fresh one.
// This is the only entry point into the connected state and is accepted from
// any prior state.
func (m *Manager) Connect(ctx context.Context, host, user, password string) error {
	m.mu.Lock()
	m.teardownLocked()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	client, err := m.cfg.Dial(ctx, transport.Config{
		Host:           host,
		Port:           m.cfg.Port,
		User:           user,
		Password:       password,
		ConnectTimeout: m.cfg.ConnectTimeout,
		DialTimeout:    m.cfg.DialTimeout,
	})
	if err != nil {
		m.mu.Lock()
		m.setStateLocked(StateFailed)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.client = client
	m.registry = channel.NewRegistry(client, channel.Config{
		PoolSize:       m.cfg.PoolSize,
		CommandTimeout: m.cfg.CommandTimeout,
		Interpreter:    m.cfg.Interpreter,
	})
	m.lossFired = false
	m.setStateLocked(StateConnected)
	if m.cfg.HeartbeatInterval > 0 {
		m.hbStop = make(chan struct{})
		go m.heartbeatLoop(m.hbStop)
	}
	m.mu.Unlock()

	m.out.Connected(client.String())
	return nil
}

// Disconnect closes every live channel and the connection. Always safe.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	m.out.Disconnected("")
}

// teardownLocked releases all connection resources. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
	if m.registry != nil {
		m.registry.CloseAll()
		m.registry = nil
	}
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

// Execute runs a command on the channel the logical key routes to. Failures
// classified as connection-loss indicators tear the connection down and fire
// the loss callback (once per episode).
func (m *Manager) Execute(ctx context.Context, key, command, description string) (string, error) {
	m.mu.Lock()
	reg := m.registry
	m.mu.Unlock()
	if reg == nil {
		return "", transport.NewError(transport.KindNotConnected, "not connected")
	}

	m.out.CommandStart(key, description)
	res, err := reg.Run(ctx, key, command, description)
	m.out.CommandResult(key, description, err)
	if err != nil {
		m.handleFailure(err)
		return "", err
	}
	return res, nil
}

// BeginBatch marks the start of a batch operation, suppressing heartbeats
// until the matching EndBatch.
func (m *Manager) BeginBatch() {
	m.batchDepth.Add(1)
}

// EndBatch closes a batch span. When the outermost batch ends, a single
// verification command runs on the system channel in place of the heartbeats
// that were suppressed.
func (m *Manager) EndBatch(ctx context.Context) {
	if m.batchDepth.Add(-1) > 0 {
		return
	}
	hctx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
	defer cancel()
	_, err := m.Execute(hctx, channel.KeySystem, noopScript, "batch verification")
	m.out.Heartbeat(err == nil)
}

// VerifyConnectionHealth issues a trivial command on the system channel with
// a short timeout. One failed attempt moves the manager into recovering and
// retries on a fresh channel; a second failure is treated as connection loss.
func (m *Manager) VerifyConnectionHealth(ctx context.Context) error {
	err := m.healthProbe(ctx, channel.KeySystem)
	if err == nil {
		m.mu.Lock()
		if m.state == StateRecovering {
			m.setStateLocked(StateConnected)
		}
		m.mu.Unlock()
		m.out.Heartbeat(true)
		return nil
	}

	m.mu.Lock()
	if m.state == StateConnected {
		m.setStateLocked(StateRecovering)
	}
	m.mu.Unlock()

	// The failing channel was evicted; the retry runs on a fresh one.
	if retryErr := m.healthProbe(ctx, channel.KeySystem); retryErr == nil {
		m.mu.Lock()
		if m.state == StateRecovering {
			m.setStateLocked(StateConnected)
		}
		m.mu.Unlock()
		m.out.Heartbeat(true)
		return nil
	}

	m.out.Heartbeat(false)
	m.handleFailure(err)
	return err
}

// healthProbe runs the no-op command on key, bounded by the health timeout.
// It bypasses Execute so a single probe failure doesn't immediately count as
// loss; the caller decides.
func (m *Manager) healthProbe(ctx context.Context, key string) error {
	m.mu.Lock()
	reg := m.registry
	m.mu.Unlock()
	if reg == nil {
		return transport.NewError(transport.KindNotConnected, "not connected")
	}
	hctx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
	defer cancel()
	_, err := reg.Run(hctx, key, noopScript, "health probe")
	return err
}

// heartbeatLoop probes the dedicated heartbeat channel at the configured
// interval, skipping ticks while a batch is in flight.
func (m *Manager) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.batchDepth.Load() > 0 {
				continue
			}
			err := m.healthProbe(context.Background(), channel.KeyHeartbeat)
			m.out.Heartbeat(err == nil)
			if err != nil && transport.IsLossIndicator(err) {
				m.handleFailure(err)
				return
			}
		}
	}
}

// handleFailure inspects a command failure for connection-loss indicators.
// On the first indicator after reaching the connected state it tears the
// connection down and fires the loss callback exactly once; indicators
// observed before the consumer reacts are absorbed silently.
func (m *Manager) handleFailure(err error) {
	if !transport.IsLossIndicator(err) {
		return
	}

	m.mu.Lock()
	if m.state != StateConnected && m.state != StateRecovering {
		m.mu.Unlock()
		return
	}
	alreadyFired := m.lossFired
	m.lossFired = true
	cb := m.onLoss
	m.teardownLocked()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if alreadyFired {
		return
	}
	m.out.Disconnected(lossReason(err))
	if cb != nil {
		cb(err)
	}
}

// lossReason extracts the display classification from a typed error.
func lossReason(err error) string {
	var te *transport.Error
	if errors.As(err, &te) {
		if te.Reason != "" {
			return te.Reason
		}
		return te.Kind.String()
	}
	return "connection lost"
}
