package channel

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/avolokh/mediactl/internal/transport"
)

// Dedicated logical keys. They map 1:1 to their own physical channels and
// are never pooled, so heartbeat and system traffic can never queue behind
// application commands.
const (
	KeySystem    = "system"
	KeyHeartbeat = "heartbeat"
)

// DefaultPoolSize is the number of shared application channels. One channel
// trades some interleaving latency for stability under the server's
// channel-count limits.
const DefaultPoolSize = 1

// Config holds registry tuning.
type Config struct {
	// PoolSize is the number of shared application channels (default 1).
	PoolSize int

	// CommandTimeout bounds each Run call on a created executor.
	CommandTimeout time.Duration

	// Interpreter overrides the remote scripting interpreter (default
	// osascript). Integration tests point this at a plain shell.
	Interpreter string
}

// Registry resolves logical keys to live Executors, creating them lazily and
// evicting broken ones so the next request transparently gets a fresh
// channel.
type Registry struct {
	cfg    Config
	client transport.Client

	mu        sync.Mutex
	executors map[string]*Executor

	// open is swapped by tests to count or fake constructions.
	open func(ctx context.Context, physicalKey string) (*Executor, error)
}

// NewRegistry creates a registry over an established connection.
func NewRegistry(client transport.Client, cfg Config) *Registry {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	r := &Registry{
		cfg:       cfg,
		client:    client,
		executors: make(map[string]*Executor),
	}
	r.open = r.openExecutor
	return r
}

// PhysicalKey maps a logical key to its physical channel slot. Dedicated
// keys pass through; application keys hash onto the pool. Pure function of
// (logical key, pool size).
func (r *Registry) PhysicalKey(logical string) string {
	if logical == KeySystem || logical == KeyHeartbeat {
		return logical
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(logical))
	return fmt.Sprintf("app-%d", h.Sum32()%uint32(r.cfg.PoolSize))
}

// modeFor selects the execution protocol for a physical channel. Dedicated
// channels run one-shot wrapped commands; pooled application channels keep a
// persistent interpreter.
func modeFor(physical string) Mode {
	if physical == KeySystem || physical == KeyHeartbeat {
		return ModeShell
	}
	return ModeInterpreter
}

// Executor resolves a logical key to a live executor, constructing one if
// absent. Concurrent first-use of the same physical key may race to build
// two; the last writer into the map wins and the displaced executor is
// closed in the background. A wasted sub-channel, not an error.
func (r *Registry) Executor(ctx context.Context, logical string) (*Executor, error) {
	if r.client == nil {
		return nil, transport.NewError(transport.KindNotConnected, "no live connection")
	}

	physical := r.PhysicalKey(logical)

	r.mu.Lock()
	if e, ok := r.executors[physical]; ok && !e.Broken() {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	built, err := r.open(ctx, physical)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	displaced := r.executors[physical]
	r.executors[physical] = built
	r.mu.Unlock()

	if displaced != nil && displaced != built {
		go displaced.Close()
	}
	return built, nil
}

// Run resolves logical to an executor and runs the command on it. On a
// timeout or channel-level failure the physical channel is evicted so the
// next request constructs a fresh one; the original error is always
// forwarded to the caller unmodified.
func (r *Registry) Run(ctx context.Context, logical, command, description string) (string, error) {
	e, err := r.Executor(ctx, logical)
	if err != nil {
		return "", err
	}

	out, err := e.Run(ctx, command, description)
	if err != nil {
		if transport.IsKind(err, transport.KindTimeout) || transport.IsKind(err, transport.KindChannelError) {
			r.evict(e)
		}
		return "", err
	}
	return out, nil
}

// evict removes the failed executor's entry, but only while it is still the
// current one: a stale failure reported after the slot was rebuilt must not
// displace the fresh channel. The failed executor's shell is closed in the
// background: a late in-flight write may still drain and be discarded.
// Eviction is lazy, only ever triggered by an observed failure.
func (r *Registry) evict(failed *Executor) {
	r.mu.Lock()
	if r.executors[failed.Key()] == failed {
		delete(r.executors, failed.Key())
	}
	r.mu.Unlock()

	go failed.Close()
}

// CloseAll closes every live executor. Used on connection teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	executors := r.executors
	r.executors = make(map[string]*Executor)
	r.mu.Unlock()

	for _, e := range executors {
		e.Close()
	}
}

// Len reports the number of live physical channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executors)
}

// openExecutor opens a fresh shell sub-channel for physical and binds an
// executor to it.
func (r *Registry) openExecutor(ctx context.Context, physical string) (*Executor, error) {
	shell, err := r.client.OpenShell(ctx)
	if err != nil {
		return nil, err
	}
	return newExecutor(physical, shell, modeFor(physical), r.cfg.Interpreter, r.cfg.CommandTimeout), nil
}
