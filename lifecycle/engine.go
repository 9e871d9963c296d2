// Package lifecycle runs the background heartbeat and reclaim tick
// described in spec.md §4.6/§5: one worker per process, emitting a
// heartbeat for every collection a Store has declared indexes on, and
// promoting indexes between active/retiring/dropped based on heartbeat
// TTLs. It is optional -- a process may use a Store purely as a query
// client with no Engine running, per §5.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/acksell/norm"
)

// Declarer is implemented by norm.Store: it reports which index names
// each collection currently relies on, so the Engine knows what to
// heartbeat without owning any Store internals itself.
type Declarer interface {
	Declarations() map[string][]string
	ProcessID() norm.ProcessID
}

// Options configures heartbeat cadence and the two reclaim TTLs, per
// §5's suggested defaults (H=30s, TTL1=150s, TTL2=24h).
type Options struct {
	HeartbeatPeriod time.Duration
	TTL1            time.Duration // heartbeat staleness / active->retiring trigger
	TTL2            time.Duration // retiring quiescence window before physical drop
}

func (o Options) withDefaults() Options {
	if o.HeartbeatPeriod == 0 {
		o.HeartbeatPeriod = 30 * time.Second
	}
	if o.TTL1 == 0 {
		o.TTL1 = 150 * time.Second
	}
	if o.TTL2 == 0 {
		o.TTL2 = 24 * time.Hour
	}
	return o
}

// Engine owns the periodic reclaim tick and heartbeat emission for one
// process.
type Engine struct {
	backend  norm.Backend
	declarer Declarer
	opts     Options

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(backend norm.Backend, declarer Declarer, opts Options) *Engine {
	return &Engine{backend: backend, declarer: declarer, opts: opts.withDefaults()}
}

// Start launches the background goroutine. Calling Start twice without an
// intervening Stop is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx)
}

// Stop halts the background goroutine and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.opts.HeartbeatPeriod)
	defer ticker.Stop()

	// Emit one heartbeat and run one reclaim tick immediately so a freshly
	// started Engine doesn't leave a gap of HeartbeatPeriod before its
	// first declaration is visible to other processes.
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	now, err := e.backend.Now(ctx)
	if err != nil {
		now = time.Now()
	}

	declarations := e.declarer.Declarations()
	for collection, names := range declarations {
		_ = e.backend.Heartbeat(ctx, norm.Heartbeat{
			Process:    e.declarer.ProcessID(),
			Collection: collection,
			Declared:   names,
			At:         now,
		})
	}

	for collection := range declarations {
		e.reclaim(ctx, collection, now)
	}
}
