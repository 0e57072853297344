package dispatch

import (
	"context"
	"log"
	"sync"
	"time"
)

type Decision string

const (
	DecisionProceed  Decision = "proceed"
	DecisionDeferred Decision = "deferred"
)

// Runner executes one unit to completion. Errors from deferred runs are
// observed only through the runner's own logging; the original caller has
// already returned.
type Runner func(ctx context.Context, unit *Unit)

// Gate is the admission control in front of the orchestrator: a per-window
// admission counter plus an unbounded FIFO of deferred units drained at a
// fixed cadence. Units are never dropped; under sustained overload the queue
// grows and latency degrades instead of requests failing. The transport acks
// receipt independently of processing, so deferral is invisible upstream.
type Gate struct {
	threshold int
	window    time.Duration
	pause     time.Duration
	run       Runner

	mu       sync.Mutex
	admitted int
	queue    []*Unit
	draining bool
}

func NewGate(threshold int, window, pause time.Duration, run Runner) *Gate {
	if threshold <= 0 {
		threshold = 50
	}
	if window <= 0 {
		window = time.Second
	}
	return &Gate{
		threshold: threshold,
		window:    window,
		pause:     pause,
		run:       run,
	}
}

// Admit counts the unit against the current window. At or below the
// threshold the caller runs the unit itself; above it the unit is queued for
// the next drain.
func (g *Gate) Admit(unit *Unit) Decision {
	g.mu.Lock()
	g.admitted++
	if g.admitted <= g.threshold {
		g.mu.Unlock()
		return DecisionProceed
	}
	g.queue = append(g.queue, unit)
	queued := len(g.queue)
	g.mu.Unlock()

	log.Printf("gate: high traffic, deferring unit=%s queued=%d", unit.ID, queued)
	return DecisionDeferred
}

// Start runs the window ticker until ctx is cancelled. Each tick resets the
// admission counter and, when deferred units are waiting and no drain is in
// flight, starts one.
func (g *Gate) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(g.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.tick(ctx)
			}
		}
	}()
}

func (g *Gate) tick(ctx context.Context) {
	g.mu.Lock()
	g.admitted = 0
	start := len(g.queue) > 0 && !g.draining
	if start {
		g.draining = true
	}
	g.mu.Unlock()

	if start {
		go g.drain(ctx)
	}
}

// drain pops units in FIFO order and runs each to completion, pausing
// briefly between units to throttle downstream calls. The draining flag
// guarantees at most one drain at a time; ticks during a drain do not start
// another.
func (g *Gate) drain(ctx context.Context) {
	defer func() {
		g.mu.Lock()
		g.draining = false
		g.mu.Unlock()
	}()

	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		unit := g.queue[0]
		g.queue = g.queue[1:]
		remaining := len(g.queue)
		g.mu.Unlock()

		log.Printf("gate: draining unit=%s remaining=%d", unit.ID, remaining)
		g.run(ctx, unit)

		if g.pause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(g.pause):
			}
		}
	}
}

// QueueLen reports the number of currently deferred units.
func (g *Gate) QueueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}
