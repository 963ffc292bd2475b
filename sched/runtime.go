// Package sched: the worker pool and priority queues.

package sched

import (
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrShutdown indicates a spawn on a runtime that has been shut down.
var ErrShutdown = errors.New("sched: runtime is shut down")

// Priorities accepted by Spawn.
const (
	// PriorityNormal is trailing-matrix work.
	PriorityNormal = 0
	// PriorityHigh is panel and lookahead work on the critical path.
	PriorityHigh = 1
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithWorkers sets the worker count. n must be positive.
func WithWorkers(n int) Option {
	if n <= 0 {
		panic("sched: WithWorkers: n must be positive")
	}
	return func(rt *Runtime) { rt.workers = n }
}

// Runtime drains spawned tasks on a fixed set of workers.
type Runtime struct {
	workers int

	mu      sync.Mutex // guards queues and stopped
	cond    *sync.Cond
	qHigh   []*task
	qNormal []*task
	stopped bool

	wg sync.WaitGroup // running workers
}

// NewRuntime starts a runtime with GOMAXPROCS workers unless overridden.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(rt)
	}
	rt.cond = sync.NewCond(&rt.mu)
	rt.wg.Add(rt.workers)
	for w := 0; w < rt.workers; w++ {
		go rt.worker()
	}
	return rt
}

// Workers returns the worker count.
func (rt *Runtime) Workers() int { return rt.workers }

// Shutdown stops the workers after the queues drain. Groups must have been
// waited on first.
func (rt *Runtime) Shutdown() {
	rt.mu.Lock()
	rt.stopped = true
	rt.cond.Broadcast()
	rt.mu.Unlock()
	rt.wg.Wait()
}

// Nested returns a bounded inner parallel region for panel work. The
// region runs on its own goroutines, not on runtime workers, so a task may
// open one without risking worker starvation.
func (rt *Runtime) Nested(maxThreads int) *errgroup.Group {
	g := new(errgroup.Group)
	if maxThreads > 0 {
		g.SetLimit(maxThreads)
	}
	return g
}

// enqueue makes a ready task visible to the workers. On a shut-down
// runtime the task is resolved in place with ErrShutdown so waiters do not
// hang.
func (rt *Runtime) enqueue(t *task) {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		g := t.group
		g.mu.Lock()
		if g.firstErr == nil {
			g.firstErr = ErrShutdown
		}
		g.aborted = true
		g.mu.Unlock()
		t.run()
		return
	}
	if t.prio == PriorityHigh {
		rt.qHigh = append(rt.qHigh, t)
	} else {
		rt.qNormal = append(rt.qNormal, t)
	}
	rt.cond.Signal()
	rt.mu.Unlock()
}

// worker pops high-priority tasks first, then normal, then sleeps.
func (rt *Runtime) worker() {
	defer rt.wg.Done()
	for {
		rt.mu.Lock()
		for len(rt.qHigh) == 0 && len(rt.qNormal) == 0 && !rt.stopped {
			rt.cond.Wait()
		}
		var t *task
		switch {
		case len(rt.qHigh) > 0:
			t = rt.qHigh[0]
			rt.qHigh = rt.qHigh[1:]
		case len(rt.qNormal) > 0:
			t = rt.qNormal[0]
			rt.qNormal = rt.qNormal[1:]
		default:
			rt.mu.Unlock()
			return
		}
		rt.mu.Unlock()
		t.run()
	}
}
