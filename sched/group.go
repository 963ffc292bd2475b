// Package sched: taskgroups with per-block-column dependency tracking.
//
// All dependency bookkeeping happens under Group.mu: edges are built at
// Spawn against the column hazard chains, and resolved at completion. Task
// bodies never run under the lock.

package sched

import "sync"

// Deps declares a task's touches on the per-block-column dependency
// vector. In entries are reads, Out and InOut entries are writes; writes
// serialise against every earlier touch of the same column, reads coexist
// with earlier reads.
type Deps struct {
	In    []int
	Out   []int
	InOut []int
}

// On is a convenience constructor: Deps{InOut: cols}.
func On(cols ...int) Deps { return Deps{InOut: cols} }

// Reading appends read dependencies to d.
func (d Deps) Reading(cols ...int) Deps {
	d.In = append(d.In, cols...)
	return d
}

// task is one scheduled body plus its dependency bookkeeping.
type task struct {
	group *Group
	body  func() error
	prio  int

	// Guarded by group.mu.
	waits    int     // unresolved predecessors
	succs    []*task // tasks waiting on this one
	finished bool
}

// colState is the hazard chain of one column of the dependency vector.
type colState struct {
	lastWriter *task
	readers    []*task // readers since lastWriter
}

// Group is a taskgroup: spawned tasks run when their column dependencies
// resolve; Wait blocks until all complete and returns the first captured
// error. A group is not reusable after Wait.
type Group struct {
	rt *Runtime

	mu       sync.Mutex // guards cols, firstErr, aborted, task bookkeeping
	cols     map[int]*colState
	firstErr error
	aborted  bool

	pending sync.WaitGroup
}

// NewGroup opens a taskgroup on the runtime.
func (rt *Runtime) NewGroup() *Group {
	return &Group{rt: rt, cols: make(map[int]*colState)}
}

// Spawn enqueues body with the given dependencies and priority. The body
// runs exactly once, after every conflicting earlier task completes. Tasks
// spawned after a group error still resolve their dependencies but their
// bodies are skipped.
// Complexity: O(declared dependencies).
func (g *Group) Spawn(deps Deps, priority int, body func() error) {
	t := &task{group: g, body: body, prio: priority}
	g.pending.Add(1)

	g.mu.Lock()
	for _, col := range deps.In {
		cs := g.col(col)
		t.dependOn(cs.lastWriter)
		cs.readers = append(cs.readers, t)
	}
	for _, col := range deps.Out {
		g.writeHazard(t, col)
	}
	for _, col := range deps.InOut {
		g.writeHazard(t, col)
	}
	ready := t.waits == 0
	g.mu.Unlock()

	if ready {
		g.rt.enqueue(t)
	}
}

// col returns the hazard chain for a column, creating it on first touch.
// Caller holds g.mu.
func (g *Group) col(c int) *colState {
	cs := g.cols[c]
	if cs == nil {
		cs = &colState{}
		g.cols[c] = cs
	}
	return cs
}

// writeHazard orders t after every earlier touch of col and installs it as
// the column's last writer. Caller holds g.mu.
func (g *Group) writeHazard(t *task, col int) {
	cs := g.col(col)
	t.dependOn(cs.lastWriter)
	for _, r := range cs.readers {
		t.dependOn(r)
	}
	cs.lastWriter = t
	cs.readers = nil
}

// dependOn registers pred → t unless pred is absent, finished, or t
// itself (a task may read and write the same column). Caller holds g.mu.
func (t *task) dependOn(pred *task) {
	if pred == nil || pred == t || pred.finished {
		return
	}
	for _, s := range pred.succs {
		if s == t {
			return
		}
	}
	pred.succs = append(pred.succs, t)
	t.waits++
}

// run executes the body (unless the group aborted), captures the first
// error, and resolves successors.
func (t *task) run() {
	g := t.group

	g.mu.Lock()
	skip := g.aborted
	g.mu.Unlock()

	var err error
	if !skip {
		err = t.body()
	}

	g.mu.Lock()
	if err != nil && g.firstErr == nil {
		g.firstErr = err
		g.aborted = true
	}
	t.finished = true
	var ready []*task
	for _, s := range t.succs {
		s.waits--
		if s.waits == 0 {
			ready = append(ready, s)
		}
	}
	t.succs = nil
	g.mu.Unlock()

	for _, s := range ready {
		g.rt.enqueue(s)
	}
	g.pending.Done()
}

// Wait blocks until every spawned task completes and returns the first
// captured error. This is the single synthesised failure the caller sees.
func (g *Group) Wait() error {
	g.pending.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstErr
}
