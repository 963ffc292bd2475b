// Package factor: the options map.

package factor

import "runtime"

// Target selects the dispatch backend of a driver call.
type Target uint8

const (
	// HostTask runs tile kernels as scheduler tasks on the host.
	HostTask Target = iota
	// HostNest runs trailing updates in a bounded nested parallel region.
	HostNest
	// HostBatch marshals trailing updates into batched host calls.
	HostBatch
	// Devices marshals trailing updates into batched calls on each tile's
	// device.
	Devices
)

// String returns the target name.
func (t Target) String() string {
	switch t {
	case HostNest:
		return "HostNest"
	case HostBatch:
		return "HostBatch"
	case Devices:
		return "Devices"
	default:
		return "HostTask"
	}
}

// Defaults for the options map.
const (
	// DefaultLookahead is the number of panels overlapped with trailing
	// updates.
	DefaultLookahead = 1

	// DefaultInnerBlocking is the panel inner block size.
	DefaultInnerBlocking = 16
)

// Option mutates driver options. Safe to apply repeatedly (idempotent).
type Option func(*Options)

// Options carries the per-call configuration every driver accepts.
type Options struct {
	target          Target
	lookahead       int
	innerBlocking   int
	maxPanelThreads int
	workers         int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		target:          HostTask,
		lookahead:       DefaultLookahead,
		innerBlocking:   DefaultInnerBlocking,
		maxPanelThreads: max(runtime.GOMAXPROCS(0)/2, 1),
		workers:         runtime.GOMAXPROCS(0),
	}
}

// WithTarget selects the dispatch backend.
func WithTarget(t Target) Option {
	return func(o *Options) { o.target = t }
}

// WithLookahead sets the lookahead depth. l must be ≥ 0.
func WithLookahead(l int) Option {
	if l < 0 {
		panic("factor: WithLookahead: l must be non-negative")
	}
	return func(o *Options) { o.lookahead = l }
}

// WithInnerBlocking sets the panel inner block size. ib must be ≥ 1.
func WithInnerBlocking(ib int) Option {
	if ib < 1 {
		panic("factor: WithInnerBlocking: ib must be ≥ 1")
	}
	return func(o *Options) { o.innerBlocking = ib }
}

// WithMaxPanelThreads bounds nested panel parallelism. n must be ≥ 1.
func WithMaxPanelThreads(n int) Option {
	if n < 1 {
		panic("factor: WithMaxPanelThreads: n must be ≥ 1")
	}
	return func(o *Options) { o.maxPanelThreads = n }
}

// WithWorkers sets the scheduler worker count for this call. n must be ≥ 1.
func WithWorkers(n int) Option {
	if n < 1 {
		panic("factor: WithWorkers: n must be ≥ 1")
	}
	return func(o *Options) { o.workers = n }
}

// gatherOptions applies opts over defaults.
func gatherOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
