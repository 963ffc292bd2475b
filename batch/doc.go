// Package batch marshals tile groups for batched kernel calls and owns
// the per-device compute queues.
//
// What:
//
//   - Marshaller[T] collects per-device entries of (A, B, C) tile triples,
//     grouped by identical extents, stride, and diagonal-ness; a batched
//     call needs at most 8 groups. Collection happens at the call site,
//     after the caller has made each tile coherent on its device.
//   - QueueSet provides the per-device serial compute queues; batched
//     tasks submit one job per non-empty group onto their assigned queue
//     and synchronise it before the task completes. The queue count per
//     device is 3 + lookahead.
//
// Errors:
//
//   - ErrTooManyGroups: a single batched call produced more than 8
//     distinct groups.
package batch
