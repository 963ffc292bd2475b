// Package sched is the fork-join task runtime the algorithm drivers
// schedule tile work on.
//
// What:
//
//   - Runtime: a fixed pool of workers draining two priority queues;
//     priority-1 tasks are preferred at every scheduling decision
//     (best-effort, running work is never preempted).
//   - Group: a taskgroup. Spawn declares data dependencies as in/out/inout
//     sets over a per-block-column dependency vector; tasks touching
//     disjoint columns run in parallel, readers coexist, and any write
//     serialises against earlier touches of the same column, in submission
//     order.
//   - Nested: a bounded inner parallel region (errgroup with a limit) for
//     panel factorizations; the runtime assumes at least two active
//     levels, so panels nest inside an outer task.
//
// Why:
//
//   - Right-looking factorizations express lookahead purely through
//     column dependencies; the runtime only needs hazard ordering
//     (RAW/WAR/WAW) per column, resolved locally to the process.
//
// Failure model:
//
//   - There is no cancellation in normal flow. The first error captured
//     from a task body marks the group aborted; bodies of tasks that have
//     not started yet are skipped (their dependencies still resolve), and
//     Wait returns that first error after the group drains.
//
// Errors:
//
//   - ErrShutdown: spawning on a runtime that has been shut down.
package sched
