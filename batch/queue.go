// Package batch: per-device serial compute queues.

package batch

import (
	"sync"

	"github.com/tilemesh/tilemesh/tile"
)

// baseQueues is the fixed queue count before lookahead is added.
const baseQueues = 3

// Queue executes submitted jobs in order on one dedicated goroutine,
// standing in for a device stream. Sync blocks until everything submitted
// so far has run.
type Queue struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewQueue starts a queue.
func NewQueue() *Queue {
	q := &Queue{jobs: make(chan func(), 16)}
	go func() {
		for job := range q.jobs {
			job()
			q.wg.Done()
		}
	}()
	return q
}

// Submit enqueues a job.
func (q *Queue) Submit(job func()) {
	q.wg.Add(1)
	q.jobs <- job
}

// Sync blocks until every submitted job has completed.
func (q *Queue) Sync() { q.wg.Wait() }

// Close stops the queue after draining. The queue must not be used after.
func (q *Queue) Close() {
	q.Sync()
	close(q.jobs)
}

// QueueSet owns 3+lookahead queues per device: queue 0 carries panel
// traffic, 1..2 pipelined transfers, and one queue per lookahead column.
type QueueSet struct {
	perDevice map[tile.Memory][]*Queue
}

// NewQueueSet builds queues for devices 0..devices-1 plus the host.
func NewQueueSet(devices, lookahead int) *QueueSet {
	qs := &QueueSet{perDevice: make(map[tile.Memory][]*Queue)}
	n := baseQueues + max(lookahead, 0)
	mems := []tile.Memory{tile.Host}
	for d := 0; d < devices; d++ {
		mems = append(mems, tile.Device(d))
	}
	for _, mem := range mems {
		queues := make([]*Queue, n)
		for i := range queues {
			queues[i] = NewQueue()
		}
		qs.perDevice[mem] = queues
	}
	return qs
}

// Queue returns queue slot idx (modulo the per-device count) for mem.
func (qs *QueueSet) Queue(mem tile.Memory, idx int) *Queue {
	queues := qs.perDevice[mem]
	if len(queues) == 0 {
		queues = qs.perDevice[tile.Host]
	}
	return queues[idx%len(queues)]
}

// Close drains and stops every queue.
func (qs *QueueSet) Close() {
	for _, queues := range qs.perDevice {
		for _, q := range queues {
			q.Close()
		}
	}
}
