/*
Copyright 2026 The reliqueue Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ringqueue is the disruptor-style adapter: a bounded, fixed-
// capacity in-process ring buffer for latency-sensitive pipelines that do
// not need cross-crash reliability. It carries no ephemeral storage — Take
// removes a slot's message outright — so EphemeralSize is always 0 and
// Orphans always empty, per spec.md §4.5.
package ringqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/reliqueue/reliqueue/internal/qmetrics"
	"github.com/reliqueue/reliqueue/queue"
)

const backendName = "ringqueue"

// Queue is a bounded MPMC ring buffer. Producers that find the ring full
// get Enqueue's "commit did not succeed" return (false, nil); publication
// barriers are a single mutex rather than the lock-free cursor scheme a
// true disruptor uses, trading some throughput for the same simplicity the
// rest of this package favors.
type Queue struct {
	base     queue.Base
	instance string
	metrics  qmetrics.Recorder

	mu       sync.Mutex
	slots    []queue.Message
	occupied []bool
	head     int // next slot to Dequeue from
	tail     int // next slot to Enqueue into
	count    int
}

var _ queue.Queue = (*Queue)(nil)

// New builds a ring buffer adapter with room for capacity in-flight
// messages. A capacity below 1 is treated as 1. cfg.Ordering, EphemeralDisabled and
// EphemeralMaxSize have no effect: the ring is always FIFO and never holds
// ephemeral state.
func New(instance string, capacity int, cfg queue.Config) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		base:     queue.NewBase(backendName, cfg),
		instance: instance,
		metrics:  qmetrics.NoopRecorder{},
		slots:    make([]queue.Message, capacity),
		occupied: make([]bool, capacity),
	}
}

// WithMetrics attaches a qmetrics.Recorder; it returns q for chaining.
func (q *Queue) WithMetrics(r qmetrics.Recorder) *Queue {
	q.metrics = r
	return q
}

func (q *Queue) Enqueue(_ context.Context, msg queue.Message) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.slots) {
		q.metrics.ObserveEnqueue(backendName, q.instance, false)
		return false, nil
	}

	now := q.base.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	q.base.Dispatch(&msg, queue.EnqueueNew, now)

	q.slots[q.tail] = msg.Clone()
	q.occupied[q.tail] = true
	q.tail = (q.tail + 1) % len(q.slots)
	q.count++

	q.metrics.ObserveEnqueue(backendName, q.instance, true)
	q.metrics.SetQueueSize(backendName, q.instance, q.count)
	return true, nil
}

func (q *Queue) Take(_ context.Context) (queue.Message, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		q.metrics.ObserveTake(backendName, q.instance, false)
		return queue.Message{}, false, nil
	}

	msg := q.slots[q.head]
	q.occupied[q.head] = false
	q.slots[q.head] = queue.Message{}
	q.head = (q.head + 1) % len(q.slots)
	q.count--

	q.metrics.ObserveTake(backendName, q.instance, true)
	q.metrics.SetQueueSize(backendName, q.instance, q.count)
	return msg.Clone(), true, nil
}

// Finalize is a no-op: the ring never retains a taken message.
func (q *Queue) Finalize(context.Context, queue.Message) error { return nil }

// Requeue pushes msg back onto the ring with Requeue bookkeeping applied,
// as if it were a fresh producer call. It reports false if the ring is
// currently full.
func (q *Queue) Requeue(ctx context.Context, msg queue.Message) (bool, error) {
	now := q.base.Now()
	q.base.Dispatch(&msg, queue.EnqueueRequeue, now)
	return q.pushRequeued(msg)
}

// RequeueSilent behaves like Requeue but leaves Timestamp/NumRequeues
// unchanged.
func (q *Queue) RequeueSilent(ctx context.Context, msg queue.Message) (bool, error) {
	now := q.base.Now()
	q.base.Dispatch(&msg, queue.EnqueueRequeueSilent, now)
	return q.pushRequeued(msg)
}

func (q *Queue) pushRequeued(msg queue.Message) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.slots) {
		return false, nil
	}
	q.slots[q.tail] = msg.Clone()
	q.occupied[q.tail] = true
	q.tail = (q.tail + 1) % len(q.slots)
	q.count++
	q.metrics.SetQueueSize(backendName, q.instance, q.count)
	return true, nil
}

// Orphans always returns an empty slice: the ring buffer provides no
// ephemeral holding area to reclaim from.
func (q *Queue) Orphans(context.Context, int64) ([]queue.Message, error) {
	return nil, nil
}

func (q *Queue) QueueSize(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count, nil
}

// EphemeralSize is always 0, per spec.md §4.5.
func (q *Queue) EphemeralSize(context.Context) (int, error) {
	return 0, nil
}

func (q *Queue) Close(context.Context) error {
	return nil
}
