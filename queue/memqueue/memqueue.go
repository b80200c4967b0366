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

// Package memqueue is the in-memory reference adapter: an ordered slice of
// ids for queue storage, a map from id to (message, take-timestamp) for
// ephemeral storage, and a map from id to message for the payloads. It is
// the behavioral yardstick every other adapter's conformance suite is run
// against (spec.md §4.2).
package memqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reliqueue/reliqueue/internal/qmetrics"
	"github.com/reliqueue/reliqueue/queue"
)

const backendName = "memqueue"

type ephemeralEntry struct {
	takenAt time.Time
}

// Queue is the in-memory adapter. All operations take mu, the adapter's
// single exclusive lock, per spec.md §4.2.
type Queue struct {
	base     queue.Base
	instance string
	metrics  qmetrics.Recorder

	mu        sync.Mutex
	order     []string // queue storage: ordered ids, head = index 0
	payloads  map[string]queue.Message
	ephemeral map[string]ephemeralEntry
}

var _ queue.Queue = (*Queue)(nil)

// New builds an in-memory adapter. instance names this instance in metrics;
// it has no effect on behavior.
func New(instance string, cfg queue.Config) *Queue {
	return &Queue{
		base:      queue.NewBase(backendName, cfg),
		instance:  instance,
		metrics:   qmetrics.NoopRecorder{},
		payloads:  make(map[string]queue.Message),
		ephemeral: make(map[string]ephemeralEntry),
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

	now := q.base.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	q.base.Dispatch(&msg, queue.EnqueueNew, now)

	q.payloads[msg.ID] = msg.Clone()
	q.order = append(q.order, msg.ID)
	q.metrics.ObserveEnqueue(backendName, q.instance, true)
	q.metrics.SetQueueSize(backendName, q.instance, len(q.order))
	return true, nil
}

func (q *Queue) Take(_ context.Context) (queue.Message, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.base.Config.CapReached(len(q.ephemeral)) {
		q.metrics.ObserveTake(backendName, q.instance, false)
		return queue.Message{}, false, nil
	}
	if len(q.order) == 0 {
		q.metrics.ObserveTake(backendName, q.instance, false)
		return queue.Message{}, false, nil
	}

	var id string
	if q.base.Config.Ordering == queue.LIFO {
		last := len(q.order) - 1
		id = q.order[last]
		q.order = q.order[:last]
	} else {
		id = q.order[0]
		q.order = q.order[1:]
	}

	msg, ok := q.payloads[id]
	if !ok {
		// Internal invariant violation; queue storage referenced a
		// payload we no longer have. Treat as empty rather than panic.
		q.metrics.ObserveTake(backendName, q.instance, false)
		return queue.Message{}, false, nil
	}

	now := q.base.Now()
	if q.base.Config.EphemeralEnabled() {
		q.ephemeral[id] = ephemeralEntry{takenAt: now}
	} else {
		delete(q.payloads, id)
	}

	q.metrics.ObserveTake(backendName, q.instance, true)
	q.metrics.SetQueueSize(backendName, q.instance, len(q.order))
	q.metrics.SetEphemeralSize(backendName, q.instance, len(q.ephemeral))
	return msg.Clone(), true, nil
}

func (q *Queue) Finalize(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.ephemeral, msg.ID)
	delete(q.payloads, msg.ID)
	q.metrics.ObserveFinalize(backendName, q.instance)
	q.metrics.SetEphemeralSize(backendName, q.instance, len(q.ephemeral))
	return nil
}

func (q *Queue) Requeue(_ context.Context, msg queue.Message) (bool, error) {
	return q.requeue(msg, queue.EnqueueRequeue)
}

func (q *Queue) RequeueSilent(_ context.Context, msg queue.Message) (bool, error) {
	return q.requeue(msg, queue.EnqueueRequeueSilent)
}

func (q *Queue) requeue(msg queue.Message, reason queue.EnqueueReason) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.base.Now()
	q.base.Dispatch(&msg, reason, now)

	delete(q.ephemeral, msg.ID)
	q.payloads[msg.ID] = msg.Clone()
	q.order = append(q.order, msg.ID)

	silent := reason == queue.EnqueueRequeueSilent
	q.metrics.ObserveRequeue(backendName, q.instance, silent)
	q.metrics.SetQueueSize(backendName, q.instance, len(q.order))
	q.metrics.SetEphemeralSize(backendName, q.instance, len(q.ephemeral))
	return true, nil
}

func (q *Queue) Orphans(_ context.Context, thresholdMs int64) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.base.Now().Add(-time.Duration(thresholdMs) * time.Millisecond)
	var out []queue.Message
	for id, entry := range q.ephemeral {
		if entry.takenAt.Before(cutoff) {
			if msg, ok := q.payloads[id]; ok {
				out = append(out, msg.Clone())
			}
			if len(out) >= queue.OrphanBatchSize {
				break
			}
		}
	}
	return out, nil
}

func (q *Queue) QueueSize(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order), nil
}

func (q *Queue) EphemeralSize(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ephemeral), nil
}

func (q *Queue) Close(_ context.Context) error {
	return nil
}
