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

// Package queue defines the backend-independent reliable queue contract:
// the message lifecycle, the ephemeral-storage policy shared by every
// reliability-offering adapter, and the errors adapters raise. Concrete
// backends live in the sibling memqueue, sqlqueue, redisqueue and ringqueue
// packages.
package queue

import "context"

// Queue is the public surface every backend adapter implements. All methods
// are safe for concurrent use by multiple producer and consumer goroutines.
type Queue interface {
	// Enqueue appends msg to queue storage. It reports whether the
	// commit to queue storage succeeded; on a transient failure it
	// returns (false, err) and the caller may retry with the same
	// Message instance without risking duplicate materialization.
	Enqueue(ctx context.Context, msg Message) (bool, error)

	// Take removes one message from queue storage — FIFO by default, LIFO
	// if the adapter is configured for it — and, when ephemeral storage
	// is enabled, records it there with the current take timestamp. It
	// returns (Message{}, false, nil) when queue storage is empty or the
	// ephemeral cap has been reached.
	Take(ctx context.Context) (Message, bool, error)

	// Finalize removes msg's entry from ephemeral storage. It succeeds
	// silently whether or not the entry was present.
	Finalize(ctx context.Context, msg Message) error

	// Requeue moves msg from ephemeral storage back to the tail of queue
	// storage, refreshing Timestamp and incrementing NumRequeues. It
	// reports whether the commit to queue storage succeeded.
	Requeue(ctx context.Context, msg Message) (bool, error)

	// RequeueSilent behaves like Requeue but leaves Timestamp and
	// NumRequeues unchanged.
	RequeueSilent(ctx context.Context, msg Message) (bool, error)

	// Orphans returns every ephemeral entry whose take timestamp is older
	// than now-thresholdMs, capped to an implementation-defined batch
	// size.
	Orphans(ctx context.Context, thresholdMs int64) ([]Message, error)

	// QueueSize reports the current size of queue storage. Under
	// concurrency this is a snapshot and may be approximate.
	QueueSize(ctx context.Context) (int, error)

	// EphemeralSize reports the current size of ephemeral storage. Under
	// concurrency this is a snapshot and may be approximate.
	EphemeralSize(ctx context.Context) (int, error)

	// Close releases any resource the adapter created itself. Resources
	// supplied by the caller at construction time are left open.
	Close(ctx context.Context) error
}

// OrphanBatchSize is the recommended cap on the number of entries a single
// Orphans call returns, per spec.md §4.1.
const OrphanBatchSize = 100

// Ordering selects the discipline Take uses to pick the next message from
// queue storage.
type Ordering int

const (
	// FIFO delivers messages in enqueue order. This is the default.
	FIFO Ordering = iota
	// LIFO delivers the most recently enqueued message first.
	LIFO
)

// Config carries the configuration options common across adapters, per
// spec.md §6.
type Config struct {
	// EphemeralDisabled, when true, means the adapter never maintains
	// ephemeral storage: Take removes a message from queue storage and
	// returns it directly, Finalize is a no-op, Orphans returns empty, and
	// Requeue/RequeueSilent write the message back to queue storage the
	// same way a new Enqueue does.
	EphemeralDisabled bool

	// EphemeralMaxSize is a soft cap on ephemeral storage size. Zero (the
	// default) means unbounded. When positive and reached, Take reports
	// empty rather than overflowing (spec.md §4.1 "Ephemeral-max-size
	// policy").
	EphemeralMaxSize int

	// Ordering selects FIFO (default) or LIFO delivery.
	Ordering Ordering

	// Clock is used for all "now" reads: origin/take timestamps and the
	// Orphans threshold comparison. Defaults to SystemClock.
	Clock Clock

	// Serializer marshals/unmarshals messages that cross a storage
	// boundary. Defaults to GobSerializer.
	Serializer Serializer
}

// WithDefaults returns a copy of c with every zero-valued field replaced by
// its documented default.
func (c Config) WithDefaults() Config {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Serializer == nil {
		c.Serializer = GobSerializer{}
	}
	return c
}

// EphemeralEnabled reports whether ephemeral storage is active for this
// configuration.
func (c Config) EphemeralEnabled() bool {
	return !c.EphemeralDisabled
}

// CapReached reports whether ephemeralSize has reached a configured,
// positive cap.
func (c Config) CapReached(ephemeralSize int) bool {
	return c.EphemeralMaxSize > 0 && ephemeralSize >= c.EphemeralMaxSize
}
