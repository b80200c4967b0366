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

package queue

import "time"

// Message is the value type flowing through every adapter. Adapters are
// free to choose how ID is generated (integer, string, UUID) but must never
// mutate OriginTimestamp once a message has been enqueued for the first
// time.
type Message struct {
	// ID uniquely identifies the message within a single queue instance.
	// Left empty by a producer, it is assigned by the adapter at enqueue
	// time.
	ID string

	// Content is an opaque payload chosen by the caller. Adapters never
	// inspect it beyond handing it to a Serializer.
	Content []byte

	// OriginTimestamp is set once, at first enqueue, and never changed
	// again (I1, I2 in the message lifecycle invariants).
	OriginTimestamp time.Time

	// Timestamp is updated on every enqueue or requeue that is not
	// "silent".
	Timestamp time.Time

	// NumRequeues counts calls to Requeue; RequeueSilent never increments
	// it.
	NumRequeues int
}

// Clone returns a deep copy safe to mutate independently of msg. Adapters
// call this before handing a Message to a caller or before retaining one
// internally, since §5 of the spec treats Message values passed across the
// contract as caller-owned.
func (m Message) Clone() Message {
	content := make([]byte, len(m.Content))
	copy(content, m.Content)
	out := m
	out.Content = content
	return out
}

// touch stamps the message with now as its most recent timestamp and, when
// countsAsRequeue is true, increments NumRequeues. It never moves
// OriginTimestamp.
func (m *Message) touch(now time.Time, countsAsRequeue bool) {
	m.Timestamp = now
	if countsAsRequeue {
		m.NumRequeues++
	}
}

// newOnEnqueue initializes the timestamps of a message being enqueued for
// the first time. If OriginTimestamp is already set (the caller is retrying
// the same instance after a transient enqueue failure) it is left alone, so
// a retried enqueue does not juggle I1.
func (m *Message) newOnEnqueue(now time.Time) {
	if m.OriginTimestamp.IsZero() {
		m.OriginTimestamp = now
	}
	m.Timestamp = now
}
