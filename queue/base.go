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

// EnqueueReason distinguishes why Base.Dispatch is being asked to prepare a
// message for a write to queue storage.
type EnqueueReason int

const (
	// EnqueueNew is a message's first enqueue.
	EnqueueNew EnqueueReason = iota
	// EnqueueRequeue is a bookkeeping-updating requeue: Timestamp is
	// refreshed and NumRequeues is incremented.
	EnqueueRequeue
	// EnqueueRequeueSilent is a requeue that leaves Timestamp and
	// NumRequeues untouched.
	EnqueueRequeueSilent
)

// Base is the small embedded helper every reliability-offering adapter
// carries instead of an abstract parent class: it centralizes the
// ephemeral-enable/disable policy and the enqueue dispatch described in
// spec.md §4.6, so every adapter (in-memory, relational, key-value) applies
// it identically.
type Base struct {
	Config Config
	Name   string
}

// NewBase returns a Base with cfg's defaults applied and name used in
// errors and log lines.
func NewBase(name string, cfg Config) Base {
	return Base{Config: cfg.WithDefaults(), Name: name}
}

// Dispatch applies the timestamp/counter bookkeeping for reason to msg and
// returns the *effective* reason the adapter's storage layer should act on.
// Per §4.6, when ephemeral storage is disabled there is no ephemeral entry
// for a requeue to remove, so every enqueue — regardless of reason — takes
// the new-message write path; EnqueueNew is always returned in that case.
func (b Base) Dispatch(msg *Message, reason EnqueueReason, now time.Time) EnqueueReason {
	switch reason {
	case EnqueueRequeue:
		msg.touch(now, true)
	case EnqueueRequeueSilent:
		// No bookkeeping change: Timestamp and NumRequeues carry over
		// from the message as taken.
	default:
		msg.newOnEnqueue(now)
	}

	if !b.Config.EphemeralEnabled() {
		return EnqueueNew
	}
	return reason
}

// Now returns the configured clock's current time.
func (b Base) Now() time.Time {
	return b.Config.Clock.Now()
}
