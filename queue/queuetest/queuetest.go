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

// Package queuetest is the shared functional conformance suite every
// adapter's own _test.go runs against itself, per spec.md §4.2: "other
// adapters must pass the same functional test suite." Each adapter package
// supplies a Factory that builds a fresh, empty queue.Queue over the
// queue.Clock the suite passes in; the suite hands it a FixedClock and
// advances that clock to simulate the passage of time for orphan-threshold
// checks without a real sleep.
package queuetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliqueue/reliqueue/queue"
)

// FixedClock is a queue.Clock a test can advance manually, standing in for
// the adapter's SystemClock so orphan-threshold scenarios do not need to
// sleep real wall-clock time.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a FixedClock starting at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds a fresh, empty queue.Queue for a single test, using clock
// as the configured queue.Clock. ephemeralMaxSize of 0 means unbounded;
// ordering selects FIFO/LIFO.
type Factory func(t *testing.T, clock queue.Clock, ephemeralMaxSize int, ordering queue.Ordering) queue.Queue

// Run executes every conformance scenario against newQueue. Call it from
// each adapter's TestConformance(t *testing.T).
func Run(t *testing.T, newQueue Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newQueue) })
	t.Run("RequeueUpdatesCounters", func(t *testing.T) { testRequeueUpdatesCounters(t, newQueue) })
	t.Run("SilentRequeuePreservesCounters", func(t *testing.T) { testSilentRequeuePreservesCounters(t, newQueue) })
	t.Run("OrphanReclaim", func(t *testing.T) { testOrphanReclaim(t, newQueue) })
	t.Run("FIFOOrder", func(t *testing.T) { testFIFOOrder(t, newQueue) })
	t.Run("LIFOOrder", func(t *testing.T) { testLIFOOrder(t, newQueue) })
	t.Run("CapPushback", func(t *testing.T) { testCapPushback(t, newQueue) })
	t.Run("NoLossUnderConcurrency", func(t *testing.T) { testNoLossUnderConcurrency(t, newQueue) })
	t.Run("NonDuplicationUnderConcurrency", func(t *testing.T) { testNonDuplicationUnderConcurrency(t, newQueue) })
	t.Run("SizeMonotonicity", func(t *testing.T) { testSizeMonotonicity(t, newQueue) })
}

func testRoundTrip(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	ok, err := q.Enqueue(ctx, queue.Message{Content: []byte("hello")})
	require.NoError(t, err)
	require.True(t, ok)

	msg, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello", string(msg.Content))
	assert.Equal(t, 0, msg.NumRequeues)
	assert.Equal(t, msg.OriginTimestamp, msg.Timestamp)

	require.NoError(t, q.Finalize(ctx, msg))

	qs, err := q.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, qs)

	es, err := q.EphemeralSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, es)
}

func testRequeueUpdatesCounters(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	t0 := clock.Now()
	ok, err := q.Enqueue(ctx, queue.Message{Content: []byte("x")})
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Second)
	taken, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)

	clock.Advance(time.Second)
	t2 := clock.Now()
	ok, err = q.Requeue(ctx, taken)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Second)
	retaken, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, retaken.NumRequeues)
	assert.WithinDuration(t, t0, retaken.OriginTimestamp, time.Millisecond)
	assert.WithinDuration(t, t2, retaken.Timestamp, time.Millisecond)
}

func testSilentRequeuePreservesCounters(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	t0 := clock.Now()
	_, err := q.Enqueue(ctx, queue.Message{Content: []byte("x")})
	require.NoError(t, err)

	clock.Advance(time.Second)
	taken, _, err := q.Take(ctx)
	require.NoError(t, err)

	clock.Advance(time.Second)
	ok, err := q.RequeueSilent(ctx, taken)
	require.NoError(t, err)
	require.True(t, ok)

	retaken, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, retaken.NumRequeues)
	assert.WithinDuration(t, t0, retaken.Timestamp, time.Millisecond)
}

func testOrphanReclaim(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	_, err := q.Enqueue(ctx, queue.Message{Content: []byte("orph")})
	require.NoError(t, err)

	_, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)

	const thresholdMs = int64(1000)
	clock.Advance(time.Duration(thresholdMs+50) * time.Millisecond)

	orphans, err := q.Orphans(ctx, thresholdMs)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "orph", string(orphans[0].Content))

	ok, err := q.Requeue(ctx, orphans[0])
	require.NoError(t, err)
	require.True(t, ok)

	retaken, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "orph", string(retaken.Content))
}

func testFIFOOrder(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	for _, c := range []string{"a", "b", "c"} {
		ok, err := q.Enqueue(ctx, queue.Message{Content: []byte(c)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, want := range []string{"a", "b", "c"} {
		msg, found, err := q.Take(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, string(msg.Content))
	}
}

func testLIFOOrder(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.LIFO)
	defer q.Close(ctx)

	for _, c := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, queue.Message{Content: []byte(c)})
		require.NoError(t, err)
	}

	for _, want := range []string{"c", "b", "a"} {
		msg, found, err := q.Take(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, string(msg.Content))
	}
}

func testCapPushback(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 2, queue.FIFO)
	defer q.Close(ctx)

	for i := 0; i < 4; i++ {
		_, err := q.Enqueue(ctx, queue.Message{Content: []byte{byte('a' + i)}})
		require.NoError(t, err)
	}

	first, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = q.Take(ctx)
	require.NoError(t, err)
	assert.False(t, found, "take should report empty once the ephemeral cap is reached")

	require.NoError(t, q.Finalize(ctx, first))

	third, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c", string(third.Content))
}

func testNoLossUnderConcurrency(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				ok, err := q.Enqueue(ctx, queue.Message{Content: []byte{byte(i), byte(i >> 8)}})
				require.NoError(t, err)
				if ok {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var mu sync.Mutex
	for len(seen) < n {
		msg, found, err := q.Take(ctx)
		require.NoError(t, err)
		if !found {
			continue
		}
		mu.Lock()
		seen[string(msg.Content)] = struct{}{}
		mu.Unlock()
		require.NoError(t, q.Finalize(ctx, msg))
	}
	assert.Len(t, seen, n)
}

func testNonDuplicationUnderConcurrency(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	const n = 100
	const consumers = 8
	for i := 0; i < n; i++ {
		_, err := q.Enqueue(ctx, queue.Message{Content: []byte{byte(i), byte(i >> 8)}})
		require.NoError(t, err)
	}

	results := make(chan string, n)
	var wg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, found, err := q.Take(ctx)
				require.NoError(t, err)
				if !found {
					return
				}
				results <- string(msg.Content)
				require.NoError(t, q.Finalize(ctx, msg))
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]int)
	for r := range results {
		seen[r]++
	}
	assert.Len(t, seen, n)
	for k, count := range seen {
		assert.Equalf(t, 1, count, "id %q taken more than once", k)
	}
}

func testSizeMonotonicity(t *testing.T, newQueue Factory) {
	ctx := context.Background()
	clock := NewFixedClock(time.Now())
	q := newQueue(t, clock, 0, queue.FIFO)
	defer q.Close(ctx)

	size, err := q.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	_, err = q.Enqueue(ctx, queue.Message{Content: []byte("a")})
	require.NoError(t, err)
	size, err = q.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	_, _, err = q.Take(ctx)
	require.NoError(t, err)
	size, err = q.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
	assert.GreaterOrEqual(t, size, 0)
}
