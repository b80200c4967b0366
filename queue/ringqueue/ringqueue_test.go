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

package ringqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliqueue/reliqueue/queue"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := New("test", 4, queue.Config{})

	ok, err := q.Enqueue(ctx, queue.Message{Content: []byte("hello")})
	require.NoError(t, err)
	require.True(t, ok)

	msg, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello", string(msg.Content))

	require.NoError(t, q.Finalize(ctx, msg))

	es, err := q.EphemeralSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, es)

	orphans, err := q.Orphans(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q := New("test", 8, queue.Config{})

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

func TestFullRingBackpressure(t *testing.T) {
	ctx := context.Background()
	q := New("test", 2, queue.Config{})

	ok, err := q.Enqueue(ctx, queue.Message{Content: []byte("a")})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Enqueue(ctx, queue.Message{Content: []byte("b")})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Enqueue(ctx, queue.Message{Content: []byte("c")})
	require.NoError(t, err)
	assert.False(t, ok, "a full ring must report a failed commit, not block or overflow")

	_, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)

	ok, err = q.Enqueue(ctx, queue.Message{Content: []byte("c")})
	require.NoError(t, err)
	assert.True(t, ok, "freeing a slot must let the next enqueue commit")
}

func TestRequeueReturnsToTail(t *testing.T) {
	ctx := context.Background()
	q := New("test", 4, queue.Config{})

	_, err := q.Enqueue(ctx, queue.Message{Content: []byte("a")})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.Message{Content: []byte("b")})
	require.NoError(t, err)

	taken, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)

	ok, err := q.Requeue(ctx, taken)
	require.NoError(t, err)
	require.True(t, ok)

	next, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", string(next.Content))

	retaken, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", string(retaken.Content))
	assert.Equal(t, 1, retaken.NumRequeues)
}
