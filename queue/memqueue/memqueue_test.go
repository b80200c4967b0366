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

package memqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliqueue/reliqueue/queue"
	"github.com/reliqueue/reliqueue/queue/queuetest"
)

func newTestQueue(_ *testing.T, clock queue.Clock, ephemeralMaxSize int, ordering queue.Ordering) queue.Queue {
	return New("test", queue.Config{
		Clock:            clock,
		EphemeralMaxSize: ephemeralMaxSize,
		Ordering:         ordering,
	})
}

func TestConformance(t *testing.T) {
	queuetest.Run(t, newTestQueue)
}

func TestEphemeralDisabledSkipsHolding(t *testing.T) {
	ctx := context.Background()
	q := New("test", queue.Config{EphemeralDisabled: true})

	ok, err := q.Enqueue(ctx, queue.Message{Content: []byte("x")})
	require.NoError(t, err)
	require.True(t, ok)

	msg, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)

	es, err := q.EphemeralSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, es, "ephemeral storage must stay empty when disabled")

	// Finalize on a message never ephemerally held is accepted silently.
	require.NoError(t, q.Finalize(ctx, msg))
}

func TestFinalizeUnknownIDIsNotAnError(t *testing.T) {
	ctx := context.Background()
	q := New("test", queue.Config{})
	err := q.Finalize(ctx, queue.Message{ID: "never-taken"})
	assert.NoError(t, err)
}
