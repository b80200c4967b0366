//go:build e2e
// +build e2e

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

// Conformance against a live Redis, gated behind the e2e build tag the same
// way the teacher gates its tests/scalers/redis/*_test.go suites — these
// need a real backend reachable at REDIS_ADDR, not a mock.
package redisqueue

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/reliqueue/reliqueue/queue"
	"github.com/reliqueue/reliqueue/queue/queuetest"
)

func redisAddr(t *testing.T) string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping live redis conformance")
	}
	return addr
}

func newTestQueue(t *testing.T, clock queue.Clock, ephemeralMaxSize int, ordering queue.Ordering) queue.Queue {
	client := redis.NewClient(&redis.Options{Addr: redisAddr(t)})
	ns := uuid.NewString()[:8]
	q := NewWithClient("e2e", client, Config{
		Config: queue.Config{
			Clock:            clock,
			EphemeralMaxSize: ephemeralMaxSize,
			Ordering:         ordering,
		},
		HashName:      fmt.Sprintf("test_h_%s", ns),
		ListName:      fmt.Sprintf("test_l_%s", ns),
		SortedSetName: fmt.Sprintf("test_s_%s", ns),
	})
	t.Cleanup(func() {
		ctx := context.Background()
		client.Del(ctx, q.hashName, q.listName, q.sortedSetName)
		client.Close()
	})
	return q
}

func TestConformance(t *testing.T) {
	queuetest.Run(t, newTestQueue)
}

func TestEphemeralDisabled(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: redisAddr(t)})
	defer client.Close()
	ns := uuid.NewString()[:8]
	q := NewWithClient("e2e", client, Config{
		Config:        queue.Config{EphemeralDisabled: true},
		HashName:      fmt.Sprintf("test_h_%s", ns),
		ListName:      fmt.Sprintf("test_l_%s", ns),
		SortedSetName: fmt.Sprintf("test_s_%s", ns),
	})
	defer client.Del(ctx, q.hashName, q.listName, q.sortedSetName)

	ok, err := q.Enqueue(ctx, queue.Message{Content: []byte("x")})
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := q.Take(ctx)
	require.NoError(t, err)
	require.True(t, found)

	es, err := q.EphemeralSize(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, es)
}
