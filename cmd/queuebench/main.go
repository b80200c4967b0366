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

// Command queuebench drives one queue.Queue backend end to end: it enqueues
// a batch of synthetic messages, runs a pool of consumers taking and
// finalizing them, and reports throughput and final storage sizes.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/reliqueue/reliqueue/internal/qlog"
	"github.com/reliqueue/reliqueue/queue"
	"github.com/reliqueue/reliqueue/queue/memqueue"
	"github.com/reliqueue/reliqueue/queue/redisqueue"
	"github.com/reliqueue/reliqueue/queue/ringqueue"
	"github.com/reliqueue/reliqueue/queue/sqlqueue"
)

func main() {
	var (
		backend   = pflag.String("backend", "mem", "adapter to exercise: mem, sql, redis, ring")
		messages  = pflag.Int("messages", 10000, "number of messages to enqueue")
		consumers = pflag.Int("consumers", 4, "number of concurrent consumer goroutines")
		ephemeral = pflag.Int("ephemeral-max-size", 0, "ephemeral storage cap; 0 is unbounded")
		ringCap   = pflag.Int("ring-capacity", 1024, "ring adapter capacity")
		sqlDSN    = pflag.String("sql-dsn", "", "DSN for the sql backend (postgres via pgx)")
		redisAddr = pflag.String("redis-addr", "127.0.0.1:6379", "address for the redis backend")
	)
	pflag.Parse()

	log := qlog.Named("queuebench")
	ctx := context.Background()

	q, cleanup, err := openBackend(ctx, *backend, *ephemeral, *ringCap, *sqlDSN, *redisAddr)
	if err != nil {
		log.Error(err, "failed to open backend")
		os.Exit(1)
	}
	defer cleanup()

	log.Info("enqueuing", "messages", *messages, "backend", *backend)
	start := time.Now()
	for i := 0; i < *messages; i++ {
		content := []byte(fmt.Sprintf("msg-%d", i))
		for {
			ok, err := q.Enqueue(ctx, queue.Message{Content: content})
			if err != nil {
				log.Error(err, "enqueue failed")
				os.Exit(1)
			}
			if ok {
				break
			}
		}
	}
	enqueueElapsed := time.Since(start)

	var taken int64
	var wg sync.WaitGroup
	consumeStart := time.Now()
	for c := 0; c < *consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for int(atomic.LoadInt64(&taken)) < *messages {
				msg, found, err := q.Take(ctx)
				if err != nil {
					log.Error(err, "take failed")
					return
				}
				if !found {
					continue
				}
				if err := q.Finalize(ctx, msg); err != nil {
					log.Error(err, "finalize failed")
					return
				}
				atomic.AddInt64(&taken, 1)
			}
		}()
	}
	wg.Wait()
	consumeElapsed := time.Since(consumeStart)

	queueSize, _ := q.QueueSize(ctx)
	ephemeralSize, _ := q.EphemeralSize(ctx)

	fmt.Printf("backend=%s messages=%d consumers=%d\n", *backend, *messages, *consumers)
	fmt.Printf("enqueue: %v (%.0f msg/s)\n", enqueueElapsed, float64(*messages)/enqueueElapsed.Seconds())
	fmt.Printf("consume: %v (%.0f msg/s)\n", consumeElapsed, float64(taken)/consumeElapsed.Seconds())
	fmt.Printf("final queueSize=%d ephemeralSize=%d\n", queueSize, ephemeralSize)
}

func openBackend(ctx context.Context, backend string, ephemeralMax, ringCap int, sqlDSN, redisAddr string) (queue.Queue, func(), error) {
	cfg := queue.Config{EphemeralMaxSize: ephemeralMax}

	switch backend {
	case "mem":
		q := memqueue.New("queuebench", cfg)
		return q, func() { q.Close(ctx) }, nil

	case "ring":
		q := ringqueue.New("queuebench", ringCap, cfg)
		return q, func() { q.Close(ctx) }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		q := redisqueue.NewWithClient("queuebench", client, redisqueue.Config{Config: cfg})
		return q, func() { q.Close(ctx) }, nil

	case "sql":
		if sqlDSN == "" {
			return nil, nil, fmt.Errorf("--sql-dsn is required for backend=sql")
		}
		q, err := sqlqueue.NewTwoTable(ctx, "queuebench", sqlqueue.Config{Config: cfg, DSN: sqlDSN})
		if err != nil {
			return nil, nil, err
		}
		if err := q.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return q, func() { q.Close(ctx) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}
