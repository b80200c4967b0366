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

// Package redisqueue is the key-value adapter: a hash mapping id to
// serialized message, a list holding the pending id sequence, and a sorted
// set (ephemeral) scored by take timestamp. Take is a single server-side
// Lua script so the pop-from-list and add-to-sorted-set happen atomically,
// per spec.md §4.4.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"github.com/reliqueue/reliqueue/internal/qlog"
	"github.com/reliqueue/reliqueue/internal/qmetrics"
	"github.com/reliqueue/reliqueue/internal/retry"
	"github.com/reliqueue/reliqueue/queue"
)

const backendName = "redisqueue"

const (
	defaultHashName      = "queue_h"
	defaultListName      = "queue_l"
	defaultSortedSetName = "queue_s"
)

// scriptTakeNoEphemeral pops the next id with the pop command in ARGV[1]
// (LPOP for FIFO, RPOP for LIFO), reads and deletes its payload, and
// returns both. A nil-ish Lua `false` return means the list was empty;
// go-redis surfaces that as redis.Nil.
const scriptTakeNoEphemeral = `
local id = redis.call(ARGV[1], KEYS[1])
if not id then
  return false
end
local payload = redis.call('HGET', KEYS[2], id)
redis.call('HDEL', KEYS[2], id)
return {id, payload}
`

// scriptTakeEphemeral pops the next id with the pop command in ARGV[2]
// (LPOP for FIFO, RPOP for LIFO) and, in the same script, records it in the
// ephemeral sorted set scored by the consumer-supplied now (ARGV[1]); the
// hash entry is left untouched until Finalize.
const scriptTakeEphemeral = `
local id = redis.call(ARGV[2], KEYS[1])
if not id then
  return false
end
redis.call('ZADD', KEYS[3], ARGV[1], id)
local payload = redis.call('HGET', KEYS[2], id)
return {id, payload}
`

// scriptRequeue atomically removes id from the ephemeral sorted set, pushes
// it back onto the tail of the list, and refreshes its hash payload. This
// resolves the spec's Open Question (§9, "scriptMove") in favor of the
// scripted-atomic path over a pipelined one; see DESIGN.md.
const scriptRequeue = `
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
return 1
`

// Config carries redis-specific options alongside the common queue.Config.
type Config struct {
	queue.Config

	// Addr, Username, Password, DB configure a client New builds itself.
	// Ignored by NewWithClient.
	Addr     string
	Username string
	Password string
	DB       int

	HashName      string
	ListName      string
	SortedSetName string

	Logger logr.Logger
}

func (c Config) withDefaults() Config {
	c.Config = c.Config.WithDefaults()
	if c.HashName == "" {
		c.HashName = defaultHashName
	}
	if c.ListName == "" {
		c.ListName = defaultListName
	}
	if c.SortedSetName == "" {
		c.SortedSetName = defaultSortedSetName
	}
	return c
}

// validate collects every configuration problem at once instead of failing
// on the first one, the way a caller assembling Config from several
// independent flags or env vars would want to see them all together.
func (c Config) validate(requireAddr bool) error {
	var result *multierror.Error
	if requireAddr && c.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("redisqueue: Addr must be set"))
	}
	if c.HashName == c.ListName || c.HashName == c.SortedSetName || c.ListName == c.SortedSetName {
		result = multierror.Append(result, fmt.Errorf("redisqueue: HashName, ListName and SortedSetName must be distinct"))
	}
	return result.ErrorOrNil()
}

// Queue is the key-value adapter.
type Queue struct {
	base     queue.Base
	instance string
	metrics  qmetrics.Recorder
	logger   logr.Logger

	client     redis.UniversalClient
	ownsClient bool

	hashName      string
	listName      string
	sortedSetName string

	takeEphemeral   *redis.Script
	takeNoEphemeral *redis.Script
	requeueScript   *redis.Script
}

var _ queue.Queue = (*Queue)(nil)

// New builds a redisqueue adapter and its own *redis.Client from cfg, and
// pings it to fail fast on misconfiguration, the way the teacher's
// getRedisClient does.
func New(ctx context.Context, instance string, cfg Config) (*Queue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(true); err != nil {
		return nil, queue.NewSchemaError(backendName, "validate", err)
	}
	options := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	client := redis.NewClient(options)
	pingErr := retry.Do(ctx, retry.DefaultPolicy, func() error {
		return client.Ping(ctx).Err()
	})
	if pingErr != nil {
		return nil, queue.NewTransientError(backendName, "connect", pingErr)
	}
	q := newQueue(instance, client, cfg)
	q.ownsClient = true
	return q, nil
}

// NewWithClient builds a redisqueue adapter over a caller-supplied client.
// The adapter never closes client on Close, per spec.md §5's resource
// lifecycle policy.
func NewWithClient(instance string, client redis.UniversalClient, cfg Config) *Queue {
	return newQueue(instance, client, cfg)
}

func newQueue(instance string, client redis.UniversalClient, cfg Config) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		base:            queue.NewBase(backendName, cfg.Config),
		instance:        instance,
		metrics:         qmetrics.NoopRecorder{},
		logger:          qlog.OrDefault(cfg.Logger, backendName),
		client:          client,
		hashName:        cfg.HashName,
		listName:        cfg.ListName,
		sortedSetName:   cfg.SortedSetName,
		takeEphemeral:   redis.NewScript(scriptTakeEphemeral),
		takeNoEphemeral: redis.NewScript(scriptTakeNoEphemeral),
		requeueScript:   redis.NewScript(scriptRequeue),
	}
}

// WithMetrics attaches a qmetrics.Recorder; it returns q for chaining.
func (q *Queue) WithMetrics(r qmetrics.Recorder) *Queue {
	q.metrics = r
	return q
}

func (q *Queue) Enqueue(ctx context.Context, msg queue.Message) (bool, error) {
	now := q.base.Now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	q.base.Dispatch(&msg, queue.EnqueueNew, now)

	data, err := q.base.Config.Serializer.Marshal(msg)
	if err != nil {
		return false, queue.NewSerializationError(backendName, "enqueue", err)
	}

	// HSet is a blind overwrite: a retried Enqueue with the same id is
	// idempotent even if a prior attempt got this far and then failed.
	if err := q.client.HSet(ctx, q.hashName, msg.ID, data).Err(); err != nil {
		q.logger.Error(err, "hset failed during enqueue", "id", msg.ID)
		q.metrics.ObserveEnqueue(backendName, q.instance, false)
		return false, queue.NewTransientError(backendName, "enqueue", err)
	}
	// RPush is the commit point: nothing is externally visible until it
	// succeeds.
	if err := q.client.RPush(ctx, q.listName, msg.ID).Err(); err != nil {
		q.logger.Error(err, "rpush failed during enqueue", "id", msg.ID)
		q.metrics.ObserveEnqueue(backendName, q.instance, false)
		return false, queue.NewTransientError(backendName, "enqueue", err)
	}

	q.metrics.ObserveEnqueue(backendName, q.instance, true)
	return true, nil
}

func (q *Queue) Take(ctx context.Context) (queue.Message, bool, error) {
	ephemeralEnabled := q.base.Config.EphemeralEnabled()

	if ephemeralEnabled && q.base.Config.EphemeralMaxSize > 0 {
		size, err := q.client.ZCard(ctx, q.sortedSetName).Result()
		if err != nil {
			return queue.Message{}, false, queue.NewTransientError(backendName, "take", err)
		}
		if q.base.Config.CapReached(int(size)) {
			q.metrics.ObserveTake(backendName, q.instance, false)
			return queue.Message{}, false, nil
		}
	}

	// Enqueue and requeue push onto the tail, so FIFO pops the head and
	// LIFO pops the tail.
	popCmd := "LPOP"
	if q.base.Config.Ordering == queue.LIFO {
		popCmd = "RPOP"
	}

	now := q.base.Now()
	var res interface{}
	var err error
	if ephemeralEnabled {
		res, err = q.takeEphemeral.Run(ctx, q.client,
			[]string{q.listName, q.hashName, q.sortedSetName},
			now.UnixMilli(), popCmd,
		).Result()
	} else {
		res, err = q.takeNoEphemeral.Run(ctx, q.client,
			[]string{q.listName, q.hashName},
			popCmd,
		).Result()
	}

	if errors.Is(err, redis.Nil) {
		q.metrics.ObserveTake(backendName, q.instance, false)
		return queue.Message{}, false, nil
	}
	if err != nil {
		return queue.Message{}, false, queue.NewTransientError(backendName, "take", err)
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) != 2 {
		return queue.Message{}, false, queue.NewSchemaError(backendName, "take", fmt.Errorf("unexpected take script reply: %#v", res))
	}
	payload, _ := fields[1].(string)
	if payload == "" {
		return queue.Message{}, false, queue.NewSchemaError(backendName, "take", fmt.Errorf("missing hash payload for id %v", fields[0]))
	}

	msg, err := q.base.Config.Serializer.Unmarshal([]byte(payload))
	if err != nil {
		return queue.Message{}, false, queue.NewSerializationError(backendName, "take", err)
	}

	q.metrics.ObserveTake(backendName, q.instance, true)
	return msg, true, nil
}

func (q *Queue) Finalize(ctx context.Context, msg queue.Message) error {
	if !q.base.Config.EphemeralEnabled() {
		return nil
	}
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, q.sortedSetName, msg.ID)
	pipe.HDel(ctx, q.hashName, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return queue.NewTransientError(backendName, "finalize", err)
	}
	q.metrics.ObserveFinalize(backendName, q.instance)
	return nil
}

func (q *Queue) Requeue(ctx context.Context, msg queue.Message) (bool, error) {
	return q.requeue(ctx, msg, queue.EnqueueRequeue)
}

func (q *Queue) RequeueSilent(ctx context.Context, msg queue.Message) (bool, error) {
	return q.requeue(ctx, msg, queue.EnqueueRequeueSilent)
}

func (q *Queue) requeue(ctx context.Context, msg queue.Message, reason queue.EnqueueReason) (bool, error) {
	now := q.base.Now()
	effective := q.base.Dispatch(&msg, reason, now)

	data, err := q.base.Config.Serializer.Marshal(msg)
	if err != nil {
		return false, queue.NewSerializationError(backendName, "requeue", err)
	}

	silent := reason == queue.EnqueueRequeueSilent
	if effective == queue.EnqueueNew {
		// Ephemeral disabled: per §4.6 there is no ephemeral entry to
		// move, so requeue takes the same write path as a new enqueue.
		if err := q.client.HSet(ctx, q.hashName, msg.ID, data).Err(); err != nil {
			return false, queue.NewTransientError(backendName, "requeue", err)
		}
		if err := q.client.RPush(ctx, q.listName, msg.ID).Err(); err != nil {
			return false, queue.NewTransientError(backendName, "requeue", err)
		}
		q.metrics.ObserveRequeue(backendName, q.instance, silent)
		return true, nil
	}

	if _, err := q.requeueScript.Run(ctx, q.client,
		[]string{q.sortedSetName, q.listName, q.hashName},
		msg.ID, data,
	).Result(); err != nil {
		return false, queue.NewTransientError(backendName, "requeue", err)
	}
	q.metrics.ObserveRequeue(backendName, q.instance, silent)
	return true, nil
}

func (q *Queue) Orphans(ctx context.Context, thresholdMs int64) ([]queue.Message, error) {
	if !q.base.Config.EphemeralEnabled() {
		return nil, nil
	}
	cutoff := q.base.Now().Add(-time.Duration(thresholdMs) * time.Millisecond).UnixMilli()

	ids, err := q.client.ZRangeByScore(ctx, q.sortedSetName, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(cutoff, 10),
		Offset: 0,
		Count:  int64(queue.OrphanBatchSize),
	}).Result()
	if err != nil {
		return nil, queue.NewTransientError(backendName, "orphans", err)
	}

	out := make([]queue.Message, 0, len(ids))
	for _, id := range ids {
		data, err := q.client.HGet(ctx, q.hashName, id).Result()
		if errors.Is(err, redis.Nil) {
			// Already-finalized leftover: the sorted-set entry
			// outlived its hash payload.
			continue
		}
		if err != nil {
			return nil, queue.NewTransientError(backendName, "orphans", err)
		}
		msg, err := q.base.Config.Serializer.Unmarshal([]byte(data))
		if err != nil {
			q.logger.Error(err, "skipping corrupt orphan payload", "id", id)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (q *Queue) QueueSize(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.listName).Result()
	if err != nil {
		return 0, queue.NewTransientError(backendName, "queue_size", err)
	}
	return int(n), nil
}

func (q *Queue) EphemeralSize(ctx context.Context) (int, error) {
	if !q.base.Config.EphemeralEnabled() {
		return 0, nil
	}
	n, err := q.client.ZCard(ctx, q.sortedSetName).Result()
	if err != nil {
		return 0, queue.NewTransientError(backendName, "ephemeral_size", err)
	}
	return int(n), nil
}

func (q *Queue) Close(context.Context) error {
	if !q.ownsClient {
		return nil
	}
	if err := q.client.Close(); err != nil {
		q.logger.Error(err, "error closing redis client")
		return err
	}
	return nil
}
