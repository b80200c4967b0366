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

package sqlqueue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/reliqueue/reliqueue/internal/qmetrics"
	"github.com/reliqueue/reliqueue/queue"
)

// LessLockingQueue is the single-table relational adapter variant: rows stay
// in place and a nullable, unique ephemeral_id column marks which are
// "taken," trading a second table for an UPDATE on every Take, per
// spec.md §4.3.
type LessLockingQueue struct {
	base     queue.Base
	instance string
	metrics  qmetrics.Recorder
	logger   logr.Logger

	db     *sql.DB
	ownsDB bool

	dialect   Dialect
	tableName string

	takeMu sync.Mutex
}

var _ queue.Queue = (*LessLockingQueue)(nil)

// NewLessLocking opens its own *sql.DB from cfg.DSN/cfg.Dialect.
func NewLessLocking(ctx context.Context, instance string, cfg Config) (*LessLockingQueue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(true); err != nil {
		return nil, queue.NewSchemaError(backendName, "validate", err)
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	q := newLessLocking(instance, db, cfg)
	q.ownsDB = true
	return q, nil
}

// NewLessLockingWithDB builds a LessLockingQueue over a caller-supplied
// *sql.DB, which Close never closes, per spec.md §5.
func NewLessLockingWithDB(instance string, db *sql.DB, cfg Config) (*LessLockingQueue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(false); err != nil {
		return nil, queue.NewSchemaError(backendName, "validate", err)
	}
	return newLessLocking(instance, db, cfg), nil
}

func newLessLocking(instance string, db *sql.DB, cfg Config) *LessLockingQueue {
	return &LessLockingQueue{
		base:      queue.NewBase(backendName, cfg.Config),
		instance:  instance,
		metrics:   defaultMetrics(),
		logger:    loggerFor(cfg),
		db:        db,
		dialect:   cfg.Dialect,
		tableName: cfg.TableName,
	}
}

// WithMetrics attaches a qmetrics.Recorder; it returns l for chaining.
func (l *LessLockingQueue) WithMetrics(r qmetrics.Recorder) *LessLockingQueue {
	l.metrics = r
	return l
}

func (l *LessLockingQueue) ph(i int) string { return l.dialect.Placeholder(i) }

func (l *LessLockingQueue) Enqueue(ctx context.Context, msg queue.Message) (bool, error) {
	now := l.base.Now()
	if msg.ID == "" {
		msg.ID = newID()
	}
	l.base.Dispatch(&msg, queue.EnqueueNew, now)
	return l.insertRow(ctx, rowFromMessage(msg))
}

func (l *LessLockingQueue) insertRow(ctx context.Context, r row) (bool, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s (queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content, ephemeral_id) VALUES (%s, %s, %s, %s, %s, NULL)",
		l.tableName, l.ph(1), l.ph(2), l.ph(3), l.ph(4), l.ph(5),
	)
	_, err := l.db.ExecContext(ctx, query, r.id, r.orgTs, r.ts, r.numRequeues, r.content)
	if err != nil {
		if l.dialect.IsDuplicateKey(err) {
			return false, nil
		}
		l.logger.Error(err, "insert failed during enqueue", "id", r.id)
		return false, wrapTransient("enqueue", err)
	}
	l.metrics.ObserveEnqueue(backendName, l.instance, true)
	return true, nil
}

// selectUntakenID picks one row not currently marked ephemeral, honoring
// ordering and row-locking, returning "" if none is available. Both
// dialects express this as a plain locked SELECT over the candidate row;
// selectUntakenID's caller serializes access itself when the dialect
// cannot express SKIP LOCKED (see the takeMu fallback in Take).
func (l *LessLockingQueue) selectUntakenID(ctx context.Context, tx *sql.Tx) (string, error) {
	lockClause := " FOR UPDATE"
	if l.dialect.SkipLocked() {
		lockClause += " SKIP LOCKED"
	}
	query := fmt.Sprintf(
		"SELECT queue_id FROM %s WHERE ephemeral_id IS NULL ORDER BY msg_timestamp %s LIMIT 1%s",
		l.tableName, orderingClause(l.base.Config.Ordering), lockClause,
	)
	var id string
	err := tx.QueryRowContext(ctx, query).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		l.logger.Error(err, "select failed during take")
		return "", err
	}
	return id, nil
}

func (l *LessLockingQueue) Take(ctx context.Context) (queue.Message, bool, error) {
	ephemeralEnabled := l.base.Config.EphemeralEnabled()

	if ephemeralEnabled && l.base.Config.EphemeralMaxSize > 0 {
		size, err := l.ephemeralCount(ctx)
		if err != nil {
			return queue.Message{}, false, err
		}
		if l.base.Config.CapReached(size) {
			l.metrics.ObserveTake(backendName, l.instance, false)
			return queue.Message{}, false, nil
		}
	}

	if !l.dialect.SkipLocked() {
		l.takeMu.Lock()
		defer l.takeMu.Unlock()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		l.logger.Error(err, "begin transaction failed during take")
		return queue.Message{}, false, wrapTransient("take", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	id, err := l.selectUntakenID(ctx, tx)
	if err != nil {
		return queue.Message{}, false, wrapTransient("take", err)
	}
	if id == "" {
		l.metrics.ObserveTake(backendName, l.instance, false)
		return queue.Message{}, false, nil
	}

	selectQuery := fmt.Sprintf(
		"SELECT queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content FROM %s WHERE queue_id = %s",
		l.tableName, l.ph(1),
	)
	var r row
	if err := tx.QueryRowContext(ctx, selectQuery, id).Scan(&r.id, &r.orgTs, &r.ts, &r.numRequeues, &r.content); err != nil {
		l.logger.Error(err, "row fetch failed during take", "id", id)
		return queue.Message{}, false, wrapTransient("take", err)
	}
	msg := r.toMessage()

	if ephemeralEnabled {
		now := l.base.Now()
		updateQuery := fmt.Sprintf(
			"UPDATE %s SET ephemeral_id = %s, msg_timestamp = %s WHERE queue_id = %s",
			l.tableName, l.ph(1), l.ph(2), l.ph(3),
		)
		if _, err := tx.ExecContext(ctx, updateQuery, newID(), now.UnixNano(), id); err != nil {
			l.logger.Error(err, "update failed during take", "id", id)
			return queue.Message{}, false, wrapTransient("take", err)
		}
	} else {
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE queue_id = %s", l.tableName, l.ph(1))
		if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
			l.logger.Error(err, "delete failed during take", "id", id)
			return queue.Message{}, false, wrapTransient("take", err)
		}
	}

	if err := tx.Commit(); err != nil {
		l.logger.Error(err, "commit failed during take", "id", id)
		return queue.Message{}, false, wrapTransient("take", err)
	}
	committed = true

	l.metrics.ObserveTake(backendName, l.instance, true)
	return msg, true, nil
}

func (l *LessLockingQueue) Finalize(ctx context.Context, msg queue.Message) error {
	if !l.base.Config.EphemeralEnabled() {
		return nil
	}
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE queue_id = %s AND ephemeral_id IS NOT NULL",
		l.tableName, l.ph(1),
	)
	if _, err := l.db.ExecContext(ctx, query, msg.ID); err != nil {
		l.logger.Error(err, "delete failed during finalize", "id", msg.ID)
		return wrapTransient("finalize", err)
	}
	l.metrics.ObserveFinalize(backendName, l.instance)
	return nil
}

func (l *LessLockingQueue) Requeue(ctx context.Context, msg queue.Message) (bool, error) {
	return l.requeue(ctx, msg, queue.EnqueueRequeue)
}

func (l *LessLockingQueue) RequeueSilent(ctx context.Context, msg queue.Message) (bool, error) {
	return l.requeue(ctx, msg, queue.EnqueueRequeueSilent)
}

func (l *LessLockingQueue) requeue(ctx context.Context, msg queue.Message, reason queue.EnqueueReason) (bool, error) {
	now := l.base.Now()
	effective := l.base.Dispatch(&msg, reason, now)
	r := rowFromMessage(msg)
	silent := reason == queue.EnqueueRequeueSilent

	if effective == queue.EnqueueNew {
		// Row was already removed by a prior Take with ephemeral storage
		// disabled; requeue is a fresh insert.
		ok, err := l.insertRow(ctx, r)
		if err == nil && ok {
			l.metrics.ObserveRequeue(backendName, l.instance, silent)
		}
		return ok, err
	}

	query := fmt.Sprintf(
		"UPDATE %s SET msg_timestamp = %s, msg_num_requeues = %s, ephemeral_id = NULL WHERE queue_id = %s AND ephemeral_id IS NOT NULL",
		l.tableName, l.ph(1), l.ph(2), l.ph(3),
	)
	res, err := l.db.ExecContext(ctx, query, r.ts, r.numRequeues, r.id)
	if err != nil {
		l.logger.Error(err, "update failed during requeue", "id", r.id)
		return false, wrapTransient("requeue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		l.logger.Error(err, "rows affected failed during requeue", "id", r.id)
		return false, wrapTransient("requeue", err)
	}
	if n == 0 {
		return false, nil
	}
	l.metrics.ObserveRequeue(backendName, l.instance, silent)
	return true, nil
}

func (l *LessLockingQueue) Orphans(ctx context.Context, thresholdMs int64) ([]queue.Message, error) {
	if !l.base.Config.EphemeralEnabled() {
		return nil, nil
	}
	cutoff := l.base.Now().Add(-time.Duration(thresholdMs) * time.Millisecond).UnixNano()
	query := fmt.Sprintf(
		"SELECT queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content FROM %s WHERE ephemeral_id IS NOT NULL AND msg_timestamp < %s ORDER BY msg_timestamp ASC LIMIT %d",
		l.tableName, l.ph(1), queue.OrphanBatchSize,
	)
	rows, err := l.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		l.logger.Error(err, "query failed during orphans")
		return nil, wrapTransient("orphans", err)
	}
	defer rows.Close()

	var out []queue.Message
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.orgTs, &r.ts, &r.numRequeues, &r.content); err != nil {
			l.logger.Error(err, "scan failed during orphans")
			return nil, wrapTransient("orphans", err)
		}
		out = append(out, r.toMessage())
	}
	return out, rows.Err()
}

func (l *LessLockingQueue) QueueSize(ctx context.Context) (int, error) {
	return l.countWhere(ctx, "ephemeral_id IS NULL")
}

func (l *LessLockingQueue) EphemeralSize(ctx context.Context) (int, error) {
	if !l.base.Config.EphemeralEnabled() {
		return 0, nil
	}
	return l.ephemeralCount(ctx)
}

func (l *LessLockingQueue) ephemeralCount(ctx context.Context) (int, error) {
	return l.countWhere(ctx, "ephemeral_id IS NOT NULL")
}

func (l *LessLockingQueue) countWhere(ctx context.Context, predicate string) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", l.tableName, predicate)
	if err := l.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		l.logger.Error(err, "count failed", "predicate", predicate)
		return 0, wrapTransient("size", err)
	}
	return n, nil
}

func (l *LessLockingQueue) Close(context.Context) error {
	if !l.ownsDB {
		return nil
	}
	return l.db.Close()
}
