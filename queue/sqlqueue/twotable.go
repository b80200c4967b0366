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

// TwoTableQueue is the two-table relational adapter variant: a queue table
// and an identically-shaped ephemeral table, moved between inside one
// transaction on Take, per spec.md §4.3.
type TwoTableQueue struct {
	base     queue.Base
	instance string
	metrics  qmetrics.Recorder
	logger   logr.Logger

	db     *sql.DB
	ownsDB bool

	dialect            Dialect
	tableName          string
	tableNameEphemeral string

	// takeMu serializes Take when the dialect cannot express SKIP
	// LOCKED, per spec.md §9's fallback note.
	takeMu sync.Mutex
}

var _ queue.Queue = (*TwoTableQueue)(nil)

// NewTwoTable opens its own *sql.DB from cfg.DSN/cfg.Dialect.
func NewTwoTable(ctx context.Context, instance string, cfg Config) (*TwoTableQueue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(true); err != nil {
		return nil, queue.NewSchemaError(backendName, "validate", err)
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	q := newTwoTable(instance, db, cfg)
	q.ownsDB = true
	return q, nil
}

// NewTwoTableWithDB builds a TwoTableQueue over a caller-supplied *sql.DB,
// which Close never closes, per spec.md §5.
func NewTwoTableWithDB(instance string, db *sql.DB, cfg Config) (*TwoTableQueue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(false); err != nil {
		return nil, queue.NewSchemaError(backendName, "validate", err)
	}
	return newTwoTable(instance, db, cfg), nil
}

func newTwoTable(instance string, db *sql.DB, cfg Config) *TwoTableQueue {
	return &TwoTableQueue{
		base:               queue.NewBase(backendName, cfg.Config),
		instance:           instance,
		metrics:            defaultMetrics(),
		logger:             loggerFor(cfg),
		db:                 db,
		dialect:            cfg.Dialect,
		tableName:          cfg.TableName,
		tableNameEphemeral: cfg.TableNameEphemeral,
	}
}

// WithMetrics attaches a qmetrics.Recorder; it returns t for chaining.
func (t *TwoTableQueue) WithMetrics(r qmetrics.Recorder) *TwoTableQueue {
	t.metrics = r
	return t
}

func (t *TwoTableQueue) ph(i int) string { return t.dialect.Placeholder(i) }

func (t *TwoTableQueue) Enqueue(ctx context.Context, msg queue.Message) (bool, error) {
	now := t.base.Now()
	if msg.ID == "" {
		msg.ID = newID()
	}
	t.base.Dispatch(&msg, queue.EnqueueNew, now)
	return t.insertInto(ctx, t.tableName, rowFromMessage(msg))
}

func (t *TwoTableQueue) insertInto(ctx context.Context, table string, r row) (bool, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s (queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content) VALUES (%s, %s, %s, %s, %s)",
		table, t.ph(1), t.ph(2), t.ph(3), t.ph(4), t.ph(5),
	)
	_, err := t.db.ExecContext(ctx, query, r.id, r.orgTs, r.ts, r.numRequeues, r.content)
	if err != nil {
		if t.dialect.IsDuplicateKey(err) {
			// Report failure for caller retry rather than silently
			// regenerating the id, per spec.md §4.3's either/or.
			return false, nil
		}
		t.logger.Error(err, "insert failed during enqueue", "table", table, "id", r.id)
		return false, wrapTransient("enqueue", err)
	}
	t.metrics.ObserveEnqueue(backendName, t.instance, true)
	return true, nil
}

func (t *TwoTableQueue) Take(ctx context.Context) (queue.Message, bool, error) {
	ephemeralEnabled := t.base.Config.EphemeralEnabled()

	if ephemeralEnabled && t.base.Config.EphemeralMaxSize > 0 {
		size, err := t.countTable(ctx, t.tableNameEphemeral)
		if err != nil {
			return queue.Message{}, false, err
		}
		if t.base.Config.CapReached(size) {
			t.metrics.ObserveTake(backendName, t.instance, false)
			return queue.Message{}, false, nil
		}
	}

	if !t.dialect.SkipLocked() {
		t.takeMu.Lock()
		defer t.takeMu.Unlock()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		t.logger.Error(err, "begin transaction failed during take")
		return queue.Message{}, false, wrapTransient("take", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	lockClause := " FOR UPDATE"
	if t.dialect.SkipLocked() {
		lockClause += " SKIP LOCKED"
	}
	selectQuery := fmt.Sprintf(
		"SELECT queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content FROM %s ORDER BY msg_timestamp %s LIMIT 1%s",
		t.tableName, orderingClause(t.base.Config.Ordering), lockClause,
	)

	var r row
	err = tx.QueryRowContext(ctx, selectQuery).Scan(&r.id, &r.orgTs, &r.ts, &r.numRequeues, &r.content)
	if err == sql.ErrNoRows {
		t.metrics.ObserveTake(backendName, t.instance, false)
		return queue.Message{}, false, nil
	}
	if err != nil {
		t.logger.Error(err, "select failed during take")
		return queue.Message{}, false, wrapTransient("take", err)
	}

	msg := r.toMessage()

	if ephemeralEnabled {
		takeRow := r
		takeRow.ts = t.base.Now().UnixNano()
		insertQuery := fmt.Sprintf(
			"INSERT INTO %s (queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content) VALUES (%s, %s, %s, %s, %s)",
			t.tableNameEphemeral, t.ph(1), t.ph(2), t.ph(3), t.ph(4), t.ph(5),
		)
		if _, err := tx.ExecContext(ctx, insertQuery, takeRow.id, takeRow.orgTs, takeRow.ts, takeRow.numRequeues, takeRow.content); err != nil {
			t.logger.Error(err, "ephemeral insert failed during take", "id", r.id)
			return queue.Message{}, false, wrapTransient("take", err)
		}
	}

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE queue_id = %s", t.tableName, t.ph(1))
	if _, err := tx.ExecContext(ctx, deleteQuery, r.id); err != nil {
		t.logger.Error(err, "delete failed during take", "id", r.id)
		return queue.Message{}, false, wrapTransient("take", err)
	}

	if err := tx.Commit(); err != nil {
		t.logger.Error(err, "commit failed during take", "id", r.id)
		return queue.Message{}, false, wrapTransient("take", err)
	}
	committed = true

	t.metrics.ObserveTake(backendName, t.instance, true)
	return msg, true, nil
}

func (t *TwoTableQueue) Finalize(ctx context.Context, msg queue.Message) error {
	if !t.base.Config.EphemeralEnabled() {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE queue_id = %s", t.tableNameEphemeral, t.ph(1))
	if _, err := t.db.ExecContext(ctx, query, msg.ID); err != nil {
		t.logger.Error(err, "delete failed during finalize", "id", msg.ID)
		return wrapTransient("finalize", err)
	}
	t.metrics.ObserveFinalize(backendName, t.instance)
	return nil
}

func (t *TwoTableQueue) Requeue(ctx context.Context, msg queue.Message) (bool, error) {
	return t.requeue(ctx, msg, queue.EnqueueRequeue)
}

func (t *TwoTableQueue) RequeueSilent(ctx context.Context, msg queue.Message) (bool, error) {
	return t.requeue(ctx, msg, queue.EnqueueRequeueSilent)
}

func (t *TwoTableQueue) requeue(ctx context.Context, msg queue.Message, reason queue.EnqueueReason) (bool, error) {
	now := t.base.Now()
	effective := t.base.Dispatch(&msg, reason, now)
	r := rowFromMessage(msg)
	silent := reason == queue.EnqueueRequeueSilent

	if effective == queue.EnqueueNew {
		ok, err := t.insertInto(ctx, t.tableName, r)
		if err == nil && ok {
			t.metrics.ObserveRequeue(backendName, t.instance, silent)
		}
		return ok, err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		t.logger.Error(err, "begin transaction failed during requeue", "id", r.id)
		return false, wrapTransient("requeue", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE queue_id = %s", t.tableNameEphemeral, t.ph(1))
	if _, err := tx.ExecContext(ctx, deleteQuery, r.id); err != nil {
		t.logger.Error(err, "delete failed during requeue", "id", r.id)
		return false, wrapTransient("requeue", err)
	}

	insertQuery := fmt.Sprintf(
		"INSERT INTO %s (queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content) VALUES (%s, %s, %s, %s, %s)",
		t.tableName, t.ph(1), t.ph(2), t.ph(3), t.ph(4), t.ph(5),
	)
	if _, err := tx.ExecContext(ctx, insertQuery, r.id, r.orgTs, r.ts, r.numRequeues, r.content); err != nil {
		t.logger.Error(err, "insert failed during requeue", "id", r.id)
		return false, wrapTransient("requeue", err)
	}

	if err := tx.Commit(); err != nil {
		t.logger.Error(err, "commit failed during requeue", "id", r.id)
		return false, wrapTransient("requeue", err)
	}
	committed = true
	t.metrics.ObserveRequeue(backendName, t.instance, silent)
	return true, nil
}

func (t *TwoTableQueue) Orphans(ctx context.Context, thresholdMs int64) ([]queue.Message, error) {
	if !t.base.Config.EphemeralEnabled() {
		return nil, nil
	}
	cutoff := t.base.Now().Add(-time.Duration(thresholdMs) * time.Millisecond).UnixNano()
	query := fmt.Sprintf(
		"SELECT queue_id, msg_org_timestamp, msg_timestamp, msg_num_requeues, msg_content FROM %s WHERE msg_timestamp < %s ORDER BY msg_timestamp ASC LIMIT %d",
		t.tableNameEphemeral, t.ph(1), queue.OrphanBatchSize,
	)
	rows, err := t.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		t.logger.Error(err, "query failed during orphans")
		return nil, wrapTransient("orphans", err)
	}
	defer rows.Close()

	var out []queue.Message
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.orgTs, &r.ts, &r.numRequeues, &r.content); err != nil {
			t.logger.Error(err, "scan failed during orphans")
			return nil, wrapTransient("orphans", err)
		}
		out = append(out, r.toMessage())
	}
	return out, rows.Err()
}

func (t *TwoTableQueue) QueueSize(ctx context.Context) (int, error) {
	return t.countTable(ctx, t.tableName)
}

func (t *TwoTableQueue) EphemeralSize(ctx context.Context) (int, error) {
	if !t.base.Config.EphemeralEnabled() {
		return 0, nil
	}
	return t.countTable(ctx, t.tableNameEphemeral)
}

func (t *TwoTableQueue) countTable(ctx context.Context, table string) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := t.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		t.logger.Error(err, "count failed", "table", table)
		return 0, wrapTransient("size", err)
	}
	return n, nil
}

func (t *TwoTableQueue) Close(context.Context) error {
	if !t.ownsDB {
		return nil
	}
	return t.db.Close()
}
