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

// Package sqlqueue is the relational adapter. It ships two variants that
// must be functionally indistinguishable to a queue.Queue caller, per
// spec.md §4.3:
//
//   - TwoTableQueue: a queue table and an identically-shaped ephemeral
//     table; Take moves a row between them inside one transaction.
//   - LessLockingQueue: one table with a nullable, unique ephemeral_id
//     column; Take stamps it instead of moving the row.
//
// Both register the teacher's choice of drivers under database/sql: Dialect
// Postgres targets jackc/pgx/v5 (registered as "pgx"), Dialect MySQL targets
// go-sql-driver/mysql (registered as "mysql").
package sqlqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/reliqueue/reliqueue/internal/qlog"
	"github.com/reliqueue/reliqueue/internal/qmetrics"
	"github.com/reliqueue/reliqueue/internal/retry"
	"github.com/reliqueue/reliqueue/queue"
)

const backendName = "sqlqueue"

const (
	defaultTableName          = "queue_t"
	defaultTableNameEphemeral = "queue_t_ephemeral"
)

// Config carries relational-specific options alongside the common
// queue.Config.
type Config struct {
	queue.Config

	Dialect Dialect

	// DSN lets NewTwoTable/NewLessLocking open their own *sql.DB with the
	// driver named by Dialect. Ignored by the NewXxxWithDB constructors,
	// which take a caller-supplied *sql.DB instead.
	DSN string

	TableName          string
	TableNameEphemeral string

	Logger logr.Logger
}

func (c Config) withDefaults() Config {
	c.Config = c.Config.WithDefaults()
	if c.Dialect == nil {
		c.Dialect = Postgres{}
	}
	if c.TableName == "" {
		c.TableName = defaultTableName
	}
	if c.TableNameEphemeral == "" {
		c.TableNameEphemeral = defaultTableNameEphemeral
	}
	return c
}

// validate collects every configuration problem at once instead of failing
// on the first one.
func (c Config) validate(requireDSN bool) error {
	var result *multierror.Error
	if requireDSN && c.DSN == "" {
		result = multierror.Append(result, fmt.Errorf("sqlqueue: DSN must be set"))
	}
	if c.TableName == c.TableNameEphemeral {
		result = multierror.Append(result, fmt.Errorf("sqlqueue: TableName and TableNameEphemeral must be distinct"))
	}
	if c.Dialect == nil {
		result = multierror.Append(result, fmt.Errorf("sqlqueue: Dialect must be set"))
	}
	return result.ErrorOrNil()
}

// openDB opens and pings a *sql.DB for cfg.Dialect against cfg.DSN, the way
// the teacher's getConnection opens "pgx" and pings before returning.
func openDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Dialect.Name(), cfg.DSN)
	if err != nil {
		return nil, queue.NewSchemaError(backendName, "open", err)
	}
	pingErr := retry.Do(ctx, retry.DefaultPolicy, func() error {
		return db.PingContext(ctx)
	})
	if pingErr != nil {
		db.Close()
		return nil, queue.NewTransientError(backendName, "ping", pingErr)
	}
	return db, nil
}

// row is the shared shape of one queue/ephemeral table record.
type row struct {
	id          string
	orgTs       int64
	ts          int64
	numRequeues int
	content     []byte
}

func rowFromMessage(msg queue.Message) row {
	return row{
		id:          msg.ID,
		orgTs:       msg.OriginTimestamp.UnixNano(),
		ts:          msg.Timestamp.UnixNano(),
		numRequeues: msg.NumRequeues,
		content:     msg.Content,
	}
}

func (r row) toMessage() queue.Message {
	return queue.Message{
		ID:              r.id,
		Content:         r.content,
		OriginTimestamp: nanoToTime(r.orgTs),
		Timestamp:       nanoToTime(r.ts),
		NumRequeues:     r.numRequeues,
	}
}

func newID() string {
	return uuid.NewString()
}

func nanoToTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

func orderingClause(ordering queue.Ordering) string {
	if ordering == queue.LIFO {
		return "DESC"
	}
	return "ASC"
}

func loggerFor(cfg Config) logr.Logger {
	return qlog.OrDefault(cfg.Logger, backendName)
}

func defaultMetrics() qmetrics.Recorder {
	return qmetrics.NoopRecorder{}
}

func wrapTransient(op string, err error) error {
	return queue.NewTransientError(backendName, op, err)
}
