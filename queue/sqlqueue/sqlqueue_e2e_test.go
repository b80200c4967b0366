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

// Conformance against a live Postgres and/or MySQL, gated behind the e2e
// build tag the same way the teacher gates its tests/scalers/*/*_test.go
// suites — these need a real database reachable via PG_DSN/MYSQL_DSN, not a
// mock.
package sqlqueue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/reliqueue/reliqueue/queue"
	"github.com/reliqueue/reliqueue/queue/queuetest"
)

func openTestDB(t *testing.T, envVar string, dialect Dialect) *sql.DB {
	dsn := os.Getenv(envVar)
	if dsn == "" {
		t.Skipf("%s not set; skipping live %s conformance", envVar, dialect.Name())
	}
	db, err := sql.Open(dialect.Name(), dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func newTwoTableTestQueue(t *testing.T, db *sql.DB, dialect Dialect) queuetest.Factory {
	return func(t *testing.T, clock queue.Clock, ephemeralMaxSize int, ordering queue.Ordering) queue.Queue {
		ns := uuid.NewString()[:8]
		cfg := Config{
			Config: queue.Config{
				Clock:            clock,
				EphemeralMaxSize: ephemeralMaxSize,
				Ordering:         ordering,
			},
			Dialect:            dialect,
			TableName:          fmt.Sprintf("t_two_%s", ns),
			TableNameEphemeral: fmt.Sprintf("t_two_eph_%s", ns),
		}
		q, err := NewTwoTableWithDB("e2e", db, cfg)
		require.NoError(t, err)
		require.NoError(t, q.EnsureSchema(context.Background()))
		t.Cleanup(func() {
			ctx := context.Background()
			db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", cfg.TableName))
			db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", cfg.TableNameEphemeral))
		})
		return q
	}
}

func newLessLockingTestQueue(t *testing.T, db *sql.DB, dialect Dialect) queuetest.Factory {
	return func(t *testing.T, clock queue.Clock, ephemeralMaxSize int, ordering queue.Ordering) queue.Queue {
		ns := uuid.NewString()[:8]
		cfg := Config{
			Config: queue.Config{
				Clock:            clock,
				EphemeralMaxSize: ephemeralMaxSize,
				Ordering:         ordering,
			},
			Dialect:   dialect,
			TableName: fmt.Sprintf("t_ll_%s", ns),
		}
		q, err := NewLessLockingWithDB("e2e", db, cfg)
		require.NoError(t, err)
		require.NoError(t, q.EnsureSchema(context.Background()))
		t.Cleanup(func() {
			db.ExecContext(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", cfg.TableName))
		})
		return q
	}
}

func TestConformancePostgresTwoTable(t *testing.T) {
	db := openTestDB(t, "PG_DSN", Postgres{})
	queuetest.Run(t, newTwoTableTestQueue(t, db, Postgres{}))
}

func TestConformancePostgresLessLocking(t *testing.T) {
	db := openTestDB(t, "PG_DSN", Postgres{})
	queuetest.Run(t, newLessLockingTestQueue(t, db, Postgres{}))
}

func TestConformanceMySQLTwoTable(t *testing.T) {
	db := openTestDB(t, "MYSQL_DSN", MySQL{SupportsSkipLocked: true})
	queuetest.Run(t, newTwoTableTestQueue(t, db, MySQL{SupportsSkipLocked: true}))
}

func TestConformanceMySQLLessLocking(t *testing.T) {
	db := openTestDB(t, "MYSQL_DSN", MySQL{SupportsSkipLocked: true})
	queuetest.Run(t, newLessLockingTestQueue(t, db, MySQL{SupportsSkipLocked: true}))
}
