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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reliqueue/reliqueue/queue"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultTableName, cfg.TableName)
	assert.Equal(t, defaultTableNameEphemeral, cfg.TableNameEphemeral)
	assert.IsType(t, Postgres{}, cfg.Dialect)
	assert.NotNil(t, cfg.Config.Clock)
}

func TestConfigDefaultsPreservesOverrides(t *testing.T) {
	cfg := Config{
		Dialect:            MySQL{SupportsSkipLocked: true},
		TableName:          "custom_t",
		TableNameEphemeral: "custom_t_eph",
	}.withDefaults()
	assert.Equal(t, MySQL{SupportsSkipLocked: true}, cfg.Dialect)
	assert.Equal(t, "custom_t", cfg.TableName)
	assert.Equal(t, "custom_t_eph", cfg.TableNameEphemeral)
}

func TestDialectPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", Postgres{}.Placeholder(1))
	assert.Equal(t, "$2", Postgres{}.Placeholder(2))
	assert.Equal(t, "?", MySQL{}.Placeholder(1))
	assert.Equal(t, "?", MySQL{}.Placeholder(7))
}

func TestDialectSkipLocked(t *testing.T) {
	assert.True(t, Postgres{}.SkipLocked())
	assert.False(t, MySQL{}.SkipLocked())
	assert.True(t, MySQL{SupportsSkipLocked: true}.SkipLocked())
}

func TestOrderingClause(t *testing.T) {
	assert.Equal(t, "ASC", orderingClause(queue.FIFO))
	assert.Equal(t, "DESC", orderingClause(queue.LIFO))
}

func TestRowRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Nanosecond)
	msg := queue.Message{
		ID:              "abc",
		Content:         []byte("payload"),
		OriginTimestamp: now,
		Timestamp:       now,
		NumRequeues:     2,
	}
	r := rowFromMessage(msg)
	got := r.toMessage()
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Content, got.Content)
	assert.True(t, msg.OriginTimestamp.Equal(got.OriginTimestamp))
	assert.True(t, msg.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, msg.NumRequeues, got.NumRequeues)
}

func TestBlobTypePerDialect(t *testing.T) {
	assert.Equal(t, "BYTEA", blobType(Postgres{}))
	assert.Equal(t, "LONGBLOB", blobType(MySQL{}))
}

func TestCreateTableSQLIncludesBothTables(t *testing.T) {
	ddl := createTableSQL(Postgres{}, "queue_t")
	assert.Contains(t, ddl, "queue_t")
	assert.Contains(t, ddl, "BYTEA")

	lessLockingDDL := createLessLockingTableSQL(MySQL{}, "queue_t")
	assert.Contains(t, lessLockingDDL, "ephemeral_id")
	assert.Contains(t, lessLockingDDL, "LONGBLOB")
}
