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
	"fmt"
)

// blobType returns the driver-appropriate column type for msg_content.
func blobType(dialect Dialect) string {
	if dialect.Name() == "mysql" {
		return "LONGBLOB"
	}
	return "BYTEA"
}

// createTableSQL returns the DDL for a queue-shaped table, used for both
// identical tables of the two-table variant. The less-locking variant's
// table comes from createLessLockingTableSQL instead.
func createTableSQL(dialect Dialect, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	queue_id VARCHAR(64) NOT NULL PRIMARY KEY,
	msg_org_timestamp BIGINT NOT NULL,
	msg_timestamp BIGINT NOT NULL,
	msg_num_requeues INT NOT NULL DEFAULT 0,
	msg_content %s NOT NULL
)`, table, blobType(dialect))
}

// createLessLockingTableSQL adds the nullable, unique ephemeral-token
// column the single-table variant uses in place of a second table.
func createLessLockingTableSQL(dialect Dialect, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	queue_id VARCHAR(64) NOT NULL PRIMARY KEY,
	msg_org_timestamp BIGINT NOT NULL,
	msg_timestamp BIGINT NOT NULL,
	msg_num_requeues INT NOT NULL DEFAULT 0,
	msg_content %s NOT NULL,
	ephemeral_id VARCHAR(64) UNIQUE
)`, table, blobType(dialect))
}

// EnsureSchema creates t's table(s) if they do not already exist. It is a
// convenience for tests and small deployments; production callers are free
// to manage migrations themselves, per spec.md §1's note that schema/pool
// setup is an external collaborator's concern.
func (t *TwoTableQueue) EnsureSchema(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, createTableSQL(t.dialect, t.tableName)); err != nil {
		return fmt.Errorf("create queue table %s: %w", t.tableName, err)
	}
	if _, err := t.db.ExecContext(ctx, createTableSQL(t.dialect, t.tableNameEphemeral)); err != nil {
		return fmt.Errorf("create ephemeral table %s: %w", t.tableNameEphemeral, err)
	}
	return nil
}

// EnsureSchema creates l's single table if it does not already exist.
func (l *LessLockingQueue) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createLessLockingTableSQL(l.dialect, l.tableName)); err != nil {
		return fmt.Errorf("create queue table %s: %w", l.tableName, err)
	}
	return nil
}
