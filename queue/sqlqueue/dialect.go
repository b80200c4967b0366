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
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect isolates the handful of places the relational adapter's SQL
// differs across drivers: placeholder syntax, row-lock clause, and
// duplicate-key detection. Everything else in this package is driver
// agnostic database/sql.
type Dialect interface {
	// Name identifies the driver registered with database/sql:
	// "pgx" or "mysql".
	Name() string
	// Placeholder returns the bound-parameter marker for the i-th
	// parameter (1-indexed).
	Placeholder(i int) string
	// SkipLocked reports whether SELECT ... FOR UPDATE SKIP LOCKED is
	// available, per spec.md §9's row-selection note.
	SkipLocked() bool
	// IsDuplicateKey reports whether err is a unique-constraint
	// violation on the adapter's id column.
	IsDuplicateKey(err error) bool
}

// Postgres targets github.com/jackc/pgx/v5 registered via pgx/v5/stdlib
// under the driver name "pgx".
type Postgres struct{}

func (Postgres) Name() string                 { return "pgx" }
func (Postgres) Placeholder(i int) string      { return fmt.Sprintf("$%d", i) }
func (Postgres) SkipLocked() bool              { return true }
func (Postgres) IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return asPgError(err, &pgErr) && pgErr.Code == "23505"
}

// MySQL targets github.com/go-sql-driver/mysql registered under the driver
// name "mysql". MySQL 8.0+ supports SKIP LOCKED; earlier versions fall back
// to a short application-level mutex in the adapter (see twotable.go).
type MySQL struct {
	// SupportsSkipLocked should be false for MySQL/MariaDB versions
	// older than 8.0/10.6, which reject the SKIP LOCKED clause.
	SupportsSkipLocked bool
}

func (MySQL) Name() string            { return "mysql" }
func (MySQL) Placeholder(int) string  { return "?" }
func (m MySQL) SkipLocked() bool      { return m.SupportsSkipLocked }
func (MySQL) IsDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pe, ok := err.(*pgconn.PgError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
