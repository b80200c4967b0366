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

// Package retry wraps cenkalti/backoff/v4 into the single bounded
// exponential-backoff helper every adapter uses for transient backend
// errors, instead of each adapter hand-rolling its own retry loop.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures a bounded exponential backoff run.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultPolicy is tuned for sub-second backend round-trips: a lock-wait
// timeout or a dropped connection should resolve within a couple of
// seconds, not tie up a consumer goroutine indefinitely.
var DefaultPolicy = Policy{
	InitialInterval: 25 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
	MaxElapsedTime:  3 * time.Second,
}

// Permanent wraps err so Do stops retrying immediately, surfacing err as
// the final result. Use it for schema/serialization errors encountered
// mid-retry that a resend of the same operation cannot fix.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a Permanent error, or p's backoff
// budget is exhausted, whichever comes first. ctx cancellation aborts the
// retry loop immediately.
func Do(ctx context.Context, p Policy, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime

	err := backoff.Retry(fn, backoff.WithContext(b, ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
	}
	return err
}
