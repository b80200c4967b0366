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

// Package qlog wires the go-logr/logr interface every adapter takes to a
// zap-backed implementation, the same pairing the teacher's cmd/operator
// wires with zap.New/ctrl.SetLogger. Adapters never import zap directly;
// they only see logr.Logger.
package qlog

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

var (
	once       sync.Once
	baseLogger logr.Logger
)

// Default returns the process-wide default logger, lazily built from a
// production zap.Logger the first time it is requested. Adapters that
// receive the zero value of logr.Logger at construction fall back to this.
func Default() logr.Logger {
	once.Do(func() {
		zl, err := zap.NewProduction()
		if err != nil {
			zl = zap.NewNop()
		}
		baseLogger = zapr.NewLogger(zl)
	})
	return baseLogger
}

// Named returns Default() scoped with WithName(name), mirroring the
// teacher's per-scaler logger names ("redis_scaler", "postgresql_scaler").
func Named(name string) logr.Logger {
	return Default().WithName(name)
}

// OrDefault returns l if it is non-zero, otherwise Named(name).
func OrDefault(l logr.Logger, name string) logr.Logger {
	if l.GetSink() == nil {
		return Named(name)
	}
	return l
}
