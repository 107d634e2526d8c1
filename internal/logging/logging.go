/*
Copyright 2025 The gyroconv Authors

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

// Package logging owns logger construction for the conversion engine.
// All packages receive a *zap.Logger explicitly; nothing logs through
// hidden global state.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Verbosity levels used across the engine. DEBUG carries per-field
// mapping detail, TRACE carries per-iteration fit residuals.
const (
	INFO  = zapcore.InfoLevel
	DEBUG = zapcore.DebugLevel
)

// NewLogger builds the production logger. Output is console-encoded on
// stderr so converted decks on stdout stay machine-readable.
func NewLogger(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// NewTestLogger builds a logger that routes through the test harness,
// so log lines attach to the failing test.
func NewTestLogger(t zaptest.TestingT) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel))
}

// NopLogger is a no-op logger for callers that do not care about
// diagnostics (library embedding, benchmarks).
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
