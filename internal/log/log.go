//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package log provides the structured logger and audit trail used by every
// component of the submission and messaging backend.
package log

import (
	"log/slog"
	"os"
	"sync"
)

var logger *slog.Logger
var loggerMutex sync.Mutex
var currentLevel = slog.LevelWarn

// SetLevel configures the level used by subsequent calls to Log. It has no
// effect once the logger has already been constructed by a call to Log.
func SetLevel(level slog.Level) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	currentLevel = level
}

// Log returns a thread-safe singleton instance of slog.Logger configured for
// JSON output. If the logger hasn't been initialized, it creates a new
// instance at the level set via SetLevel. Subsequent calls return the same
// logger instance.
func Log() *slog.Logger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if logger != nil {
		return logger
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: currentLevel,
	})
	logger = slog.New(handler)
	return logger
}
