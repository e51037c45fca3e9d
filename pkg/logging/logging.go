// Package logging provides named zap loggers shared across the node
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init configures the process-wide logger at the given level.
// Components created before Init keep the no-op logger, so call it
// first thing in main. Level accepts zap's textual levels
// ("debug", "info", "warn", "error").
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	base = logger
	mu.Unlock()

	return nil
}

// Logger returns a named sugared logger, e.g. Logger("network/socket")
func Logger(name string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(name).Sugar()
}

// Sync flushes buffered log entries; call on shutdown
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}
