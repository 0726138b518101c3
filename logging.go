package streamsync

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	baseLoggerMu sync.RWMutex
	baseLogger   = log.Logger
)

// SetLogger replaces the package logger. Components created afterwards
// derive their loggers from it; existing components are unaffected.
func SetLogger(logger zerolog.Logger) {
	baseLoggerMu.Lock()
	baseLogger = logger
	baseLoggerMu.Unlock()
}

// componentLogger derives a logger tagged with the component name.
func componentLogger(component string) zerolog.Logger {
	baseLoggerMu.RLock()
	defer baseLoggerMu.RUnlock()
	return baseLogger.With().Str("component", component).Logger()
}
