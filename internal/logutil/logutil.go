// Package logutil holds the process-wide structured logger. Log output goes
// to stderr; stdout is reserved for CSV sinks.
package logutil

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// InitLogger installs a console logger at the named level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func InitLogger(level string) {
	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl)
	SetLogger(zap.New(core))
}

// SetLogger replaces the process-wide logger.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// GetLogger returns the process-wide logger; a no-op logger until InitLogger
// or SetLogger is called.
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
