package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init builds the process logger and installs it as the package default.
// prod selects JSON output at info level; otherwise a colored console
// logger at debug level.
func Init(prod bool) (*zap.Logger, error) { return InitLevel(prod, "") }

// InitLevel is Init with an explicit level name ("debug", "warn", ...).
// An empty or unknown name keeps the mode's default.
func InitLevel(prod bool, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if prod {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if lvl, err := zapcore.ParseLevel(level); level != "" && err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	Set(l)
	return l, nil
}

func Set(l *zap.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// L returns the package default logger; a no-op logger before Init.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}
