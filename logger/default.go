package logger

import (
	"os"
	"strings"
	"sync/atomic"
)

// LevelEnv names the environment variable holding the level of the default
// logger, e.g. UHS2_LOG_LEVEL=debug.
const LevelEnv = "UHS2_LOG_LEVEL"

var defLogger atomic.Pointer[Logger]

func init() {
	level, ok := ParseLevel(strings.ToLower(os.Getenv(LevelEnv)))
	if !ok {
		level = InfoLevel
	}

	SetDefault(NewSlog(level, false))
}

// SetDefault replaces the logger returned by GetLogger and used by the
// package-level functions. A nil l is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}

	defLogger.Store(&l)
}

// GetLogger returns the default logger. Components fall back to it when no
// logger is configured.
func GetLogger() Logger {
	return *defLogger.Load()
}

func Debug(msg string, keysAndValues ...any) {
	GetLogger().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	GetLogger().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	GetLogger().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	GetLogger().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	GetLogger().Fatal(msg, keysAndValues...)
}

func SetLevel(level Level) {
	GetLogger().SetLevel(level)
}

func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}
