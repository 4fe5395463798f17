package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	initOnce    sync.Once
	atomicLevel zap.AtomicLevel
	sugar       *zap.SugaredLogger
)

// levelFromEnv resolves the starting level from DEBUG and LOG_LEVEL.
func levelFromEnv() LogLevel {
	if debug := os.Getenv("DEBUG"); debug != "" {
		switch strings.ToLower(debug) {
		case "1", "true", "yes", "on":
			return LevelDebug
		}
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(l zapcore.Level) LogLevel {
	switch {
	case l <= zapcore.DebugLevel:
		return LevelDebug
	case l == zapcore.InfoLevel:
		return LevelInfo
	case l == zapcore.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

// initLogger builds the zap backend on first use.
// LOG_FORMAT=json switches from the console encoder to JSON.
func initLogger() {
	initOnce.Do(func() {
		atomicLevel = zap.NewAtomicLevelAt(levelFromEnv().zapLevel())

		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

		var encoder zapcore.Encoder
		if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		}

		core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel)
		sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLogger()
	return fromZapLevel(atomicLevel.Level())
}

// SetLevel changes the log level at runtime
func SetLevel(level LogLevel) {
	initLogger()
	atomicLevel.SetLevel(level.zapLevel())
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	initLogger()
	sugar.Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	initLogger()
	sugar.Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	initLogger()
	sugar.Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	initLogger()
	sugar.Errorf(format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	initLogger()
	sugar.Fatalf(format, args...)
}

// Sync flushes buffered log entries. Call it before the process exits.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
