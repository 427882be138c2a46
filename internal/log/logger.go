// SPDX-License-Identifier: MIT
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
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
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// --- Global Logger State ---

// currentLevel mirrors the zap atomic level so GetLevel stays lock-free.
var currentLevel atomic.Uint32

// atomicLevel is shared by every core built by SetOutput.
var atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// sugar is swapped wholesale by SetOutput; readers load it atomically.
var sugar atomic.Pointer[zap.SugaredLogger]

func init() {
	SetOutput(os.Stderr)
	SetLevel(LevelInfo)
}

// SetOutput rebuilds the underlying zap core to write console-encoded
// entries to w. Intended for startup and tests.
func SetOutput(w io.Writer) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		atomicLevel,
	)
	sugar.Store(zap.New(core).Sugar())
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	atomicLevel.SetLevel(level.zapLevel())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Sync flushes any buffered entries. Call before exit.
func Sync() error {
	return sugar.Load().Sync()
}

// Formatted variants. Each entry is dropped when its level is below the
// current one; Fatalf always logs and then exits with status 1.

func Debugf(format string, v ...any) { sugar.Load().Debugf(format, v...) }
func Infof(format string, v ...any)  { sugar.Load().Infof(format, v...) }
func Warnf(format string, v ...any)  { sugar.Load().Warnf(format, v...) }
func Errorf(format string, v ...any) { sugar.Load().Errorf(format, v...) }
func Fatalf(format string, v ...any) { sugar.Load().Fatalf(format, v...) }

// Unformatted variants join their operands like fmt.Sprint.

func Debug(v ...any) { sugar.Load().Debug(v...) }
func Info(v ...any)  { sugar.Load().Info(v...) }
func Warn(v ...any)  { sugar.Load().Warn(v...) }
func Error(v ...any) { sugar.Load().Error(v...) }
func Fatal(v ...any) { sugar.Load().Fatal(v...) }
