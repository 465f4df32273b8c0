package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Critical LogLevel = 50
	Fatal    LogLevel = Critical
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

// LoggerConfig controls how the root logger encodes its output.
type LoggerConfig struct {
	Level  LogLevel
	Format string    // "json" or "console"
	Output io.Writer // defaults to stdout
}

// Logger provides structured logging with a component prefix.
type Logger struct {
	prefix string
	level  zap.AtomicLevel
	logger *zap.SugaredLogger
}

// NewLogger creates a new JSON logger writing to stdout with a given prefix
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	levelValue := Warning
	if len(logLevel) > 0 {
		levelValue = logLevel[0]
	}

	logger, err := NewLoggerWithConfig(prefix, LoggerConfig{Level: levelValue, Format: "json"})
	if err != nil {
		// json encoding is always valid, this is unreachable in practice
		return NewLoggerWithCore(prefix, zapcore.NewNopCore(), levelValue)
	}
	return logger
}

// NewLoggerWithConfig creates a logger with an explicit output format.
func NewLoggerWithConfig(prefix string, cfg LoggerConfig) (*Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if cfg.Output != nil {
		sink = zapcore.Lock(zapcore.AddSync(cfg.Output))
	}

	level := zap.NewAtomicLevelAt(toZapLevel(cfg.Level))
	core := zapcore.NewCore(encoder, sink, level)

	return &Logger{
		prefix: prefix,
		level:  level,
		logger: zap.New(core).Named(prefix).Sugar(),
	}, nil
}

// NewLoggerWithCore builds a logger on top of an existing zap core.
// Tests use it with zaptest/observer to inspect emitted records.
func NewLoggerWithCore(prefix string, core zapcore.Core, logLevel LogLevel) *Logger {
	return &Logger{
		prefix: prefix,
		level:  zap.NewAtomicLevelAt(toZapLevel(logLevel)),
		logger: zap.New(core).Named(prefix).Sugar(),
	}
}

// Named returns a child logger sharing the output and level of l.
func (l *Logger) Named(prefix string) *Logger {
	return &Logger{
		prefix: l.prefix + "." + prefix,
		level:  l.level,
		logger: l.logger.Named(prefix),
	}
}

// Prefix returns the component prefix of the logger
func (l *Logger) Prefix() string {
	return l.prefix
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.level.SetLevel(toZapLevel(logLevel))
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	if !l.level.Enabled(zapcore.InfoLevel) {
		return
	}
	l.logger.Infow(msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	if !l.level.Enabled(zapcore.ErrorLevel) {
		return
	}
	l.logger.Errorw(msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	if !l.level.Enabled(zapcore.WarnLevel) {
		return
	}
	l.logger.Warnw(msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	if !l.level.Enabled(zapcore.DebugLevel) {
		return
	}
	l.logger.Debugw(msg, keyvals...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.logger.Sync()
}

// ParseLogLevel converts a level name (debug, info, warning, error, critical) into a LogLevel.
func ParseLogLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warning, nil
	case "error":
		return Error, nil
	case "critical", "fatal":
		return Critical, nil
	case "", "notset":
		return NotSet, nil
	default:
		return NotSet, fmt.Errorf("unknown log level %q", name)
	}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch {
	case level >= Critical:
		return zapcore.DPanicLevel
	case level >= Error:
		return zapcore.ErrorLevel
	case level >= Warning:
		return zapcore.WarnLevel
	case level >= Info:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
