package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/user/towerbridge/config"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	TRACE LogLevel = iota // Raw native callbacks, per-tower discovery events
	DEBUG                 // Settlements, lane transitions
	INFO                  // High-level events (connections, sessions, sync)
	WARN                  // Warnings
	ERROR                 // Errors
)

var (
	currentLevel LogLevel = INFO
	mu           sync.RWMutex
	base         *zap.Logger
	hooks        []func(level LogLevel, prefix, msg string)
)

func init() {
	base = zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig(false)),
		zapcore.AddSync(os.Stdout),
		zapcore.DebugLevel,
	))
}

// Init installs the zap core described by cfg. The level filter stays with SetLevel.
func Init(cfg *config.LogConfig) error {
	if cfg == nil {
		return nil
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig(true))
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig(false))
	}

	var cores []zapcore.Core

	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapcore.DebugLevel))
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Path, cfg.File.Filename),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(fileWriter), zapcore.DebugLevel))
	}

	if len(cores) == 0 {
		return fmt.Errorf("unknown log output %q", cfg.Output)
	}

	mu.Lock()
	base = zap.New(zapcore.NewTee(cores...))
	mu.Unlock()

	SetLevel(ParseLevel(cfg.Level))
	return nil
}

func encoderConfig(structured bool) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if structured {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	return cfg
}

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// ParseLevel converts a string to a LogLevel.
// "verbose" is the native SDK's name for the most detailed level.
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "TRACE", "VERBOSE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// String returns the level name
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// AddHook registers a function that observes every emitted line (after level filtering)
func AddHook(hook func(level LogLevel, prefix, msg string)) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook)
}

func log(level LogLevel, prefix, format string, args ...interface{}) {
	mu.RLock()
	if level < currentLevel {
		mu.RUnlock()
		return
	}
	l := base
	hs := hooks
	mu.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if prefix != "" {
		l = l.Named(prefix)
	}

	switch level {
	case TRACE, DEBUG:
		l.Debug(msg, zap.String("lvl", level.String()))
	case INFO:
		l.Info(msg)
	case WARN:
		l.Warn(msg)
	case ERROR:
		l.Error(msg)
	}

	for _, h := range hs {
		h(level, prefix, msg)
	}
}

// Trace logs a trace message (raw native callbacks)
func Trace(prefix, format string, args ...interface{}) {
	log(TRACE, prefix, format, args...)
}

// Debug logs a debug message
func Debug(prefix, format string, args ...interface{}) {
	log(DEBUG, prefix, format, args...)
}

// Info logs an info message (high-level events)
func Info(prefix, format string, args ...interface{}) {
	log(INFO, prefix, format, args...)
}

// Warn logs a warning message
func Warn(prefix, format string, args ...interface{}) {
	log(WARN, prefix, format, args...)
}

// Error logs an error message
func Error(prefix, format string, args ...interface{}) {
	log(ERROR, prefix, format, args...)
}

// Sync flushes the zap core
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

// ToJSON converts any value to a pretty-printed JSON string for logging
func ToJSON(v interface{}) string {
	if msg, ok := v.(proto.Message); ok {
		marshaler := protojson.MarshalOptions{
			Multiline:       true,
			Indent:          "  ",
			EmitUnpopulated: false,
		}
		jsonBytes, err := marshaler.Marshal(msg)
		if err != nil {
			return fmt.Sprintf("<error: %v>", err)
		}
		return string(jsonBytes)
	}

	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(jsonBytes)
}

// TraceJSON logs a trace message with a JSON representation
func TraceJSON(prefix, label string, v interface{}) {
	if GetLevel() > TRACE {
		return
	}
	log(TRACE, prefix, "%s:\n%s", label, ToJSON(v))
}

// DebugJSON logs a debug message with a JSON representation
func DebugJSON(prefix, label string, v interface{}) {
	if GetLevel() > DEBUG {
		return
	}
	log(DEBUG, prefix, "%s:\n%s", label, ToJSON(v))
}
