package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory represents a specific subsystem that can be debugged independently
type DebugCategory string

const (
	DebugCodec   DebugCategory = "codec"
	DebugSession DebugCategory = "session"
	DebugRelay   DebugCategory = "relay"
	DebugGateway DebugCategory = "gateway"
	DebugAll     DebugCategory = "all"
)

// Config holds logger configuration
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
}

// OutputFormat determines the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

var (
	defaultLogger *Logger
	once          sync.Once
)

// Logger wraps slog.Logger with category-based debugging
type Logger struct {
	*slog.Logger
	config *Config
	file   *os.File
}

// NewConfig creates a new logger configuration with defaults
func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatText,
		OutputFile:        "",
		EnabledCategories: make(map[DebugCategory]bool),
	}
}

// ParseLevel converts a string to LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new Logger instance with the given configuration
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	handlerOpts := &slog.HandlerOptions{
		Level: cfg.Level.ToSlogLevel(),
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, handlerOpts)
	case FormatText:
		handler = slog.NewTextHandler(writer, handlerOpts)
	default:
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
		file:   file,
	}, nil
}

// EnableCategory enables a specific debug category
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		c.EnabledCategories[DebugCodec] = true
		c.EnabledCategories[DebugSession] = true
		c.EnabledCategories[DebugRelay] = true
		c.EnabledCategories[DebugGateway] = true
	} else {
		c.EnabledCategories[category] = true
	}
}

// IsCategoryEnabled checks if a debug category is enabled
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnabledCategories[category]
}

// IsDebugEnabled checks if any debug category is enabled
func (c *Config) IsDebugEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.EnabledCategories) > 0
}

// CategoryEnabled reports whether category is enabled, so callers can skip
// expensive log-argument construction entirely when it isn't.
func (l *Logger) CategoryEnabled(category DebugCategory) bool {
	return l.config.IsCategoryEnabled(category)
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// DebugCodec logs codec (RTSP message read/write) details if enabled
func (l *Logger) DebugCodec(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugCodec) {
		args = append([]any{"category", "codec"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugSession logs session-driver state transitions if enabled
func (l *Logger) DebugSession(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugSession) {
		args = append([]any{"category", "session"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugRelay logs interleaved-relay frame details if enabled
func (l *Logger) DebugRelay(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugRelay) {
		args = append([]any{"category", "relay"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugGateway logs HTTP gateway details if enabled
func (l *Logger) DebugGateway(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugGateway) {
		args = append([]any{"category", "gateway"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugRelayFrame logs one interleaved frame's channel, size and RTP header
// fields (sequence, timestamp, payload type) if relay debugging is enabled.
// The caller supplies the already-parsed fields.
func (l *Logger) DebugRelayFrame(channel byte, seq uint16, timestamp uint32, payloadType uint8, size int) {
	if l.config.IsCategoryEnabled(DebugRelay) {
		l.Debug("interleaved frame",
			"category", "relay",
			"channel", channel,
			"sequence", seq,
			"timestamp", timestamp,
			"payload_type", payloadType,
			"size", size)
	}
}

// With returns a new Logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// SetDefault sets the global default logger
func SetDefault(logger *Logger) {
	defaultLogger = logger
	slog.SetDefault(logger.Logger)
}

// Default returns the default logger, creating one if necessary
func Default() *Logger {
	once.Do(func() {
		if defaultLogger != nil {
			return
		}
		cfg := NewConfig()
		l, err := New(cfg)
		if err != nil {
			l = &Logger{Logger: slog.Default(), config: cfg}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// Debug logs at Debug level using the default logger
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs at Info level using the default logger
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs at Warn level using the default logger
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs at Error level using the default logger
func Error(msg string, args ...any) { Default().Error(msg, args...) }
