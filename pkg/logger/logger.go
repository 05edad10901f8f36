package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory represents a specific subsystem whose debug logging can be
// toggled independently.
type DebugCategory string

const (
	DebugRTP      DebugCategory = "rtp"
	DebugRTCP     DebugCategory = "rtcp"
	DebugMpegts   DebugCategory = "mpegts"
	DebugStun     DebugCategory = "stun"
	DebugEventLog DebugCategory = "eventlog"
	DebugHub      DebugCategory = "hub"
	DebugAll      DebugCategory = "all"
)

// OutputFormat determines the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config holds logger configuration
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
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

// ToZerologLevel converts LogLevel to zerolog.Level
func (l LogLevel) ToZerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableCategory enables a specific debug category
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		c.EnabledCategories[DebugRTP] = true
		c.EnabledCategories[DebugRTCP] = true
		c.EnabledCategories[DebugMpegts] = true
		c.EnabledCategories[DebugStun] = true
		c.EnabledCategories[DebugEventLog] = true
		c.EnabledCategories[DebugHub] = true
		return
	}
	c.EnabledCategories[category] = true
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

// Logger wraps zerolog.Logger with category-gated debug helpers.
type Logger struct {
	zerolog.Logger
	config *Config
	file   *os.File
}

// New creates a new Logger instance with the given configuration
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	if cfg.Format == FormatText {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(writer).Level(cfg.Level.ToZerologLevel()).With().Timestamp().Logger()

	return &Logger{Logger: zl, config: cfg, file: file}, nil
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// WithComponent returns a sub-logger carrying the given component name, the teacher's
// "component" sub-logger idiom.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", name).Logger(),
		config: l.config,
		file:   l.file,
	}
}

// debugCategory emits a debug event tagged with category if enabled.
func (l *Logger) debugCategory(category DebugCategory, msg string) *zerolog.Event {
	if !l.config.IsCategoryEnabled(category) {
		return nil
	}
	return l.Debug().Str("category", string(category))
}

// DebugRTP logs RTP details if RTP debugging is enabled.
func (l *Logger) DebugRTP(msg string, fields map[string]any) {
	emit(l.debugCategory(DebugRTP, msg), msg, fields)
}

// DebugRTCP logs RTCP details if RTCP debugging is enabled.
func (l *Logger) DebugRTCP(msg string, fields map[string]any) {
	emit(l.debugCategory(DebugRTCP, msg), msg, fields)
}

// DebugMpegts logs MPEG-TS details if MPEG-TS debugging is enabled.
func (l *Logger) DebugMpegts(msg string, fields map[string]any) {
	emit(l.debugCategory(DebugMpegts, msg), msg, fields)
}

// DebugStun logs STUN details if STUN debugging is enabled.
func (l *Logger) DebugStun(msg string, fields map[string]any) {
	emit(l.debugCategory(DebugStun, msg), msg, fields)
}

// DebugEventLog logs event-log decode details if that category is enabled.
func (l *Logger) DebugEventLog(msg string, fields map[string]any) {
	emit(l.debugCategory(DebugEventLog, msg), msg, fields)
}

// DebugHub logs session hub details if that category is enabled.
func (l *Logger) DebugHub(msg string, fields map[string]any) {
	emit(l.debugCategory(DebugHub, msg), msg, fields)
}

func emit(ev *zerolog.Event, msg string, fields map[string]any) {
	if ev == nil {
		return
	}
	ev.Fields(fields).Msg(msg)
}

// Global default logger

var (
	defaultLogger *Logger
	once          sync.Once
)

// SetDefault sets the global default logger
func SetDefault(logger *Logger) {
	defaultLogger = logger
	zerolog.DefaultContextLogger = &logger.Logger
}

// Default returns the default logger, creating one if necessary
func Default() *Logger {
	once.Do(func() {
		cfg := NewConfig()
		logger, err := New(cfg)
		if err != nil {
			logger = &Logger{Logger: zerolog.New(os.Stdout).With().Timestamp().Logger(), config: cfg}
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// Package-level convenience functions

func Debug(msg string) { Default().Debug().Msg(msg) }
func Info(msg string)  { Default().Info().Msg(msg) }
func Warn(msg string)  { Default().Warn().Msg(msg) }
func Error(msg string) { Default().Error().Msg(msg) }
