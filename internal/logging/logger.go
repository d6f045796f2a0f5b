// Package logging is blockd's slog setup: a console or JSON handler on
// stderr, optionally teed to a remote syslog server, with component-scoped
// child loggers that share one adjustable level.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Level represents log severity levels.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

const componentKey = "component"

// Logger is a slog.Logger plus the level it shares with every logger
// derived from it.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config holds logger configuration.
type Config struct {
	Level  Level
	Output io.Writer // nil means stderr
	JSON   bool
	// Name prefixes console lines; empty means "blockd".
	Name string
	// Syslog, when set, tees every record to a remote server. Only Open
	// honours it.
	Syslog *SyslogConfig
}

// DefaultConfig returns info level console output on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// New creates a Logger without a syslog tee.
func New(cfg Config) *Logger {
	lv := &slog.LevelVar{}
	lv.Set(cfg.Level)
	return &Logger{Logger: slog.New(localHandler(cfg, lv)), level: lv}
}

// Open creates a Logger and, if cfg.Syslog is set, connects the syslog tee.
// The closer releases the syslog connection and is never nil.
func Open(cfg Config) (*Logger, io.Closer, error) {
	if cfg.Syslog == nil {
		return New(cfg), nopCloser{}, nil
	}
	lv := &slog.LevelVar{}
	lv.Set(cfg.Level)
	sh, err := DialSyslog(*cfg.Syslog, lv)
	if err != nil {
		return nil, nil, err
	}
	h := teeHandler{localHandler(cfg, lv), sh}
	return &Logger{Logger: slog.New(h), level: lv}, sh, nil
}

func localHandler(cfg Config, lv *slog.LevelVar) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.JSON {
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lv})
	}
	return NewConsoleHandler(out, cfg.Name, lv)
}

// ParseLevel maps a config string (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

var defaultLogger atomic.Pointer[Logger]

// Default returns the process logger, creating a console logger on first use.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultLogger.CompareAndSwap(nil, New(DefaultConfig()))
	return defaultLogger.Load()
}

// SetDefault replaces the process logger and routes the slog default to it.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
	slog.SetDefault(l.Logger)
}

// SetLevel changes the level for this logger and all its relatives.
func (l *Logger) SetLevel(level Level) { l.level.Set(level) }

// Level returns the current level.
func (l *Logger) Level() Level { return l.level.Level() }

// WithComponent returns a child logger tagged with a component name, which
// the console handler prints before the message.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(componentKey, name)
}

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{Level: LevelError + 4, Output: io.Discard})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
