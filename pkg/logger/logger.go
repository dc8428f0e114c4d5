// Package logger wraps zerolog for the pipeline: JSON lines on stderr,
// per-logger levels, and field sets rendered in a stable key order.
package logger

import (
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/pkg/config"
)

// AppName is stamped on every line
const AppName = "forecast-v6"

// Logger is a structured logger wrapper around zerolog
// ⭐ SSOT: 모든 로깅은 이 패키지를 통해서만 수행
type Logger struct {
	zlog zerolog.Logger
}

// New creates the process logger on stderr; stdout carries command output only
// ⭐ SSOT: zerolog 인스턴스는 여기서만 생성
func New(cfg *config.Config) *Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a Logger writing to w.
// The level applies to this logger only; the zerolog global level is left alone.
func NewWithWriter(cfg *config.Config, w io.Writer) *Logger {
	out := w
	if cfg.LogFormat == "console" || cfg.LogFormat == "pretty" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(out).
		Level(parseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("app", AppName).
		Str("env", cfg.Env).
		Logger()
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// parseLevel accepts zerolog level names plus "warning"; anything else is info
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Level returns the minimum level this logger emits
func (l *Logger) Level() zerolog.Level {
	return l.zlog.GetLevel()
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// WithField returns a child logger carrying key
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithFields returns a child logger carrying fields.
// Keys are added in sorted order so identical runs produce identical lines.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx := l.zlog.With()
	for _, k := range keys {
		ctx = ctx.Interface(k, fields[k])
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithError returns a child logger carrying err
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}

// ForRun tags every line of one pipeline run
func (l *Logger) ForRun(runID, asof, mode string) *Logger {
	return &Logger{zlog: l.zlog.With().
		Str("run_id", runID).
		Str("asof", asof).
		Str("mode", mode).
		Logger()}
}

// Zerolog returns the underlying logger for components that log with zerolog directly
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
