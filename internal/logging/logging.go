// Package logging wraps zerolog with the rotating-file sink this project
// uses everywhere else a log line is emitted, so every package shares one
// configuration story instead of each reaching for log.Printf.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// Config configures the global logger sink.
type Config struct {
	// Path is the log file path. Empty means stderr.
	Path string `toml:"path"`
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string `toml:"level"`
	// MaxSizeMB is the rotation threshold. Zero means the package default (128).
	MaxSizeMB int `toml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept. Zero means the package default (3).
	MaxBackups int `toml:"max_backups"`
}

const (
	defaultMaxSizeMB  = 128
	defaultMaxBackups = 3
)

var base = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init installs cfg as the process-wide logger sink. Safe to call once at
// startup; concurrent calls are not supported (mirrors the teacher's
// single-setter system-client swap pattern from bootstrap, not a runtime
// hot-reload path).
func Init(cfg Config) error {
	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultMaxSizeMB
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = defaultMaxBackups
		}
		w = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   false,
		}
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

func parseLevel(s string) (zerolog.Level, error) {
	switch s {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, xerrors.InvalidConfig("unknown log level: ", s)
	}
}

// L returns the process logger.
func L() *zerolog.Logger { return &base }

// Severity maps an xerrors.Severity to the matching zerolog event builder.
func Severity(sev xerrors.Severity) *zerolog.Event {
	switch sev {
	case xerrors.SeverityDebug:
		return base.Debug()
	case xerrors.SeverityInfo:
		return base.Info()
	case xerrors.SeverityWarning:
		return base.Warn()
	default:
		return base.Error()
	}
}

// WithTrace returns a logging context carrying the query's trace id, so
// every subsequent log line for this query can be correlated.
func WithTrace(ctx context.Context, traceID string) context.Context {
	l := base.With().Str("trace_id", traceID).Logger()
	return l.WithContext(ctx)
}

// Ctx returns the logger embedded in ctx by WithTrace, falling back to the
// base logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &base
}
