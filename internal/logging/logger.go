// Package logging provides structured logging for the fwrelease CLI.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures the optional rotating log file.
type FileConfig struct {
	// Path is the log file (empty = no file logging)
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger wraps zerolog. Console output is human readable; the optional file
// sink receives the same events as JSON lines.
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	file    *lumberjack.Logger
}

// NewLogger creates a logger writing console output to out.
func NewLogger(out io.Writer) *Logger {
	l := &Logger{}
	l.SetOutput(out)
	return l
}

// NewDefaultCLILogger creates a logger on stderr. Stdout is left for command
// output that build scripts may capture (tags, flags).
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stderr)
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), console: io.Discard}
}

// EnableFile adds a rotating JSON log file next to the console output.
func (l *Logger) EnableFile(cfg FileConfig) error {
	if cfg.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return err
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}
	l.file = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
		Compress:   true,
	}
	l.rebuild()
	return nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput changes the console writer, e.g. to route logs through a
// progress bar while it renders.
func (l *Logger) SetOutput(w io.Writer) {
	l.console = w
	l.rebuild()
}

// Output returns the current console writer.
func (l *Logger) Output() io.Writer {
	return l.console
}

func (l *Logger) rebuild() {
	var out io.Writer = zerolog.ConsoleWriter{
		Out:        l.console,
		TimeFormat: "15:04:05",
	}
	if l.file != nil {
		out = zerolog.MultiLevelWriter(out, l.file)
	}
	l.zlog = zerolog.New(out).With().Timestamp().Logger()
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when --verbose or --debug is set.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config value to a level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// RetryLogger adapts a Logger to the leveled logger interface used by
// go-retryablehttp. Info and debug chatter is logged at debug level.
type RetryLogger struct {
	L *Logger
}

func (r RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.L.Warn().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (r RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.L.Debug().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (r RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.L.Debug().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (r RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.L.Warn().Fields(keysAndValues).Msg("[retry] " + msg)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
