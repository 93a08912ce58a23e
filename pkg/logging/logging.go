package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level describes severity of log message.
type Level int

const (
	// LevelInfo is default log level.
	LevelInfo Level = iota
	// LevelDebug enables verbose output.
	LevelDebug
	// LevelWarn hides informational messages.
	LevelWarn
	// LevelError only reports failures.
	LevelError
)

// ParseLevel converts string to Level.
func ParseLevel(v string) Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger is a thin wrapper around logrus with levels.
type Logger struct {
	logger *logrus.Logger
}

// New creates a configured logger. Output goes to stderr unless path is set,
// stdout is reserved for report output.
func New(path string, level Level) (*Logger, error) {
	var output io.Writer = os.Stderr
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		output = f
	}
	return NewWithWriter(output, level), nil
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level Level) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.logrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return &Logger{logger: l}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, LevelError)
}

// SetFormat switches between "text" and "json" output.
func (l *Logger) SetFormat(format string) {
	if l == nil {
		return
	}
	if strings.EqualFold(format, "json") {
		l.logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	l.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
}

// SetLevel changes the active level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.logger.SetLevel(level.logrus())
}

// WithFields returns an entry carrying structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if l == nil {
		return logrus.NewEntry(Discard().logger)
	}
	return l.logger.WithFields(fields)
}

// Infof logs informational messages.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Infof(format, args...)
}

// Debugf logs verbose diagnostic messages.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Debugf(format, args...)
}

// Warnf logs recoverable problems.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Warnf(format, args...)
}

// Errorf logs errors.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Errorf(format, args...)
}
