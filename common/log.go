package common

// this file is inspired by the quic-go logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
)

type LogLevel uint8

const (
	// LogLevelNothing disables
	LogLevelNothing LogLevel = iota
	// LogLevelError enables err logs
	LogLevelError
	// LogLevelInfo enables info logs
	LogLevelInfo
	// LogLevelDebug enables debug logs
	LogLevelDebug
)

const DefaultLogLevel = LogLevelInfo
const LogEnv = "CRPERF_LOG_LEVEL"

// LogFormatEnv selects the output format, "json" or "cli" (default)
const LogFormatEnv = "CRPERF_LOG_FORMAT"

// A Logger logs.
type Logger interface {
	SetLogLevel(LogLevel)
	WithPrefix(prefix string) Logger
	WithField(key string, value interface{}) Logger

	Errorf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// DefaultLogger is used by crperf for logging.
var DefaultLogger Logger

type defaultLogger struct {
	prefix string
	fields log.Fields

	logLevel LogLevel
	backend  *log.Logger
}

var _ Logger = &defaultLogger{}

// NewLogger creates a logger writing to w.
// format is "json" or "cli".
func NewLogger(w io.Writer, format string, level LogLevel) Logger {
	var handler log.Handler
	switch format {
	case "json":
		handler = json.New(w)
	default:
		handler = cli.New(w)
	}
	l := &defaultLogger{
		backend: &log.Logger{
			Handler: handler,
			Level:   log.DebugLevel,
		},
		fields: log.Fields{},
	}
	l.SetLogLevel(level)
	return l
}

// SetLogLevel sets the log level
func (l *defaultLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
}

// Debugf logs something
func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	if l.logLevel == LogLevelDebug {
		l.entry().Debugf(format, args...)
	}
}

// Infof logs something
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	if l.logLevel >= LogLevelInfo {
		l.entry().Infof(format, args...)
	}
}

// Errorf logs something
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	if l.logLevel >= LogLevelError {
		l.entry().Errorf(format, args...)
	}
}

func (l *defaultLogger) entry() *log.Entry {
	e := l.backend.WithFields(l.fields)
	if len(l.prefix) > 0 {
		e = e.WithField("prefix", l.prefix)
	}
	return e
}

func (l *defaultLogger) WithPrefix(prefix string) Logger {
	if len(prefix) == 0 {
		prefix = l.prefix
	} else {
		prefix = l.prefix + "[" + prefix + "]"
	}
	return &defaultLogger{
		logLevel: l.logLevel,
		backend:  l.backend,
		fields:   l.fields,
		prefix:   prefix,
	}
}

func (l *defaultLogger) WithField(key string, value interface{}) Logger {
	fields := make(log.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &defaultLogger{
		logLevel: l.logLevel,
		backend:  l.backend,
		fields:   fields,
		prefix:   l.prefix,
	}
}

func init() {
	DefaultLogger = NewLogger(os.Stderr, strings.ToLower(os.Getenv(LogFormatEnv)), readLoggingEnv())
}

func readLoggingEnv() LogLevel {
	level, err := ParseLogLevel(os.Getenv(LogEnv))
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid crperf log level")
		return DefaultLogLevel
	}
	return level
}

// ParseLogLevel accepts "", "nothing", "error", "info" and "debug".
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultLogLevel, nil
	case "nothing", "none":
		return LogLevelNothing, nil
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "error":
		return LogLevelError, nil
	default:
		return DefaultLogLevel, fmt.Errorf("invalid log level %q", s)
	}
}
