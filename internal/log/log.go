// Package log wraps logrus behind a small interface so the dispatcher,
// filters and spec loader never depend on a concrete logging library
// directly.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger instances provide custom, structured logging. Filter and
// dispatcher code should call WithFields once per request and reuse the
// returned Logger for the remainder of that request's lifetime instead of
// attaching fields call-by-call.
type Logger interface {
	Error(...interface{})
	Errorf(string, ...interface{})
	Warn(...interface{})
	Warnf(string, ...interface{})
	Info(...interface{})
	Infof(string, ...interface{})
	Debug(...interface{})
	Debugf(string, ...interface{})

	WithFields(Fields) Logger
}

// Fields is a set of structured key/value pairs attached to a log line.
type Fields map[string]interface{}

// Default returns a Logger backed by logrus, writing to stderr at info
// level, in the shape the engine uses when the host application does not
// inject its own Logger.
func Default() Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Level = logrus.InfoLevel
	return &logrusLogger{logger: l}
}

type logrusLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

func (l *logrusLogger) entry() *logrus.Entry {
	return l.logger.WithFields(l.fields)
}

func (l *logrusLogger) Error(a ...interface{})                 { l.entry().Error(a...) }
func (l *logrusLogger) Errorf(f string, a ...interface{})      { l.entry().Errorf(f, a...) }
func (l *logrusLogger) Warn(a ...interface{})                  { l.entry().Warn(a...) }
func (l *logrusLogger) Warnf(f string, a ...interface{})       { l.entry().Warnf(f, a...) }
func (l *logrusLogger) Info(a ...interface{})                  { l.entry().Info(a...) }
func (l *logrusLogger) Infof(f string, a ...interface{})       { l.entry().Infof(f, a...) }
func (l *logrusLogger) Debug(a ...interface{})                 { l.entry().Debug(a...) }
func (l *logrusLogger) Debugf(f string, a ...interface{})      { l.entry().Debugf(f, a...) }

func (l *logrusLogger) WithFields(fields Fields) Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &logrusLogger{logger: l.logger, fields: merged}
}

// Noop returns a Logger that discards everything, used as the zero value
// in tests that don't care about log output.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Error(...interface{})            {}
func (noopLogger) Errorf(string, ...interface{})   {}
func (noopLogger) Warn(...interface{})             {}
func (noopLogger) Warnf(string, ...interface{})    {}
func (noopLogger) Info(...interface{})             {}
func (noopLogger) Infof(string, ...interface{})    {}
func (noopLogger) Debug(...interface{})            {}
func (noopLogger) Debugf(string, ...interface{})   {}
func (noopLogger) WithFields(Fields) Logger        { return noopLogger{} }
