package utils

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/nullseed/logruseq"
	"github.com/sirupsen/logrus"
)

// Logger provides structured, leveled logging throughout the application.
// Every entry carries the TraceId of the run.
type Logger struct {
	entry *logrus.Entry
}

// LoggerOptions selects formatter, level and the optional Seq sink.
type LoggerOptions struct {
	Environment string
	Level       string
	SeqURL      string
	SeqToken    string
	Out         io.Writer
}

// NewLogger creates a development Logger writing colored text to stdout.
func NewLogger() *Logger {
	return NewLoggerWithOptions(LoggerOptions{})
}

// NewDiscardLogger creates a Logger that drops everything. Used by tests.
func NewDiscardLogger() *Logger {
	return NewLoggerWithOptions(LoggerOptions{Out: io.Discard, Level: "panic"})
}

// NewLoggerWithOptions creates a Logger: JSON in production, colored text
// otherwise, shipping to Seq when a URL is given.
func NewLoggerWithOptions(opts LoggerOptions) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	base := &logrus.Logger{
		Out:   out,
		Hooks: make(logrus.LevelHooks),
		Level: level,
	}

	if opts.Environment == "production" {
		base.Formatter = &logrus.JSONFormatter{}
	} else {
		base.Formatter = &logrus.TextFormatter{
			ForceColors:      out == os.Stdout,
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02 15:04:05",
			QuoteEmptyFields: true,
		}
	}

	if opts.SeqURL != "" {
		base.AddHook(logruseq.NewSeqHook(opts.SeqURL, logruseq.OptionAPIKey(opts.SeqToken)))
	} else if opts.Environment == "production" {
		base.Warn("logger running without seq hook")
	}

	return &Logger{entry: base.WithField("TraceId", uuid.New().String())}
}

// WithField returns a child Logger that adds key=value to every entry.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a child Logger that adds all fields to every entry.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}
