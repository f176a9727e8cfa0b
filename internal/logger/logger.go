// Package logger provides structured logging on top of logrus.
// It sets up a JSON formatter with service-level context, optional file
// rotation, and trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Options configures Init.
type Options struct {
	Service string
	Level   string // logrus level name, e.g. "info", "debug"
	File    string // rotate into this file instead of stdout when set
}

// Init creates the process logger and returns an entry carrying the service name.
// An unknown level falls back to info.
func Init(opts Options) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetOutput(output(opts.File))

	// Route the standard logger through the same sink.
	logrus.SetFormatter(l.Formatter)
	logrus.SetLevel(level)
	logrus.SetOutput(l.Out)

	return l.WithField("service", opts.Service)
}

func output(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
}

// Discard returns an entry that drops everything. Used in tests and by
// components constructed without a logger.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a token and timestamp.
// Format: "{token}-{unixNano}".
func GenerateTraceID(token string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", token, ts.UnixNano())
}

// Fields returns logrus fields including the trace ID from context.
// Usage: log.WithFields(logger.Fields(ctx)).Info("msg")
func Fields(ctx context.Context) logrus.Fields {
	tid := TraceID(ctx)
	if tid == "" {
		return logrus.Fields{}
	}
	return logrus.Fields{"trace_id": tid}
}
