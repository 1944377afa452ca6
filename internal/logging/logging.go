// Package logging provides structured logging with trace and tenant context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// TraceIDKey carries the request trace ID.
	TraceIDKey contextKey = "trace_id"
	// TenantIDKey carries the resolved tenant.
	TenantIDKey contextKey = "tenant_id"
	// ActorKey carries the token subject of the caller.
	ActorKey contextKey = "actor"
)

// Logger wraps logrus with service-scoped helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger for service at the given level ("debug", "info", ...)
// and format ("json" or "text").
func New(service, level, format string) *Logger {
	return NewWithOutput(service, level, format, os.Stdout)
}

// NewWithOutput is New with an explicit sink, mostly for tests.
func NewWithOutput(service, level, format string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: service}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return NewWithOutput("nop", "panic", "json", io.Discard)
}

// WithContext returns an entry annotated with the service name and whatever
// trace, tenant and actor values the context carries.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if ctx == nil {
		return entry
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if tenantID := GetTenantID(ctx); tenantID != "" {
		entry = entry.WithField("tenant_id", tenantID)
	}
	if actor := GetActor(ctx); actor != "" {
		entry = entry.WithField("actor", actor)
	}
	return entry
}

// LogRequest writes the one-line access log for an HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request completed")
	case status >= 400:
		entry.Warn("request completed")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records authentication and throttling rejections.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithField("security_event", event).WithFields(fields).Warn("security event")
}

// NewTraceID generates a fresh trace ID.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores traceID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID extracts the trace ID from ctx.
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// WithTenantID stores the tenant in ctx.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// GetTenantID extracts the tenant from ctx.
func GetTenantID(ctx context.Context) string {
	return stringValue(ctx, TenantIDKey)
}

// WithActor stores the caller identity in ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor extracts the caller identity from ctx.
func GetActor(ctx context.Context) string {
	return stringValue(ctx, ActorKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
