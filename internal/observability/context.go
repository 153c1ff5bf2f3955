package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

// Correlation keys carried on the context of one HTTP request or logical call.
const (
	TraceIDKey   contextKey = "trace_id"
	RequestIDKey contextKey = "request_id"
	OperationKey contextKey = "operation"
	ProviderKey  contextKey = "provider"
	ModelKey     contextKey = "model"
)

// logKeys is the order in which correlation fields appear in log lines.
//
//nolint:gochecknoglobals // read-only table
var logKeys = []contextKey{TraceIDKey, RequestIDKey, OperationKey, ProviderKey, ModelKey}

const traceIDBytes = 16

func with(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithTraceID injects trace ID into context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

// WithRequestID injects request ID into context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, RequestIDKey, requestID)
}

// WithOperation records the facade operation (chat, summarize, ...).
func WithOperation(ctx context.Context, operation string) context.Context {
	return with(ctx, OperationKey, operation)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return with(ctx, ProviderKey, provider)
}

func WithModel(ctx context.Context, model string) context.Context {
	return with(ctx, ModelKey, model)
}

// EnsureRequestID returns ctx with a request ID, generating one if absent.
func EnsureRequestID(ctx context.Context) context.Context {
	if GetRequestID(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, GenerateRequestID())
}

func GetTraceID(ctx context.Context) string   { return get(ctx, TraceIDKey) }
func GetRequestID(ctx context.Context) string { return get(ctx, RequestIDKey) }
func GetOperation(ctx context.Context) string { return get(ctx, OperationKey) }
func GetProvider(ctx context.Context) string  { return get(ctx, ProviderKey) }
func GetModel(ctx context.Context) string     { return get(ctx, ModelKey) }

// contextFields returns the non-empty correlation fields of ctx.
func contextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, len(logKeys))
	for _, key := range logKeys {
		if v := get(ctx, key); v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	return fields
}

// GenerateTraceID returns 32 hex chars, the W3C trace-context size.
func GenerateTraceID() string {
	b := make([]byte, traceIDBytes)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return hex.EncodeToString(b)
}

// GenerateRequestID generates a unique request identifier (UUID).
func GenerateRequestID() string {
	return uuid.New().String()
}
