package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// MediaIDKey is the context key for media identifiers.
	MediaIDKey contextKey = "media_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithMediaID adds a media identifier to the context.
func WithMediaID(ctx context.Context, mediaID string) context.Context {
	return context.WithValue(ctx, MediaIDKey, mediaID)
}

// GetMediaID retrieves the media identifier from the context.
func GetMediaID(ctx context.Context) string {
	if mediaID, ok := ctx.Value(MediaIDKey).(string); ok {
		return mediaID
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var fields []slog.Attr
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, slog.String("request_id", requestID))
	}
	if mediaID := GetMediaID(ctx); mediaID != "" {
		fields = append(fields, slog.String("media_id", mediaID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return fields
}
