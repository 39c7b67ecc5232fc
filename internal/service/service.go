// Package service implements the use cases behind the HTTP API: validation, read-through caching,
// orchestration of repositories and storage, and a tracing span per operation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"apmdemo/internal/cache"
	"apmdemo/internal/logger"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

var (
	ErrIDRequired         = errors.New("id is required")
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStorageUnavailable = errors.New("object storage is not configured")
	ErrReaderNil          = errors.New("reader is nil")
	ErrNoImage            = errors.New("product has no image")
)

// ValidationError describes a rejected input field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ListResult is the service-level DTO for a page of items.
type ListResult[T any] struct {
	Items []T `json:"data"`
	Total int `json:"total"`
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

var tracer = otel.Tracer("apmdemo/internal/service")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan marks the span failed for unexpected errors. Domain outcomes such as not found or
// validation failures are recorded as events only, so they do not inflate APM error rates.
func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInvalidTransition):
		span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func orNop(c cache.Cache) cache.Cache {
	if c == nil {
		return cache.Nop{}
	}
	return c
}

// readThrough returns the cached value for key, or loads, caches and returns it.
// Cache failures are logged and otherwise ignored.
func readThrough[T any](ctx context.Context, c cache.Cache, ttl time.Duration, key string, load func(context.Context) (*T, error)) (*T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("cache read failed")
	}
	if hit {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", false))

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("cache_key", key).Msg("cache write failed")
	}
	return v, nil
}

func invalidate(ctx context.Context, c cache.Cache, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Strs("cache_keys", keys).Msg("cache invalidation failed")
	}
}

func userKey(id string) string    { return "user:" + id }
func productKey(id string) string { return "product:" + id }
func orderKey(id string) string   { return "order:" + id }
