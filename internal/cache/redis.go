package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"apmdemo/internal/config"
)

const tracerName = "apmdemo/internal/cache"

// Operation results recorded in cache_operations_total.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultOK    = "ok"
	resultError = "error"
)

// Redis is a Cache backed by a Redis server. Values are stored as JSON.
type Redis struct {
	client *redis.Client
	tracer trace.Tracer
	ops    *prometheus.CounterVec
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to the configured Redis server and verifies connectivity.
func NewRedis(cfg config.RedisConfig, reg prometheus.Registerer) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	c, err := NewRedisWithClient(client, reg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// NewRedisWithClient wraps an existing client. Metrics are registered on reg; a collector that
// is already registered is reused.
func NewRedisWithClient(client *redis.Client, reg prometheus.Registerer) (*Redis, error) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations by operation and result.",
		},
		[]string{"operation", "result"},
	)
	if err := reg.Register(ops); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		ops = are.ExistingCollector.(*prometheus.CounterVec)
	}

	return &Redis{
		client: client,
		tracer: otel.Tracer(tracerName),
		ops:    ops,
	}, nil
}

func (r *Redis) start(ctx context.Context, op string, keys ...string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemRedis,
			attribute.String("db.operation", op),
			attribute.StringSlice("cache.keys", keys),
		),
	)
}

func (r *Redis) finish(span trace.Span, op, result string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = resultError
	}
	span.SetAttributes(attribute.String("cache.result", result))
	span.End()
	r.ops.WithLabelValues(op, result).Inc()
}

// Get reads key and decodes it into dst.
func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	ctx, span := r.start(ctx, "get", key)

	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.finish(span, "get", resultMiss, nil)
		return false, nil
	}
	if err != nil {
		r.finish(span, "get", "", err)
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		r.finish(span, "get", "", err)
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	r.finish(span, "get", resultHit, nil)
	return true, nil
}

// Set encodes value as JSON and stores it under key.
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := r.start(ctx, "set", key)

	b, err := json.Marshal(value)
	if err != nil {
		r.finish(span, "set", "", err)
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, b, ttl).Err(); err != nil {
		r.finish(span, "set", "", err)
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	r.finish(span, "set", resultOK, nil)
	return nil
}

// Delete removes keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, span := r.start(ctx, "delete", keys...)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.finish(span, "delete", "", err)
		return fmt.Errorf("cache delete: %w", err)
	}
	r.finish(span, "delete", resultOK, nil)
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
