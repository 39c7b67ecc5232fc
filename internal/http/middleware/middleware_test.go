package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		rid := c.Locals(RequestIDLocalKey)
		return c.SendString(rid.(string))
	})

	t.Run("should generate new request id if not present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		ridHeader := resp.Header.Get(RequestIDHeader)
		assert.NotEmpty(t, ridHeader)

		// Check if it's readable in handler (from response body)
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, ridHeader, buf.String())
	})

	t.Run("should preserve existing request id", func(t *testing.T) {
		existingID := "test-id-123"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, existingID)

		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, existingID, resp.Header.Get(RequestIDHeader))

		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, existingID, buf.String())
	})
}

func TestRequestID_OversizedHeaderIsReplaced(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString(RequestIDFromCtx(c))
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("a", 200))
	resp, err := app.Test(req)
	require.NoError(t, err)

	got := resp.Header.Get(RequestIDHeader)
	_, parseErr := uuid.Parse(got)
	assert.NoError(t, parseErr)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	loc := time.UTC

	app.Use(RequestID())
	app.Use(LoggerWithWriter(&buf, loc))

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	// Verify log output
	var logData map[string]any
	err := json.Unmarshal(buf.Bytes(), &logData)
	assert.NoError(t, err)

	assert.NotEmpty(t, logData["request_id"])
	assert.Equal(t, "GET", logData["method"])
	assert.Equal(t, "/test", logData["path"])
	assert.Equal(t, float64(fiber.StatusAccepted), logData["status"])
	assert.NotNil(t, logData["latency"])
	assert.NotEmpty(t, logData["ts"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		returnErr bool
		wantLevel string
	}{
		{"success is info", fiber.StatusOK, false, "info"},
		{"client error is warn", fiber.StatusNotFound, false, "warn"},
		{"returned fiber error is warn", fiber.StatusBadRequest, true, "warn"},
		{"server error is error", fiber.StatusServiceUnavailable, false, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			app := fiber.New()
			app.Use(LoggerWithWriter(&buf, time.UTC))
			app.Get("/items/:id", func(c *fiber.Ctx) error {
				if tt.returnErr {
					return fiber.NewError(tt.status, "nope")
				}
				return c.SendStatus(tt.status)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/items/42", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var logData map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &logData))
			assert.Equal(t, tt.wantLevel, logData["level"])
			assert.Equal(t, "/items/:id", logData["route"])
			assert.Equal(t, "/items/42", logData["path"])
			assert.Equal(t, float64(tt.status), logData["status"])
		})
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		ctx, span := tp.Tracer("test").Start(c.UserContext(), "request")
		defer span.End()
		c.SetUserContext(ctx)
		return c.Next()
	})
	app.Use(LoggerWithWriter(&buf, time.UTC))
	app.Get("/traced", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/traced", nil))
	require.NoError(t, err)

	var logData map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logData))
	assert.Len(t, logData["trace_id"], 32)
	assert.Len(t, logData["span_id"], 16)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.5, 2, time.Minute)

	app := fiber.New()
	app.Use(rl.Handler())
	app.Get("/limited", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get(MetricsPath, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))

	resp, err = app.Test(httptest.NewRequest("GET", MetricsPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 10, time.Minute)
	rl.now = func() time.Time { return current }

	rl.limiter("10.0.0.1")
	current = current.Add(45 * time.Second)
	rl.limiter("10.0.0.2")
	assert.Equal(t, 2, rl.Len())

	current = current.Add(30 * time.Second)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.Len())

	current = current.Add(2 * time.Minute)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Zero(t, rl.Len())
}
