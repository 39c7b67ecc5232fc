package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"apmdemo/internal/logger"
)

// Logger is a middleware that logs each HTTP request as one structured line.
// Fields:
// - request_id (taken from context locals set by RequestID middleware)
// - method, path and route (the matched pattern, e.g. /api/users/:id)
// - status
// - latency (in milliseconds, as float)
// - trace_id and span_id when a server span is active
//
// 5xx responses are logged at error level and 4xx at warn level.
func Logger(l zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := statusOf(c, err)
		var ev *zerolog.Event
		lg := logger.WithSpan(c.UserContext(), l)
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = lg.Error()
		case status >= fiber.StatusBadRequest:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}

		ev.Str("request_id", RequestIDFromCtx(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("route", c.Route().Path).
			Int("status", status).
			Float64("latency", float64(time.Since(start).Microseconds())/1000).
			Msg("request")

		return err
	}
}

// LoggerWithWriter is Logger writing JSON lines to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logger.New(w, "debug", "json", loc))
}

// statusOf returns the status the client will see. Errors returned up the chain have not been
// rendered by the error handler yet, so their code is taken from the error itself.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	if fiberErr, ok := err.(*fiber.Error); ok {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}
