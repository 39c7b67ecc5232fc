package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"apmdemo/internal/http/middleware"
	"apmdemo/internal/logger"
	"apmdemo/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: middleware.RequestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeServiceError translates a service error into the HTTP error contract. resource names the
// entity in not-found messages. Unexpected errors are logged with the request id and answered
// with a generic 500.
func writeServiceError(c *fiber.Ctx, err error, resource string) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return writeError(c, fiber.StatusUnprocessableEntity, "VALIDATION_ERROR", ve.Error())
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", resource+" not found")
	case errors.Is(err, service.ErrNoImage):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "product has no image")
	case errors.Is(err, service.ErrInsufficientStock):
		return writeError(c, fiber.StatusConflict, "INSUFFICIENT_STOCK", "insufficient stock")
	case errors.Is(err, service.ErrInvalidTransition):
		return writeError(c, fiber.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, service.ErrConflict):
		return writeError(c, fiber.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		return writeError(c, fiber.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "object storage unavailable")
	default:
		logger.Ctx(c.UserContext()).Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromCtx(c)).
			Str("method", c.Method()).
			Str("route", c.Route().Path).
			Msg("request failed")
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// parseID validates the :id path parameter as a UUID and returns its canonical lower-case form,
// so every spelling of an id maps to the same cache key.
func parseID(c *fiber.Ctx) (string, bool) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// badRequest is a client input error detected before the service is called.
type badRequest struct {
	code    string
	message string
}

func (b *badRequest) write(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusBadRequest, b.code, b.message)
}

// parsePage reads the limit and offset query parameters.
func parsePage(c *fiber.Ctx) (limit, offset int, bad *badRequest) {
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil {
		return 0, 0, &badRequest{"INVALID_LIMIT", "invalid limit"}
	}
	offset, err = strconv.Atoi(c.Query("offset", "0"))
	if err != nil {
		return 0, 0, &badRequest{"INVALID_OFFSET", "invalid offset"}
	}
	return limit, offset, nil
}

// parseBody decodes a JSON request body into dst.
func parseBody(c *fiber.Ctx, dst any) bool {
	return c.BodyParser(dst) == nil
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		case fiber.StatusTooManyRequests:
			return writeError(c, status, "RATE_LIMITED", "too many requests")
		default:
			if status >= fiber.StatusInternalServerError {
				logger.Ctx(c.UserContext()).Error().
					Err(err).
					Str("request_id", middleware.RequestIDFromCtx(c)).
					Msg("unhandled error")
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
			return writeError(c, status, "BAD_REQUEST", "bad request")
		}
	}
}
