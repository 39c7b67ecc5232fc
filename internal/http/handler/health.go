package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Check is a dependency pinged by the readiness endpoint. A failing optional check is reported
// but does not make the service unready.
type Check struct {
	Name     string
	Ping     func(ctx context.Context) error
	Optional bool
}

// LivenessCheck reports that the process is up. It never touches dependencies.
//
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/health [get]
func LivenessCheck(serviceName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": serviceName})
	}
}

// ReadinessCheck pings every dependency with a short timeout.
//
// @Summary Readiness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} errorPayload
// @Router /api/ready [get]
func ReadinessCheck(checks ...Check) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				results[chk.Name] = "unavailable"
				if !chk.Optional {
					ready = false
				}
				continue
			}
			results[chk.Name] = "ok"
		}

		if !ready {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
