package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fetchd/internal/config"
	"fetchd/internal/engine"
	"fetchd/internal/jobs"
	"fetchd/internal/metrics"
)

// localsMiddleware injects shared dependencies into the request context for
// handlers.
func localsMiddleware(cfg *config.Config, mgr *jobs.Manager, sw *jobs.Sweeper, eng engine.Engine, redis Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("manager", mgr)
		c.Locals("sweeper", sw)
		c.Locals("engine", eng)
		if redis != nil {
			c.Locals("redis", redis)
		}
		return c.Next()
	}
}

// requestLogMiddleware assigns a request id, records request metrics and
// logs one record per request.
func requestLogMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)
		if logger != nil {
			c.Locals("logger", logger)
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		// Route pattern keeps metric cardinality bounded.
		path := c.Route().Path

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			attrs := []any{
				"request_id", reqID,
				"method", method,
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			}
			if jobID := c.Locals("job_id"); jobID != nil {
				attrs = append(attrs, "job_id", jobID)
			}
			logger.Info("request", attrs...)
		}

		return err
	}
}

func loggerFrom(c *fiber.Ctx) *slog.Logger {
	if l, ok := c.Locals("logger").(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
