package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"fetchd/internal/config"
	"fetchd/internal/engine"
	"fetchd/internal/jobs"
	"fetchd/internal/metrics"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by the Redis job event publisher.
type Pinger interface {
	Ping(ctx context.Context) error
}

// formatsHandler lists the encodings available for a video id. It never
// creates a job.
func formatsHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	mgr := c.Locals("manager").(*jobs.Manager)

	sourceURL, err := engine.SourceURLForID(cfg.Engine.SourceURLTemplate, c.Params("video_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   err.Error(),
		})
	}

	list, err := mgr.ListFormats(c.UserContext(), sourceURL)
	if err != nil {
		return writeError(c, err)
	}

	formats := list.Formats
	if formats == nil {
		formats = []engine.Format{}
	}
	return c.JSON(FormatsResponse{
		Success:   true,
		Formats:   formats,
		Title:     list.Title,
		Duration:  list.Duration,
		ViewCount: list.ViewCount,
	})
}

// healthHandler reports the engine version. With ?deep=true it also pings
// Redis when a publisher is configured.
func healthHandler(c *fiber.Ctx) error {
	eng := c.Locals("engine").(engine.Engine)

	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	version, err := eng.Version(ctx)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Success: false,
			Code:    "ENGINE_UNAVAILABLE",
			Error:   fmt.Sprintf("fetch engine unavailable: %v", err),
		})
	}

	resp := HealthResponse{
		Success:      true,
		Status:       "healthy",
		YTDLPVersion: version,
	}
	if c.Query("deep") != "true" {
		return c.JSON(resp)
	}

	resp.Redis = "disabled"
	if rdb, ok := c.Locals("redis").(Pinger); ok {
		if err := rdb.Ping(ctx); err != nil {
			resp.Redis = "error"
			resp.Status = "degraded"
		} else {
			resp.Redis = "ok"
		}
	}
	return c.JSON(resp)
}

// cleanupHandler runs one retention pass on demand.
func cleanupHandler(c *fiber.Ctx) error {
	sw := c.Locals("sweeper").(*jobs.Sweeper)
	stats, err := sw.Sweep(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(CleanupResponse{Success: true, SweepStats: stats})
}

// Prometheus-style metrics endpoint
func metricsHandler(c *fiber.Ctx) error {
	c.Type("txt")
	return c.SendString(metrics.Export())
}
