package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"fetchd/internal/jobs"
)

// errorStatus maps job errors onto an HTTP status and envelope code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, jobs.ErrValidation):
		return fiber.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, jobs.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, jobs.ErrNotReady):
		return fiber.StatusBadRequest, "NOT_READY"
	case errors.Is(err, jobs.ErrArtifactMissing):
		return fiber.StatusNotFound, "ARTIFACT_MISSING"
	case errors.Is(err, jobs.ErrSourceUnavailable):
		return fiber.StatusBadGateway, "SOURCE_UNAVAILABLE"
	default:
		return fiber.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status, code := errorStatus(err)
	return c.Status(status).JSON(ErrorResponse{
		Success: false,
		Code:    code,
		Error:   err.Error(),
	})
}
