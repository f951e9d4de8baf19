package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"fetchd/internal/jobs"
)

// submitDownloadHandler accepts a download and returns its id without
// waiting for the engine.
func submitDownloadHandler(c *fiber.Ctx) error {
	var req DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'url'",
		})
	}

	mgr := c.Locals("manager").(*jobs.Manager)
	id, err := mgr.Submit(jobs.SubmitRequest{
		SourceURL:      req.URL,
		Format:         req.Format,
		OutputTemplate: req.Output,
	})
	if err != nil {
		return writeError(c, err)
	}
	c.Locals("job_id", id)

	return c.JSON(DownloadResponse{
		Success:    true,
		DownloadID: id,
		Message:    "Download started",
	})
}

func downloadStatusHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	c.Locals("job_id", id)

	mgr := c.Locals("manager").(*jobs.Manager)
	view, err := mgr.Query(id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(StatusResponse{Success: true, Status: &view})
}

// downloadArtifactHandler streams a completed job's file as an attachment.
func downloadArtifactHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	c.Locals("job_id", id)

	mgr := c.Locals("manager").(*jobs.Manager)
	art, err := mgr.FetchArtifact(id)
	if err != nil {
		if errors.Is(err, jobs.ErrArtifactMissing) {
			loggerFrom(c).Warn("artifact_missing", "job_id", id, "error", err)
		}
		return writeError(c, err)
	}

	c.Attachment(art.Name)
	// fasthttp closes the stream once the body has been written.
	return c.SendStream(art.Content, int(art.Size))
}

func listJobsHandler(c *fiber.Ctx) error {
	mgr := c.Locals("manager").(*jobs.Manager)
	return c.JSON(ListJobsResponse{Success: true, Jobs: mgr.List()})
}
