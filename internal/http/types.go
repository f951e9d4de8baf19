package http

import (
	"fetchd/internal/engine"
	"fetchd/internal/jobs"
)

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// DownloadRequest is the body of POST /download. Empty Format and Output
// fall back to the configured defaults.
type DownloadRequest struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
	Output string `json:"output,omitempty"`
}

type DownloadResponse struct {
	Success    bool   `json:"success"`
	DownloadID string `json:"download_id"`
	Message    string `json:"message"`
}

type StatusResponse struct {
	Success bool       `json:"success"`
	Status  *jobs.View `json:"status"`
}

type ListJobsResponse struct {
	Success bool        `json:"success"`
	Jobs    []jobs.View `json:"jobs"`
}

type FormatsResponse struct {
	Success   bool            `json:"success"`
	Formats   []engine.Format `json:"formats"`
	Title     string          `json:"title"`
	Duration  float64         `json:"duration"`
	ViewCount int64           `json:"view_count"`
}

type HealthResponse struct {
	Success      bool   `json:"success"`
	Status       string `json:"status"`
	YTDLPVersion string `json:"yt_dlp_version"`
	Redis        string `json:"redis,omitempty"`
}

type CleanupResponse struct {
	Success bool `json:"success"`
	jobs.SweepStats
}
