// Package engine defines the contract between fetchd and the media fetch
// engine, plus a yt-dlp backed implementation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrSourceUnavailable is returned when the engine cannot resolve a source.
var ErrSourceUnavailable = errors.New("source unavailable")

// EventKind is the kind of a progress event reported by the engine.
type EventKind string

const (
	EventDownloading EventKind = "downloading"
	EventFinished    EventKind = "finished"
	EventOther       EventKind = "other"
)

// ProgressEvent is a single raw progress notification. TotalBytes is zero
// when the engine does not know the final size.
type ProgressEvent struct {
	Kind            EventKind
	DownloadedBytes int64
	TotalBytes      int64
	// Rate is the current transfer rate in bytes per second, measured
	// between consecutive samples (the average since start for the first
	// sample of a stream). ETA is in seconds. Negative means unknown.
	Rate     float64
	ETA      int64
	Filename string
}

// ProgressFunc receives progress events. Implementations must not block.
type ProgressFunc func(ProgressEvent)

// DownloadRequest describes one download.
type DownloadRequest struct {
	SourceURL string
	Format    string
	// OutputPath is a path template, absolute or relative to the working
	// directory, with engine substitution placeholders in the file name.
	OutputPath string
}

// Metadata is the subset of source metadata fetchd exposes.
type Metadata struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	ViewCount int64   `json:"view_count"`
}

// Result is returned by a successful download.
type Result struct {
	Filename string
	Metadata Metadata
}

// Format is one available encoding of a source.
type Format struct {
	ID         string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	Filesize   int64   `json:"filesize"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
	FPS        float64 `json:"fps,omitempty"`
}

// FormatList is the result of a format listing.
type FormatList struct {
	Formats []Format `json:"formats"`
	Metadata
}

// Engine performs downloads and format queries.
type Engine interface {
	Download(ctx context.Context, req DownloadRequest, progress ProgressFunc) (*Result, error)
	ListFormats(ctx context.Context, sourceURL string) (*FormatList, error)
	Version(ctx context.Context) (string, error)
}

var videoIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// SourceURLForID builds a source URL from a platform video id using a
// template containing a single %s.
func SourceURLForID(template, videoID string) (string, error) {
	id := strings.TrimSpace(videoID)
	if !videoIDRegex.MatchString(id) {
		return "", fmt.Errorf("invalid video id %q", videoID)
	}
	return fmt.Sprintf(template, id), nil
}
