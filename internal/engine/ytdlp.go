package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

const (
	binaryName              = "yt-dlp"
	defaultProgressInterval = 500 * time.Millisecond
)

// YTDLP is an Engine backed by the yt-dlp executable.
type YTDLP struct {
	progressInterval time.Duration
}

// NewYTDLP returns a yt-dlp engine driven through go-ytdlp.
func NewYTDLP() *YTDLP {
	return &YTDLP{progressInterval: defaultProgressInterval}
}

// Available reports whether the yt-dlp binary is on PATH.
func Available() (string, bool) {
	path, err := exec.LookPath(binaryName)
	if err != nil {
		return "", false
	}
	return path, true
}

func (e *YTDLP) Download(ctx context.Context, req DownloadRequest, progress ProgressFunc) (*Result, error) {
	if strings.TrimSpace(req.SourceURL) == "" {
		return nil, fmt.Errorf("source URL is required")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return nil, fmt.Errorf("output path is required")
	}

	dl := downloadCommand(req)
	if progress != nil {
		var sampler rateSampler
		dl.ProgressFunc(e.progressInterval, func(update ytdlp.ProgressUpdate) {
			ev := progressEvent(update)
			if rate := sampler.sample(ev.DownloadedBytes, time.Now()); rate >= 0 {
				ev.Rate = rate
			}
			progress(ev)
		})
	}

	res, err := dl.Run(ctx, req.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	info, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("read yt-dlp info: %w", err)
	}
	if len(info) == 0 || info[0] == nil {
		return nil, fmt.Errorf("yt-dlp returned no media info")
	}

	out := &Result{
		Filename: value(info[0].Filename),
		Metadata: metadataFromInfo(info[0]),
	}
	if out.Filename == "" {
		return nil, fmt.Errorf("yt-dlp did not report an output file")
	}
	return out, nil
}

func downloadCommand(req DownloadRequest) *ytdlp.Command {
	return ytdlp.New().
		NoPlaylist().
		NoWarnings().
		RestrictFilenames().
		// Artifact age drives retention, so the file time must be the
		// download time rather than the source's Last-Modified header.
		NoMtime().
		Format(req.Format).
		Output(req.OutputPath).
		DumpJSON().
		NoSimulate()
}

func (e *YTDLP) ListFormats(ctx context.Context, sourceURL string) (*FormatList, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return nil, fmt.Errorf("%w: source URL is required", ErrSourceUnavailable)
	}

	res, err := ytdlp.New().
		SkipDownload().
		DumpSingleJSON().
		NoPlaylist().
		NoWarnings().
		Run(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: yt-dlp failed: %v", ErrSourceUnavailable, err)
	}

	info, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: read yt-dlp info: %v", ErrSourceUnavailable, err)
	}
	if len(info) == 0 || info[0] == nil {
		return nil, fmt.Errorf("%w: yt-dlp returned no media info", ErrSourceUnavailable)
	}
	return formatListFromInfo(info[0]), nil
}

func (e *YTDLP) Version(ctx context.Context) (string, error) {
	res, err := ytdlp.New().Version(ctx)
	if err != nil {
		return "", fmt.Errorf("yt-dlp --version: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// progressEvent converts a go-ytdlp update into an engine event. Rate is
// the average since the download started; Download refines it with
// rateSampler.
func progressEvent(update ytdlp.ProgressUpdate) ProgressEvent {
	ev := ProgressEvent{
		Kind:            EventOther,
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		Rate:            -1,
		ETA:             -1,
		Filename:        update.Filename,
	}
	switch update.Status {
	case ytdlp.ProgressStatusDownloading:
		ev.Kind = EventDownloading
	case ytdlp.ProgressStatusFinished:
		ev.Kind = EventFinished
	}

	if !update.Started.IsZero() {
		if elapsed := update.Duration().Seconds(); elapsed > 0 {
			ev.Rate = float64(update.DownloadedBytes) / elapsed
		}
	}
	if update.TotalBytes > 0 {
		if eta := update.ETA(); eta > 0 {
			ev.ETA = int64(eta.Seconds())
		}
	}
	return ev
}

// rateSampler derives the current rate from the delta between two
// consecutive samples. It returns -1 until it has a usable previous sample,
// and starts over when the byte count goes backwards (yt-dlp moved on to
// the next stream of a merged format).
type rateSampler struct {
	bytes int64
	at    time.Time
}

func (s *rateSampler) sample(downloaded int64, now time.Time) float64 {
	prevBytes, prevAt := s.bytes, s.at
	s.bytes, s.at = downloaded, now

	if prevAt.IsZero() || downloaded < prevBytes {
		return -1
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return -1
	}
	return float64(downloaded-prevBytes) / elapsed
}

func metadataFromInfo(info *ytdlp.ExtractedInfo) Metadata {
	return Metadata{
		Title:     value(info.Title),
		Duration:  value(info.Duration),
		ViewCount: int64(value(info.ViewCount)),
	}
}

func formatListFromInfo(info *ytdlp.ExtractedInfo) *FormatList {
	list := &FormatList{
		Formats:  make([]Format, 0, len(info.Formats)),
		Metadata: metadataFromInfo(info),
	}
	for _, f := range info.Formats {
		if f == nil {
			continue
		}
		size := value(f.FileSize)
		if size <= 0 {
			size = value(f.FileSizeApprox)
		}
		list.Formats = append(list.Formats, Format{
			ID:         value(f.FormatID),
			Ext:        value(f.Extension),
			Resolution: value(f.Resolution),
			Filesize:   int64(size),
			VCodec:     value(f.VCodec),
			ACodec:     value(f.ACodec),
			Height:     int(value(f.Height)),
			Width:      int(value(f.Width)),
			FPS:        value(f.FPS),
		})
	}
	return list
}

// value dereferences an optional yt-dlp field.
func value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
