package jobs

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"fetchd/internal/engine"
)

// Reporter adapts engine progress events for one job into Store updates.
// It never panics and never reports errors back to the engine; problems
// are logged and dropped.
type Reporter struct {
	store  *Store
	jobID  string
	logger *slog.Logger
}

func NewReporter(store *Store, jobID string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{store: store, jobID: jobID, logger: logger}
}

// Handle satisfies engine.ProgressFunc.
func (r *Reporter) Handle(ev engine.ProgressEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("progress_reporter_panic", "job_id", r.jobID, "panic", fmt.Sprint(rec))
		}
	}()

	var err error
	switch ev.Kind {
	case engine.EventDownloading:
		err = r.downloading(ev)
	case engine.EventFinished:
		err = r.finished(ev)
	default:
		return
	}
	if err != nil {
		r.logger.Warn("progress_update_dropped", "job_id", r.jobID, "kind", string(ev.Kind), "error", err)
	}
}

// downloading records progress as downloaded/max(total, 1). While the total
// is unknown this reports the raw byte count; the first reading with a known
// total replaces it, and from then on only larger fractions are kept.
func (r *Reporter) downloading(ev engine.ProgressEvent) error {
	progress := float64(ev.DownloadedBytes) / float64(max(ev.TotalBytes, 1))
	totalKnown := ev.TotalBytes > 0

	_, err := r.store.Update(r.jobID, func(j *Job) error {
		if j.State != StateDownloading {
			return fmt.Errorf("%w: progress event for %s job", ErrInvalidTransition, j.State)
		}
		switch {
		case totalKnown && !j.progressIsFraction:
			j.Progress = progress
			j.progressIsFraction = true
		case totalKnown == j.progressIsFraction && progress > j.Progress:
			j.Progress = progress
		}
		j.Rate = nil
		if ev.Rate >= 0 {
			rate := ev.Rate
			j.Rate = &rate
		}
		j.ETA = nil
		if ev.ETA >= 0 {
			eta := ev.ETA
			j.ETA = &eta
		}
		return nil
	})
	return err
}

// finished only records the file name hint. Completion is the execution
// task's call once it has the final metadata.
func (r *Reporter) finished(ev engine.ProgressEvent) error {
	if ev.Filename == "" {
		return nil
	}
	_, err := r.store.Update(r.jobID, func(j *Job) error {
		j.Filename = filepath.Base(ev.Filename)
		return nil
	})
	if err == nil {
		r.logger.Debug("download_stream_finished",
			"job_id", r.jobID,
			"filename", ev.Filename,
			"size", humanize.Bytes(uint64(max(ev.DownloadedBytes, 0))),
		)
	}
	return err
}
