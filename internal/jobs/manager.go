package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fetchd/internal/config"
	"fetchd/internal/engine"
	"fetchd/internal/metrics"
)

const publishTimeout = 2 * time.Second

// Publisher receives a snapshot of a job on every state transition.
type Publisher interface {
	Publish(ctx context.Context, view View) error
}

// SubmitRequest is the input of Manager.Submit. Empty Format and
// OutputTemplate fall back to the configured defaults.
type SubmitRequest struct {
	SourceURL      string
	Format         string
	OutputTemplate string
}

// Artifact is an open handle to a completed job's file. Callers must close
// Content.
type Artifact struct {
	Content io.ReadSeekCloser
	Size    int64
	Name    string
	Path    string
	ModTime time.Time
}

// Options configures a Manager.
type Options struct {
	DownloadDir       string
	DefaultFormat     string
	DefaultOutput     string
	MaxConcurrentJobs int
	Publisher         Publisher
	Logger            *slog.Logger
}

// OptionsFromConfig maps the service configuration onto manager options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DownloadDir:       cfg.Storage.DownloadDir,
		DefaultFormat:     cfg.Engine.DefaultFormat,
		DefaultOutput:     cfg.Engine.DefaultOutput,
		MaxConcurrentJobs: cfg.Worker.MaxConcurrentJobs,
	}
}

// Manager creates jobs, runs exactly one execution task per job and serves
// queries against the Store. Execution tasks are never cancelled; a job
// runs until the engine returns.
type Manager struct {
	store  *Store
	engine engine.Engine
	opts   Options
	logger *slog.Logger

	// sem bounds running downloads; nil means unbounded.
	sem   chan struct{}
	wg    sync.WaitGroup
	newID func() string
}

func NewManager(store *Store, eng engine.Engine, opts Options) *Manager {
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = config.DefaultFormat
	}
	if opts.DefaultOutput == "" {
		opts.DefaultOutput = config.DefaultOutput
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		store:  store,
		engine: eng,
		opts:   opts,
		logger: logger,
		newID:  newJobID,
	}
	if opts.MaxConcurrentJobs > 0 {
		m.sem = make(chan struct{}, opts.MaxConcurrentJobs)
	}
	return m
}

// Submit validates the request, records a Starting job and launches its
// execution task. It returns without waiting for the engine.
func (m *Manager) Submit(req SubmitRequest) (string, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if sourceURL == "" {
		return "", fmt.Errorf("%w: url is required", ErrValidation)
	}
	format := strings.TrimSpace(req.Format)
	if format == "" {
		format = m.opts.DefaultFormat
	}
	tmpl := strings.TrimSpace(req.OutputTemplate)
	if tmpl == "" {
		tmpl = m.opts.DefaultOutput
	}
	if err := validateOutputTemplate(tmpl); err != nil {
		return "", err
	}

	id := m.newID()
	job := Job{
		ID:             id,
		SourceURL:      sourceURL,
		Format:         format,
		OutputTemplate: tmpl,
		State:          StateStarting,
	}
	if err := m.store.Put(job); err != nil {
		return "", err
	}
	metrics.RecordJobSubmitted()

	dl := engine.DownloadRequest{
		SourceURL: sourceURL,
		Format:    format,
		// The job id prefix keeps concurrent jobs for the same source apart.
		OutputPath: filepath.Join(m.opts.DownloadDir, id+"_"+tmpl),
	}

	m.wg.Add(1)
	go m.run(id, dl)

	m.logger.Info("job_submitted", "job_id", id, "url", sourceURL, "format", format)
	return id, nil
}

// Query returns the current snapshot of a job.
func (m *Manager) Query(id string) (View, error) {
	return m.store.Get(id)
}

// List returns snapshots of all known jobs, oldest first.
func (m *Manager) List() []View {
	return m.store.List()
}

// FetchArtifact opens the file of a completed job.
func (m *Manager) FetchArtifact(id string) (*Artifact, error) {
	view, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if view.State != StateCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotReady, id, view.State)
	}

	f, err := os.Open(view.ArtifactPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, filepath.Base(view.ArtifactPath))
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrArtifactMissing, filepath.Base(view.ArtifactPath))
	}

	return &Artifact{
		Content: f,
		Size:    info.Size(),
		Name:    filepath.Base(view.ArtifactPath),
		Path:    view.ArtifactPath,
		ModTime: info.ModTime(),
	}, nil
}

// ListFormats asks the engine which encodings a source offers. It does not
// create a job.
func (m *Manager) ListFormats(ctx context.Context, sourceURL string) (*engine.FormatList, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrValidation)
	}
	list, err := m.engine.ListFormats(ctx, sourceURL)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return list, nil
}

// Wait blocks until every execution task has returned or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the execution task of one job. Its only channel back to callers
// is the Store.
func (m *Manager) run(id string, req engine.DownloadRequest) {
	defer m.wg.Done()

	if view, err := m.store.Get(id); err == nil {
		m.publish(view)
	}

	if m.sem != nil {
		m.sem <- struct{}{}
		defer func() { <-m.sem }()
	}

	defer func() {
		if rec := recover(); rec != nil {
			m.fail(id, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	started := time.Now().UTC()
	if _, err := m.transition(id, func(j *Job) error {
		j.State = StateDownloading
		j.Progress = 0
		j.StartedAt = &started
		return nil
	}); err != nil {
		m.logger.Error("job_start_failed", "job_id", id, "error", err)
		return
	}

	reporter := NewReporter(m.store, id, m.logger)
	res, err := m.engine.Download(context.Background(), req, reporter.Handle)
	if err != nil {
		m.fail(id, err.Error())
		return
	}
	if res == nil || res.Filename == "" {
		m.fail(id, "engine reported no output file")
		return
	}
	m.complete(id, res, started)
}

func (m *Manager) complete(id string, res *engine.Result, started time.Time) {
	meta := res.Metadata
	now := time.Now().UTC()
	view, err := m.transition(id, func(j *Job) error {
		j.State = StateCompleted
		j.ArtifactPath = res.Filename
		j.Filename = filepath.Base(res.Filename)
		j.Metadata = &meta
		j.Rate = nil
		j.ETA = nil
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		m.logger.Error("job_complete_failed", "job_id", id, "error", err)
		return
	}
	metrics.RecordJobFinished(string(StateCompleted), now.Sub(started).Milliseconds())
	m.logger.Info("job_completed",
		"job_id", id,
		"filename", view.Filename,
		"title", meta.Title,
		"duration_ms", now.Sub(started).Milliseconds(),
	)
}

func (m *Manager) fail(id, msg string) {
	if strings.TrimSpace(msg) == "" {
		msg = "download failed"
	}
	now := time.Now().UTC()
	_, err := m.transition(id, func(j *Job) error {
		j.State = StateFailed
		j.Error = msg
		j.ArtifactPath = ""
		j.Metadata = nil
		j.Rate = nil
		j.ETA = nil
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		m.logger.Error("job_fail_failed", "job_id", id, "error", err)
		return
	}
	var elapsed int64
	if view, err := m.store.Get(id); err == nil && view.StartedAt != nil {
		elapsed = now.Sub(*view.StartedAt).Milliseconds()
	}
	metrics.RecordJobFinished(string(StateFailed), elapsed)
	m.logger.Warn("job_failed", "job_id", id, "error", msg)
}

// transition commits a state change and publishes the resulting snapshot.
// Publishing happens after the store lock is released.
func (m *Manager) transition(id string, mutate func(*Job) error) (View, error) {
	view, err := m.store.Update(id, mutate)
	if err != nil {
		return View{}, err
	}
	m.publish(view)
	return view, nil
}

func (m *Manager) publish(view View) {
	if m.opts.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.opts.Publisher.Publish(ctx, view); err != nil {
		m.logger.Warn("job_publish_failed", "job_id", view.ID, "state", string(view.State), "error", err)
	}
}

// validateOutputTemplate keeps artifacts inside the download directory.
func validateOutputTemplate(tmpl string) error {
	if strings.ContainsAny(tmpl, `/\`) || strings.Contains(tmpl, "..") {
		return fmt.Errorf("%w: output must be a file name template without path separators", ErrValidation)
	}
	if strings.HasPrefix(tmpl, ".") {
		return fmt.Errorf("%w: output must not start with a dot", ErrValidation)
	}
	return nil
}

// newJobID returns a uuidv7 when available, otherwise a v4.
func newJobID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}
