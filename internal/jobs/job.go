package jobs

import (
	"path/filepath"
	"time"

	"fetchd/internal/engine"
)

// Job is the mutable record of one download. It only ever lives inside the
// Store; everything outside sees Views.
type Job struct {
	ID             string
	SourceURL      string
	Format         string
	OutputTemplate string

	State    State
	Progress float64
	Rate     *float64 // bytes per second
	ETA      *int64   // seconds

	// progressIsFraction is set once Progress holds downloaded/total rather
	// than a raw byte count.
	progressIsFraction bool

	// Filename is the engine's resolved file name, recorded while the job
	// is still downloading.
	Filename     string
	ArtifactPath string
	Metadata     *engine.Metadata
	Error        string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// View is a read-only snapshot of a Job.
type View struct {
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Format      string           `json:"format"`
	State       State            `json:"state"`
	Progress    float64          `json:"progress"`
	Rate        *float64         `json:"speed,omitempty"`
	ETA         *int64           `json:"eta,omitempty"`
	Filename    string           `json:"filename,omitempty"`
	Metadata    *engine.Metadata `json:"metadata,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`

	ArtifactPath string `json:"-"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.Rate != nil {
		v := *j.Rate
		c.Rate = &v
	}
	if j.ETA != nil {
		v := *j.ETA
		c.ETA = &v
	}
	if j.Metadata != nil {
		m := *j.Metadata
		c.Metadata = &m
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// view copies the job into a View. Callers must hold the store lock.
func (j *Job) view() View {
	c := j.clone()
	v := View{
		ID:           c.ID,
		URL:          c.SourceURL,
		Format:       c.Format,
		State:        c.State,
		Progress:     c.Progress,
		Rate:         c.Rate,
		ETA:          c.ETA,
		Filename:     c.Filename,
		Metadata:     c.Metadata,
		Error:        c.Error,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		StartedAt:    c.StartedAt,
		CompletedAt:  c.CompletedAt,
		ArtifactPath: c.ArtifactPath,
	}
	if c.ArtifactPath != "" {
		v.Filename = filepath.Base(c.ArtifactPath)
	}
	return v
}
