package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fetchd/internal/engine"
)

func downloadingStore(t *testing.T, id string) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Put(Job{ID: id, State: StateDownloading}))
	return s
}

func TestReporter_Progress(t *testing.T) {
	s := downloadingStore(t, "a")
	r := NewReporter(s, "a", discardLogger())

	r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 25, TotalBytes: 100, Rate: 12.5, ETA: 6})
	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 0.25, v.Progress)
	require.Equal(t, 12.5, *v.Rate)
	require.Equal(t, int64(6), *v.ETA)

	// A late, smaller sample never moves progress backwards.
	r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 10, TotalBytes: 100, Rate: -1, ETA: -1})
	v, err = s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 0.25, v.Progress)
	require.Nil(t, v.Rate)
	require.Nil(t, v.ETA)
}

func TestReporter_UnknownTotal(t *testing.T) {
	s := downloadingStore(t, "a")
	r := NewReporter(s, "a", discardLogger())

	require.NotPanics(t, func() {
		r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 3, TotalBytes: 0, Rate: -1, ETA: -1})
	})
	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 3.0, v.Progress)
}

func TestReporter_KnownTotalReplacesByteCount(t *testing.T) {
	s := downloadingStore(t, "a")
	r := NewReporter(s, "a", discardLogger())
	const mib = 1 << 20

	r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 4096, TotalBytes: 0, Rate: -1, ETA: -1})
	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 4096.0, v.Progress)

	r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 8192, TotalBytes: mib, Rate: -1, ETA: -1})
	v, err = s.Get("a")
	require.NoError(t, err)
	require.InDelta(t, 8192.0/mib, v.Progress, 1e-12)

	r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: mib / 2, TotalBytes: mib, Rate: -1, ETA: -1})
	v, err = s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 0.5, v.Progress)

	// Once a fraction is recorded, readings without a total no longer apply.
	r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 900 * 1024, TotalBytes: 0, Rate: -1, ETA: -1})
	v, err = s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 0.5, v.Progress)
}

func TestReporter_FinishedOnlyRecordsFilename(t *testing.T) {
	s := downloadingStore(t, "a")
	r := NewReporter(s, "a", discardLogger())

	r.Handle(engine.ProgressEvent{Kind: engine.EventFinished, DownloadedBytes: 2048, Filename: "/downloads/a_clip.mp4"})
	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, StateDownloading, v.State)
	require.Equal(t, "a_clip.mp4", v.Filename)
	require.Empty(t, v.ArtifactPath)
}

func TestReporter_IgnoresOtherKinds(t *testing.T) {
	s := downloadingStore(t, "a")
	r := NewReporter(s, "a", discardLogger())

	before, err := s.Get("a")
	require.NoError(t, err)
	r.Handle(engine.ProgressEvent{Kind: engine.EventOther, DownloadedBytes: 99, TotalBytes: 100})

	after, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestReporter_SwallowsStoreErrors(t *testing.T) {
	s := NewStore()
	now := time.Now().UTC()
	require.NoError(t, s.Put(completedJob("done", now)))
	require.NoError(t, s.Put(Job{ID: "queued", State: StateStarting}))

	for _, id := range []string{"done", "queued", "missing"} {
		r := NewReporter(s, id, discardLogger())
		require.NotPanics(t, func() {
			r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 1, TotalBytes: 2})
			r.Handle(engine.ProgressEvent{Kind: engine.EventFinished, Filename: "x.mp4"})
		})
	}

	v, err := s.Get("done")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, v.State)
	require.Equal(t, "done.mp4", v.Filename)

	v, err = s.Get("queued")
	require.NoError(t, err)
	require.Zero(t, v.Progress)
}

func TestReporter_NilStoreDoesNotPanic(t *testing.T) {
	r := NewReporter(nil, "a", discardLogger())
	require.NotPanics(t, func() {
		r.Handle(engine.ProgressEvent{Kind: engine.EventDownloading, DownloadedBytes: 1, TotalBytes: 2})
	})
}
