package jobs

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fetchd/internal/engine"
)

func completedJob(id string, completedAt time.Time) Job {
	return Job{
		ID:           id,
		SourceURL:    "https://example.com/" + id,
		State:        StateCompleted,
		ArtifactPath: "/tmp/" + id + ".mp4",
		Metadata:     &engine.Metadata{Title: id},
		CompletedAt:  &completedAt,
	}
}

func TestStore_PutGet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Job{ID: "a", SourceURL: "https://example.com/a", State: StateStarting}))

	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, "a", v.ID)
	require.Equal(t, StateStarting, v.State)
	require.False(t, v.CreatedAt.IsZero())

	err = s.Put(Job{ID: "a", State: StateStarting})
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PutRejectsEmptyID(t *testing.T) {
	s := NewStore()
	require.ErrorIs(t, s.Put(Job{State: StateStarting}), ErrValidation)
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Job{ID: "a", State: StateStarting}))
	_, err := s.Update("a", func(j *Job) error {
		j.State = StateDownloading
		rate := 10.0
		j.Rate = &rate
		return nil
	})
	require.NoError(t, err)

	v, err := s.Get("a")
	require.NoError(t, err)
	*v.Rate = 999

	again, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 10.0, *again.Rate)
}

func TestStore_UpdateTransitions(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Job{ID: "a", State: StateStarting}))

	_, err := s.Update("missing", func(j *Job) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)

	// Starting cannot jump straight to Completed.
	_, err = s.Update("a", func(j *Job) error {
		j.State = StateCompleted
		j.ArtifactPath = "/tmp/a.mp4"
		j.Metadata = &engine.Metadata{}
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	v, err := s.Update("a", func(j *Job) error {
		j.State = StateDownloading
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StateDownloading, v.State)

	_, err = s.Update("a", func(j *Job) error {
		j.State = StateStarting
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	v, err = s.Update("a", func(j *Job) error {
		j.State = StateFailed
		j.Error = "boom"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StateFailed, v.State)

	// Terminal records are immutable.
	_, err = s.Update("a", func(j *Job) error {
		j.Progress = 1
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	v, err = s.Get("a")
	require.NoError(t, err)
	require.Equal(t, "boom", v.Error)
	require.Zero(t, v.Progress)
}

func TestStore_UpdateEnforcesInvariants(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Job{ID: "a", State: StateDownloading}))

	_, err := s.Update("a", func(j *Job) error {
		j.State = StateCompleted
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Update("a", func(j *Job) error {
		j.State = StateFailed
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Update("a", func(j *Job) error {
		j.Error = "not failed yet"
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, StateDownloading, v.State)
	require.Empty(t, v.Error)
}

func TestStore_MutatorErrorLeavesRecord(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(Job{ID: "a", State: StateDownloading, Progress: 0.25}))

	boom := errors.New("boom")
	_, err := s.Update("a", func(j *Job) error {
		j.Progress = 0.9
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 0.25, v.Progress)
}

func TestStore_DeleteAndList(t *testing.T) {
	s := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(Job{ID: "b", State: StateStarting, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.Put(Job{ID: "a", State: StateStarting, CreatedAt: base}))
	require.NoError(t, s.Put(Job{ID: "c", State: StateStarting, CreatedAt: base.Add(time.Minute)}))

	views := s.List()
	require.Len(t, views, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{views[0].ID, views[1].ID, views[2].ID})

	require.NoError(t, s.Delete("b"))
	require.ErrorIs(t, s.Delete("b"), ErrNotFound)
	require.Equal(t, 2, s.Len())
}

func TestStore_EvictTerminal(t *testing.T) {
	s := NewStore()
	now := time.Now().UTC()

	require.NoError(t, s.Put(completedJob("old", now.Add(-100*time.Hour))))
	require.NoError(t, s.Put(completedJob("recent", now.Add(-time.Hour))))
	require.NoError(t, s.Put(Job{ID: "active", State: StateDownloading}))

	n := s.EvictTerminal(now.Add(-72 * time.Hour))
	require.Equal(t, 1, n)

	_, err := s.Get("old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("recent")
	require.NoError(t, err)
	_, err = s.Get("active")
	require.NoError(t, err)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	const n = 32
	for i := 0; i < n; i++ {
		require.NoError(t, s.Put(Job{ID: fmt.Sprintf("job-%d", i), State: StateDownloading}))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("job-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for step := 1; step <= 100; step++ {
				p := float64(step) / 100
				_, err := s.Update(id, func(j *Job) error {
					if p > j.Progress {
						j.Progress = p
					}
					return nil
				})
				if err != nil {
					t.Errorf("update %s: %v", id, err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			last := 0.0
			for step := 0; step < 100; step++ {
				v, err := s.Get(id)
				if err != nil {
					t.Errorf("get %s: %v", id, err)
					return
				}
				if v.Progress < last {
					t.Errorf("progress of %s went backwards: %v < %v", id, v.Progress, last)
					return
				}
				last = v.Progress
				_ = s.List()
			}
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, err := s.Get(fmt.Sprintf("job-%d", i))
		require.NoError(t, err)
		require.Equal(t, 1.0, v.Progress)
	}
}
