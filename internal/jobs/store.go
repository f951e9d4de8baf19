package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the concurrency-safe registry of jobs and the single source of
// truth for job state. Pollers read snapshots; the execution task that owns
// a job writes through Update.
//
// Update on a terminal job always fails with ErrInvalidTransition.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Put inserts a new job. The id must not already be present.
func (s *Store) Put(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("%w: job id is required", ErrValidation)
	}
	if err := checkInvariants(&job); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job.clone()
	return nil
}

func (s *Store) Get(id string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.view(), nil
}

// Update applies mutate to a private copy of the job and commits the copy
// only if the mutator succeeds and the result is a legal transition. The
// mutator runs under the store lock and must not block.
func (s *Store) Update(id string, mutate func(*Job) error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if cur.State.IsTerminal() {
		return View{}, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, cur.State)
	}

	next := cur.clone()
	if err := mutate(next); err != nil {
		return View{}, err
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt

	if next.State != cur.State && !canTransition(cur.State, next.State) {
		return View{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.State, next.State)
	}
	if err := checkInvariants(next); err != nil {
		return View{}, err
	}

	next.UpdatedAt = s.now()
	s.jobs[id] = next
	return next.view(), nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.jobs, id)
	return nil
}

// List returns snapshots of every job, oldest first.
func (s *Store) List() []View {
	s.mu.RLock()
	views := make([]View, 0, len(s.jobs))
	for _, job := range s.jobs {
		views = append(views, job.view())
	}
	s.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// EvictTerminal removes finished jobs that completed before the cutoff and
// returns how many were removed. Active jobs are never evicted.
func (s *Store) EvictTerminal(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, job := range s.jobs {
		if !job.State.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(before) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// checkInvariants enforces artifact iff completed and error iff failed.
func checkInvariants(j *Job) error {
	switch j.State {
	case StateCompleted:
		if j.ArtifactPath == "" || j.Metadata == nil {
			return fmt.Errorf("%w: completed job %s needs an artifact and metadata", ErrInvalidTransition, j.ID)
		}
		if j.Error != "" {
			return fmt.Errorf("%w: completed job %s carries an error", ErrInvalidTransition, j.ID)
		}
	case StateFailed:
		if j.Error == "" {
			return fmt.Errorf("%w: failed job %s needs an error", ErrInvalidTransition, j.ID)
		}
		if j.ArtifactPath != "" || j.Metadata != nil {
			return fmt.Errorf("%w: failed job %s carries a result", ErrInvalidTransition, j.ID)
		}
	case StateStarting, StateDownloading:
		if j.ArtifactPath != "" || j.Error != "" {
			return fmt.Errorf("%w: active job %s carries a result", ErrInvalidTransition, j.ID)
		}
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, j.State)
	}
	return nil
}
