// internal/api/job/store.go
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/equicurve/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further updates will follow.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Error is the client-facing failure of a job.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrom converts err into a job error, keeping core error codes.
func ErrorFrom(err error) *Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		msg := ce.Message
		if ce.Cause != nil {
			msg = msg + ": " + ce.Cause.Error()
		}
		return &Error{Code: ce.Code, Message: msg}
	}
	return &Error{Code: "INTERNAL_ERROR", Message: err.Error()}
}

// Job represents an async job.
type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    Status         `json:"status"`
	Progress  float64        `json:"progress"`
	Params    map[string]any `json:"params,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     *Error         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store manages async jobs.
type Store struct {
	jobs    map[string]*Job
	order   []string // Track insertion order for eviction
	subs    map[string][]chan Job
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
	now     func() time.Time
}

// NewStore creates a new job store.
// Finished jobs older than ttl are purged on the next Create.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		subs:    make(map[string][]chan Job),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create creates a new queued job and returns a copy of it.
func (s *Store) Create(jobType string, params map[string]any) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()

	now := s.now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusQueued,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Evict oldest if at capacity
	for len(s.jobs) >= s.maxSize && len(s.order) > 0 {
		s.removeLocked(s.order[0])
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	return *job
}

// Get retrieves a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}

	// Return copy to prevent race conditions
	jobCopy := *job
	return &jobCopy, nil
}

// Update modifies a job using an update function and fans the new state
// out to subscribers.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.ErrJobNotFound
	}

	fn(job)
	job.UpdatedAt = s.now()

	snapshot := *job
	for _, ch := range s.subs[id] {
		offer(ch, snapshot)
	}
	if job.Status.Terminal() {
		s.closeSubsLocked(id)
	}
	return nil
}

// Subscribe returns a channel that receives the job state after every
// update. The first value is the current state. The channel is closed once
// the job finishes, is evicted, or cancel is called. Slow readers only see
// the latest state.
func (s *Store) Subscribe(id string) (<-chan Job, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil, core.ErrJobNotFound
	}

	ch := make(chan Job, 1)
	ch <- *job
	if job.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}
	s.subs[id] = append(s.subs[id], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.subs[id]
			for i, c := range subs {
				if c == ch {
					s.subs[id] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
			if len(s.subs[id]) == 0 {
				delete(s.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

// offer replaces any unread value so the reader always sees the latest state.
func offer(ch chan Job, j Job) {
	select {
	case ch <- j:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- j:
	default:
	}
}

// List returns all jobs.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.jobs))
	for _, id := range s.order {
		result = append(result, *s.jobs[id])
	}
	return result
}

// Active counts jobs of a type that have not finished.
func (s *Store) Active(jobType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, job := range s.jobs {
		if job.Type == jobType && !job.Status.Terminal() {
			n++
		}
	}
	return n
}

// Purge drops finished jobs older than the store TTL.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked()
}

func (s *Store) purgeLocked() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	var expired []string
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		s.removeLocked(id)
	}
	return len(expired)
}

func (s *Store) removeLocked(id string) {
	delete(s.jobs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.closeSubsLocked(id)
}

func (s *Store) closeSubsLocked(id string) {
	for _, ch := range s.subs[id] {
		close(ch)
	}
	delete(s.subs, id)
}
