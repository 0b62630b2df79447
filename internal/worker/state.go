package worker

import (
	"sync"
	"time"

	"recscribe/internal/models"
)

const maxTrackedJobs = 1024

// jobState remembers the latest status of recent jobs, oldest evicted first.
type jobState struct {
	mu    sync.RWMutex
	jobs  map[string]models.JobStatus
	order []string
}

func newJobState() *jobState {
	return &jobState{jobs: make(map[string]models.JobStatus)}
}

func (s *jobState) set(status models.JobStatus) {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[status.ID]; !ok {
		s.order = append(s.order, status.ID)
		if len(s.order) > maxTrackedJobs {
			delete(s.jobs, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.jobs[status.ID] = status
}

func (s *jobState) get(id string) (models.JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.jobs[id]
	return status, ok
}

func (s *jobState) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return
	}
	delete(s.jobs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *jobState) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// setIfNewer applies a status from another instance unless a fresher one is known.
func (s *jobState) setIfNewer(status models.JobStatus) {
	if cur, ok := s.get(status.ID); ok && !status.UpdatedAt.After(cur.UpdatedAt) {
		return
	}
	s.set(status)
}
