package eval

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// cancelMemoryTTL bounds the in-memory cancelled set; the DB row is
// authoritative after the window.
const cancelMemoryTTL = 10 * time.Minute

// CancelRegistry lets in-flight handlers see a cancellation even when they
// read the job row before the cancel transaction committed. It keeps a
// short-lived in-memory set of cancelled ids in front of the DB status.
type CancelRegistry struct {
	jobs domain.JobRepository

	mu        sync.Mutex
	cancelled map[string]time.Time
}

// NewCancelRegistry builds a registry over the job store.
func NewCancelRegistry(jobs domain.JobRepository) *CancelRegistry {
	return &CancelRegistry{jobs: jobs, cancelled: map[string]time.Time{}}
}

// MarkCancelled records a cancellation locally, before or alongside the DB
// transition.
func (r *CancelRegistry) MarkCancelled(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.cancelled[jobID] = now
	for id, at := range r.cancelled {
		if now.Sub(at) > cancelMemoryTTL {
			delete(r.cancelled, id)
		}
	}
}

// IsCancelled reports whether the job was cancelled, checking memory first
// then the DB row. Probe errors read as not-cancelled; the next safe point
// checks again.
func (r *CancelRegistry) IsCancelled(ctx context.Context, jobID string) bool {
	r.mu.Lock()
	_, inMemory := r.cancelled[jobID]
	r.mu.Unlock()
	if inMemory {
		return true
	}
	status, err := r.jobs.Status(ctx, jobID)
	if err != nil {
		return false
	}
	if status == domain.JobCancelled {
		r.MarkCancelled(jobID)
		return true
	}
	return false
}
