package sessionrepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// InMemoryRepo is an in-memory implementation of Repo for single-instance deployments
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Record // sessionID -> Record
	now      func() time.Time
}

// NewInMemoryRepo creates a new in-memory session repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]Record),
		now:      time.Now,
	}
}

// Get retrieves a session record by id
func (r *InMemoryRepo) Get(_ context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("sessionID is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok || rec.Expired(r.now()) {
		return Record{}, autherrors.ErrSessionNotFound
	}
	return rec, nil
}

// CompareAndSwap replaces the record if its generation is still expected
func (r *InMemoryRepo) CompareAndSwap(_ context.Context, id string, expected uint64, next *Record) error {
	if id == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var current uint64
	if rec, ok := r.sessions[id]; ok && !rec.Expired(r.now()) {
		current = rec.Generation
	}
	if current != expected {
		return autherrors.ErrStaleSession
	}

	if next == nil {
		delete(r.sessions, id)
		return nil
	}
	stored := *next
	stored.Generation = expected + 1
	r.sessions[id] = stored
	return nil
}

// Delete removes a session record
func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id) // Already doesn't exist, no error
	return nil
}

// Cleanup drops expired records. Run it periodically.
func (r *InMemoryRepo) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, rec := range r.sessions {
		if rec.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
