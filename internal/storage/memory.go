// Package storage provides in-memory storage implementation
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store interface with in-memory storage
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*JobRecord
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() (*MemoryStore, error) {
	return &MemoryStore{
		jobs: make(map[string]*JobRecord),
	}, nil
}

// CreateJob records a freshly enqueued job
func (s *MemoryStore) CreateJob(ctx context.Context, rec *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = generateID("job")
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	recCopy := *rec
	s.jobs[rec.ID] = &recCopy

	return nil
}

// FinishJob records the terminal outcome of a job
func (s *MemoryStore) FinishJob(ctx context.Context, id, outcome, errMsg string, bytes int64, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.jobs[id]
	if !exists {
		return ErrJobNotFound
	}

	rec.Outcome = outcome
	rec.Error = errMsg
	rec.Bytes = bytes
	rec.FinishedAt = &finishedAt

	return nil
}

// GetJob returns a single record by job id
func (s *MemoryStore) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}

	// Return a copy to avoid race conditions
	recCopy := *rec
	return &recCopy, nil
}

// ListJobs returns records ordered by creation time, newest first
func (s *MemoryStore) ListJobs(ctx context.Context, limit, offset int) ([]*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*JobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		recCopy := *rec
		recs = append(recs, &recCopy)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	if offset >= len(recs) {
		return []*JobRecord{}, nil
	}

	end := offset + limit
	if end > len(recs) {
		end = len(recs)
	}

	return recs[offset:end], nil
}

// CountByOutcome returns the number of records per terminal outcome
func (s *MemoryStore) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, rec := range s.jobs {
		counts[rec.Outcome]++
	}

	return counts, nil
}

// Close closes the store
func (s *MemoryStore) Close() error {
	return nil
}

// generateID generates a unique ID with the given prefix
func generateID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
