// Package registry holds the bot's in-memory shared state: pending
// delivery choices awaiting a user's selection, and per-job
// cancellation entries. Everything here is reset on restart.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telefetch-project/telefetch/internal/planner"
)

// PendingChoice is one offered set of delivery options. Consumed at
// most once; expires after the store's TTL.
type PendingChoice struct {
	CreatedAt   time.Time
	UserID      int64
	ChatID      int64
	SourceMsgID int
	URL         string
	Title       string
	Duration    float64
	VideoPlan   *planner.Candidate // nil when video/document refused
	AudioPlan   *planner.AudioPlan // nil when audio refused
}

// PendingStore maps opaque request ids to pending choices. Expired
// entries are swept lazily on each Put rather than by a timer, so a
// stale id can linger but is never usable.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]*PendingChoice
	ttl     time.Duration
	now     func() time.Time
}

// NewPendingStore creates a store with the given time-to-live.
func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		entries: make(map[string]*PendingChoice),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores a choice under a fresh random id and returns the id.
// The sweep of expired entries piggybacks on this call.
func (s *PendingStore) Put(choice *PendingChoice) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	id := uuid.NewString()
	if choice.CreatedAt.IsZero() {
		choice.CreatedAt = s.now()
	}
	s.entries[id] = choice
	return id
}

// Peek returns a copy of a live choice without consuming it, so
// callers can check ownership before the destructive Take. Expired
// entries are treated as absent.
func (s *PendingStore) Peek(id string) (PendingChoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	choice, ok := s.entries[id]
	if !ok || s.now().Sub(choice.CreatedAt) > s.ttl {
		return PendingChoice{}, false
	}
	return *choice, true
}

// Take consumes a choice exactly once. Expired entries are treated as
// absent even if the sweep has not removed them yet.
func (s *PendingStore) Take(id string) (*PendingChoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	choice, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)

	if s.now().Sub(choice.CreatedAt) > s.ttl {
		return nil, false
	}
	return choice, true
}

// Len returns the number of stored entries, expired ones included.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *PendingStore) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, choice := range s.entries {
		if choice.CreatedAt.Before(cutoff) {
			delete(s.entries, id)
		}
	}
}
