package registry

import "sync"

// CancelEntry carries a job's advisory cancellation flag plus the
// write-once ownership metadata needed to authorize and act on a
// cancel request. Only the flag ever mutates.
type CancelEntry struct {
	mu          sync.Mutex
	cancelled   bool
	UserID      int64
	ChatID      int64
	StatusMsgID int
}

// Cancel sets the advisory flag. Has no effect on a job already past
// its last checkpoint.
func (e *CancelEntry) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
}

// Cancelled reports whether cancellation was requested.
func (e *CancelEntry) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// CancelRegistry maps job ids to their cancellation entries.
type CancelRegistry struct {
	mu      sync.Mutex
	entries map[string]*CancelEntry
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		entries: make(map[string]*CancelEntry),
	}
}

// Register creates the entry for a job at enqueue time.
func (r *CancelRegistry) Register(jobID string, userID, chatID int64, statusMsgID int) *CancelEntry {
	entry := &CancelEntry{
		UserID:      userID,
		ChatID:      chatID,
		StatusMsgID: statusMsgID,
	}

	r.mu.Lock()
	r.entries[jobID] = entry
	r.mu.Unlock()
	return entry
}

// Get looks up a job's entry.
func (r *CancelRegistry) Get(jobID string) (*CancelEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[jobID]
	return entry, ok
}

// Release drops a job's entry when the job terminates. Cancel requests
// arriving afterwards find nothing and are answered as stale.
func (r *CancelRegistry) Release(jobID string) {
	r.mu.Lock()
	delete(r.entries, jobID)
	r.mu.Unlock()
}

// Len returns the number of live entries.
func (r *CancelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
