// Package storage provides the job history ledger with multiple backend support.
// The ledger is append-only bookkeeping: jobs are never restored from it after a
// restart, it only records what the bot did.
package storage

import (
	"context"
	"time"
)

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeMemory StorageType = "memory" // In-memory storage (ephemeral)
	StorageTypeSQLite StorageType = "sqlite" // SQLite file-based storage
)

// StorageConfig represents storage configuration
type StorageConfig struct {
	Type   StorageType   `yaml:"type" json:"type"`
	SQLite *SQLiteConfig `yaml:"sqlite" json:"sqlite,omitempty"`
}

// SQLiteConfig contains SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"` // Database file path
}

// JobRecord represents one delivery job in the history ledger
type JobRecord struct {
	ID         string     `json:"id" db:"id"`
	ChatID     int64      `json:"chatId" db:"chat_id"`
	UserID     int64      `json:"userId" db:"user_id"`
	URL        string     `json:"url" db:"url"`
	Title      string     `json:"title" db:"title"`
	Mode       string     `json:"mode" db:"mode"`       // video, document, audio
	Quality    string     `json:"quality" db:"quality"` // display label of the chosen plan
	Outcome    string     `json:"outcome" db:"outcome"` // queued, delivered, refused, errored, cancelled
	Error      string     `json:"error,omitempty" db:"error"`
	Bytes      int64      `json:"bytes" db:"bytes"` // final artifact size, 0 if never produced
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
}

// Store defines the ledger interface
type Store interface {
	// CreateJob records a freshly enqueued job
	CreateJob(ctx context.Context, rec *JobRecord) error
	// FinishJob records the terminal outcome of a job
	FinishJob(ctx context.Context, id, outcome, errMsg string, bytes int64, finishedAt time.Time) error
	// GetJob returns a single record by job id
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	// ListJobs returns records ordered by creation time, newest first
	ListJobs(ctx context.Context, limit, offset int) ([]*JobRecord, error)
	// CountByOutcome returns the number of records per terminal outcome
	CountByOutcome(ctx context.Context) (map[string]int64, error)

	// Cleanup
	Close() error
}

// Manager manages the storage backend
type Manager struct {
	store  Store
	config *StorageConfig
}

// NewManager creates a new storage manager
func NewManager(config *StorageConfig) (*Manager, error) {
	mgr := &Manager{
		config: config,
	}

	var store Store
	var err error

	switch config.Type {
	case StorageTypeMemory:
		store, err = NewMemoryStore()
	case StorageTypeSQLite:
		if config.SQLite == nil {
			return nil, ErrMissingSQLiteConfig
		}
		store, err = NewSQLiteStore(config.SQLite)
	default:
		return nil, ErrInvalidStorageType
	}

	if err != nil {
		return nil, err
	}

	mgr.store = store
	return mgr, nil
}

// GetStore returns the underlying store
func (m *Manager) GetStore() Store {
	return m.store
}

// Close closes the storage manager
func (m *Manager) Close() error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Errors
var (
	ErrInvalidStorageType  = &StorageError{Code: "INVALID_TYPE", Message: "Invalid storage type"}
	ErrMissingSQLiteConfig = &StorageError{Code: "MISSING_CONFIG", Message: "Missing SQLite configuration"}
	ErrJobNotFound         = &StorageError{Code: "NOT_FOUND", Message: "Job record not found"}
)

// StorageError represents a storage error
type StorageError struct {
	Code    string
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
