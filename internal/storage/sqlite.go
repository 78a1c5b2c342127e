// Package storage provides SQLite storage implementation
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Use modernc.org/sqlite for pure Go SQLite (CGO-free)
)

// SQLiteStore implements Store interface with SQLite backend
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		return nil, ErrMissingSQLiteConfig
	}

	// Ensure directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database connection
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{
		db:   db,
		path: config.Path,
	}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		mode TEXT NOT NULL,
		quality TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		bytes INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_outcome ON jobs(outcome);
	CREATE INDEX IF NOT EXISTS idx_jobs_chat ON jobs(chat_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = memory",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	return nil
}

// CreateJob records a freshly enqueued job
func (s *SQLiteStore) CreateJob(ctx context.Context, rec *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = generateID("job")
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO jobs (id, chat_id, user_id, url, title, mode, quality, outcome, error, bytes, created_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ChatID,
		rec.UserID,
		rec.URL,
		rec.Title,
		rec.Mode,
		rec.Quality,
		rec.Outcome,
		rec.Error,
		rec.Bytes,
		rec.CreatedAt.Unix(),
	)

	return err
}

// FinishJob records the terminal outcome of a job
func (s *SQLiteStore) FinishJob(ctx context.Context, id, outcome, errMsg string, bytes int64, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	UPDATE jobs SET outcome = ?, error = ?, bytes = ?, finished_at = ?
	WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query, outcome, errMsg, bytes, finishedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// GetJob returns a single record by job id
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, chat_id, user_id, url, title, mode, quality, outcome, error, bytes, created_at, finished_at
	FROM jobs
	WHERE id = ?
	`

	rec, err := scanJobRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return rec, nil
}

// ListJobs returns records ordered by creation time, newest first
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, chat_id, user_id, url, title, mode, quality, outcome, error, bytes, created_at, finished_at
	FROM jobs
	ORDER BY created_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	recs := []*JobRecord{}

	for rows.Next() {
		rec, err := scanJobRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// CountByOutcome returns the number of records per terminal outcome
func (s *SQLiteStore) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM jobs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}

	return counts, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for scanJobRecord
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRecord(row scanner) (*JobRecord, error) {
	rec := &JobRecord{}
	var errMsg sql.NullString
	var title, quality sql.NullString
	var createdUnix int64
	var finishedUnix sql.NullInt64

	err := row.Scan(
		&rec.ID,
		&rec.ChatID,
		&rec.UserID,
		&rec.URL,
		&title,
		&rec.Mode,
		&quality,
		&rec.Outcome,
		&errMsg,
		&rec.Bytes,
		&createdUnix,
		&finishedUnix,
	)
	if err != nil {
		return nil, err
	}

	rec.Title = title.String
	rec.Quality = quality.String
	rec.Error = errMsg.String
	rec.CreatedAt = time.Unix(createdUnix, 0).UTC()
	if finishedUnix.Valid {
		t := time.Unix(finishedUnix.Int64, 0).UTC()
		rec.FinishedAt = &t
	}

	return rec, nil
}
