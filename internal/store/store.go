// Package store implements the Knowledge Store (§4.A): a transactional,
// SQLite-backed persistence layer for functions, modules, files, context
// packs, knowledge edges, ingestion items, embeddings, metadata, the query
// cache, query access logs, confidence events, retrieval logs, and opaque
// state blobs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nateschmiedehaus/librarian/internal/logging"
)

// Store is the Knowledge Store handle. Writers serialize through a single
// mutex mirroring the teacher's single-writer-many-readers discipline
// (store/local.go); SQLite's own locking backs this up at the driver level.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes (creating if absent) the SQLite database at path and
// applies schema migrations.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	logging.Get(logging.CategoryStore).Info("Knowledge Store opened at %s", path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for collaborators that need direct
// access outside this package's CRUD surface. Lock-cleanup recovery
// (AttemptRecovery) works on the workspace path and does not use it.
func (s *Store) DB() *sql.DB { return s.db }

// Transaction runs fn inside a single SQLite transaction, committing on
// success and rolling back on error or panic. Concurrent writers serialize
// through the mutex so at-least the promised "single-writer" semantics hold
// even though SQLite itself also serializes (§4.A, §5).
func (s *Store) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return classifyErr(txErr)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return classifyErr(err)
	}
	if err = tx.Commit(); err != nil {
		return classifyErr(err)
	}
	return nil
}

// Stats summarizes row counts across the Knowledge Store's tables.
type Stats struct {
	Functions int `json:"functions"`
	Modules   int `json:"modules"`
	Files     int `json:"files"`
	Packs     int `json:"packs"`
	Edges     int `json:"edges"`
	CacheRows int `json:"cacheRows"`
}

// GetStats returns row counts for the top-level tables.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	queries := []struct {
		table string
		dest  *int
	}{
		{"functions", &st.Functions},
		{"modules", &st.Modules},
		{"files", &st.Files},
		{"context_packs", &st.Packs},
		{"knowledge_edges", &st.Edges},
		{"query_cache", &st.CacheRows},
	}
	for _, q := range queries {
		row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q.table))
		if err := row.Scan(q.dest); err != nil {
			return st, classifyErr(err)
		}
	}
	return st, nil
}

// Metadata summarizes the workspace/last-indexing metadata row (§4.A).
type Metadata struct {
	Workspace    string
	LastIndexing time.Time
	HasLastIndexing bool
}

// GetMetadata reads the metadata singleton row.
func (s *Store) GetMetadata(ctx context.Context) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var md Metadata
	var lastIndexing sql.NullTime
	row := s.db.QueryRowContext(ctx, `SELECT workspace, last_indexing FROM metadata WHERE id = 1`)
	err := row.Scan(&md.Workspace, &lastIndexing)
	if err == sql.ErrNoRows {
		return Metadata{}, nil
	}
	if err != nil {
		return Metadata{}, classifyErr(err)
	}
	if lastIndexing.Valid {
		md.LastIndexing = lastIndexing.Time
		md.HasLastIndexing = true
	}
	return md, nil
}

// SetMetadata upserts the metadata singleton row.
func (s *Store) SetMetadata(ctx context.Context, md Metadata) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (id, workspace, last_indexing) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET workspace = excluded.workspace, last_indexing = excluded.last_indexing
		`, md.Workspace, md.LastIndexing)
		return err
	})
}
