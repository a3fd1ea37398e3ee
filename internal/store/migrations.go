package store

import (
	"fmt"

	"github.com/nateschmiedehaus/librarian/internal/logging"
)

// schemaStatements holds the Knowledge Store's full schema. Mirrors the
// teacher's single-file-per-concern migration style (store/migrations.go)
// but as one versioned set, since this store has no legacy shards to
// migrate from.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS metadata (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		workspace TEXT NOT NULL DEFAULT '',
		last_indexing TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS functions (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		name TEXT NOT NULL,
		signature TEXT,
		purpose TEXT,
		start_line INTEGER,
		end_line INTEGER,
		confidence REAL NOT NULL DEFAULT 0.5,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed TIMESTAMP,
		validation_count INTEGER NOT NULL DEFAULT 0,
		outcome_successes INTEGER NOT NULL DEFAULT 0,
		outcome_failures INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_functions_file_path ON functions(file_path)`,
	`CREATE TABLE IF NOT EXISTS modules (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		purpose TEXT,
		exports_json TEXT NOT NULL DEFAULT '[]',
		dependencies_json TEXT NOT NULL DEFAULT '[]',
		confidence REAL NOT NULL DEFAULT 0.5
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		relative_path TEXT NOT NULL,
		name TEXT,
		extension TEXT,
		category TEXT,
		purpose TEXT,
		role TEXT,
		summary TEXT,
		key_exports_json TEXT NOT NULL DEFAULT '[]',
		line_count INTEGER,
		function_count INTEGER,
		import_count INTEGER,
		imports_json TEXT NOT NULL DEFAULT '[]',
		imported_by_json TEXT NOT NULL DEFAULT '[]',
		directory TEXT,
		complexity REAL,
		has_tests BOOLEAN NOT NULL DEFAULT 0,
		checksum TEXT,
		confidence REAL NOT NULL DEFAULT 0.5,
		last_indexed TIMESTAMP,
		last_modified TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_relative_path ON files(relative_path)`,
	`CREATE TABLE IF NOT EXISTS context_packs (
		pack_id TEXT PRIMARY KEY,
		pack_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		summary TEXT,
		key_facts_json TEXT NOT NULL DEFAULT '[]',
		code_snippets_json TEXT NOT NULL DEFAULT '[]',
		related_files_json TEXT NOT NULL DEFAULT '[]',
		confidence REAL NOT NULL DEFAULT 0.5,
		created_at TIMESTAMP NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_outcome TEXT NOT NULL DEFAULT 'unknown',
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		version_json TEXT NOT NULL DEFAULT '{}',
		invalidation_triggers_json TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_packs_target_id ON context_packs(target_id)`,
	`CREATE TABLE IF NOT EXISTS knowledge_edges (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		target_type TEXT NOT NULL,
		edge_type TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		computed_at TIMESTAMP,
		UNIQUE(source_id, target_id, edge_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON knowledge_edges(source_id, edge_type)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_target ON knowledge_edges(target_id, edge_type)`,
	`CREATE TABLE IF NOT EXISTS ingestion_items (
		id TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		vector_json TEXT NOT NULL,
		dimensions INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS query_cache (
		query_hash TEXT PRIMARY KEY,
		query_params TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_accessed TIMESTAMP NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_query_cache_created_at ON query_cache(created_at)`,
	`CREATE TABLE IF NOT EXISTS query_access_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		normalized_intent TEXT NOT NULL,
		target_ids_json TEXT NOT NULL DEFAULT '[]',
		timestamp TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_query_access_logs_intent ON query_access_logs(normalized_intent)`,
	`CREATE TABLE IF NOT EXISTS confidence_events (
		id TEXT PRIMARY KEY,
		query_id TEXT NOT NULL,
		pack_id TEXT NOT NULL,
		relevant BOOLEAN NOT NULL,
		usefulness REAL NOT NULL,
		old_confidence REAL NOT NULL,
		new_confidence REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(query_id, pack_id)
	)`,
	`CREATE TABLE IF NOT EXISTS retrieval_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS state_blobs (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cochange_edges (
		file_a TEXT NOT NULL,
		file_b TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (file_a, file_b)
	)`,
}

func (s *Store) migrate() error {
	timer := logging.StartTimer(logging.CategoryStore, "migrate")
	defer timer.Stop()

	for i, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, classifyErr(err))
		}
	}
	logging.Get(logging.CategoryStore).Info("schema migrations applied: %d statements", len(schemaStatements))
	return nil
}
