package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// GetEmbedding returns the stored vector for key, or (nil, false, nil) if absent.
func (s *Store) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var vectorJSON string
	row := s.db.QueryRowContext(ctx, `SELECT vector_json FROM embeddings WHERE key = ?`, key)
	if err := row.Scan(&vectorJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, classifyErr(err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// UpsertEmbedding stores (or replaces) the vector for key.
func (s *Store) UpsertEmbedding(ctx context.Context, key string, vector []float32) error {
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (key, vector_json, dimensions) VALUES (?,?,?)
			ON CONFLICT(key) DO UPDATE SET vector_json = excluded.vector_json, dimensions = excluded.dimensions
		`, key, string(vectorJSON), len(vector))
		return err
	})
}

// ListEmbeddingKeys returns every stored embedding key, used to build the
// nearest-neighbor candidate window for semantic retrieval (§4.E.3).
func (s *Store) ListEmbeddingKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM embeddings`)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, classifyErr(err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
