package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// UpsertEdge inserts an edge, or replaces the prior weight/confidence/
// metadata if an edge with the same (source, target, type) already exists —
// "upsert of an edge replaces prior weight" (§4.A invariant).
func (s *Store) UpsertEdge(ctx context.Context, e model.KnowledgeEdge) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_edges (id, source_id, source_type, target_id, target_type, edge_type,
				weight, confidence, metadata_json, computed_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(source_id, target_id, edge_type) DO UPDATE SET
				weight=excluded.weight, confidence=excluded.confidence,
				metadata_json=excluded.metadata_json, computed_at=excluded.computed_at
		`, e.ID, e.SourceID, string(e.SourceType), e.TargetID, string(e.TargetType), string(e.EdgeType),
			e.Weight, e.Confidence, string(metaJSON), e.ComputedAt)
		return err
	})
}

func scanEdge(rows interface {
	Scan(dest ...interface{}) error
}) (model.KnowledgeEdge, error) {
	var e model.KnowledgeEdge
	var sourceType, targetType, edgeType, metaJSON string
	var computedAt sql.NullTime
	if err := rows.Scan(&e.ID, &e.SourceID, &sourceType, &e.TargetID, &targetType, &edgeType,
		&e.Weight, &e.Confidence, &metaJSON, &computedAt); err != nil {
		return model.KnowledgeEdge{}, classifyErr(err)
	}
	e.SourceType = model.EntityType(sourceType)
	e.TargetType = model.EntityType(targetType)
	e.EdgeType = model.EdgeType(edgeType)
	json.Unmarshal([]byte(metaJSON), &e.Metadata)
	if computedAt.Valid {
		e.ComputedAt = computedAt.Time
	}
	return e, nil
}

const edgeColumns = `id, source_id, source_type, target_id, target_type, edge_type, weight, confidence, metadata_json, computed_at`

// EdgesFrom returns edges originating at sourceID, optionally filtered by
// edge type (pass "" for all types).
func (s *Store) EdgesFrom(ctx context.Context, sourceID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + edgeColumns + ` FROM knowledge_edges WHERE source_id = ?`
	args := []interface{}{sourceID}
	if edgeType != "" {
		query += ` AND edge_type = ?`
		args = append(args, string(edgeType))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []model.KnowledgeEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgesTo returns edges terminating at targetID, optionally filtered by type.
func (s *Store) EdgesTo(ctx context.Context, targetID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + edgeColumns + ` FROM knowledge_edges WHERE target_id = ?`
	args := []interface{}{targetID}
	if edgeType != "" {
		query += ` AND edge_type = ?`
		args = append(args, string(edgeType))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []model.KnowledgeEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEdge removes an edge by ID.
func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM knowledge_edges WHERE id = ?`, id)
		return err
	})
}

// CochangeEdge is a symmetric co-change relation between two files, stored
// in both directions so lookups are O(1) (§9 design note).
type CochangeEdge struct {
	FileA  string
	FileB  string
	Weight float64
}

// StoreCochangeEdges persists co-change edges symmetrically.
func (s *Store) StoreCochangeEdges(ctx context.Context, edges []CochangeEdge) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cochange_edges (file_a, file_b, weight) VALUES (?,?,?)
				ON CONFLICT(file_a, file_b) DO UPDATE SET weight = excluded.weight
			`, e.FileA, e.FileB, e.Weight); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cochange_edges (file_a, file_b, weight) VALUES (?,?,?)
				ON CONFLICT(file_a, file_b) DO UPDATE SET weight = excluded.weight
			`, e.FileB, e.FileA, e.Weight); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCochangeEdges returns co-change edges for a given file.
func (s *Store) GetCochangeEdges(ctx context.Context, file string) ([]CochangeEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT file_a, file_b, weight FROM cochange_edges WHERE file_a = ?`, file)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []CochangeEdge
	for rows.Next() {
		var e CochangeEdge
		if err := rows.Scan(&e.FileA, &e.FileB, &e.Weight); err != nil {
			return nil, classifyErr(err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
