package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// AppendQueryAccessLog records one normalized-intent -> target-ids access,
// consumed by Direct Packs to seed from prior matching queries (§4.E.2).
func (s *Store) AppendQueryAccessLog(ctx context.Context, rec model.QueryAccessLogRecord) error {
	targetIDs, err := json.Marshal(rec.TargetIDs)
	if err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO query_access_logs (normalized_intent, target_ids_json, timestamp) VALUES (?,?,?)
		`, rec.NormalizedIntent, string(targetIDs), rec.Timestamp)
		return err
	})
}

// GetQueryAccessLogs returns the most recent access log rows, newest first,
// capped at limit.
func (s *Store) GetQueryAccessLogs(ctx context.Context, limit int) ([]model.QueryAccessLogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT normalized_intent, target_ids_json, timestamp FROM query_access_logs
		ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []model.QueryAccessLogRecord
	for rows.Next() {
		var rec model.QueryAccessLogRecord
		var targetIDs string
		if err := rows.Scan(&rec.NormalizedIntent, &targetIDs, &rec.Timestamp); err != nil {
			return nil, classifyErr(err)
		}
		json.Unmarshal([]byte(targetIDs), &rec.TargetIDs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetQueryAccessLogsForIntent returns access logs matching a normalized
// intent exactly (used to seed Direct Packs, §4.E.2).
func (s *Store) GetQueryAccessLogsForIntent(ctx context.Context, normalizedIntent string, limit int) ([]model.QueryAccessLogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT normalized_intent, target_ids_json, timestamp FROM query_access_logs
		WHERE normalized_intent = ? ORDER BY timestamp DESC LIMIT ?
	`, normalizedIntent, limit)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []model.QueryAccessLogRecord
	for rows.Next() {
		var rec model.QueryAccessLogRecord
		var targetIDs string
		if err := rows.Scan(&rec.NormalizedIntent, &targetIDs, &rec.Timestamp); err != nil {
			return nil, classifyErr(err)
		}
		json.Unmarshal([]byte(targetIDs), &rec.TargetIDs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendRetrievalConfidenceLog persists one retrieval log record into the
// Knowledge Store, mirroring the JSONL file the Retrieval Observability
// component also writes (§4.I). Confidence is rounded to 4 decimals here as
// well, so both sinks agree.
func (s *Store) AppendRetrievalConfidenceLog(ctx context.Context, rec model.RetrievalLogRecord) error {
	rec.ConfidenceScore = roundTo4(rec.ConfidenceScore)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO retrieval_logs (record_json, created_at) VALUES (?,?)
		`, string(data), time.Now())
		return err
	})
}

func roundTo4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}

// RecordConfidenceEvent persists a feedback-driven confidence adjustment,
// enforcing single-apply semantics per (queryId, packId) via the UNIQUE
// constraint (§4.H, §8 idempotence property). A duplicate insert is a no-op.
func (s *Store) RecordConfidenceEvent(ctx context.Context, ev model.ConfidenceEvent) (applied bool, err error) {
	err = s.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO confidence_events (id, query_id, pack_id, relevant, usefulness,
				old_confidence, new_confidence, created_at)
			VALUES (?,?,?,?,?,?,?,?)
			ON CONFLICT(query_id, pack_id) DO NOTHING
		`, ev.ID, ev.QueryID, ev.PackID, ev.Relevant, ev.Usefulness, ev.OldConfidence, ev.NewConfidence, ev.CreatedAt)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		applied = n > 0
		return nil
	})
	return applied, err
}

// HasConfidenceEvent reports whether a (queryId, packId) feedback event has
// already been applied, used to guarantee idempotent feedback application.
func (s *Store) HasConfidenceEvent(ctx context.Context, queryID, packID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM confidence_events WHERE query_id = ? AND pack_id = ?
	`, queryID, packID).Scan(&count)
	if err != nil {
		return false, classifyErr(err)
	}
	return count > 0, nil
}
