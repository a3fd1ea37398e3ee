package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// UpsertPack creates or replaces a context pack. packId uniqueness and the
// confidence clamp are enforced here, per §3/§4.A invariants.
func (s *Store) UpsertPack(ctx context.Context, p model.ContextPack) error {
	if p.PackID == "" {
		return fmt.Errorf("store: pack id required")
	}
	p.Confidence = model.ClampConfidence(p.Confidence)

	keyFacts, _ := json.Marshal(p.KeyFacts)
	snippets, _ := json.Marshal(p.CodeSnippets)
	related, _ := json.Marshal(p.RelatedFiles)
	version, _ := json.Marshal(p.Version)
	triggers, _ := json.Marshal(p.InvalidationTriggers)

	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO context_packs (pack_id, pack_type, target_id, summary, key_facts_json,
				code_snippets_json, related_files_json, confidence, created_at, access_count,
				last_outcome, success_count, failure_count, version_json, invalidation_triggers_json)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(pack_id) DO UPDATE SET
				pack_type=excluded.pack_type, target_id=excluded.target_id, summary=excluded.summary,
				key_facts_json=excluded.key_facts_json, code_snippets_json=excluded.code_snippets_json,
				related_files_json=excluded.related_files_json, confidence=excluded.confidence,
				access_count=excluded.access_count, last_outcome=excluded.last_outcome,
				success_count=excluded.success_count, failure_count=excluded.failure_count,
				version_json=excluded.version_json, invalidation_triggers_json=excluded.invalidation_triggers_json
		`, p.PackID, string(p.PackType), p.TargetID, p.Summary, string(keyFacts), string(snippets),
			string(related), p.Confidence, p.CreatedAt, p.AccessCount, string(p.LastOutcome),
			p.SuccessCount, p.FailureCount, string(version), string(triggers))
		return err
	})
}

func scanPack(row interface {
	Scan(dest ...interface{}) error
}) (model.ContextPack, bool, error) {
	var p model.ContextPack
	var packType, lastOutcome, keyFacts, snippets, related, version, triggers string
	err := row.Scan(&p.PackID, &packType, &p.TargetID, &p.Summary, &keyFacts, &snippets, &related,
		&p.Confidence, &p.CreatedAt, &p.AccessCount, &lastOutcome, &p.SuccessCount, &p.FailureCount,
		&version, &triggers)
	if err == sql.ErrNoRows {
		return model.ContextPack{}, false, nil
	}
	if err != nil {
		return model.ContextPack{}, false, classifyErr(err)
	}
	p.PackType = model.PackType(packType)
	p.LastOutcome = model.Outcome(lastOutcome)
	json.Unmarshal([]byte(keyFacts), &p.KeyFacts)
	json.Unmarshal([]byte(snippets), &p.CodeSnippets)
	json.Unmarshal([]byte(related), &p.RelatedFiles)
	json.Unmarshal([]byte(version), &p.Version)
	json.Unmarshal([]byte(triggers), &p.InvalidationTriggers)
	return p, true, nil
}

const packColumns = `pack_id, pack_type, target_id, summary, key_facts_json, code_snippets_json,
	related_files_json, confidence, created_at, access_count, last_outcome, success_count,
	failure_count, version_json, invalidation_triggers_json`

// GetPack fetches a pack by ID.
func (s *Store) GetPack(ctx context.Context, id string) (model.ContextPack, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+packColumns+` FROM context_packs WHERE pack_id = ?`, id)
	return scanPack(row)
}

// ListPacksByTarget returns all packs whose targetId matches.
func (s *Store) ListPacksByTarget(ctx context.Context, targetID string) ([]model.ContextPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+packColumns+` FROM context_packs WHERE target_id = ?`, targetID)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()
	return collectPacks(rows)
}

// ListPacksByRelatedFile returns packs whose relatedFiles JSON array
// contains the given path (used by Direct Packs, §4.E.2).
func (s *Store) ListPacksByRelatedFile(ctx context.Context, path string) ([]model.ContextPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+packColumns+` FROM context_packs WHERE related_files_json LIKE ?`,
		"%\""+path+"\"%")
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()
	return collectPacks(rows)
}

// ListAllPacks returns every pack. It is part of retrieval's KnowledgeSource
// interface; fallback materialization (§4.E.7) does not call it.
func (s *Store) ListAllPacks(ctx context.Context) ([]model.ContextPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+packColumns+` FROM context_packs`)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()
	return collectPacks(rows)
}

func collectPacks(rows *sql.Rows) ([]model.ContextPack, error) {
	var out []model.ContextPack
	for rows.Next() {
		p, ok, err := scanPack(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

// DeletePack removes a pack by ID.
func (s *Store) DeletePack(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM context_packs WHERE pack_id = ?`, id)
		return err
	})
}

// UpdatePackConfidence mutates only confidence/successCount/failureCount/
// lastOutcome on a pack, per the feedback loop's limited write surface (§3
// Lifecycles: "The feedback loop mutates only confidence, successCount,
// failureCount, and lastOutcome on packs").
func (s *Store) UpdatePackConfidence(ctx context.Context, id string, confidence float64, outcome model.Outcome, successDelta, failureDelta int) error {
	confidence = model.ClampConfidence(confidence)
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE context_packs SET confidence = ?, last_outcome = ?,
				success_count = success_count + ?, failure_count = failure_count + ?
			WHERE pack_id = ?
		`, confidence, string(outcome), successDelta, failureDelta, id)
		return err
	})
}
