package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// UpsertIngestionItem stores a generic ingestion-scoped fact, e.g. an
// ownership record keyed "ownership:<relativePath>" (§3).
func (s *Store) UpsertIngestionItem(ctx context.Context, item model.IngestionItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ingestion_items (id, payload_json) VALUES (?,?)
			ON CONFLICT(id) DO UPDATE SET payload_json = excluded.payload_json
		`, item.ID, string(payload))
		return err
	})
}

// GetIngestionItem fetches the raw payload JSON for an ingestion item ID.
func (s *Store) GetIngestionItem(ctx context.Context, id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	row := s.db.QueryRowContext(ctx, `SELECT payload_json FROM ingestion_items WHERE id = ?`, id)
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, classifyErr(err)
	}
	return payload, true, nil
}

// DeleteIngestionItem removes an ingestion item by ID.
func (s *Store) DeleteIngestionItem(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM ingestion_items WHERE id = ?`, id)
		return err
	})
}

// GetOwnership fetches and decodes an ownership ingestion item.
func (s *Store) GetOwnership(ctx context.Context, relativePath string) (model.OwnershipPayload, bool, error) {
	payload, ok, err := s.GetIngestionItem(ctx, "ownership:"+relativePath)
	if err != nil || !ok {
		return model.OwnershipPayload{}, ok, err
	}
	var op model.OwnershipPayload
	if err := json.Unmarshal([]byte(payload), &op); err != nil {
		return model.OwnershipPayload{}, false, err
	}
	return op, true, nil
}
