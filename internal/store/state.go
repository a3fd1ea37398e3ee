package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// GetState reads an opaque JSON blob by key (watch state, bootstrap
// consistency marker, feedback token bindings, coordination version, ...).
func (s *Store) GetState(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	row := s.db.QueryRowContext(ctx, `SELECT value_json FROM state_blobs WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, classifyErr(err)
	}
	return value, true, nil
}

// SetState writes an opaque JSON blob by key.
func (s *Store) SetState(ctx context.Context, key, valueJSON string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO state_blobs (key, value_json) VALUES (?,?)
			ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json
		`, key, valueJSON)
		return err
	})
}

// UpdateWatchState implements the updateWatchState(storage, updater)
// read-modify-write contract from §5: the updater runs inside a single
// transaction, and a failed update leaves no partial writes.
func (s *Store) UpdateWatchState(ctx context.Context, workspaceKey string, updater func(model.WatchState) model.WatchState) (model.WatchState, error) {
	var result model.WatchState
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		var value string
		err := tx.QueryRowContext(ctx, `SELECT value_json FROM state_blobs WHERE key = ?`, workspaceKey).Scan(&value)
		var current model.WatchState
		if err == nil {
			if uerr := json.Unmarshal([]byte(value), &current); uerr != nil {
				return uerr
			}
		} else if err != sql.ErrNoRows {
			return err
		}

		updated := updater(current)
		data, merr := json.Marshal(updated)
		if merr != nil {
			return merr
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO state_blobs (key, value_json) VALUES (?,?)
			ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json
		`, workspaceKey, string(data)); err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// GetIndexCoordinationVersion returns the index coordination version marker
// used to detect concurrent bootstrap/ingest generations (§4.A).
func (s *Store) GetIndexCoordinationVersion(ctx context.Context) (string, error) {
	v, ok, err := s.GetState(ctx, "index_coordination_version")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// SetIndexCoordinationVersion bumps the index coordination version.
func (s *Store) SetIndexCoordinationVersion(ctx context.Context, version string) error {
	return s.SetState(ctx, "index_coordination_version", version)
}

// FeedbackTokenStateKey derives the state_blobs key for a feedback token
// binding (§3: "persisted via the Knowledge Store state keys so a process
// restart can still resolve it").
func FeedbackTokenStateKey(token string) string {
	return "feedback_token:" + token
}

// SetFeedbackTokenBinding persists a {feedbackToken, packIds} binding.
func (s *Store) SetFeedbackTokenBinding(ctx context.Context, binding model.FeedbackTokenBinding) error {
	data, err := json.Marshal(binding)
	if err != nil {
		return err
	}
	return s.SetState(ctx, FeedbackTokenStateKey(binding.FeedbackToken), string(data))
}

// GetFeedbackTokenBinding resolves a feedback token back to its pack IDs.
func (s *Store) GetFeedbackTokenBinding(ctx context.Context, token string) (model.FeedbackTokenBinding, bool, error) {
	value, ok, err := s.GetState(ctx, FeedbackTokenStateKey(token))
	if err != nil || !ok {
		return model.FeedbackTokenBinding{}, ok, err
	}
	var binding model.FeedbackTokenBinding
	if err := json.Unmarshal([]byte(value), &binding); err != nil {
		return model.FeedbackTokenBinding{}, false, err
	}
	return binding, true, nil
}

// nowUTC is a small indirection kept for symmetry with the teacher's
// timestamp helpers; it is unexported, so only this package can use it.
func nowUTC() time.Time { return time.Now().UTC() }
