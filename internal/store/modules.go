package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// UpsertModule creates or replaces a module record.
func (s *Store) UpsertModule(ctx context.Context, m model.ModuleRecord) error {
	exportsJSON, err := json.Marshal(m.Exports)
	if err != nil {
		return err
	}
	depsJSON, err := json.Marshal(m.Dependencies)
	if err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO modules (id, path, purpose, exports_json, dependencies_json, confidence)
			VALUES (?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET path=excluded.path, purpose=excluded.purpose,
				exports_json=excluded.exports_json, dependencies_json=excluded.dependencies_json,
				confidence=excluded.confidence
		`, m.ID, m.Path, m.Purpose, string(exportsJSON), string(depsJSON), model.ClampConfidence(m.Confidence))
		return err
	})
}

// GetModule fetches a module record by ID.
func (s *Store) GetModule(ctx context.Context, id string) (model.ModuleRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m model.ModuleRecord
	var exportsJSON, depsJSON string
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, purpose, exports_json, dependencies_json, confidence FROM modules WHERE id = ?
	`, id)
	err := row.Scan(&m.ID, &m.Path, &m.Purpose, &exportsJSON, &depsJSON, &m.Confidence)
	if err == sql.ErrNoRows {
		return model.ModuleRecord{}, false, nil
	}
	if err != nil {
		return model.ModuleRecord{}, false, classifyErr(err)
	}
	json.Unmarshal([]byte(exportsJSON), &m.Exports)
	json.Unmarshal([]byte(depsJSON), &m.Dependencies)
	return m, true, nil
}

// ListModules lists all module records.
func (s *Store) ListModules(ctx context.Context) ([]model.ModuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, path, purpose, exports_json, dependencies_json, confidence FROM modules`)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []model.ModuleRecord
	for rows.Next() {
		var m model.ModuleRecord
		var exportsJSON, depsJSON string
		if err := rows.Scan(&m.ID, &m.Path, &m.Purpose, &exportsJSON, &depsJSON, &m.Confidence); err != nil {
			return nil, classifyErr(err)
		}
		json.Unmarshal([]byte(exportsJSON), &m.Exports)
		json.Unmarshal([]byte(depsJSON), &m.Dependencies)
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteModule removes a module record by ID.
func (s *Store) DeleteModule(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE id = ?`, id)
		return err
	})
}
