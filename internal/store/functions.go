package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// UpsertFunction creates or replaces a function record.
func (s *Store) UpsertFunction(ctx context.Context, f model.FunctionRecord) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO functions (id, file_path, name, signature, purpose, start_line, end_line,
				confidence, access_count, last_accessed, validation_count, outcome_successes, outcome_failures)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				file_path=excluded.file_path, name=excluded.name, signature=excluded.signature,
				purpose=excluded.purpose, start_line=excluded.start_line, end_line=excluded.end_line,
				confidence=excluded.confidence, access_count=excluded.access_count,
				last_accessed=excluded.last_accessed, validation_count=excluded.validation_count,
				outcome_successes=excluded.outcome_successes, outcome_failures=excluded.outcome_failures
		`, f.ID, f.FilePath, f.Name, f.Signature, f.Purpose, f.StartLine, f.EndLine,
			model.ClampConfidence(f.Confidence), f.AccessCount, f.LastAccessed,
			f.ValidationCount, f.OutcomeSuccesses, f.OutcomeFailures)
		return err
	})
}

// GetFunction fetches a function record by ID. Returns (zero, false, nil) if absent.
func (s *Store) GetFunction(ctx context.Context, id string) (model.FunctionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f model.FunctionRecord
	var lastAccessed sql.NullTime
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, name, signature, purpose, start_line, end_line, confidence,
			access_count, last_accessed, validation_count, outcome_successes, outcome_failures
		FROM functions WHERE id = ?`, id)
	err := row.Scan(&f.ID, &f.FilePath, &f.Name, &f.Signature, &f.Purpose, &f.StartLine, &f.EndLine,
		&f.Confidence, &f.AccessCount, &lastAccessed, &f.ValidationCount, &f.OutcomeSuccesses, &f.OutcomeFailures)
	if err == sql.ErrNoRows {
		return model.FunctionRecord{}, false, nil
	}
	if err != nil {
		return model.FunctionRecord{}, false, classifyErr(err)
	}
	if lastAccessed.Valid {
		f.LastAccessed = lastAccessed.Time
	}
	return f, true, nil
}

// ListFunctionsByFile lists functions belonging to a file path.
func (s *Store) ListFunctionsByFile(ctx context.Context, filePath string) ([]model.FunctionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, name, signature, purpose, start_line, end_line, confidence,
			access_count, last_accessed, validation_count, outcome_successes, outcome_failures
		FROM functions WHERE file_path = ?`, filePath)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []model.FunctionRecord
	for rows.Next() {
		var f model.FunctionRecord
		var lastAccessed sql.NullTime
		if err := rows.Scan(&f.ID, &f.FilePath, &f.Name, &f.Signature, &f.Purpose, &f.StartLine, &f.EndLine,
			&f.Confidence, &f.AccessCount, &lastAccessed, &f.ValidationCount, &f.OutcomeSuccesses, &f.OutcomeFailures); err != nil {
			return nil, classifyErr(err)
		}
		if lastAccessed.Valid {
			f.LastAccessed = lastAccessed.Time
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFunction removes a function record by ID. Deletion cascades nothing
// from the query side (§4.A invariant).
func (s *Store) DeleteFunction(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM functions WHERE id = ?`, id)
		return err
	})
}

// TouchFunctionAccess increments access_count and sets last_accessed to now.
func (s *Store) TouchFunctionAccess(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE functions SET access_count = access_count + 1, last_accessed = ? WHERE id = ?
		`, time.Now(), id)
		return err
	})
}
