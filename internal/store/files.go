package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

func marshalList(xs []string) string {
	if xs == nil {
		xs = []string{}
	}
	b, _ := json.Marshal(xs)
	return string(b)
}

func unmarshalList(s string) []string {
	var xs []string
	json.Unmarshal([]byte(s), &xs)
	return xs
}

// UpsertFile creates or replaces a file record.
func (s *Store) UpsertFile(ctx context.Context, f model.FileRecord) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO files (id, path, relative_path, name, extension, category, purpose, role,
				summary, key_exports_json, line_count, function_count, import_count, imports_json,
				imported_by_json, directory, complexity, has_tests, checksum, confidence, last_indexed, last_modified)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				path=excluded.path, relative_path=excluded.relative_path, name=excluded.name,
				extension=excluded.extension, category=excluded.category, purpose=excluded.purpose,
				role=excluded.role, summary=excluded.summary, key_exports_json=excluded.key_exports_json,
				line_count=excluded.line_count, function_count=excluded.function_count,
				import_count=excluded.import_count, imports_json=excluded.imports_json,
				imported_by_json=excluded.imported_by_json, directory=excluded.directory,
				complexity=excluded.complexity, has_tests=excluded.has_tests, checksum=excluded.checksum,
				confidence=excluded.confidence, last_indexed=excluded.last_indexed, last_modified=excluded.last_modified
		`, f.ID, f.Path, f.RelativePath, f.Name, f.Extension, f.Category, f.Purpose, f.Role,
			f.Summary, marshalList(f.KeyExports), f.LineCount, f.FunctionCount, f.ImportCount,
			marshalList(f.Imports), marshalList(f.ImportedBy), f.Directory, f.Complexity, f.HasTests,
			f.Checksum, model.ClampConfidence(f.Confidence), f.LastIndexed, f.LastModified)
		return err
	})
}

func scanFile(row interface {
	Scan(dest ...interface{}) error
}) (model.FileRecord, bool, error) {
	var f model.FileRecord
	var keyExports, imports, importedBy string
	var lastIndexed, lastModified sql.NullTime
	err := row.Scan(&f.ID, &f.Path, &f.RelativePath, &f.Name, &f.Extension, &f.Category, &f.Purpose,
		&f.Role, &f.Summary, &keyExports, &f.LineCount, &f.FunctionCount, &f.ImportCount, &imports,
		&importedBy, &f.Directory, &f.Complexity, &f.HasTests, &f.Checksum, &f.Confidence,
		&lastIndexed, &lastModified)
	if err == sql.ErrNoRows {
		return model.FileRecord{}, false, nil
	}
	if err != nil {
		return model.FileRecord{}, false, classifyErr(err)
	}
	f.KeyExports = unmarshalList(keyExports)
	f.Imports = unmarshalList(imports)
	f.ImportedBy = unmarshalList(importedBy)
	if lastIndexed.Valid {
		f.LastIndexed = lastIndexed.Time
	}
	if lastModified.Valid {
		f.LastModified = lastModified.Time
	}
	return f, true, nil
}

const fileColumns = `id, path, relative_path, name, extension, category, purpose, role, summary,
	key_exports_json, line_count, function_count, import_count, imports_json, imported_by_json,
	directory, complexity, has_tests, checksum, confidence, last_indexed, last_modified`

// GetFile fetches a file record by ID.
func (s *Store) GetFile(ctx context.Context, id string) (model.FileRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	return scanFile(row)
}

// GetFileByPath fetches a file record by its workspace-relative path.
func (s *Store) GetFileByPath(ctx context.Context, relativePath string) (model.FileRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE relative_path = ?`, relativePath)
	return scanFile(row)
}

// ListFiles lists all file records.
func (s *Store) ListFiles(ctx context.Context) ([]model.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files`)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		f, ok, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, rows.Err()
}

// DeleteFile removes a file record by ID.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
		return err
	})
}

// SetFileChecksum updates a file's checksum (§4.A); the watcher does not
// call it.
func (s *Store) SetFileChecksum(ctx context.Context, path, checksum string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE files SET checksum = ? WHERE relative_path = ?`, checksum, path)
		return err
	})
}
