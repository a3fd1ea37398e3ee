package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// GetQueryCacheEntry reads a persisted cache row by hash. Returns
// (zero, false, nil) on miss.
func (s *Store) GetQueryCacheEntry(ctx context.Context, hash string) (model.QueryCacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e model.QueryCacheEntry
	row := s.db.QueryRowContext(ctx, `
		SELECT query_hash, query_params, response, created_at, last_accessed, access_count
		FROM query_cache WHERE query_hash = ?`, hash)
	err := row.Scan(&e.QueryHash, &e.QueryParams, &e.Response, &e.CreatedAt, &e.LastAccessed, &e.AccessCount)
	if err == sql.ErrNoRows {
		return model.QueryCacheEntry{}, false, nil
	}
	if err != nil {
		return model.QueryCacheEntry{}, false, classifyErr(err)
	}
	return e, true, nil
}

// UpsertQueryCacheEntry writes or replaces a cache row, then opportunistically
// prunes using the caller-supplied maxEntries and maxAge (§4.C: "upsert
// triggers opportunistic pruning").
func (s *Store) UpsertQueryCacheEntry(ctx context.Context, e model.QueryCacheEntry, maxEntries int, maxAge time.Duration) error {
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO query_cache (query_hash, query_params, response, created_at, last_accessed, access_count)
			VALUES (?,?,?,?,?,?)
			ON CONFLICT(query_hash) DO UPDATE SET
				query_params=excluded.query_params, response=excluded.response,
				created_at=excluded.created_at, last_accessed=excluded.last_accessed,
				access_count=excluded.access_count
		`, e.QueryHash, e.QueryParams, e.Response, e.CreatedAt, e.LastAccessed, e.AccessCount)
		return err
	})
	if err != nil {
		return err
	}
	_, err = s.PruneQueryCache(ctx, maxEntries, maxAge)
	return err
}

// TouchQueryCacheEntry bumps lastAccessed/accessCount for a cache row;
// cache.Get does not call it on a hit.
func (s *Store) TouchQueryCacheEntry(ctx context.Context, hash string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE query_cache SET last_accessed = ?, access_count = access_count + 1 WHERE query_hash = ?
		`, time.Now(), hash)
		return err
	})
}

// PruneQueryCache removes entries older than maxAge (staleness is computed
// from createdAt, not lastAccessed — §4.C) and, if the table exceeds
// maxEntries, deletes the oldest-by-createdAt rows until it fits.
func (s *Store) PruneQueryCache(ctx context.Context, maxEntries int, maxAge time.Duration) (int, error) {
	var removed int64
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		if maxAge > 0 {
			cutoff := time.Now().Add(-maxAge)
			res, err := tx.ExecContext(ctx, `DELETE FROM query_cache WHERE created_at < ?`, cutoff)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		if maxEntries > 0 {
			var count int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&count); err != nil {
				return err
			}
			if count > maxEntries {
				res, err := tx.ExecContext(ctx, `
					DELETE FROM query_cache WHERE query_hash IN (
						SELECT query_hash FROM query_cache ORDER BY created_at ASC LIMIT ?
					)`, count-maxEntries)
				if err != nil {
					return err
				}
				n, _ := res.RowsAffected()
				removed += n
			}
		}
		return nil
	})
	return int(removed), err
}

// DeleteQueryCacheEntry removes a single cache row by hash; cache.Get uses
// it to drop an entry older than its TTL.
func (s *Store) DeleteQueryCacheEntry(ctx context.Context, hash string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM query_cache WHERE query_hash = ?`, hash)
		return err
	})
}
