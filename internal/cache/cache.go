package cache

import (
	"context"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// Store is the subset of internal/store.Store the Query Cache depends on.
type Store interface {
	GetQueryCacheEntry(ctx context.Context, hash string) (model.QueryCacheEntry, bool, error)
	UpsertQueryCacheEntry(ctx context.Context, entry model.QueryCacheEntry, maxEntries int, maxAge time.Duration) error
	DeleteQueryCacheEntry(ctx context.Context, hash string) error
}

// Result is what the cache returns on a lookup.
type Result struct {
	Response string
	Hit      bool
	FromTier string // "memoized" | "persistent" | ""
}

// Cache is the two-tier Query Cache (§4.C).
type Cache struct {
	store      Store
	memoized   *memoizedTier
	maxEntries int
	ttl        time.Duration
}

// New constructs a Cache. maxEntries/ttl bound the persistent tier;
// memoizedCap bounds the in-process tier.
func New(store Store, maxEntries, memoizedCap int, ttl time.Duration) *Cache {
	return &Cache{
		store:      store,
		memoized:   newMemoizedTier(memoizedCap),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get looks up key: memoized tier first, then persistent. A stale
// persistent hit (older than ttl, measured from createdAt not
// lastAccessed) is treated as a miss and the store is asked to prune
// (§4.C TTL). A store read error is also treated as a miss. The response
// is returned unparsed; decoding it is left to the caller.
func (c *Cache) Get(ctx context.Context, key string) Result {
	log := logging.Get(logging.CategoryCache)

	if e, ok := c.memoized.get(key); ok {
		log.Debug("memoized hit key=%s", key)
		return Result{Response: e.response, Hit: true, FromTier: "memoized"}
	}

	entry, ok, err := c.store.GetQueryCacheEntry(ctx, key)
	if err != nil || !ok {
		return Result{}
	}

	if time.Since(entry.CreatedAt) > c.ttl {
		log.Debug("persistent entry stale key=%s age=%v", key, time.Since(entry.CreatedAt))
		_ = c.store.DeleteQueryCacheEntry(ctx, key)
		return Result{}
	}

	c.memoized.put(key, entry.Response, entry.CreatedAt)
	log.Debug("persistent hit key=%s, re-hydrated into memoized tier", key)
	return Result{Response: entry.Response, Hit: true, FromTier: "persistent"}
}

// Put upserts a response into both tiers, triggering opportunistic pruning
// of the persistent tier.
func (c *Cache) Put(ctx context.Context, key, response string) error {
	now := time.Now()
	c.memoized.put(key, response, now)
	entry := model.QueryCacheEntry{
		QueryHash:    key,
		QueryParams:  "",
		Response:     response,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
	}
	return c.store.UpsertQueryCacheEntry(ctx, entry, c.maxEntries, c.ttl)
}
