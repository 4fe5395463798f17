package discovery

import (
	"fmt"
	"slices"
	"time"

	"photo-discovery/internal/cache"
	"photo-discovery/internal/filesystem"
	"photo-discovery/internal/metrics"
)

// ListingCacheName labels the listing cache in logs and metrics.
const ListingCacheName = "listings"

// listingEntryOverhead approximates the bytes a DirEntry holds besides its name.
const listingEntryOverhead = 64

type listingKey struct {
	dir   string
	mtime int64
}

type listing struct {
	entries []filesystem.DirEntry
	readAt  time.Time
}

// ListingCache remembers directory listings keyed by path and modification
// time, so an unchanged folder is not read again on the next scan.
//
// A directory's mtime moves when entries are added, removed or renamed but
// not when a file is rewritten in place. Listings therefore also expire after
// the TTL, and Invalidate drops a directory on demand.
type ListingCache struct {
	store *cache.Store[listingKey, listing]
	ttl   time.Duration
	now   func() time.Time
}

// NewListingCache creates a cache holding at most capacityBytes of listings,
// each valid for ttl. A nil gauge disables pressure trimming on insert.
func NewListingCache(capacityBytes int64, ttl time.Duration, gauge cache.PressureGauge) (*ListingCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: listing ttl must be positive, got %v", ErrInvalidOptions, ttl)
	}

	opts := []cache.Option[listingKey, listing]{
		cache.WithName[listingKey, listing](ListingCacheName),
		cache.WithObserver[listingKey, listing](metrics.NewCacheObserver(ListingCacheName)),
		// Scans sort listings in place.
		cache.WithCloner[listingKey, listing](func(l listing) listing {
			return listing{entries: slices.Clone(l.entries), readAt: l.readAt}
		}),
	}
	if gauge != nil {
		opts = append(opts, cache.WithPressure[listingKey, listing](gauge, cache.DefaultPressureTarget))
	}

	store, err := cache.New[listingKey, listing](capacityBytes, opts...)
	if err != nil {
		return nil, err
	}
	return &ListingCache{store: store, ttl: ttl, now: time.Now}, nil
}

// Get returns the listing of dir read while its mtime was mtime.
func (c *ListingCache) Get(dir string, mtime int64) ([]filesystem.DirEntry, bool) {
	key := listingKey{dir: dir, mtime: mtime}
	if l, ok := c.store.Peek(key); ok && c.now().Sub(l.readAt) >= c.ttl {
		c.store.Remove(key)
	}
	l, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	return l.entries, true
}

// Put stores the listing of dir. mtime must be taken before the read.
func (c *ListingCache) Put(dir string, mtime int64, entries []filesystem.DirEntry) {
	size := int64(1)
	for _, de := range entries {
		size += int64(len(de.Name)) + listingEntryOverhead
	}
	// Too large for the cache: the scan goes on without it.
	_ = c.store.Put(listingKey{dir: dir, mtime: mtime}, listing{entries: entries, readAt: c.now()}, size)
}

// Invalidate drops every listing of dir and returns how many were held.
func (c *ListingCache) Invalidate(dir string) int {
	return c.store.RemoveFunc(func(k listingKey, _ listing) bool {
		return k.dir == dir
	})
}

// RemoveExpired drops listings older than the TTL.
func (c *ListingCache) RemoveExpired() int {
	cutoff := c.now().Add(-c.ttl)
	return c.store.RemoveFunc(func(_ listingKey, l listing) bool {
		return l.readAt.Before(cutoff)
	})
}

// EvictForPressure implements Evicter.
func (c *ListingCache) EvictForPressure() int {
	return c.store.EvictForPressure()
}

// Len returns the number of cached listings.
func (c *ListingCache) Len() int {
	return c.store.Len()
}

// Stats returns the underlying store's counters.
func (c *ListingCache) Stats() cache.Statistics {
	return c.store.Stats()
}
