/*
Package cache provides Store, a generic, size-bounded key/value cache with
least-recently-used eviction and hit/miss accounting.

# Contract

  - Get counts a hit or a miss and never loads missing values; callers decide
    how to produce a value on a miss.
  - Put evicts least-recently-used entries until the new value fits. Ties in
    recency fall back to insertion order because the recency list is only
    ever reordered by a hit.
  - A single value larger than the whole capacity is rejected with
    ErrCacheValueTooLarge instead of emptying the cache.
  - A zero or negative size is a programmer error reported as ErrInvalidSize.
  - Stats is a read-only snapshot, safe to poll from a metrics collector.

Every operation holds one mutex for its whole duration, so readers never
observe a half-evicted store.

# Memory pressure

A store built WithPressure consults its PressureGauge before each Put and, in
the critical band, trims itself to a fraction of capacity first. Discovery
scans call EvictForPressure directly for the same bulk pass.

# Value isolation

Values are returned by copy. For values containing slices or maps, supply
WithCloner so a caller mutating a returned value cannot reach the stored one.

	store, err := cache.New[string, []byte](64<<20,
		cache.WithName[string, []byte]("thumbnails"),
		cache.WithCloner[string, []byte](bytes.Clone),
	)
*/
package cache
