// Package metrics provides Prometheus instrumentation for photo discovery.
//
// All metrics are registered through promauto and prefixed with
// "photo_discovery_".
//
// # Metric Categories
//
// ## Cache Metrics
//
// Labelled by cache name ("thumbnails", "metadata", "validation"):
//   - CacheHits, CacheMisses: lookup counters
//   - CacheEvictions: entries removed by reason (capacity, pressure, expired)
//   - CacheRejected: puts refused by reason (too_large, invalid_size)
//   - CacheSizeBytes, CacheCapacityBytes, CacheEntries, CacheHitRate: gauges
//
// ## Memory Metrics
//
//   - MemoryUsageRatio: latest used fraction
//   - MemoryBand: 0 normal, 1 high, 2 critical
//   - MemoryBandTransitions: band changes by destination band
//
// ## Discovery and Session Metrics
//
//   - DiscoveryScansTotal, DiscoveryScansRunning, DiscoveryScanDuration
//   - DiscoveryEntriesYielded, DiscoverySkippedEntries
//   - DiscoveryCriticalPauses, DiscoveryPressureEvictions
//   - SessionBatchesTotal, SessionBatchSize, SessionBatchWait
//   - SessionResetsTotal, SessionCancelsTotal
//
// ## Artifact, Filesystem, Watcher and Database Metrics
//
//   - ArtifactComputeTotal, ArtifactComputeDuration, ArtifactSharedResults,
//     ArtifactStoreLookups
//   - Filesystem* retry and latency metrics fed through filesystem.Observer
//   - WatcherEventsTotal, WatcherErrors, WatchedDirectories
//   - DBQueryTotal, DBQueryDuration
//
// # Observers
//
// Lower-level packages do not import metrics. They expose observer
// interfaces that this package implements:
//
//	filesystem.SetObserver(metrics.NewFilesystemObserver())
//	store, _ := cache.New[K, V](capacity,
//		cache.WithObserver[K, V](metrics.NewCacheObserver("thumbnails")))
//
// # Collector
//
// Collector polls a StatsProvider on an interval and refreshes the gauges
// that are cheaper to snapshot than to track per event.
package metrics
