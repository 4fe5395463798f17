package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_cache_evictions_total",
			Help: "Total number of cache entries evicted",
		},
		[]string{"cache", "reason"}, // "capacity", "pressure", "expired"
	)

	CacheRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_cache_rejected_puts_total",
			Help: "Total number of rejected cache insertions",
		},
		[]string{"cache", "reason"}, // "too_large", "invalid_size"
	)

	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_discovery_cache_size_bytes",
			Help: "Current accounted size of the cache in bytes",
		},
		[]string{"cache"},
	)

	CacheCapacityBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_discovery_cache_capacity_bytes",
			Help: "Configured capacity of the cache in bytes",
		},
		[]string{"cache"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_discovery_cache_entries",
			Help: "Number of entries currently held in the cache",
		},
		[]string{"cache"},
	)

	CacheHitRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_discovery_cache_hit_rate",
			Help: "Cache hit rate (hits / (hits + misses)), 0 when unused",
		},
		[]string{"cache"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_discovery_memory_usage_ratio",
			Help: "Latest sampled memory usage as a fraction of the limit (0.0-1.0)",
		},
	)

	MemoryBand = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_discovery_memory_band",
			Help: "Current memory band (0 = normal, 1 = high, 2 = critical)",
		},
	)

	MemoryBandTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_memory_band_transitions_total",
			Help: "Total number of memory band transitions by destination band",
		},
		[]string{"to"},
	)

	MemorySamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_discovery_memory_samples_total",
			Help: "Total number of memory samples taken",
		},
	)
)

// Discovery metrics
var (
	DiscoveryScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_scans_total",
			Help: "Total number of discovery scans by outcome",
		},
		[]string{"status"}, // "complete", "cancelled", "root_unavailable"
	)

	DiscoveryScansRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_discovery_scans_running",
			Help: "Number of discovery scans currently running",
		},
	)

	DiscoveryScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_discovery_scan_duration_seconds",
			Help:    "Duration of discovery scans in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	DiscoveryEntriesYielded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_entries_yielded_total",
			Help: "Total number of entries yielded by discovery scans",
		},
		[]string{"kind"}, // "image", "directory", "other"
	)

	DiscoverySkippedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_skipped_entries_total",
			Help: "Total number of entries skipped during discovery",
		},
		[]string{"reason"},
	)

	DiscoveryCriticalPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_discovery_critical_pauses_total",
			Help: "Total number of backpressure pauses taken in the critical memory band",
		},
	)

	DiscoveryPressureEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_discovery_pressure_eviction_passes_total",
			Help: "Total number of bulk eviction passes requested by discovery scans",
		},
	)
)

// Session metrics
var (
	SessionBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_session_batches_total",
			Help: "Total number of batches delivered by outcome",
		},
		[]string{"outcome"}, // "full", "last", "cancelled", "timeout", "error"
	)

	SessionBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_discovery_session_batch_size",
			Help:    "Number of entries per delivered batch",
			Buckets: []float64{0, 1, 10, 25, 50, 100, 200, 500, 1000},
		},
	)

	SessionBatchWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_discovery_session_batch_wait_seconds",
			Help:    "Time NextBatch spent waiting for entries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	SessionResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_discovery_session_resets_total",
			Help: "Total number of session initializations and resets",
		},
	)

	SessionCancelsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_discovery_session_cancels_total",
			Help: "Total number of session cancellations",
		},
	)
)

// Artifact metrics
var (
	ArtifactComputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_artifact_computations_total",
			Help: "Total number of derived artifact computations",
		},
		[]string{"kind", "status"},
	)

	ArtifactComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_discovery_artifact_compute_duration_seconds",
			Help:    "Derived artifact computation duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	ArtifactSharedResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_artifact_shared_results_total",
			Help: "Total number of callers served by another caller's in-flight computation",
		},
		[]string{"kind"},
	)

	ArtifactStoreLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_artifact_store_lookups_total",
			Help: "Persistent artifact store lookups by result",
		},
		[]string{"kind", "result"}, // "hit", "miss", "error"
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retry attempts",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors encountered",
		},
		[]string{"operation"},
	)

	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_discovery_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds, retries included",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_watcher_events_total",
			Help: "Total number of filesystem change events by type",
		},
		[]string{"type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_discovery_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_discovery_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_discovery_db_queries_total",
			Help: "Total number of artifact database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_discovery_db_query_duration_seconds",
			Help:    "Artifact database query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_discovery_db_connections_open",
			Help: "Number of open artifact database connections",
		},
	)

	DBArtifactRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_discovery_db_artifact_rows",
			Help: "Number of persisted artifacts by kind",
		},
		[]string{"kind"},
	)
)

// AppInfo exposes build information as labels.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "photo_discovery_app_info",
		Help: "Application build information",
	},
	[]string{"version", "go_version"},
)
