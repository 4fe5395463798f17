package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(cacheNames ...string) {
	for _, name := range cacheNames {
		CacheHits.WithLabelValues(name)
		CacheMisses.WithLabelValues(name)
		for _, reason := range []string{"capacity", "pressure", "expired"} {
			CacheEvictions.WithLabelValues(name, reason)
		}
		for _, reason := range []string{"too_large", "invalid_size"} {
			CacheRejected.WithLabelValues(name, reason)
		}
		CacheSizeBytes.WithLabelValues(name)
		CacheCapacityBytes.WithLabelValues(name)
		CacheEntries.WithLabelValues(name)
		CacheHitRate.WithLabelValues(name)
	}

	for _, band := range []string{"normal", "high", "critical"} {
		MemoryBandTransitions.WithLabelValues(band)
	}

	for _, status := range []string{"complete", "cancelled", "root_unavailable"} {
		DiscoveryScansTotal.WithLabelValues(status)
	}
	for _, kind := range []string{"image", "directory", "other"} {
		DiscoveryEntriesYielded.WithLabelValues(kind)
	}
	for _, reason := range []string{"not_found", "permission", "other"} {
		DiscoverySkippedEntries.WithLabelValues(reason)
	}

	for _, outcome := range []string{"full", "last", "cancelled", "timeout", "error"} {
		SessionBatchesTotal.WithLabelValues(outcome)
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}

	for _, t := range []string{"create", "write", "remove", "rename"} {
		WatcherEventsTotal.WithLabelValues(t)
	}

	for _, op := range []string{"initialize_schema", "get_artifact", "put_artifact", "prune_stale", "delete_path", "count", "get_metadata", "set_metadata"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
