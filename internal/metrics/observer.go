package metrics

import (
	"errors"

	"photo-discovery/internal/cache"
	"photo-discovery/internal/filesystem"
)

// filesystemObserver implements filesystem.Observer using the Prometheus
// metrics declared in this package.
type filesystemObserver struct{}

// NewFilesystemObserver creates an observer that records filesystem metrics
// into the Prometheus counters and histograms declared in metrics.go.
func NewFilesystemObserver() filesystem.Observer {
	return &filesystemObserver{}
}

func (o *filesystemObserver) ObserveOperation(operation string, durationSeconds float64, _ error) {
	FilesystemOperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

func (o *filesystemObserver) ObserveRetryAttempt(operation string) {
	FilesystemRetryAttempts.WithLabelValues(operation).Inc()
}

func (o *filesystemObserver) ObserveRetrySuccess(operation string) {
	FilesystemRetrySuccess.WithLabelValues(operation).Inc()
}

func (o *filesystemObserver) ObserveRetryFailure(operation string) {
	FilesystemRetryFailures.WithLabelValues(operation).Inc()
}

func (o *filesystemObserver) ObserveStaleError(operation string) {
	FilesystemStaleErrors.WithLabelValues(operation).Inc()
}

// cacheObserver implements cache.Observer for one named store.
type cacheObserver struct {
	name string
}

// NewCacheObserver creates an observer that exports a cache store's events
// under the given cache label.
func NewCacheObserver(name string) cache.Observer {
	return &cacheObserver{name: name}
}

func (o *cacheObserver) ObserveHit() {
	CacheHits.WithLabelValues(o.name).Inc()
}

func (o *cacheObserver) ObserveMiss() {
	CacheMisses.WithLabelValues(o.name).Inc()
}

func (o *cacheObserver) ObserveEvictions(reason cache.EvictionReason, count int) {
	CacheEvictions.WithLabelValues(o.name, string(reason)).Add(float64(count))
}

func (o *cacheObserver) ObserveRejected(err error) {
	CacheRejected.WithLabelValues(o.name, rejectReason(err)).Inc()
}

func (o *cacheObserver) ObserveSize(sizeBytes int64, entries int) {
	CacheSizeBytes.WithLabelValues(o.name).Set(float64(sizeBytes))
	CacheEntries.WithLabelValues(o.name).Set(float64(entries))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, cache.ErrCacheValueTooLarge):
		return "too_large"
	case errors.Is(err, cache.ErrInvalidSize):
		return "invalid_size"
	default:
		return "other"
	}
}
