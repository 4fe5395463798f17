package metrics

import (
	"sync"
	"time"

	"photo-discovery/internal/logging"
)

// StatsProvider supplies point-in-time snapshots for the collector.
// Implementations must be side-effect free apart from sampling.
type StatsProvider interface {
	GetStats() Stats
}

// CacheStats is one cache store's statistics.
type CacheStats struct {
	Name          string
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Entries       int
	SizeBytes     int64
	CapacityBytes int64
	HitRate       float64
}

// MemoryStats is the latest memory sample. Band is 0 (normal), 1 (high) or 2 (critical).
type MemoryStats struct {
	UsedFraction float64
	Band         int
}

// Stats holds the current statistics
type Stats struct {
	Caches []CacheStats
	// Memory is nil when no monitor is configured.
	Memory *MemoryStats
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	for _, cs := range stats.Caches {
		CacheSizeBytes.WithLabelValues(cs.Name).Set(float64(cs.SizeBytes))
		CacheCapacityBytes.WithLabelValues(cs.Name).Set(float64(cs.CapacityBytes))
		CacheEntries.WithLabelValues(cs.Name).Set(float64(cs.Entries))
		CacheHitRate.WithLabelValues(cs.Name).Set(cs.HitRate)
	}

	if stats.Memory != nil {
		MemoryUsageRatio.Set(stats.Memory.UsedFraction)
		MemoryBand.Set(float64(stats.Memory.Band))
	}

	logging.Debug("Metrics collected: caches=%d, memory=%v", len(stats.Caches), stats.Memory != nil)
}
