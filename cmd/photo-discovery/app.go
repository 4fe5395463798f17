package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"photo-discovery/internal/artifacts"
	"photo-discovery/internal/cache"
	"photo-discovery/internal/config"
	"photo-discovery/internal/database"
	"photo-discovery/internal/discovery"
	"photo-discovery/internal/filesystem"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/media"
	"photo-discovery/internal/memory"
	"photo-discovery/internal/metrics"
	"photo-discovery/internal/session"
)

// Artifact kinds, also used as cache and metric labels.
const (
	kindThumbnail  = "thumbnail"
	kindMetadata   = "metadata"
	kindValidation = "validation"
)

const metricsInterval = 15 * time.Second

// app holds the components one command invocation works with.
type app struct {
	cfg     *config.Config
	monitor *memory.Monitor
	engine  *discovery.Engine
	session *session.Session

	// store is nil when no database path is configured.
	store      *database.ArtifactStore
	thumbnails *artifacts.DerivedCache[media.Thumbnail]
	metadata   *artifacts.DerivedCache[media.Metadata]
	validation *artifacts.DerivedCache[media.Validation]
	generator  *media.ThumbnailGenerator
	// listings is nil when ListingTTL is 0.
	listings *discovery.ListingCache

	collector *metrics.Collector
	server    *http.Server

	stopSweep chan struct{}
	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics(kindThumbnail, kindMetadata, kindValidation, discovery.ListingCacheName)
	info := config.GetBuildInfo()
	metrics.AppInfo.WithLabelValues(info.Version, info.GoVersion).Set(1)

	monitor, err := memory.NewMonitor(cfg.MemoryConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("memory monitor: %w", err)
	}

	engine, err := discovery.NewEngine(filesystem.NewLocalLister(), cfg.EngineOptions())
	if err != nil {
		return nil, fmt.Errorf("discovery engine: %w", err)
	}
	engine.SetMemoryGauge(monitor)

	a := &app{
		cfg:       cfg,
		monitor:   monitor,
		engine:    engine,
		generator: media.NewThumbnailGenerator(cfg.ThumbnailSize),
		stopSweep: make(chan struct{}),
	}

	var tier artifacts.Tier
	if cfg.DatabasePath != "" {
		a.store, err = database.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		tier = a.store
	}

	if err := a.buildCaches(tier); err != nil {
		a.close()
		return nil, err
	}
	engine.AddEvicter(a.thumbnails)
	engine.AddEvicter(a.metadata)
	engine.AddEvicter(a.validation)
	if a.listings != nil {
		engine.SetListingCache(a.listings)
	}

	monitor.OnBandChange(func(from, to memory.Band, _ memory.Status) {
		if to == memory.BandCritical {
			logging.Warn("Memory critical (was %s), trimming artifact caches", from)
		}
	})
	monitor.Start()

	a.session = session.New(engine, cfg.SessionOptions())

	a.collector = metrics.NewCollector(a, metricsInterval)
	a.collector.Start()

	go a.sweepLoop()

	if cfg.MetricsAddr != "" {
		a.server = newServer(cfg.MetricsAddr, a)
		go func() {
			logging.Info("Serving metrics on %s", cfg.MetricsAddr)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	return a, nil
}

// buildCaches splits the configured capacity: thumbnails take most of it,
// the small metadata and validation records and folder listings share the
// rest.
func (a *app) buildCaches(tier artifacts.Tier) error {
	capacity := a.cfg.CacheCapacityBytes
	small := max(capacity/8, 1)

	var err error
	if a.cfg.ListingTTL > 0 {
		a.listings, err = discovery.NewListingCache(small, a.cfg.ListingTTL, a.monitor)
		if err != nil {
			return err
		}
	}

	a.thumbnails, err = artifacts.New(artifacts.Config[media.Thumbnail]{
		Kind:          kindThumbnail,
		CapacityBytes: max(capacity-3*small, 1),
		Size:          media.Thumbnail.SizeBytes,
		Pressure:      a.monitor,
		Tier:          tier,
		Codec:         artifacts.JSONCodec[media.Thumbnail]{},
		Clone:         media.CloneThumbnail,
	})
	if err != nil {
		return err
	}

	a.metadata, err = artifacts.New(artifacts.Config[media.Metadata]{
		Kind:          kindMetadata,
		CapacityBytes: small,
		Size:          media.Metadata.SizeBytes,
		Pressure:      a.monitor,
		Tier:          tier,
		Codec:         artifacts.JSONCodec[media.Metadata]{},
	})
	if err != nil {
		return err
	}

	a.validation, err = artifacts.New(artifacts.Config[media.Validation]{
		Kind:          kindValidation,
		CapacityBytes: small,
		Size:          media.Validation.SizeBytes,
		Pressure:      a.monitor,
		Tier:          tier,
		Codec:         artifacts.JSONCodec[media.Validation]{},
	})
	return err
}

// sweepLoop drops artifacts not used within ArtifactMaxAge.
func (a *app) sweepLoop() {
	maxAge := a.cfg.ArtifactMaxAge
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(max(maxAge/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := a.thumbnails.RemoveOlderThan(maxAge) +
				a.metadata.RemoveOlderThan(maxAge) +
				a.validation.RemoveOlderThan(maxAge)
			if removed > 0 {
				logging.Debug("Removed %d artifacts unused for %v", removed, maxAge)
			}
			if a.listings != nil {
				a.listings.RemoveExpired()
			}
			if a.store != nil {
				a.store.UpdateDBMetrics()
			}
		case <-a.stopSweep:
			return
		}
	}
}

// forgetListings drops the cached listings of a changed path's folder, and
// of the path itself when it is a folder.
func (a *app) forgetListings(path string, isDir bool) {
	if a.listings == nil {
		return
	}
	n := a.listings.Invalidate(filepath.Dir(path))
	if isDir {
		n += a.listings.Invalidate(path)
	}
	if n > 0 {
		logging.Debug("Forgot %d cached listings for %s", n, path)
	}
}

// forget drops every artifact derived from path.
func (a *app) forget(ctx context.Context, path string) {
	n := a.thumbnails.ForgetPath(path) + a.metadata.ForgetPath(path) + a.validation.ForgetPath(path)
	if a.store != nil {
		if _, err := a.store.DeletePath(ctx, path); err != nil {
			logging.Warn("Failed to delete stored artifacts for %s: %v", path, err)
		}
	}
	if n > 0 {
		logging.Debug("Forgot %d cached artifacts for %s", n, path)
	}
}

// GetStats implements metrics.StatsProvider.
func (a *app) GetStats() metrics.Stats {
	var stats metrics.Stats
	stats.Caches = []metrics.CacheStats{
		cacheStatsFor(kindThumbnail, a.thumbnails.Stats()),
		cacheStatsFor(kindMetadata, a.metadata.Stats()),
		cacheStatsFor(kindValidation, a.validation.Stats()),
	}
	if a.listings != nil {
		stats.Caches = append(stats.Caches, cacheStatsFor(discovery.ListingCacheName, a.listings.Stats()))
	}
	status := a.monitor.Status()
	stats.Memory = &metrics.MemoryStats{
		UsedFraction: status.UsedFraction,
		Band:         int(status.Band),
	}
	return stats
}

func cacheStatsFor(name string, s cache.Statistics) metrics.CacheStats {
	return metrics.CacheStats{
		Name:          name,
		Hits:          s.Hits,
		Misses:        s.Misses,
		Evictions:     s.Evictions,
		Entries:       s.Entries,
		SizeBytes:     s.CurrentSizeBytes,
		CapacityBytes: s.CapacityBytes,
		HitRate:       s.HitRate(),
	}
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.session != nil {
			a.session.Close()
		}
		close(a.stopSweep)
		if a.collector != nil {
			a.collector.Stop()
		}
		a.monitor.Stop()

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.server.Shutdown(ctx); err != nil {
				logging.Warn("Metrics server shutdown error: %v", err)
			} else {
				config.LogShutdownStepComplete("Metrics server stopped")
			}
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				logging.Warn("Failed to close artifact database: %v", err)
			} else {
				config.LogShutdownStepComplete("Artifact database closed")
			}
		}
	})
}
