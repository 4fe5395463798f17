package artifacts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"photo-discovery/internal/cache"
	"photo-discovery/internal/classify"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/metrics"
)

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("artifacts: invalid config")

// errFlightAbandoned ends a computation whose callers all stopped waiting.
var errFlightAbandoned = errors.New("artifacts: computation abandoned")

// ComputeFunc produces an artifact for an entry. It is the expensive path,
// typically a full image decode.
type ComputeFunc[A any] func(ctx context.Context, entry classify.FileEntry) (A, error)

// Tier is a persistent second level consulted on an in-memory miss.
type Tier interface {
	GetArtifact(ctx context.Context, kind string, fp classify.Fingerprint) ([]byte, bool, error)
	PutArtifact(ctx context.Context, kind string, fp classify.Fingerprint, path string, data []byte) error
}

// Codec converts artifacts to and from the bytes a Tier stores.
type Codec[A any] interface {
	Encode(A) ([]byte, error)
	Decode([]byte) (A, error)
}

// Config configures a DerivedCache.
type Config[A any] struct {
	// Kind labels the cache in logs and metrics, e.g. "thumbnail".
	Kind          string
	CapacityBytes int64
	// Size returns the bytes an artifact is accounted as. It must be positive.
	Size func(A) int64
	// Pressure, when set, trims the cache on Put under critical memory.
	Pressure cache.PressureGauge
	Tier     Tier
	Codec    Codec[A]
	// Clone copies artifacts holding slices so callers cannot alias cached data.
	Clone func(A) A
}

type cached[A any] struct {
	path  string
	value A
}

// DerivedCache holds artifacts derived from image files, keyed by the
// file's fingerprint. Concurrent GetOrCompute calls for one fingerprint
// share a single computation.
type DerivedCache[A any] struct {
	kind  string
	store *cache.Store[classify.Fingerprint, cached[A]]
	size  func(A) int64
	tier  Tier
	codec Codec[A]
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// New creates a DerivedCache.
func New[A any](cfg Config[A]) (*DerivedCache[A], error) {
	if cfg.Kind == "" || cfg.Size == nil {
		return nil, fmt.Errorf("%w: kind and size function are required", ErrInvalidConfig)
	}
	if cfg.Tier != nil && cfg.Codec == nil {
		return nil, fmt.Errorf("%w: a tier requires a codec", ErrInvalidConfig)
	}

	opts := []cache.Option[classify.Fingerprint, cached[A]]{
		cache.WithName[classify.Fingerprint, cached[A]](cfg.Kind),
		cache.WithObserver[classify.Fingerprint, cached[A]](metrics.NewCacheObserver(cfg.Kind)),
	}
	if cfg.Pressure != nil {
		opts = append(opts, cache.WithPressure[classify.Fingerprint, cached[A]](cfg.Pressure, cache.DefaultPressureTarget))
	}
	if cfg.Clone != nil {
		clone := cfg.Clone
		opts = append(opts, cache.WithCloner[classify.Fingerprint, cached[A]](func(c cached[A]) cached[A] {
			return cached[A]{path: c.path, value: clone(c.value)}
		}))
	}

	store, err := cache.New[classify.Fingerprint, cached[A]](cfg.CapacityBytes, opts...)
	if err != nil {
		return nil, err
	}

	return &DerivedCache[A]{
		kind:    cfg.Kind,
		store:   store,
		size:    cfg.Size,
		tier:    cfg.Tier,
		codec:   cfg.Codec,
		flights: make(map[string]*flight),
	}, nil
}

// Kind returns the cache's label.
func (c *DerivedCache[A]) Kind() string {
	return c.kind
}

// Get returns the cached artifact for fp.
func (c *DerivedCache[A]) Get(fp classify.Fingerprint) (A, bool) {
	v, ok := c.store.Get(fp)
	return v.value, ok
}

// Put stores an artifact for entry in memory only.
func (c *DerivedCache[A]) Put(entry classify.FileEntry, value A) error {
	return c.store.Put(entry.Fingerprint, cached[A]{path: entry.Path, value: value}, c.size(value))
}

// GetOrCompute returns the artifact for entry, computing it on a miss. For
// any fingerprint compute runs at most once at a time: concurrent callers
// wait for the running computation and share its result. A result too large
// for the cache is still returned.
//
// The computation does not belong to any one caller. Each caller stops
// waiting when its own ctx is done, and the computation's context is
// cancelled only once every caller waiting for it has gone.
func (c *DerivedCache[A]) GetOrCompute(ctx context.Context, entry classify.FileEntry, compute ComputeFunc[A]) (A, error) {
	var zero A
	if v, ok := c.store.Get(entry.Fingerprint); ok {
		return v.value, nil
	}

	key := entry.Fingerprint.String()
	f := c.join(ctx, key)
	defer c.leave(key, f)

	for {
		leader := false
		ch := c.group.DoChan(key, func() (any, error) {
			leader = true
			v, err := c.fill(f.ctx, entry, compute)
			if err != nil && f.ctx.Err() != nil {
				return v, errFlightAbandoned
			}
			return v, err
		})

		select {
		case res := <-ch:
			if errors.Is(res.Err, errFlightAbandoned) {
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				// Joined a computation whose callers had all gone; start over.
				continue
			}
			if !leader {
				metrics.ArtifactSharedResults.WithLabelValues(c.kind).Inc()
			}
			if res.Err != nil {
				return zero, res.Err
			}
			v, _ := res.Val.(A)
			return v, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// flight is the context shared by the callers waiting on one fingerprint.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (c *DerivedCache[A]) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *DerivedCache[A]) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters == 0 {
		f.cancel()
		delete(c.flights, key)
	}
}

// waiting returns how many callers wait on fp's computation.
func (c *DerivedCache[A]) waiting(fp classify.Fingerprint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.flights[fp.String()]; ok {
		return f.waiters
	}
	return 0
}

func (c *DerivedCache[A]) fill(ctx context.Context, entry classify.FileEntry, compute ComputeFunc[A]) (A, error) {
	// A previous flight may have finished between the miss and now.
	if v, ok := c.store.Peek(entry.Fingerprint); ok {
		return v.value, nil
	}

	if v, ok := c.load(ctx, entry); ok {
		c.remember(entry, v)
		return v, nil
	}

	start := time.Now()
	v, err := compute(ctx, entry)
	metrics.ArtifactComputeDuration.WithLabelValues(c.kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ArtifactComputeTotal.WithLabelValues(c.kind, "error").Inc()
		return v, err
	}
	metrics.ArtifactComputeTotal.WithLabelValues(c.kind, "success").Inc()

	c.remember(entry, v)
	c.save(ctx, entry, v)
	return v, nil
}

func (c *DerivedCache[A]) remember(entry classify.FileEntry, v A) {
	if err := c.Put(entry, v); err != nil {
		logging.Warn("Not caching %s for %s: %v", c.kind, entry.Path, err)
	}
}

func (c *DerivedCache[A]) load(ctx context.Context, entry classify.FileEntry) (A, bool) {
	var zero A
	if c.tier == nil {
		return zero, false
	}

	data, ok, err := c.tier.GetArtifact(ctx, c.kind, entry.Fingerprint)
	switch {
	case err != nil:
		metrics.ArtifactStoreLookups.WithLabelValues(c.kind, "error").Inc()
		logging.Warn("Artifact store lookup failed for %s: %v", entry.Path, err)
		return zero, false
	case !ok:
		metrics.ArtifactStoreLookups.WithLabelValues(c.kind, "miss").Inc()
		return zero, false
	}

	v, err := c.codec.Decode(data)
	if err != nil {
		metrics.ArtifactStoreLookups.WithLabelValues(c.kind, "error").Inc()
		logging.Warn("Discarding undecodable %s for %s: %v", c.kind, entry.Path, err)
		return zero, false
	}
	metrics.ArtifactStoreLookups.WithLabelValues(c.kind, "hit").Inc()
	return v, true
}

func (c *DerivedCache[A]) save(ctx context.Context, entry classify.FileEntry, v A) {
	if c.tier == nil {
		return
	}
	data, err := c.codec.Encode(v)
	if err != nil {
		logging.Warn("Cannot encode %s for %s: %v", c.kind, entry.Path, err)
		return
	}
	if err := c.tier.PutArtifact(ctx, c.kind, entry.Fingerprint, entry.Path, data); err != nil {
		logging.Warn("Artifact store write failed for %s: %v", entry.Path, err)
	}
}

// ForgetPath drops every artifact derived from path, whatever its
// fingerprint. It returns the number removed.
func (c *DerivedCache[A]) ForgetPath(path string) int {
	n := c.store.RemoveFunc(func(_ classify.Fingerprint, v cached[A]) bool {
		return v.path == path
	})
	if n > 0 {
		logging.Debug("Forgot %d %s artifact(s) for %s", n, c.kind, path)
	}
	return n
}

// EvictForPressure trims the cache for critical memory pressure.
func (c *DerivedCache[A]) EvictForPressure() int {
	return c.store.EvictForPressure()
}

// RemoveOlderThan drops artifacts not accessed within maxAge.
func (c *DerivedCache[A]) RemoveOlderThan(maxAge time.Duration) int {
	return c.store.RemoveOlderThan(maxAge)
}

// Len returns the number of cached artifacts.
func (c *DerivedCache[A]) Len() int {
	return c.store.Len()
}

// Stats returns the underlying store's counters.
func (c *DerivedCache[A]) Stats() cache.Statistics {
	return c.store.Stats()
}
