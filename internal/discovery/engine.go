package discovery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/filesystem"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/memory"
	"photo-discovery/internal/metrics"
)

// MemoryGauge reports the current memory band.
type MemoryGauge interface {
	Band() memory.Band
}

// Evicter frees cache memory on request and returns how many entries it dropped.
type Evicter interface {
	EvictForPressure() int
}

// EvicterFunc adapts a function to Evicter.
type EvicterFunc func() int

// EvictForPressure implements Evicter.
func (f EvicterFunc) EvictForPressure() int {
	return f()
}

// Item is one element of a scan: either a classified entry or a skipped one.
type Item struct {
	Entry   classify.FileEntry
	Skipped *SkippedEntry
}

// SortKey is the item's position in path order, usable with ScanAfter.
func (it Item) SortKey() string {
	if it.Skipped != nil {
		return it.Skipped.key
	}
	return SortKey(it.Entry)
}

// Stats summarizes one scan.
type Stats struct {
	Root              string
	Generation        uint64
	DirectoriesRead   int64
	// ListingsReused counts the directories of DirectoriesRead served by the listing cache.
	ListingsReused    int64
	Images            int64
	NonImages         int64
	Directories       int64
	Skipped           int64
	CriticalPauses    int64
	PressureEvictions int64
	StartedAt         time.Time
	Elapsed           time.Duration
	Cancelled         bool
	Err               error
}

// Engine walks directories and yields classified entries.
type Engine struct {
	lister   filesystem.Lister
	opts     Options
	gauge    MemoryGauge
	evicters []Evicter
	listings *ListingCache

	mu        sync.Mutex
	lastStats Stats
}

// NewEngine creates an engine. Options are validated here.
func NewEngine(lister filesystem.Lister, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{lister: lister, opts: opts}, nil
}

// SetMemoryGauge makes scans consult gauge before each yield. Call before scanning.
func (e *Engine) SetMemoryGauge(gauge MemoryGauge) {
	e.gauge = gauge
}

// AddEvicter registers a cache to trim in the Critical band. Call before scanning.
func (e *Engine) AddEvicter(ev Evicter) {
	e.evicters = append(e.evicters, ev)
}

// SetListingCache makes scans reuse directory listings whose mtime has not
// changed. The cache is also registered as an Evicter. Call before scanning.
func (e *Engine) SetListingCache(c *ListingCache) {
	e.listings = c
	e.AddEvicter(c)
}

// Options returns the engine's scan options.
func (e *Engine) Options() Options {
	return e.opts
}

// LastStats returns the statistics of the most recently finished scan.
func (e *Engine) LastStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStats
}

// Scan walks root and yields entries in the configured order. The sequence
// is lazy: nothing is read until it is ranged over, and each range starts a
// fresh walk. It stops at the next checkpoint once ctx is done or ticket is
// no longer valid. A root failure is yielded once as a *RootError and ends
// the sequence; per-entry failures arrive as Items with Skipped set.
func (e *Engine) Scan(ctx context.Context, root string, ticket Ticket) iter.Seq2[Item, error] {
	return e.ScanAfter(ctx, root, ticket, "")
}

// ScanAfter is Scan positioned after the entry whose SortKey is after.
// Subtrees that sort entirely before it are not read. It requires OrderPath
// unless after is empty.
func (e *Engine) ScanAfter(ctx context.Context, root string, ticket Ticket, after string) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if after != "" && e.opts.Order != OrderPath {
			yield(Item{}, fmt.Errorf("%w: resuming requires %q order", ErrInvalidOptions, OrderPath))
			return
		}
		e.run(ctx, filepath.Clean(root), ticket, after, yield)
	}
}

// scanRun holds the state shared by the walker and the consumer of one scan.
type scanRun struct {
	engine *Engine
	ctx    context.Context
	root   string
	ticket Ticket
	after  string
	queue  *readAheadQueue

	dirsRead       atomic.Int64
	listingsReused atomic.Int64
}

func (e *Engine) run(parent context.Context, root string, ticket Ticket, after string, yield func(Item, error) bool) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	r := &scanRun{
		engine: e,
		ctx:    ctx,
		root:   root,
		ticket: ticket,
		after:  after,
		queue:  newReadAheadQueue(),
	}
	stopClose := context.AfterFunc(ctx, r.queue.close)
	defer stopClose()

	stats := Stats{Root: root, Generation: ticket.Generation(), StartedAt: time.Now()}
	logging.Info("Scan started: root=%s generation=%d recursive=%v filter=%s order=%s",
		root, ticket.Generation(), e.opts.Recursive, e.opts.Filter, e.opts.Order)
	metrics.DiscoveryScansRunning.Inc()

	var walker sync.WaitGroup
	walker.Add(1)
	go func() {
		defer walker.Done()
		r.queue.finish(r.walkRoot())
	}()

	defer func() {
		r.queue.close()
		cancel()
		walker.Wait()
		stats.DirectoriesRead = r.dirsRead.Load()
		stats.ListingsReused = r.listingsReused.Load()
		e.finish(&stats)
	}()

	for {
		if !r.live() {
			stats.Cancelled = true
			return
		}

		item, ok, err := r.queue.pop()
		if !ok {
			if err != nil {
				stats.Err = err
				yield(Item{}, err)
				return
			}
			if !r.live() {
				stats.Cancelled = true
			}
			return
		}

		if !r.throttle(&stats) {
			stats.Cancelled = true
			return
		}
		// The throttle may have slept; the generation could have moved on.
		if !r.live() {
			stats.Cancelled = true
			return
		}

		countItem(&stats, item)
		if !yield(item, nil) {
			stats.Cancelled = true
			return
		}
	}
}

func (r *scanRun) live() bool {
	return r.ctx.Err() == nil && r.ticket.Valid()
}

// throttle applies the memory policy before a yield. It returns false if the
// scan was cancelled while pausing.
func (r *scanRun) throttle(stats *Stats) bool {
	e := r.engine
	if e.gauge == nil || e.gauge.Band() != memory.BandCritical {
		return true
	}

	for _, ev := range e.evicters {
		if n := ev.EvictForPressure(); n > 0 {
			logging.Debug("Scan evicted %d cache entries under critical memory", n)
		}
	}
	if len(e.evicters) > 0 {
		stats.PressureEvictions++
		metrics.DiscoveryPressureEvictions.Inc()
	}

	stats.CriticalPauses++
	metrics.DiscoveryCriticalPauses.Inc()
	if e.opts.CriticalPause <= 0 {
		return true
	}

	timer := time.NewTimer(e.opts.CriticalPause)
	defer timer.Stop()
	select {
	case <-r.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func countItem(stats *Stats, item Item) {
	switch {
	case item.Skipped != nil:
		stats.Skipped++
		metrics.DiscoverySkippedEntries.WithLabelValues(item.Skipped.Reason).Inc()
	case item.Entry.IsDirectory:
		stats.Directories++
		metrics.DiscoveryEntriesYielded.WithLabelValues("directory").Inc()
	case item.Entry.IsImage:
		stats.Images++
		metrics.DiscoveryEntriesYielded.WithLabelValues("image").Inc()
	default:
		stats.NonImages++
		metrics.DiscoveryEntriesYielded.WithLabelValues("other").Inc()
	}
}

func (e *Engine) finish(stats *Stats) {
	stats.Elapsed = time.Since(stats.StartedAt)

	status := "complete"
	switch {
	case errors.Is(stats.Err, ErrScanRootUnavailable):
		status = "root_unavailable"
	case stats.Cancelled:
		status = "cancelled"
	}

	metrics.DiscoveryScansRunning.Dec()
	metrics.DiscoveryScansTotal.WithLabelValues(status).Inc()
	metrics.DiscoveryScanDuration.Observe(stats.Elapsed.Seconds())

	if stats.Err != nil {
		logging.Error("Scan failed: root=%s generation=%d: %v", stats.Root, stats.Generation, stats.Err)
	} else {
		logging.Info("Scan %s: root=%s generation=%d images=%d other=%d dirs=%d skipped=%d pauses=%d in %v",
			status, stats.Root, stats.Generation, stats.Images, stats.NonImages,
			stats.DirectoriesRead, stats.Skipped, stats.CriticalPauses, stats.Elapsed)
	}

	e.mu.Lock()
	e.lastStats = *stats
	e.mu.Unlock()
}

// readAheadLimit is the queue bound for the current memory band.
func (r *scanRun) readAheadLimit() int {
	if g := r.engine.gauge; g != nil && g.Band() >= memory.BandHigh {
		return 1
	}
	return r.engine.opts.ReadAhead
}

// emit hands an item to the consumer. It returns false when the scan must stop.
func (r *scanRun) emit(item Item) bool {
	if !r.live() {
		return false
	}
	return r.queue.push(item, r.readAheadLimit)
}

// walkRoot reads the root and walks it. Its error is terminal for the scan.
func (r *scanRun) walkRoot() error {
	lister := r.engine.lister

	info, err := lister.Stat(r.ctx, r.root)
	if err != nil {
		return &RootError{Root: r.root, Err: err}
	}
	if !info.IsDir {
		return &RootError{Root: r.root, Err: ErrNotDirectory}
	}

	entries, err := r.readDir(r.root, info.ModTimeUnixNanos)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil
		}
		return &RootError{Root: r.root, Err: err}
	}
	r.dirsRead.Add(1)

	r.walkDir(r.root, entries)
	return nil
}

// walkDir emits the children of dir depth-first. It returns false when the scan must stop.
func (r *scanRun) walkDir(dir string, entries []filesystem.DirEntry) bool {
	opts := r.engine.opts
	sortEntries(entries, opts.Order)

	for _, de := range entries {
		if !r.live() {
			return false
		}
		if opts.SkipHidden && classify.IsHidden(de.Name) {
			continue
		}

		entry := classify.Classify(dir, de)
		pos := locate(SortKey(entry), r.after)
		if pos == positionBefore {
			continue
		}

		if de.Err != nil {
			if !de.IsDir && !entry.IsImage && opts.Filter != FilterAll {
				continue
			}
			logging.Warn("Skipping %s: %v", entry.Path, de.Err)
			skipped := newSkipped(entry.Path, SortKey(entry), de.Err)
			if !r.emit(Item{Skipped: &skipped}) {
				return false
			}
			continue
		}

		if !entry.IsDirectory {
			if entry.IsImage || opts.Filter == FilterAll {
				if !r.emit(Item{Entry: entry}) {
					return false
				}
			}
			continue
		}

		if pos == positionAfter && opts.Filter == FilterAll {
			if !r.emit(Item{Entry: entry}) {
				return false
			}
		}
		if !opts.Recursive {
			continue
		}
		if de.IsSymlink {
			logging.Debug("Not following symlinked directory %s", entry.Path)
			continue
		}
		if !r.descend(entry.Path) {
			return false
		}
	}
	return true
}

func (r *scanRun) descend(dir string) bool {
	children, err := r.listDir(dir)
	if err != nil {
		if r.ctx.Err() != nil {
			return false
		}
		// Sorts after the directory itself and before any of its children.
		key := dir + separator + "\x00"
		if locate(key, r.after) == positionBefore {
			return true
		}
		logging.Warn("Skipping unreadable directory %s: %v", dir, err)
		skipped := newSkipped(dir, key, err)
		return r.emit(Item{Skipped: &skipped})
	}
	r.dirsRead.Add(1)
	return r.walkDir(dir, children)
}

// listDir lists a directory below the root. With a listing cache the
// directory is stat'ed first: the mtime its parent's listing recorded may be
// older than the directory itself.
func (r *scanRun) listDir(dir string) ([]filesystem.DirEntry, error) {
	if r.engine.listings == nil {
		return r.engine.lister.ReadDir(r.ctx, dir)
	}
	info, err := r.engine.lister.Stat(r.ctx, dir)
	if err != nil {
		return nil, err
	}
	return r.readDir(dir, info.ModTimeUnixNanos)
}

// readDir lists dir, reusing the cached listing while its mtime is unchanged.
// An unknown (zero) mtime bypasses the cache.
func (r *scanRun) readDir(dir string, mtime int64) ([]filesystem.DirEntry, error) {
	listings := r.engine.listings
	if listings == nil || mtime == 0 {
		return r.engine.lister.ReadDir(r.ctx, dir)
	}
	if entries, ok := listings.Get(dir, mtime); ok {
		r.listingsReused.Add(1)
		return entries, nil
	}
	entries, err := r.engine.lister.ReadDir(r.ctx, dir)
	if err != nil {
		return nil, err
	}
	listings.Put(dir, mtime, entries)
	return entries, nil
}
