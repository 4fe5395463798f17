package discovery

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photo-discovery/internal/filesystem"
	"photo-discovery/internal/memory"
)

// writeTree creates files under root; names ending in "/" are directories.
func writeTree(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			if err := os.MkdirAll(path, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newEngine(t *testing.T, lister filesystem.Lister, mutate func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.CriticalPause = time.Millisecond
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEngine(lister, opts)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return e
}

// collect drains a scan into relative paths (directories get a trailing "/").
func collect(t *testing.T, e *Engine, root string, ticket Ticket) ([]string, []SkippedEntry, error) {
	t.Helper()
	var paths []string
	var skipped []SkippedEntry
	for item, err := range e.Scan(context.Background(), root, ticket) {
		if err != nil {
			return paths, skipped, err
		}
		if item.Skipped != nil {
			skipped = append(skipped, *item.Skipped)
			continue
		}
		rel, _ := filepath.Rel(root, item.Entry.Path)
		rel = filepath.ToSlash(rel)
		if item.Entry.IsDirectory {
			rel += "/"
		}
		paths = append(paths, rel)
	}
	return paths, skipped, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScanImagesOnlyNonRecursive(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "photo2.jpg", "photo1.jpg", "notes.txt", "raw/", "raw/inner.jpg", ".hidden.jpg", "UPPER.PNG")

	e := newEngine(t, filesystem.NewLocalLister(), nil)
	got, skipped, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	want := []string{"UPPER.PNG", "photo1.jpg", "photo2.jpg"}
	if !equalStrings(got, want) {
		t.Errorf("Scan = %v, want %v", got, want)
	}
	if len(skipped) != 0 {
		t.Errorf("Unexpected skipped entries: %v", skipped)
	}

	stats := e.LastStats()
	if stats.Images != 3 || stats.NonImages != 0 || stats.DirectoriesRead != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Cancelled {
		t.Error("Completed scan marked cancelled")
	}
}

func TestScanAllRecursiveIsGloballyOrdered(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"a.jpg", "a/x.jpg", "a/b/", "a-b.jpg", "a0.txt", "b/", "b/c/d.png", "z.gif",
	)

	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) {
		o.Recursive = true
		o.Filter = FilterAll
	})

	got, _, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	want := []string{"a-b.jpg", "a.jpg", "a/", "a/b/", "a/x.jpg", "a0.txt", "b/", "b/c/", "b/c/d.png", "z.gif"}
	if !equalStrings(got, want) {
		t.Fatalf("Scan = %v, want %v", got, want)
	}

	// Byte-wise sorted by key, which is what path order promises.
	keys := make([]string, len(got))
	for i, p := range got {
		keys[i] = filepath.Join(root, filepath.FromSlash(p))
		if p[len(p)-1] == '/' {
			keys[i] += separator
		}
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("Keys not sorted: %v", keys)
	}
}

func TestScanMtimeOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "old.jpg", "mid.jpg", "new.jpg")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old.jpg", "mid.jpg", "new.jpg"} {
		mt := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(filepath.Join(root, name), mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) { o.Order = OrderMtime })
	got, _, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"new.jpg", "mid.jpg", "old.jpg"}
	if !equalStrings(got, want) {
		t.Errorf("Scan = %v, want %v", got, want)
	}
}

func TestScanRootUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		cause error
	}{
		{
			name:  "missing",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone") },
			cause: fs.ErrNotExist,
		},
		{
			name: "regular file",
			setup: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "file.jpg")
				writeTree(t, filepath.Dir(p), "file.jpg")
				return p
			},
			cause: ErrNotDirectory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, filesystem.NewLocalLister(), nil)
			_, _, err := collect(t, e, tt.setup(t), Ticket{})

			if !errors.Is(err, ErrScanRootUnavailable) {
				t.Errorf("Expected ErrScanRootUnavailable, got %v", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("Expected cause %v, got %v", tt.cause, err)
			}
			var rootErr *RootError
			if !errors.As(err, &rootErr) {
				t.Fatalf("Expected *RootError, got %T", err)
			}
			if e.LastStats().Err == nil {
				t.Error("LastStats should carry the root error")
			}
		})
	}
}

// faultyLister wraps a lister and fails chosen paths.
type faultyLister struct {
	filesystem.Lister
	failDirs    map[string]error
	failEntries map[string]error
	readDirs    atomic.Int64
}

func (f *faultyLister) ReadDir(ctx context.Context, dir string) ([]filesystem.DirEntry, error) {
	f.readDirs.Add(1)
	if err, ok := f.failDirs[dir]; ok {
		return nil, err
	}
	entries, err := f.Lister.ReadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if ferr, ok := f.failEntries[filepath.Join(dir, entries[i].Name)]; ok {
			entries[i].Err = ferr
		}
	}
	return entries, nil
}

func TestScanSkipsFailingEntriesAndContinues(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg", "b.jpg", "c.jpg", "locked/", "locked/x.jpg", "ok/y.jpg", "junk.txt")

	lister := &faultyLister{
		Lister:      filesystem.NewLocalLister(),
		failDirs:    map[string]error{filepath.Join(root, "locked"): fs.ErrPermission},
		failEntries: map[string]error{filepath.Join(root, "b.jpg"): fs.ErrNotExist, filepath.Join(root, "junk.txt"): fs.ErrNotExist},
	}
	e := newEngine(t, lister, func(o *Options) { o.Recursive = true })

	got, skipped, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	want := []string{"a.jpg", "c.jpg", "ok/y.jpg"}
	if !equalStrings(got, want) {
		t.Errorf("Scan = %v, want %v", got, want)
	}
	if len(skipped) != 2 {
		t.Fatalf("Expected 2 skipped entries (junk.txt is filtered), got %v", skipped)
	}
	if skipped[0].Path != filepath.Join(root, "b.jpg") || skipped[0].Reason != ReasonNotFound {
		t.Errorf("Unexpected first skip: %+v", skipped[0])
	}
	if skipped[1].Path != filepath.Join(root, "locked") || skipped[1].Reason != ReasonPermission {
		t.Errorf("Unexpected second skip: %+v", skipped[1])
	}
	if !errors.Is(skipped[1], fs.ErrPermission) {
		t.Error("SkippedEntry should unwrap to its cause")
	}
}

func TestScanStopsWhenTicketInvalidated(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeTree(t, root, filepath.Join("img", string(rune('a'+i%26))+string(rune('a'+i/26))+".jpg"))
	}

	var gens Generations
	ticket := gens.Ticket()
	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) { o.Recursive = true })

	yielded := 0
	for item, err := range e.Scan(context.Background(), root, ticket) {
		if err != nil {
			t.Fatal(err)
		}
		if item.Skipped == nil {
			yielded++
		}
		if yielded == 5 {
			gens.Advance()
		}
	}

	if yielded != 5 {
		t.Errorf("Expected scan to stop right after invalidation at 5, got %d", yielded)
	}
	if !e.LastStats().Cancelled {
		t.Error("Expected stats to record cancellation")
	}
}

func TestScanStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg", "b.jpg", "c.jpg", "d.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	e := newEngine(t, filesystem.NewLocalLister(), nil)

	yielded := 0
	for _, err := range e.Scan(ctx, root, Ticket{}) {
		if err != nil {
			t.Fatal(err)
		}
		yielded++
		cancel()
	}
	if yielded != 1 {
		t.Errorf("Expected 1 entry before cancellation, got %d", yielded)
	}
}

func TestScanEarlyBreakReleasesWalker(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		writeTree(t, root, n+".jpg")
	}

	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) { o.ReadAhead = 1 })
	for range e.Scan(context.Background(), root, Ticket{}) {
		break
	}
	// Returning at all proves the walker goroutine was released.
	if !e.LastStats().Cancelled {
		t.Error("Abandoned scan should be recorded as cancelled")
	}
}

type fixedGauge struct {
	mu   sync.Mutex
	band memory.Band
}

func (g *fixedGauge) Band() memory.Band {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.band
}

func TestScanCriticalBandEvictsAndPauses(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg", "b.jpg", "c.jpg")

	var evictions atomic.Int64
	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) { o.CriticalPause = 20 * time.Millisecond })
	e.SetMemoryGauge(&fixedGauge{band: memory.BandCritical})
	e.AddEvicter(EvicterFunc(func() int { evictions.Add(1); return 0 }))

	start := time.Now()
	got, _, err := collect(t, e, root, Ticket{})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 3 {
		t.Fatalf("Expected all 3 entries despite pressure, got %v", got)
	}
	if evictions.Load() != 3 {
		t.Errorf("Expected an eviction pass per entry, got %d", evictions.Load())
	}
	if elapsed < 60*time.Millisecond {
		t.Errorf("Expected at least 3 pauses of 20ms, took %v", elapsed)
	}
	stats := e.LastStats()
	if stats.CriticalPauses != 3 || stats.PressureEvictions != 3 {
		t.Errorf("Unexpected pressure stats: %+v", stats)
	}
}

func TestScanHighBandShrinksReadAhead(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg", "b.jpg", "c.jpg", "d.jpg")

	e := newEngine(t, filesystem.NewLocalLister(), nil)
	gauge := &fixedGauge{band: memory.BandHigh}
	e.SetMemoryGauge(gauge)

	r := &scanRun{engine: e}
	if got := r.readAheadLimit(); got != 1 {
		t.Errorf("Expected read-ahead 1 in high band, got %d", got)
	}
	gauge.band = memory.BandNormal
	if got := r.readAheadLimit(); got != e.opts.ReadAhead {
		t.Errorf("Expected read-ahead %d in normal band, got %d", e.opts.ReadAhead, got)
	}

	gauge.band = memory.BandHigh
	got, _, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("High band must not drop entries, got %v", got)
	}
	if e.LastStats().CriticalPauses != 0 {
		t.Error("High band must not pause")
	}
}

func TestScanAfterResumesWithoutRewalking(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"a/1.jpg", "a/2.jpg", "b/1.jpg", "b/deep/2.jpg", "c/1.jpg", "d.jpg",
	)

	lister := &faultyLister{Lister: filesystem.NewLocalLister()}
	e := newEngine(t, lister, func(o *Options) { o.Recursive = true })

	var all []Item
	for item, err := range e.Scan(context.Background(), root, Ticket{}) {
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, item)
	}
	if len(all) != 6 {
		t.Fatalf("Expected 6 images, got %d", len(all))
	}

	// Resume after b/1.jpg: a/ must not be read again.
	lister.readDirs.Store(0)
	after := all[2].SortKey()
	var rest []string
	for item, err := range e.ScanAfter(context.Background(), root, Ticket{}, after) {
		if err != nil {
			t.Fatal(err)
		}
		rel, _ := filepath.Rel(root, item.Entry.Path)
		rest = append(rest, filepath.ToSlash(rel))
	}

	want := []string{"b/deep/2.jpg", "c/1.jpg", "d.jpg"}
	if !equalStrings(rest, want) {
		t.Errorf("ScanAfter = %v, want %v", rest, want)
	}
	// root, b, b/deep, c
	if n := lister.readDirs.Load(); n != 4 {
		t.Errorf("Expected 4 directory reads on resume, got %d", n)
	}
}

func TestScanAfterDirectoryEntryDescends(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/x.jpg", "b.jpg")

	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) {
		o.Recursive = true
		o.Filter = FilterAll
	})

	after := filepath.Join(root, "a") + separator
	var rest []string
	for item, err := range e.ScanAfter(context.Background(), root, Ticket{}, after) {
		if err != nil {
			t.Fatal(err)
		}
		rest = append(rest, filepath.Base(item.Entry.Path))
	}
	want := []string{"x.jpg", "b.jpg"}
	if !equalStrings(rest, want) {
		t.Errorf("ScanAfter = %v, want %v", rest, want)
	}
}

func TestScanAfterRequiresPathOrder(t *testing.T) {
	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) { o.Order = OrderMtime })
	for _, err := range e.ScanAfter(context.Background(), t.TempDir(), Ticket{}, "/x") {
		if !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("Expected ErrInvalidOptions, got %v", err)
		}
	}
}

func TestScanDoesNotFollowSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "real/a.jpg")
	if err := os.Symlink(root, filepath.Join(root, "loop")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	e := newEngine(t, filesystem.NewLocalLister(), func(o *Options) { o.Recursive = true })
	got, _, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(got, []string{"real/a.jpg"}) {
		t.Errorf("Scan = %v", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		valid  bool
	}{
		{"defaults", func(*Options) {}, true},
		{"bad filter", func(o *Options) { o.Filter = "videos" }, false},
		{"bad order", func(o *Options) { o.Order = "size" }, false},
		{"zero read-ahead", func(o *Options) { o.ReadAhead = 0 }, false},
		{"negative pause", func(o *Options) { o.CriticalPause = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.valid != (err == nil) {
				t.Errorf("Validate() = %v, valid=%v", err, tt.valid)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	tests := []struct {
		key, after string
		want       position
	}{
		{"/r/a.jpg", "", positionAfter},
		{"/r/b.jpg", "/r/a.jpg", positionAfter},
		{"/r/a.jpg", "/r/a.jpg", positionBefore},
		{"/r/a/", "/r/a/x.jpg", positionAncestor},
		{"/r/a/", "/r/a/", positionAncestor},
		{"/r/a/", "/r/b.jpg", positionBefore},
		{"/r/a.jpg", "/r/a/", positionBefore},
	}
	for _, tt := range tests {
		if got := locate(tt.key, tt.after); got != tt.want {
			t.Errorf("locate(%q, %q) = %v, want %v", tt.key, tt.after, got, tt.want)
		}
	}
}

func TestGenerations(t *testing.T) {
	var gens Generations
	first := gens.Ticket()
	if !first.Valid() {
		t.Fatal("Fresh ticket should be valid")
	}
	gens.Advance()
	if first.Valid() {
		t.Error("Ticket should be invalid after Advance")
	}
	second := gens.Ticket()
	if second.Generation() != first.Generation()+1 {
		t.Errorf("Expected generation %d, got %d", first.Generation()+1, second.Generation())
	}
	if !(Ticket{}).Valid() {
		t.Error("Zero ticket should always be valid")
	}
}
