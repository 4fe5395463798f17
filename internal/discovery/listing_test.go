package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"photo-discovery/internal/filesystem"
)

// countingLister counts ReadDir calls per directory.
type countingLister struct {
	filesystem.Lister
	mu    sync.Mutex
	reads map[string]int
}

func newCountingLister() *countingLister {
	return &countingLister{Lister: filesystem.NewLocalLister(), reads: make(map[string]int)}
}

func (l *countingLister) ReadDir(ctx context.Context, dir string) ([]filesystem.DirEntry, error) {
	l.mu.Lock()
	l.reads[dir]++
	l.mu.Unlock()
	return l.Lister.ReadDir(ctx, dir)
}

func (l *countingLister) count(dir string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads[dir]
}

func newListingEngine(t *testing.T, lister filesystem.Lister, ttl time.Duration) (*Engine, *ListingCache) {
	t.Helper()
	listings, err := NewListingCache(1<<20, ttl, nil)
	if err != nil {
		t.Fatalf("NewListingCache() error: %v", err)
	}
	e := newEngine(t, lister, func(o *Options) { o.Recursive = true })
	e.SetListingCache(listings)
	return e, listings
}

func touchDir(t *testing.T, dir string, at time.Time) {
	t.Helper()
	if err := os.Chtimes(dir, at, at); err != nil {
		t.Fatal(err)
	}
}

func TestNewListingCacheRejectsZeroTTL(t *testing.T) {
	if _, err := NewListingCache(1024, 0, nil); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("Expected ErrInvalidOptions, got %v", err)
	}
}

func TestListingCacheSkipsUnchangedDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg", "sub/b.jpg")
	sub := filepath.Join(root, "sub")

	lister := newCountingLister()
	e, _ := newListingEngine(t, lister, time.Hour)

	first, _, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	second, _, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatalf("Second scan error: %v", err)
	}

	if !equalStrings(first, second) {
		t.Errorf("Cached scan = %v, want %v", second, first)
	}
	if lister.count(root) != 1 || lister.count(sub) != 1 {
		t.Errorf("Expected each directory to be read once, got root=%d sub=%d", lister.count(root), lister.count(sub))
	}
	if stats := e.LastStats(); stats.ListingsReused != 2 || stats.DirectoriesRead != 2 {
		t.Errorf("Expected 2 reused listings, got %+v", stats)
	}

	writeTree(t, root, "sub/c.jpg")
	touchDir(t, sub, time.Now().Add(time.Hour))

	third, _, err := collect(t, e, root, Ticket{})
	if err != nil {
		t.Fatalf("Third scan error: %v", err)
	}
	want := []string{"a.jpg", "sub/b.jpg", "sub/c.jpg"}
	if !equalStrings(third, want) {
		t.Errorf("Scan after change = %v, want %v", third, want)
	}
	if lister.count(sub) != 2 {
		t.Errorf("Expected the changed directory to be read again, got %d reads", lister.count(sub))
	}
	if lister.count(root) != 1 {
		t.Errorf("Expected the unchanged root to be reused, got %d reads", lister.count(root))
	}
}

func TestListingCacheExpiresAfterTTL(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg")

	lister := newCountingLister()
	e, listings := newListingEngine(t, lister, time.Minute)
	now := time.Now()
	listings.now = func() time.Time { return now }

	if _, _, err := collect(t, e, root, Ticket{}); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	now = now.Add(30 * time.Second)
	if _, _, err := collect(t, e, root, Ticket{}); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if lister.count(root) != 1 {
		t.Errorf("Expected a reused listing within the TTL, got %d reads", lister.count(root))
	}

	now = now.Add(time.Minute)
	if _, _, err := collect(t, e, root, Ticket{}); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if lister.count(root) != 2 {
		t.Errorf("Expected a fresh read after the TTL, got %d reads", lister.count(root))
	}

	now = now.Add(2 * time.Minute)
	if n := listings.RemoveExpired(); n != 1 {
		t.Errorf("RemoveExpired() = %d, want 1", n)
	}
}

func TestListingCacheInvalidate(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.jpg")

	lister := newCountingLister()
	e, listings := newListingEngine(t, lister, time.Hour)

	if _, _, err := collect(t, e, root, Ticket{}); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if n := listings.Invalidate(root); n != 1 {
		t.Errorf("Invalidate() = %d, want 1", n)
	}
	if _, _, err := collect(t, e, root, Ticket{}); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if lister.count(root) != 2 {
		t.Errorf("Expected a fresh read after Invalidate, got %d reads", lister.count(root))
	}
}

func TestListingCacheCopiesListings(t *testing.T) {
	root := "/photos"
	listings, err := NewListingCache(1<<20, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewListingCache() error: %v", err)
	}
	entries := []filesystem.DirEntry{{Name: "b.jpg"}, {Name: "a.jpg"}}
	listings.Put(root, 42, entries)
	entries[0].Name = "changed.jpg"

	got, ok := listings.Get(root, 42)
	if !ok {
		t.Fatal("Expected a cached listing")
	}
	if got[0].Name != "b.jpg" {
		t.Errorf("Cached listing changed with the caller's slice: %q", got[0].Name)
	}
	got[1].Name = "mutated.jpg"
	again, _ := listings.Get(root, 42)
	if again[1].Name != "a.jpg" {
		t.Errorf("Cached listing changed with a returned slice: %q", again[1].Name)
	}
	if _, ok := listings.Get(root, 43); ok {
		t.Error("Expected a miss for a different mtime")
	}
}
