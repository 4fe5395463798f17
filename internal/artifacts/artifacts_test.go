package artifacts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photo-discovery/internal/cache"
	"photo-discovery/internal/classify"
)

type thumb struct {
	Data []byte
}

func thumbSize(t thumb) int64 { return int64(len(t.Data)) }

func entryFor(path string, size int64) classify.FileEntry {
	return classify.FileEntry{
		Path:        path,
		Name:        path,
		IsImage:     true,
		SizeBytes:   size,
		Fingerprint: classify.ComputeFingerprint(path, size, 1),
	}
}

func newThumbCache(t *testing.T, capacity int64, tier Tier) *DerivedCache[thumb] {
	t.Helper()
	cfg := Config[thumb]{
		Kind:          "thumbnail",
		CapacityBytes: capacity,
		Size:          thumbSize,
		Tier:          tier,
	}
	if tier != nil {
		cfg.Codec = JSONCodec[thumb]{}
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

// memoryTier is an in-memory Tier.
type memoryTier struct {
	mu   sync.Mutex
	data map[classify.Fingerprint][]byte
	gets int
	puts int
	err  error
}

func newMemoryTier() *memoryTier {
	return &memoryTier{data: make(map[classify.Fingerprint][]byte)}
}

func (m *memoryTier) GetArtifact(_ context.Context, _ string, fp classify.Fingerprint) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, false, m.err
	}
	d, ok := m.data[fp]
	return d, ok, nil
}

func (m *memoryTier) PutArtifact(_ context.Context, _ string, fp classify.Fingerprint, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.data[fp] = data
	return nil
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config[thumb]{CapacityBytes: 10, Size: thumbSize}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without kind, got %v", err)
	}
	if _, err := New(Config[thumb]{Kind: "x", CapacityBytes: 10, Size: thumbSize, Tier: newMemoryTier()}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for tier without codec, got %v", err)
	}
	if _, err := New(Config[thumb]{Kind: "x", Size: thumbSize}); !errors.Is(err, cache.ErrInvalidCapacity) {
		t.Errorf("Expected ErrInvalidCapacity, got %v", err)
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := newThumbCache(t, 1024, nil)
	entry := entryFor("/photos/a.jpg", 100)

	calls := 0
	compute := func(context.Context, classify.FileEntry) (thumb, error) {
		calls++
		return thumb{Data: []byte("abc")}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute(context.Background(), entry, compute)
		if err != nil {
			t.Fatalf("GetOrCompute error: %v", err)
		}
		if string(got.Data) != "abc" {
			t.Errorf("GetOrCompute = %q", got.Data)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 compute call, got %d", calls)
	}

	stats := c.Stats()
	if stats.Hits != 2 || stats.Entries != 1 {
		t.Errorf("Expected 2 hits and 1 entry, got %+v", stats)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := newThumbCache(t, 1024, nil)
	entry := entryFor("/photos/big.jpg", 5000)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context, classify.FileEntry) (thumb, error) {
		calls.Add(1)
		<-release
		return thumb{Data: []byte("decoded")}, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.GetOrCompute(context.Background(), entry, compute)
			if err != nil {
				t.Errorf("GetOrCompute error: %v", err)
				return
			}
			results[i] = string(got.Data)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("Expected compute to run once, ran %d times", n)
	}
	for i, r := range results {
		if r != "decoded" {
			t.Errorf("Caller %d got %q", i, r)
		}
	}
}

func TestGetOrComputeErrorIsNotCached(t *testing.T) {
	c := newThumbCache(t, 1024, nil)
	entry := entryFor("/photos/broken.jpg", 10)

	boom := errors.New("decode failed")
	calls := 0
	compute := func(context.Context, classify.FileEntry) (thumb, error) {
		calls++
		if calls == 1 {
			return thumb{}, boom
		}
		return thumb{Data: []byte("ok")}, nil
	}

	if _, err := c.GetOrCompute(context.Background(), entry, compute); !errors.Is(err, boom) {
		t.Fatalf("Expected compute error, got %v", err)
	}
	got, err := c.GetOrCompute(context.Background(), entry, compute)
	if err != nil || string(got.Data) != "ok" {
		t.Errorf("Expected retry to succeed, got %q, %v", got.Data, err)
	}
}

func TestGetOrComputeOversizedResultIsReturned(t *testing.T) {
	c := newThumbCache(t, 4, nil)
	entry := entryFor("/photos/huge.jpg", 10)

	got, err := c.GetOrCompute(context.Background(), entry, func(context.Context, classify.FileEntry) (thumb, error) {
		return thumb{Data: []byte("too large")}, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute error: %v", err)
	}
	if string(got.Data) != "too large" {
		t.Errorf("GetOrCompute = %q", got.Data)
	}
	if c.Len() != 0 {
		t.Errorf("Oversized artifact was cached")
	}
}

func TestGetOrComputeWaiterHonoursContext(t *testing.T) {
	c := newThumbCache(t, 1024, nil)
	entry := entryFor("/photos/slow.jpg", 10)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go func() {
		_, _ = c.GetOrCompute(context.Background(), entry, func(context.Context, classify.FileEntry) (thumb, error) {
			close(started)
			<-release
			return thumb{Data: []byte("x")}, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrCompute(ctx, entry, func(context.Context, classify.FileEntry) (thumb, error) {
		t.Error("Second caller must not compute while the first is in flight")
		return thumb{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGetOrComputeSurvivesFirstCallerCancelling(t *testing.T) {
	c := newThumbCache(t, 1024, nil)
	entry := entryFor("/photos/shared.jpg", 10)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context, _ classify.FileEntry) (thumb, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return thumb{Data: []byte("decoded")}, nil
		case <-ctx.Done():
			return thumb{}, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(firstCtx, entry, compute)
		firstErr <- err
	}()
	<-started

	type result struct {
		value thumb
		err   error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.GetOrCompute(context.Background(), entry, compute)
		second <- result{v, err}
	}()
	waitUntil(t, func() bool { return c.waiting(entry.Fingerprint) == 2 })

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the first caller to see Canceled, got %v", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("Expected the second caller to get the result, got error %v", got.err)
	}
	if string(got.value.Data) != "decoded" {
		t.Errorf("Second caller got %q, want %q", got.value.Data, "decoded")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Expected compute to run once, ran %d times", n)
	}
	if c.Len() != 1 {
		t.Errorf("Expected the result to be cached, Len() = %d", c.Len())
	}
}

func TestGetOrComputeCancelsWhenEveryCallerLeaves(t *testing.T) {
	c := newThumbCache(t, 1024, nil)
	entry := entryFor("/photos/abandoned.jpg", 10)

	started := make(chan struct{})
	abandoned := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, entry, func(ctx context.Context, _ classify.FileEntry) (thumb, error) {
			close(started)
			<-ctx.Done()
			close(abandoned)
			return thumb{}, ctx.Err()
		})
		done <- err
	}()
	<-started

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected Canceled, got %v", err)
	}
	select {
	case <-abandoned:
	case <-time.After(2 * time.Second):
		t.Fatal("Computation kept running after its only caller left")
	}
	if n := c.waiting(entry.Fingerprint); n != 0 {
		t.Errorf("Expected no waiters, got %d", n)
	}

	got, err := c.GetOrCompute(context.Background(), entry, func(context.Context, classify.FileEntry) (thumb, error) {
		return thumb{Data: []byte("fresh")}, nil
	})
	if err != nil || string(got.Data) != "fresh" {
		t.Errorf("Expected a fresh computation, got %q, %v", got.Data, err)
	}
}

func TestTierIsConsultedBeforeCompute(t *testing.T) {
	tier := newMemoryTier()
	first := newThumbCache(t, 1024, tier)
	entry := entryFor("/photos/a.jpg", 100)

	_, err := first.GetOrCompute(context.Background(), entry, func(context.Context, classify.FileEntry) (thumb, error) {
		return thumb{Data: []byte("stored")}, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute error: %v", err)
	}
	if tier.puts != 1 {
		t.Errorf("Expected write-through to tier, got %d puts", tier.puts)
	}

	second := newThumbCache(t, 1024, tier)
	got, err := second.GetOrCompute(context.Background(), entry, func(context.Context, classify.FileEntry) (thumb, error) {
		t.Error("Compute called despite a tier hit")
		return thumb{}, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute error: %v", err)
	}
	if string(got.Data) != "stored" {
		t.Errorf("Tier value = %q", got.Data)
	}
	if _, ok := second.Get(entry.Fingerprint); !ok {
		t.Error("Tier hit was not promoted into memory")
	}
}

func TestTierErrorFallsBackToCompute(t *testing.T) {
	tier := newMemoryTier()
	tier.err = errors.New("database locked")
	c := newThumbCache(t, 1024, tier)

	got, err := c.GetOrCompute(context.Background(), entryFor("/photos/a.jpg", 1), func(context.Context, classify.FileEntry) (thumb, error) {
		return thumb{Data: []byte("fresh")}, nil
	})
	if err != nil || string(got.Data) != "fresh" {
		t.Errorf("Expected computed value, got %q, %v", got.Data, err)
	}
}

func TestForgetPath(t *testing.T) {
	c := newThumbCache(t, 1024, nil)
	oldEntry := entryFor("/photos/a.jpg", 100)
	newEntry := entryFor("/photos/a.jpg", 200)
	other := entryFor("/photos/b.jpg", 100)

	for _, e := range []classify.FileEntry{oldEntry, newEntry, other} {
		if err := c.Put(e, thumb{Data: []byte("x")}); err != nil {
			t.Fatal(err)
		}
	}

	if n := c.ForgetPath("/photos/a.jpg"); n != 2 {
		t.Errorf("ForgetPath removed %d, want 2", n)
	}
	if _, ok := c.Get(other.Fingerprint); !ok {
		t.Error("ForgetPath removed an unrelated artifact")
	}
}

func TestEvictForPressure(t *testing.T) {
	c := newThumbCache(t, 100, nil)
	for i := 0; i < 10; i++ {
		e := entryFor(string(rune('a'+i))+".jpg", 1)
		if err := c.Put(e, thumb{Data: make([]byte, 10)}); err != nil {
			t.Fatal(err)
		}
	}

	if n := c.EvictForPressure(); n != 5 {
		t.Errorf("EvictForPressure removed %d, want 5", n)
	}
	if c.Stats().CurrentSizeBytes > 50 {
		t.Errorf("Size after pressure pass = %d", c.Stats().CurrentSizeBytes)
	}
}

func TestCloneIsolatesCachedData(t *testing.T) {
	c, err := New(Config[thumb]{
		Kind:          "thumbnail",
		CapacityBytes: 100,
		Size:          thumbSize,
		Clone: func(v thumb) thumb {
			return thumb{Data: append([]byte(nil), v.Data...)}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	e := entryFor("/a.jpg", 1)
	data := []byte("abc")
	if err := c.Put(e, thumb{Data: data}); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'

	got, _ := c.Get(e.Fingerprint)
	if string(got.Data) != "abc" {
		t.Errorf("Cached data aliased caller's slice: %q", got.Data)
	}
}
