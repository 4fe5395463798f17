package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrCacheValueTooLarge is returned when a single value exceeds the store's capacity.
	ErrCacheValueTooLarge = errors.New("cache: value larger than cache capacity")

	// ErrInvalidSize is returned when a value is inserted with a zero or negative size.
	ErrInvalidSize = errors.New("cache: size must be positive")

	// ErrInvalidCapacity is returned by New for a zero or negative capacity.
	ErrInvalidCapacity = errors.New("cache: capacity must be positive")
)

// EvictionReason describes why entries left the cache.
type EvictionReason string

const (
	// EvictCapacity is used when entries are removed to make room for a Put.
	EvictCapacity EvictionReason = "capacity"
	// EvictPressure is used for bulk passes triggered by memory pressure.
	EvictPressure EvictionReason = "pressure"
	// EvictExpired is used when entries age out via RemoveOlderThan.
	EvictExpired EvictionReason = "expired"
)

// DefaultPressureTarget is the fraction of capacity a pressure pass trims down to.
const DefaultPressureTarget = 0.5

// Entry is a snapshot of one cached value and its bookkeeping.
type Entry[K comparable, V any] struct {
	Key            K
	Value          V
	SizeBytes      int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    uint64
}

// Statistics is a point-in-time view of the store's counters.
type Statistics struct {
	Hits             uint64
	Misses           uint64
	Evictions        uint64
	Entries          int
	CurrentSizeBytes int64
	CapacityBytes    int64
}

// HitRate returns hits / (hits + misses), or 0 if the store has not been queried.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Observer receives cache events, typically to export them as metrics.
type Observer interface {
	ObserveHit()
	ObserveMiss()
	ObserveEvictions(reason EvictionReason, count int)
	ObserveRejected(err error)
	ObserveSize(sizeBytes int64, entries int)
}

// PressureGauge reports whether the process is under critical memory pressure.
type PressureGauge interface {
	Critical() bool
}

// Option configures a Store.
type Option[K comparable, V any] func(*Store[K, V])

// WithName labels the store in logs and metrics.
func WithName[K comparable, V any](name string) Option[K, V] {
	return func(s *Store[K, V]) {
		s.name = name
	}
}

// WithObserver attaches an event observer.
func WithObserver[K comparable, V any](o Observer) Option[K, V] {
	return func(s *Store[K, V]) {
		s.observer = o
	}
}

// WithPressure makes Put consult gauge first; when it reports critical pressure
// the store trims itself to target*capacity before inserting.
func WithPressure[K comparable, V any](gauge PressureGauge, target float64) Option[K, V] {
	return func(s *Store[K, V]) {
		s.pressure = gauge
		if target >= 0 && target < 1 {
			s.pressureTarget = target
		}
	}
}

// WithCloner sets a copy function applied to values on the way in and out,
// for value types that contain slices or maps.
func WithCloner[K comparable, V any](clone func(V) V) Option[K, V] {
	return func(s *Store[K, V]) {
		s.clone = clone
	}
}

// WithClock overrides the time source.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(s *Store[K, V]) {
		s.now = now
	}
}

type item[K comparable, V any] struct {
	key            K
	value          V
	size           int64
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    uint64
}

// Store is a capacity-bounded map with least-recently-used eviction.
// All methods are safe for concurrent use; every operation holds the
// store's mutex for its full duration.
type Store[K comparable, V any] struct {
	name           string
	capacity       int64
	observer       Observer
	pressure       PressureGauge
	pressureTarget float64
	clone          func(V) V
	now            func() time.Time

	mu    sync.Mutex
	items map[K]*list.Element
	// lru holds *item values, most recently used at the front.
	lru       *list.List
	size      int64
	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a store holding at most capacityBytes of accounted value size.
func New[K comparable, V any](capacityBytes int64, opts ...Option[K, V]) (*Store[K, V], error) {
	if capacityBytes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacityBytes)
	}

	s := &Store[K, V]{
		name:           "default",
		capacity:       capacityBytes,
		pressureTarget: DefaultPressureTarget,
		now:            time.Now,
		items:          make(map[K]*list.Element),
		lru:            list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.observeSize()
	return s, nil
}

// Name returns the store's label.
func (s *Store[K, V]) Name() string {
	return s.name
}

func (s *Store[K, V]) copyValue(v V) V {
	if s.clone != nil {
		return s.clone(v)
	}
	return v
}

// Get returns the value for key. A hit refreshes the entry's recency and
// access count; a miss is only counted.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.misses++
		if s.observer != nil {
			s.observer.ObserveMiss()
		}
		var zero V
		return zero, false
	}

	it := elem.Value.(*item[K, V])
	it.lastAccessedAt = s.now()
	it.accessCount++
	s.lru.MoveToFront(elem)
	s.hits++
	if s.observer != nil {
		s.observer.ObserveHit()
	}
	return s.copyValue(it.value), true
}

// Peek returns the value for key without touching recency or statistics.
func (s *Store[K, V]) Peek(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return s.copyValue(elem.Value.(*item[K, V]).value), true
}

// Entry returns a snapshot of the entry for key without touching recency or statistics.
func (s *Store[K, V]) Entry(key K) (Entry[K, V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return Entry[K, V]{}, false
	}
	it := elem.Value.(*item[K, V])
	return Entry[K, V]{
		Key:            it.key,
		Value:          s.copyValue(it.value),
		SizeBytes:      it.size,
		CreatedAt:      it.createdAt,
		LastAccessedAt: it.lastAccessedAt,
		AccessCount:    it.accessCount,
	}, true
}

// Contains reports whether key is present.
func (s *Store[K, V]) Contains(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Put inserts or replaces the value for key. Least-recently-used entries are
// evicted until the new value fits. A value larger than the whole capacity is
// rejected with ErrCacheValueTooLarge and leaves the store untouched.
func (s *Store[K, V]) Put(key K, value V, sizeBytes int64) error {
	if sizeBytes <= 0 {
		err := fmt.Errorf("%w: %d bytes", ErrInvalidSize, sizeBytes)
		if s.observer != nil {
			s.observer.ObserveRejected(err)
		}
		return err
	}
	if sizeBytes > s.capacity {
		err := fmt.Errorf("%w: %d > %d bytes", ErrCacheValueTooLarge, sizeBytes, s.capacity)
		if s.observer != nil {
			s.observer.ObserveRejected(err)
		}
		return err
	}

	// Sampled outside the lock; the gauge may do its own synchronization.
	critical := s.pressure != nil && s.pressure.Critical()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}

	if critical {
		if n := s.trimLocked(int64(float64(s.capacity) * s.pressureTarget)); n > 0 && s.observer != nil {
			s.observer.ObserveEvictions(EvictPressure, n)
		}
	}

	if n := s.trimLocked(s.capacity - sizeBytes); n > 0 && s.observer != nil {
		s.observer.ObserveEvictions(EvictCapacity, n)
	}

	now := s.now()
	it := &item[K, V]{
		key:            key,
		value:          s.copyValue(value),
		size:           sizeBytes,
		createdAt:      now,
		lastAccessedAt: now,
	}
	s.items[key] = s.lru.PushFront(it)
	s.size += sizeBytes
	s.observeSizeLocked()
	return nil
}

// Remove deletes key and reports whether it was present. Removal is not an eviction.
func (s *Store[K, V]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(elem)
	s.observeSizeLocked()
	return true
}

// RemoveFunc deletes every entry for which match returns true and returns the count.
func (s *Store[K, V]) RemoveFunc(match func(key K, value V) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.lru.Front(); elem != nil; {
		next := elem.Next()
		it := elem.Value.(*item[K, V])
		if match(it.key, it.value) {
			s.removeElement(elem)
			removed++
		}
		elem = next
	}
	if removed > 0 {
		s.observeSizeLocked()
	}
	return removed
}

// Clear removes every entry. Statistics counters are kept.
func (s *Store[K, V]) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = make(map[K]*list.Element)
	s.lru.Init()
	s.size = 0
	s.observeSizeLocked()
	return n
}

// Trim evicts least-recently-used entries until the store holds at most
// fraction*capacity bytes. It is the bulk pass used under memory pressure.
func (s *Store[K, V]) Trim(fraction float64) int {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.trimLocked(int64(float64(s.capacity) * fraction))
	if n > 0 {
		if s.observer != nil {
			s.observer.ObserveEvictions(EvictPressure, n)
		}
		s.observeSizeLocked()
	}
	return n
}

// EvictForPressure trims the store to its configured pressure target.
func (s *Store[K, V]) EvictForPressure() int {
	return s.Trim(s.pressureTarget)
}

// RemoveOlderThan evicts entries whose last access is older than maxAge.
func (s *Store[K, V]) RemoveOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	// Walk from the back: the list is ordered by recency, so stop at the first fresh entry.
	for elem := s.lru.Back(); elem != nil; {
		it := elem.Value.(*item[K, V])
		if !it.lastAccessedAt.Before(cutoff) {
			break
		}
		prev := elem.Prev()
		s.removeElement(elem)
		s.evictions++
		removed++
		elem = prev
	}
	if removed > 0 {
		if s.observer != nil {
			s.observer.ObserveEvictions(EvictExpired, removed)
		}
		s.observeSizeLocked()
	}
	return removed
}

// Len returns the number of entries.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats returns a snapshot of the store's statistics. It has no side effects.
func (s *Store[K, V]) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Statistics{
		Hits:             s.hits,
		Misses:           s.misses,
		Evictions:        s.evictions,
		Entries:          len(s.items),
		CurrentSizeBytes: s.size,
		CapacityBytes:    s.capacity,
	}
}

// trimLocked evicts from the LRU end until size <= limit. Caller holds mu.
func (s *Store[K, V]) trimLocked(limit int64) int {
	evicted := 0
	for s.size > limit {
		elem := s.lru.Back()
		if elem == nil {
			break
		}
		s.removeElement(elem)
		s.evictions++
		evicted++
	}
	return evicted
}

func (s *Store[K, V]) removeElement(elem *list.Element) {
	it := elem.Value.(*item[K, V])
	s.lru.Remove(elem)
	delete(s.items, it.key)
	s.size -= it.size
}

func (s *Store[K, V]) observeSize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeSizeLocked()
}

func (s *Store[K, V]) observeSizeLocked() {
	if s.observer != nil {
		s.observer.ObserveSize(s.size, len(s.items))
	}
}
