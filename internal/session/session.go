package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"photo-discovery/internal/classify"
	"photo-discovery/internal/discovery"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/metrics"
)

var (
	// ErrNotInitialized is returned by NextBatch before Initialize.
	ErrNotInitialized = errors.New("session: not initialized")
	// ErrInvalidPageSize is returned for a page size below 1.
	ErrInvalidPageSize = errors.New("session: page size must be positive")
	// ErrInvalidToken is returned for a continuation token that cannot be decoded.
	ErrInvalidToken = errors.New("session: invalid continuation token")
	// ErrStaleToken is returned when a token can no longer be resumed.
	ErrStaleToken = errors.New("session: continuation token cannot be resumed")
)

// Batch is one page of a discovery session.
type Batch struct {
	Entries []classify.FileEntry
	// Skipped lists entries that could not be read; they do not count toward the page size.
	Skipped           []discovery.SkippedEntry
	BatchIndex        int
	IsLastBatch       bool
	ContinuationToken string
	Generation        uint64
	// Cancelled is set when the session was cancelled before or during this call.
	Cancelled bool
	// TimedOut is set when the batch was cut short by the batch timeout or the caller's context.
	TimedOut bool
}

// Handle identifies a started session run.
type Handle struct {
	Root       string
	Generation uint64
}

// Status is a snapshot of a session's progress.
type Status struct {
	// Active is false before Initialize; the other fields are then zero.
	Active     bool
	Root       string
	Generation uint64
	// BatchesDelivered and the counts below cover the current generation only.
	BatchesDelivered int
	EntriesDelivered int
	SkippedDelivered int
	// NextBatchIndex continues across a resumed token.
	NextBatchIndex int
	// HasMore is false once the last batch was delivered, the scan was
	// cancelled or superseded, or the root failed.
	HasMore   bool
	Cancelled bool
	Err       error
}

// Options configures a Session.
type Options struct {
	// BatchTimeout bounds how long NextBatch waits; 0 waits until the page is full.
	BatchTimeout time.Duration
}

type result struct {
	item discovery.Item
	err  error
}

// run is one generation's scan. Fields below the line are owned by the
// NextBatch caller holding Session.nextMu.
type run struct {
	root       string
	ticket     discovery.Ticket
	ctx        context.Context
	cancel     context.CancelFunc
	items      chan result
	superseded atomic.Bool

	// progress mirrors the fields below for Status, which must not wait on
	// NextBatch.
	progressMu sync.Mutex
	progress   Status

	nextIndex int
	lastKey   string
	finished  bool
	cancelled bool
	lastBatch int
	err       error
}

// Session pages through one DiscoveryEngine scan at a time.
//
// NextBatch is the only blocking call. Cancel, Reset and Initialize never
// wait for an in-flight NextBatch; they invalidate its generation and it
// returns promptly.
type Session struct {
	engine *discovery.Engine
	opts   Options
	gens   discovery.Generations

	mu  sync.Mutex
	run *run

	nextMu sync.Mutex
}

// New creates an idle session backed by engine.
func New(engine *discovery.Engine, opts Options) *Session {
	return &Session{engine: engine, opts: opts}
}

// Initialize starts a new generation scanning root. A scan already running
// is superseded, as with Reset.
func (s *Session) Initialize(root string) Handle {
	return s.start(root, "", 0)
}

// Reset cancels the current scan and starts one on root.
func (s *Session) Reset(root string) Handle {
	return s.start(root, "", 0)
}

// Cancel stops the current scan. NextBatch then returns cancelled, terminal
// batches until the session is reset.
func (s *Session) Cancel() {
	s.mu.Lock()
	r := s.run
	if r == nil {
		s.mu.Unlock()
		return
	}
	s.gens.Advance()
	s.mu.Unlock()

	r.cancel()
	metrics.SessionCancelsTotal.Inc()
	logging.Info("Session cancelled: root=%s generation=%d", r.root, r.ticket.Generation())
}

// Close releases the background scan.
func (s *Session) Close() {
	s.Cancel()
}

// Current returns the live run's handle, or false when idle.
func (s *Session) Current() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return Handle{}, false
	}
	return Handle{Root: s.run.root, Generation: s.run.ticket.Generation()}, true
}

func (s *Session) start(root, after string, nextIndex int) Handle {
	root = filepath.Clean(root)

	s.mu.Lock()
	old := s.run
	s.gens.Advance()
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		root:      root,
		ticket:    s.gens.Ticket(),
		ctx:       ctx,
		cancel:    cancel,
		items:     make(chan result),
		nextIndex: nextIndex,
		lastKey:   after,
		progress: Status{
			Active:         true,
			Root:           root,
			NextBatchIndex: nextIndex,
			HasMore:        true,
		},
	}
	r.progress.Generation = r.ticket.Generation()
	s.run = r
	s.mu.Unlock()

	if old != nil {
		old.superseded.Store(true)
		old.cancel()
	}

	metrics.SessionResetsTotal.Inc()
	go s.drive(r, after)

	logging.Info("Session started: root=%s generation=%d", root, r.ticket.Generation())
	return Handle{Root: root, Generation: r.ticket.Generation()}
}

// drive is the single background worker feeding a run.
func (s *Session) drive(r *run, after string) {
	defer close(r.items)

	for item, err := range s.engine.ScanAfter(r.ctx, r.root, r.ticket, after) {
		select {
		case r.items <- result{item: item, err: err}:
		case <-r.ctx.Done():
			return
		}
	}
}

// NextBatch returns up to pageSize entries. It returns fewer only on the last
// batch, on cancellation, or on timeout. After the last batch it keeps
// returning empty last batches. A root failure is returned as an error, and
// keeps being returned until the session is reset.
func (s *Session) NextBatch(ctx context.Context, pageSize int) (Batch, error) {
	if pageSize < 1 {
		return Batch{}, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}

	s.nextMu.Lock()
	defer s.nextMu.Unlock()

	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return Batch{}, ErrNotInitialized
	}

	if r.err != nil {
		metrics.SessionBatchesTotal.WithLabelValues("error").Inc()
		return Batch{}, r.err
	}
	if r.finished || r.cancelled {
		return s.terminal(r), nil
	}

	start := time.Now()
	batch, err := s.collect(ctx, r, pageSize)
	metrics.SessionBatchWait.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SessionBatchesTotal.WithLabelValues("error").Inc()
		return Batch{}, err
	}

	metrics.SessionBatchSize.Observe(float64(len(batch.Entries)))
	metrics.SessionBatchesTotal.WithLabelValues(outcome(batch)).Inc()
	logging.Debug("Session batch %d: root=%s generation=%d entries=%d skipped=%d last=%v",
		batch.BatchIndex, r.root, batch.Generation, len(batch.Entries), len(batch.Skipped), batch.IsLastBatch)
	return batch, nil
}

func (s *Session) collect(ctx context.Context, r *run, pageSize int) (Batch, error) {
	batch := Batch{Generation: r.ticket.Generation()}

	var timeout <-chan time.Time
	if s.opts.BatchTimeout > 0 {
		timer := time.NewTimer(s.opts.BatchTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

collecting:
	for len(batch.Entries) < pageSize {
		select {
		case res, ok := <-r.items:
			if !ok {
				if r.ctx.Err() != nil || !r.ticket.Valid() {
					r.cancelled = true
				} else {
					r.finished = true
				}
				break collecting
			}
			if res.err != nil {
				r.err = res.err
				r.record(Batch{}, false)
				return Batch{}, res.err
			}
			// Handed over after a cancel: drop it.
			if !r.ticket.Valid() {
				r.cancelled = true
				break collecting
			}
			r.lastKey = res.item.SortKey()
			if res.item.Skipped != nil {
				batch.Skipped = append(batch.Skipped, *res.item.Skipped)
			} else {
				batch.Entries = append(batch.Entries, res.item.Entry)
			}
		case <-r.ctx.Done():
			r.cancelled = true
			break collecting
		case <-timeout:
			batch.TimedOut = true
			break collecting
		case <-ctx.Done():
			batch.TimedOut = true
			break collecting
		}
	}

	if r.cancelled {
		batch.Cancelled = true
		batch.IsLastBatch = true
		if r.superseded.Load() {
			batch.Entries = nil
			batch.Skipped = nil
		}
	}
	if r.finished {
		batch.IsLastBatch = true
	}

	batch.BatchIndex = r.nextIndex
	r.lastBatch = r.nextIndex
	r.nextIndex++
	batch.ContinuationToken = s.token(r, batch.BatchIndex)
	r.record(batch, true)
	return batch, nil
}

// record publishes the outcome of a NextBatch call to Status.
func (r *run) record(b Batch, delivered bool) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()

	p := &r.progress
	if delivered {
		p.BatchesDelivered++
		p.EntriesDelivered += len(b.Entries)
		p.SkippedDelivered += len(b.Skipped)
	}
	p.NextBatchIndex = r.nextIndex
	p.Cancelled = r.cancelled
	p.Err = r.err
	p.HasMore = !r.finished && !r.cancelled && r.err == nil
}

// Status reports the current run's progress without waiting for an
// in-flight NextBatch. A run that was cancelled or superseded but has not
// yet returned its cancelled batch already reports no more entries.
func (s *Session) Status() Status {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return Status{}
	}

	r.progressMu.Lock()
	st := r.progress
	r.progressMu.Unlock()

	if st.HasMore && (!r.ticket.Valid() || r.ctx.Err() != nil) {
		st.HasMore = false
		st.Cancelled = true
	}
	return st
}

// terminal is the idempotent batch returned after the last one.
func (s *Session) terminal(r *run) Batch {
	return Batch{
		BatchIndex:        r.lastBatch,
		IsLastBatch:       true,
		Generation:        r.ticket.Generation(),
		Cancelled:         r.cancelled,
		ContinuationToken: s.token(r, r.lastBatch),
	}
}

func (s *Session) token(r *run, batchIndex int) string {
	return cursor{
		Root:       r.root,
		Generation: r.ticket.Generation(),
		BatchIndex: batchIndex,
		LastKey:    r.lastKey,
		Order:      string(s.engine.Options().Order),
	}.encode()
}

// Resume continues from a continuation token. If the token is the latest one
// of the live run, the run simply continues. Otherwise a new generation
// starts, positioned after the token's last entry; that requires path order.
func (s *Session) Resume(token string) (Handle, error) {
	c, err := decodeCursor(token)
	if err != nil {
		return Handle{}, err
	}

	s.nextMu.Lock()
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	live := r != nil && r.root == c.Root && r.ticket.Generation() == c.Generation &&
		r.ticket.Valid() && r.err == nil && r.nextIndex == c.BatchIndex+1 && r.lastKey == c.LastKey
	s.nextMu.Unlock()

	if live {
		logging.Debug("Session resume on live run: root=%s generation=%d", c.Root, c.Generation)
		return Handle{Root: r.root, Generation: r.ticket.Generation()}, nil
	}

	if c.Order != string(discovery.OrderPath) || s.engine.Options().Order != discovery.OrderPath {
		return Handle{}, fmt.Errorf("%w: only %q order can be resumed after a restart",
			ErrStaleToken, discovery.OrderPath)
	}

	logging.Info("Session resuming after %q in %s", c.LastKey, c.Root)
	return s.start(c.Root, c.LastKey, c.BatchIndex+1), nil
}

func outcome(b Batch) string {
	switch {
	case b.Cancelled:
		return "cancelled"
	case b.TimedOut:
		return "timeout"
	case b.IsLastBatch:
		return "last"
	default:
		return "full"
	}
}
