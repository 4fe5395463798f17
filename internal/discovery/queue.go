package discovery

import "sync"

// readAheadQueue is the buffer between the walker goroutine and the consumer.
// Its bound is re-evaluated on every push so it can shrink under memory pressure.
type readAheadQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Item
	err    error
	done   bool
	closed bool
}

func newReadAheadQueue() *readAheadQueue {
	q := &readAheadQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push blocks while the queue holds limit() or more items. It returns false
// once the consumer has closed the queue.
func (q *readAheadQueue) push(item Item, limit func() int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && len(q.items) >= limit() {
		q.cond.Wait()
	}
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Broadcast()
	return true
}

// pop blocks until an item is available or the walker finished. The error is
// the walker's terminal error, delivered after all buffered items.
func (q *readAheadQueue) pop() (Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.done && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Item{}, false, q.err
	}
	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	q.cond.Broadcast()
	return item, true, nil
}

// finish is called by the walker when it stops, with its terminal error if any.
func (q *readAheadQueue) finish(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = true
	q.err = err
	q.cond.Broadcast()
}

// close is called by the consumer; blocked pushes return false.
func (q *readAheadQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
