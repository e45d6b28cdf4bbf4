// Package ledger tracks idempotency keys that have produced a committed,
// paid, successful effect. It bounds memory with an LRU capacity limit and
// a per-record TTL, and tracks in-flight keys so concurrent duplicates can
// be rejected instead of racing to the handler.
package ledger

import (
	"container/list"
	"sync"
	"time"
)

// Status is the result of checking a key for admission.
type Status int

const (
	// StatusAdmitted means the key is unknown; it is now marked in flight
	// and the caller should proceed. Pair with Commit or Release.
	StatusAdmitted Status = iota
	// StatusCommitted means the key already produced a committed effect.
	StatusCommitted
	// StatusPending means another request with the same key is in flight.
	StatusPending
)

type record struct {
	key         string
	committedAt time.Time
}

// Ledger is a bounded, time-expiring record of committed idempotency keys.
// All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	records  map[string]*list.Element
	order    *list.List // front = most recently used
	inFlight map[string]struct{}
	now      func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger holding at most capacity records, each expiring ttl
// after its commit.
func New(capacity int, ttl time.Duration, opts ...Option) *Ledger {
	if capacity <= 0 {
		panic("ledger: capacity must be positive")
	}
	if ttl <= 0 {
		panic("ledger: ttl must be positive")
	}
	l := &Ledger{
		capacity: capacity,
		ttl:      ttl,
		records:  make(map[string]*list.Element),
		order:    list.New(),
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit atomically checks key and, when it is unknown, marks it in flight.
// StatusAdmitted must be paired with exactly one Commit or Release.
func (l *Ledger) Admit(key string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seenLocked(key) {
		return StatusCommitted
	}
	if _, ok := l.inFlight[key]; ok {
		return StatusPending
	}
	l.inFlight[key] = struct{}{}
	return StatusAdmitted
}

// HasSeen reports whether a committed, unexpired record exists for key.
func (l *Ledger) HasSeen(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seenLocked(key)
}

// Commit inserts or refreshes the record for key, clears any in-flight
// mark, and evicts the least-recently-used record when over capacity.
func (l *Ledger) Commit(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.inFlight, key)

	if elem, ok := l.records[key]; ok {
		elem.Value.(*record).committedAt = l.now()
		l.order.MoveToFront(elem)
		return
	}

	l.records[key] = l.order.PushFront(&record{key: key, committedAt: l.now()})
	l.evictLocked()
}

// Release clears the in-flight mark for key without committing, leaving
// the key retryable. Used when the attempt failed payment or the handler.
func (l *Ledger) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, key)
}

// Len reports the number of committed records, for tests.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// seenLocked resolves key, dropping the record if its TTL elapsed.
// A live hit counts as a use for LRU purposes.
func (l *Ledger) seenLocked(key string) bool {
	elem, ok := l.records[key]
	if !ok {
		return false
	}
	rec := elem.Value.(*record)
	if l.now().Sub(rec.committedAt) >= l.ttl {
		l.removeLocked(elem)
		return false
	}
	l.order.MoveToFront(elem)
	return true
}

func (l *Ledger) evictLocked() {
	// Shed expired records from the cold end first, then enforce the
	// capacity bound.
	now := l.now()
	for elem := l.order.Back(); elem != nil; {
		rec := elem.Value.(*record)
		if now.Sub(rec.committedAt) < l.ttl {
			break
		}
		prev := elem.Prev()
		l.removeLocked(elem)
		elem = prev
	}
	for l.order.Len() > l.capacity {
		l.removeLocked(l.order.Back())
	}
}

func (l *Ledger) removeLocked(elem *list.Element) {
	rec := elem.Value.(*record)
	l.order.Remove(elem)
	delete(l.records, rec.key)
}
