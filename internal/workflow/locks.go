package workflow

import "sync"

// RequestLocks serializes mutation of a single request aggregate. Every
// submitDecision/editRequest/submitReceipt call acquires the lock for its
// request id before opening the transaction, so cross-level races settle
// here instead of by optimistic retries. Requests are independent
// aggregates; no cross-request ordering is imposed.
type RequestLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewRequestLocks creates an empty lock table.
func NewRequestLocks() *RequestLocks {
	return &RequestLocks{
		entries: make(map[string]*lockEntry),
	}
}

// Acquire locks the aggregate identified by id and returns the release
// function. Entries are reference counted so the table doesn't grow with
// the number of requests ever seen.
func (l *RequestLocks) Acquire(id string) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
