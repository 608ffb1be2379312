package optimistic

import "sync"

// Ledger holds tentative values that are shown before the backend confirms
// them. Confirm and Rollback are idempotent.
type Ledger[V any] struct {
	mu      sync.Mutex
	pending map[string]V
}

func NewLedger[V any]() *Ledger[V] {
	return &Ledger[V]{pending: make(map[string]V)}
}

// Add records value under key, replacing any pending value, and returns it.
func (l *Ledger[V]) Add(key string, value V) V {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[key] = value
	return value
}

// Confirm drops the pending value once the backend agrees with it.
func (l *Ledger[V]) Confirm(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, key)
}

// Rollback removes and returns the pending value. The second result is
// false when nothing was pending.
func (l *Ledger[V]) Rollback(key string) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	value, ok := l.pending[key]
	if ok {
		delete(l.pending, key)
	}
	return value, ok
}

func (l *Ledger[V]) Get(key string) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	value, ok := l.pending[key]
	return value, ok
}

func (l *Ledger[V]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.pending)
}

func (l *Ledger[V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
