// Package store holds the bounded, newest-first working set of records.
package store

import (
	"sync"

	"github.com/atikulmunna/eveflow/internal/model"
)

// DefaultCapacity is the number of records retained when none is configured.
const DefaultCapacity = 1000

// Store is a fixed-capacity ring of records. Inserts go to the front; once
// full, each insert evicts the oldest-inserted record. Eviction follows
// insertion order, not record timestamps.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Record
	head  int // slot the next insert writes
	count int
}

// New creates a Store holding at most capacity records.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]model.Record, capacity)}
}

// InsertFront adds rec as the newest record, evicting the oldest when full.
func (s *Store) InsertFront(rec model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf[s.head] = rec
	s.head = (s.head + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
}

// Snapshot returns up to n of the newest records, newest first.
// The returned slice is a copy and safe to hand to other goroutines.
func (s *Store) Snapshot(n int) []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.count {
		n = s.count
	}
	if n < 0 {
		n = 0
	}
	out := make([]model.Record, n)
	for i := 0; i < n; i++ {
		out[i] = s.buf[s.index(i)]
	}
	return out
}

// All returns a copy of every record, newest first.
func (s *Store) All() []model.Record {
	return s.Snapshot(s.Cap())
}

// Get returns the newest record with the given id.
func (s *Store) Get(id string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.count; i++ {
		if rec := s.buf[s.index(i)]; rec.ID == id {
			return rec, true
		}
	}
	return model.Record{}, false
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Cap returns the fixed capacity.
func (s *Store) Cap() int {
	return len(s.buf)
}

// index maps the i-th newest position to a slot. Caller holds mu.
func (s *Store) index(i int) int {
	return (s.head - 1 - i + 2*len(s.buf)) % len(s.buf)
}
