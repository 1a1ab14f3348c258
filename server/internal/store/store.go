package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is a record together with the time it was stored.
type Entry struct {
	Record   *Record
	StoredAt time.Time
}

// Store is a thread-safe in-memory record store, keyed by record ID.
// A background goroutine (Run) periodically evicts entries older than the
// configured TTL.
type Store struct {
	mu       sync.RWMutex
	data     map[string]*Entry
	order    []string // insertion order, oldest first
	ttl      time.Duration
	capacity int
	now      func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL holding at most capacity records.
func New(ttl time.Duration, capacity int) *Store {
	return &Store{
		data:     make(map[string]*Entry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// TTL returns the retention period of the store.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put stores rec under rec.ID. A zero CreatedAt is set to the store clock.
// When the store is full the oldest record is dropped. Callers must not
// modify rec after calling Put.
func (s *Store) Put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if _, ok := s.data[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.data[rec.ID] = &Entry{Record: rec, StoredAt: now}

	for s.capacity > 0 && len(s.data) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.data, oldest)
		slog.Debug("store: dropped oldest record at capacity", "id", oldest)
	}
}

// Get returns the live entry for id. Stale entries that have not yet been
// evicted are reported as missing.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok || !e.StoredAt.After(s.now().Add(-s.ttl)) {
		return nil, false
	}
	return e, true
}

// List returns all live entries, newest first.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for i := len(s.order) - 1; i >= 0; i-- {
		if e := s.data[s.order[i]]; e.StoredAt.After(cutoff) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	// Insertion order already is newest first unless the clock went backwards.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StoredAt.After(out[j].StoredAt)
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose StoredAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.data[id].StoredAt.After(cutoff) {
			kept = append(kept, id)
			continue
		}
		delete(s.data, id)
		removed++
	}
	s.order = kept
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale records", "count", n)
			}
		}
	}
}
