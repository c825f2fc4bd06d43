package history

import (
	"strings"
	"sync"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 50

// Order selects the direction of a snapshot.
type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

func (o Order) String() string {
	if o == NewestFirst {
		return "newest"
	}
	return "oldest"
}

// ParseOrder maps a query parameter to an Order. Empty input yields def.
func ParseOrder(s string, def Order) (Order, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, true
	case "oldest", "asc", "oldest-first":
		return OldestFirst, true
	case "newest", "desc", "newest-first":
		return NewestFirst, true
	default:
		return def, false
	}
}

// Store is a fixed-capacity, append-only, time-ordered log.
// When full, appending evicts the oldest entry.
type Store struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry // ring buffer, len == capacity
	start   int                   // index of the oldest entry
	size    int
}

// New creates a store holding at most capacity entries.
func New(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, &domain.ConfigError{Field: "history capacity", Reason: "must be > 0"}
	}
	return &Store{
		entries: make([]domain.HistoryEntry, capacity),
	}, nil
}

// Append adds an entry at the newest end.
func (s *Store) Append(e domain.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.entries)
	if s.size < capacity {
		s.entries[(s.start+s.size)%capacity] = e
		s.size++
		return
	}

	// Full: overwrite the oldest slot and advance
	s.entries[s.start] = e
	s.start = (s.start + 1) % capacity
}

// Snapshot returns a copy of the entries in the requested order.
func (s *Store) Snapshot(order Order) []domain.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.HistoryEntry, s.size)
	capacity := len(s.entries)
	for i := 0; i < s.size; i++ {
		e := s.entries[(s.start+i)%capacity]
		if order == NewestFirst {
			out[s.size-1-i] = e
		} else {
			out[i] = e
		}
	}
	return out
}

// Latest returns the newest entry.
func (s *Store) Latest() (domain.HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.size == 0 {
		return domain.HistoryEntry{}, false
	}
	return s.entries[(s.start+s.size-1)%len(s.entries)], true
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.size
}

// Cap returns the fixed capacity.
func (s *Store) Cap() int {
	return len(s.entries)
}
