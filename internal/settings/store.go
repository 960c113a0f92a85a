package settings

import "sync"

// Store keeps the machine settings cache shared by every settings view.
// Fetches replace or clear it as a whole; only field edits touch single entries.
type Store struct {
	mu      sync.RWMutex
	entries []*Entry
	changes chan struct{}
}

func NewStore() *Store {
	return &Store{
		changes: make(chan struct{}, 1),
	}
}

// Entries returns the cached entries in device order. The slice is a copy,
// the entries are shared.
func (s *Store) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)

	return out
}

func (s *Store) Replace(entries []*Entry) {
	next := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		if entry != nil {
			next = append(next, entry)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = next
	s.notify()
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.notify()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *Store) Empty() bool {
	return s.Len() == 0
}

// Edit runs fn on entry under the store lock. It returns false without calling
// fn when the entry is no longer part of the cache.
func (s *Store) Edit(entry *Entry, fn func(*Entry)) bool {
	if entry == nil || fn == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.containsLocked(entry) {
		return false
	}
	fn(entry)

	return true
}

func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) containsLocked(entry *Entry) bool {
	for _, candidate := range s.entries {
		if candidate == entry {
			return true
		}
	}

	return false
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
