package resolver

import "sync"

// Store maps dynamic-object tags to their last bound value. Reads are
// concurrent; writes to one tag are serialized by that tag's lock.
type Store struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

type slot struct {
	mu    sync.RWMutex
	value string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// Bind sets tag to value, replacing any earlier value.
func (s *Store) Bind(tag, value string) {
	sl := s.slotFor(tag)
	sl.mu.Lock()
	sl.value = value
	sl.mu.Unlock()
}

// Lookup returns the value bound to tag.
func (s *Store) Lookup(tag string) (string, bool) {
	s.mu.RLock()
	sl, ok := s.slots[tag]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.value, true
}

// Snapshot copies every binding.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.slots))
	for tag, sl := range s.slots {
		sl.mu.RLock()
		out[tag] = sl.value
		sl.mu.RUnlock()
	}
	return out
}

func (s *Store) slotFor(tag string) *slot {
	s.mu.RLock()
	sl, ok := s.slots[tag]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[tag]; ok {
		return sl
	}
	sl = &slot{}
	s.slots[tag] = sl
	return sl
}
