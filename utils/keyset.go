package utils

import "sync"

// KeySet is a thread-safe set of primary keys seen during a run.
type KeySet struct {
	mu   sync.RWMutex
	seen map[string]int
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]int)}
}

// Add records key and reports whether it was new.
func (s *KeySet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[key]++
	return s.seen[key] == 1
}

// Size returns the number of distinct keys.
func (s *KeySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Repeated returns the keys added more than once with their occurrence counts.
func (s *KeySet) Repeated() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for k, n := range s.seen {
		if n > 1 {
			out[k] = n
		}
	}
	return out
}
