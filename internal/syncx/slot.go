// Package syncx provides small synchronization helpers
package syncx

import "sync"

// Slot is a mutex-guarded single value. It backs the pipeline's
// "current X" fields: the sync snapshot and the latest classification.
// Writers replace the whole value; readers get a copy of it.
type Slot[T any] struct {
	mu    sync.RWMutex
	value T
	set   bool
}

// Set replaces the stored value.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.set = true
	s.mu.Unlock()
}

// Get returns the stored value and whether one has ever been set.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// Clear resets the slot to its empty state.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.set = false
	s.mu.Unlock()
}
