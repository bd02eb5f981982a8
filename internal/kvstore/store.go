// Package kvstore provides the durable string-keyed record store the progress
// engine writes through, together with its change-notification channel.
package kvstore

import (
	"errors"
	"sync"
)

// ErrClosed is returned by writes to a closed store.
var ErrClosed = errors.New("store is closed")

// Store is a synchronous string-keyed store with read-your-writes semantics.
// Get reports a missing key as ok=false with a nil error; a non-nil error means
// the backend could not be read and the key's presence is unknown.
// Publish and Subscribe carry change notifications between writers and views.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
	Publish(c Change)
	Subscribe(fn Listener) func()
	Close() error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	*Hub

	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Hub:    NewHub(),
		values: make(map[string]string),
	}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.values, key)
	return nil
}

// Keys returns a snapshot of stored keys, mostly for tests.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
