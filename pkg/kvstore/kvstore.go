// Package kvstore is the device-local key-value store. It is the only
// persistence layer in the engine: a flat string map flushed to a single
// JSON file, surviving process restarts.
package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// Open loads the store from path, creating parent directories as needed.
// A missing file is an empty store, not an error.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("kvstore: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("kvstore: parse %s: %w", path, err)
	}
	return s, nil
}

// NewMemory returns a store that never touches disk. Used by tests and by
// deployments that opt out of persistence.
func NewMemory() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	err := s.flushLocked()
	s.mu.Unlock()
	return err
}

func (s *Store) Delete(keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.values, k)
	}
	err := s.flushLocked()
	s.mu.Unlock()
	return err
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// flushLocked writes the map to disk via a temp-file rename. Callers hold mu.
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("kvstore: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("kvstore: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("kvstore: rename: %w", err)
	}
	return nil
}
