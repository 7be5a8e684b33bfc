package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"socialstore/pkg/logger"
)

// Store is a small file-backed preference map for client-facing settings
// that live outside the record store (e.g. reduced_motion). Writes are
// atomic: marshal to a temp file, then rename into place.
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]interface{}
}

// Open loads (or initializes) the preference file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]interface{}{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read prefs: %w", err)
	}
	if err := json.Unmarshal(b, &s.values); err != nil {
		logger.Warn("prefs_corrupt_reset", "path", path, "error", err)
		s.values = map[string]interface{}{}
	}
	return s, nil
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Bool returns the value for key as a bool, with a default for missing or
// mistyped entries.
func (s *Store) Bool(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Set stores the value and persists the whole map.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.persistLocked()
}

// Delete removes the key and persists; deleting a missing key is a no-op
// that still rewrites the file.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.persistLocked()
}

// All returns a copy of the preference map.
func (s *Store) All() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp prefs file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	tmp.Sync()
	tmp.Close()
	if err := os.Rename(name, s.path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("failed to move prefs into place: %w", err)
	}
	return nil
}
