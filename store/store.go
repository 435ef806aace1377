// Package store persists the admin session's credentials: the access and
// refresh token pair plus the cached user profile. Storage failures are
// deliberately swallowed; a store operation that cannot complete behaves
// as if it had no effect, and the session layer re-authenticates when the
// credentials turn out to be missing.
package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Well-known credential keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// Store is a string-valued key-value credential store. Implementations
// must be safe for concurrent use and must never fail loudly: a broken
// backend reads as empty and writes are dropped.
type Store interface {
	// Get returns the stored value, or "" when absent or unreadable.
	Get(key string) string
	// Set stores the value, silently dropping it on backend failure.
	Set(key, value string)
	// Remove deletes the key if present.
	Remove(key string)
	// Clear removes every credential key.
	Clear()
}

// MemStore is an in-memory Store used by tests and as a fallback when no
// durable path is available.
type MemStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

func (s *MemStore) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *MemStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *MemStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}

// FileStore persists credentials as a JSON object in a single file. Writes
// go through a temp file and rename so a crash never leaves a torn file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFileStore constructs a file-backed store at path. The file and its
// parent directory are created lazily on first write.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()[key]
}

func (s *FileStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.load()
	values[key] = value
	s.save(values)
}

func (s *FileStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.load()
	if _, ok := values[key]; !ok {
		return
	}
	delete(values, key)
	s.save(values)
}

func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Debug("credential file remove failed", "path", s.path, "error", err)
	}
}

// load reads the backing file, mapping any failure to an empty set.
func (s *FileStore) load() map[string]string {
	values := make(map[string]string)
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("credential file read failed", "path", s.path, "error", err)
		}
		return values
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		s.logger.Debug("credential file corrupt, treating as empty", "path", s.path, "error", err)
		return make(map[string]string)
	}
	return values
}

// save writes the full credential set atomically. Failures are logged and
// dropped so callers never observe a storage error.
func (s *FileStore) save(values map[string]string) {
	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		s.logger.Debug("credential encode failed", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.logger.Debug("credential dir create failed", "path", s.path, "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		s.logger.Debug("credential write failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Debug("credential rename failed", "path", s.path, "error", err)
	}
}
