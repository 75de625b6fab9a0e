package repocontext

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the durable key-value storage the manager persists to.
type Store interface {
	Get(key string) (Context, bool, error)
	Put(key string, ctx Context) error
	Delete(key string) error
}

// FileStore keeps contexts in one JSON file. Suited to the local single
// user gateway; the Postgres store covers shared deployments.
type FileStore struct {
	path string

	loadOnce sync.Once
	mu       sync.RWMutex
	byKey    map[string]Context
}

func NewFileStore(path string) *FileStore {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("tmp", "repository_context.json")
	}
	return &FileStore{
		path:  path,
		byKey: make(map[string]Context),
	}
}

func (s *FileStore) ensureLoaded() {
	s.loadOnce.Do(func() {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var rows map[string]Context
		if err := json.Unmarshal(data, &rows); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for k, v := range rows {
			if strings.TrimSpace(k) == "" {
				continue
			}
			s.byKey[k] = v
		}
	})
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.byKey, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *FileStore) Get(key string) (Context, bool, error) {
	if s == nil {
		return Context{}, false, nil
	}
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.byKey[key]
	return ctx, ok, nil
}

func (s *FileStore) Put(key string, ctx Context) error {
	if s == nil {
		return nil
	}
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key] = ctx
	return s.flushLocked()
}

func (s *FileStore) Delete(key string) error {
	if s == nil {
		return nil
	}
	s.ensureLoaded()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[key]; !ok {
		return nil
	}
	delete(s.byKey, key)
	return s.flushLocked()
}
