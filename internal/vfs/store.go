package vfs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"workbench/internal/utils"
)

var (
	// ErrPathConflict is returned when a create collides with an existing
	// entry of the other kind.
	ErrPathConflict = errors.New("vfs: path conflict")
	// ErrNotFound is returned when an operation references an unknown path.
	ErrNotFound = errors.New("vfs: not found")
	// ErrLocked is returned when a mutation targets a locked entry.
	ErrLocked = errors.New("vfs: entry is locked")
)

// EntryKind distinguishes files from directories.
type EntryKind string

const (
	EntryFile      EntryKind = "file"
	EntryDirectory EntryKind = "directory"
)

// Entry is one file or directory in the virtual tree. Content is only
// populated for files.
type Entry struct {
	Path     string
	Kind     EntryKind
	Content  []byte
	IsBinary bool
	Locked   bool
	LockMode string
	LockedBy string
	Unsaved  bool
}

// LockState is the answer to a lock query.
type LockState struct {
	Locked   bool
	Mode     string
	LockedBy string
}

// Store is the single source of truth for in-memory file/directory state.
// All mutations notify subscribed observers synchronously after commit.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	observers []func(Event)
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
	}
}

// Subscribe registers an observer for mutation events. Observers run on the
// mutating goroutine, after the change is committed and the lock released.
func (s *Store) Subscribe(fn func(Event)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Store) notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	obs := make([]func(Event), len(s.observers))
	copy(obs, s.observers)
	s.mu.RUnlock()
	for _, fn := range obs {
		for _, ev := range events {
			fn(ev)
		}
	}
}

// ensureAncestorsLocked materializes directory entries for every ancestor
// of path. Caller holds the write lock.
func (s *Store) ensureAncestorsLocked(path string) {
	for _, dir := range utils.Ancestors(path) {
		if _, ok := s.entries[dir]; !ok {
			s.entries[dir] = &Entry{Path: dir, Kind: EntryDirectory}
		}
	}
}

// CreateFile adds a file at path, creating parent directories implicitly.
// An existing file at path is overwritten; an existing directory is a
// conflict.
func (s *Store) CreateFile(path string, content []byte) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	if existing, ok := s.entries[path]; ok {
		if existing.Kind == EntryDirectory {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s exists as a directory", ErrPathConflict, path)
		}
		if existing.Locked {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrLocked, path)
		}
	}
	s.ensureAncestorsLocked(path)
	s.entries[path] = &Entry{
		Path:     path,
		Kind:     EntryFile,
		Content:  append([]byte(nil), content...),
		IsBinary: isBinary(content),
		Unsaved:  true,
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventCreate, Path: path})
	return nil
}

// CreateFolder adds a directory at path. Idempotent when the directory
// already exists; a file at the same path is a conflict.
func (s *Store) CreateFolder(path string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	if existing, ok := s.entries[path]; ok {
		s.mu.Unlock()
		if existing.Kind == EntryFile {
			return fmt.Errorf("%w: %s exists as a file", ErrPathConflict, path)
		}
		return nil
	}
	s.ensureAncestorsLocked(path)
	s.entries[path] = &Entry{Path: path, Kind: EntryDirectory}
	s.mu.Unlock()
	s.notify(Event{Kind: EventCreate, Path: path})
	return nil
}

// WriteFile overwrites a file's content, creating the file if absent, and
// marks it unsaved. This is the live-update entry point used during
// streaming; SaveFile is the durable counterpart.
func (s *Store) WriteFile(path string, content []byte) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	existing, ok := s.entries[path]
	if ok {
		if existing.Kind == EntryDirectory {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s exists as a directory", ErrPathConflict, path)
		}
		if existing.Locked {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrLocked, path)
		}
		existing.Content = append([]byte(nil), content...)
		existing.IsBinary = isBinary(content)
		existing.Unsaved = true
		s.mu.Unlock()
		s.notify(Event{Kind: EventWrite, Path: path})
		return nil
	}
	s.ensureAncestorsLocked(path)
	s.entries[path] = &Entry{
		Path:     path,
		Kind:     EntryFile,
		Content:  append([]byte(nil), content...),
		IsBinary: isBinary(content),
		Unsaved:  true,
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventCreate, Path: path})
	return nil
}

// SaveFile overwrites a known file's content and clears its unsaved flag.
func (s *Store) SaveFile(path string, content []byte) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	existing, ok := s.entries[path]
	if !ok || existing.Kind != EntryFile {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if existing.Locked {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLocked, path)
	}
	existing.Content = append([]byte(nil), content...)
	existing.IsBinary = isBinary(content)
	existing.Unsaved = false
	s.mu.Unlock()
	s.notify(Event{Kind: EventSave, Path: path})
	return nil
}

// DeleteFile removes a single file.
func (s *Store) DeleteFile(path string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	existing, ok := s.entries[path]
	if !ok || existing.Kind != EntryFile {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if existing.Locked {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLocked, path)
	}
	delete(s.entries, path)
	s.mu.Unlock()
	s.notify(Event{Kind: EventDelete, Path: path})
	return nil
}

// DeleteFolder removes a directory and every descendant entry. The removal
// happens under one lock: callers never observe a partially deleted tree.
func (s *Store) DeleteFolder(path string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	existing, ok := s.entries[path]
	if !ok || existing.Kind != EntryDirectory {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	removed := []string{path}
	for p := range s.entries {
		if utils.IsDescendant(path, p) {
			removed = append(removed, p)
		}
	}
	for _, p := range removed {
		delete(s.entries, p)
	}
	s.mu.Unlock()
	sort.Strings(removed)
	events := make([]Event, 0, len(removed))
	for _, p := range removed {
		events = append(events, Event{Kind: EventDelete, Path: p})
	}
	s.notify(events...)
	return nil
}

// LockFile marks a file locked. Locking an already-locked file is a no-op.
func (s *Store) LockFile(path, mode, lockedBy string) error {
	return s.lock(path, mode, lockedBy, EntryFile, false)
}

// LockFolder marks a directory locked and cascades to all descendants.
func (s *Store) LockFolder(path, mode, lockedBy string) error {
	return s.lock(path, mode, lockedBy, EntryDirectory, true)
}

func (s *Store) lock(path, mode, lockedBy string, kind EntryKind, cascade bool) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	existing, ok := s.entries[path]
	if !ok || existing.Kind != kind {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	targets := []*Entry{existing}
	if cascade {
		for p, e := range s.entries {
			if utils.IsDescendant(path, p) {
				targets = append(targets, e)
			}
		}
	}
	changed := make([]Event, 0, len(targets))
	for _, e := range targets {
		if e.Locked {
			continue
		}
		e.Locked = true
		e.LockMode = mode
		e.LockedBy = lockedBy
		changed = append(changed, Event{Kind: EventLock, Path: e.Path})
	}
	s.mu.Unlock()
	s.notify(changed...)
	return nil
}

// UnlockFile clears a file's lock.
func (s *Store) UnlockFile(path string) error {
	return s.unlock(path, EntryFile, false)
}

// UnlockFolder clears a directory's lock and cascades to all descendants.
func (s *Store) UnlockFolder(path string) error {
	return s.unlock(path, EntryDirectory, true)
}

func (s *Store) unlock(path string, kind EntryKind, cascade bool) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return fmt.Errorf("vfs: path is required")
	}
	s.mu.Lock()
	existing, ok := s.entries[path]
	if !ok || existing.Kind != kind {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	targets := []*Entry{existing}
	if cascade {
		for p, e := range s.entries {
			if utils.IsDescendant(path, p) {
				targets = append(targets, e)
			}
		}
	}
	changed := make([]Event, 0, len(targets))
	for _, e := range targets {
		if !e.Locked {
			continue
		}
		e.Locked = false
		e.LockMode = ""
		e.LockedBy = ""
		changed = append(changed, Event{Kind: EventUnlock, Path: e.Path})
	}
	s.mu.Unlock()
	s.notify(changed...)
	return nil
}

// FileLockState reports the lock state of a file.
func (s *Store) FileLockState(path string) (LockState, error) {
	return s.lockState(path, EntryFile)
}

// FolderLockState reports the lock state of a directory.
func (s *Store) FolderLockState(path string) (LockState, error) {
	return s.lockState(path, EntryDirectory)
}

func (s *Store) lockState(path string, kind EntryKind) (LockState, error) {
	if s == nil {
		return LockState{}, fmt.Errorf("store is nil")
	}
	path = utils.NormalizePath(path)
	if path == "" {
		return LockState{}, fmt.Errorf("vfs: path is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.entries[path]
	if !ok || existing.Kind != kind {
		return LockState{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return LockState{
		Locked:   existing.Locked,
		Mode:     existing.LockMode,
		LockedBy: existing.LockedBy,
	}, nil
}

// Get returns a copy of the entry at path.
func (s *Store) Get(path string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	path = utils.NormalizePath(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.entries[path]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(existing), true
}

// Snapshot returns a copy of every entry, sorted by path. The push engine
// and export surfaces read from snapshots, never from live entries.
func (s *Store) Snapshot() []Entry {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyEntry(e))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// FileCount returns the number of file entries (directories excluded).
func (s *Store) FileCount() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Kind == EntryFile {
			n++
		}
	}
	return n
}

// UnsavedPaths lists files whose content diverges from the last save.
func (s *Store) UnsavedPaths() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]string, 0, 8)
	for p, e := range s.entries {
		if e.Kind == EntryFile && e.Unsaved {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func copyEntry(e *Entry) Entry {
	out := *e
	out.Content = append([]byte(nil), e.Content...)
	return out
}

// isBinary applies the same heuristic as the editor side: a NUL byte in the
// first 8000 bytes marks the content binary.
func isBinary(content []byte) bool {
	limit := len(content)
	if limit > 8000 {
		limit = 8000
	}
	return strings.ContainsRune(string(content[:limit]), '\x00')
}
