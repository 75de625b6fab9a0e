// Package repocontext tracks which remote repository the current
// workspace is bound to, persisted across reloads.
package repocontext

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Provider tags the remote Git host.
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// storageKey is the fixed key the context is persisted under.
const storageKey = "workbench.currentRepository"

// maxAge bounds how long a persisted context stays valid. Older entries
// are discarded on restore.
const maxAge = 7 * 24 * time.Hour

// Context binds the workspace to a remote location. IsOpen=true implies
// Provider, Owner and Name are set.
type Context struct {
	Provider  Provider  `json:"provider"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	FullName  string    `json:"fullName"`
	Branch    string    `json:"branch"`
	IsOpen    bool      `json:"isOpen"`
	LastSync  time.Time `json:"lastSync"`
	RemoteURL string    `json:"remoteUrl"`
}

func defaultContext() Context {
	return Context{Branch: "main"}
}

// Update is a partial context change; zero fields keep their current
// value.
type Update struct {
	Provider  Provider
	Owner     string
	Name      string
	FullName  string
	Branch    string
	RemoteURL string
}

// Manager holds the single current-repository binding and mirrors it to a
// durable store.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	current Context
	now     func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{
		store:   store,
		current: defaultContext(),
		now:     time.Now,
	}
}

// Current returns the in-memory context.
func (m *Manager) Current() Context {
	if m == nil {
		return defaultContext()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Set merges the partial update onto the current context, forces
// IsOpen=true and LastSync=now, and persists. A persistence failure is
// logged; the in-memory state is still updated.
func (m *Manager) Set(update Update) Context {
	if m == nil {
		return defaultContext()
	}
	m.mu.Lock()
	next := m.current
	if update.Provider != ProviderNone {
		next.Provider = update.Provider
	}
	if v := strings.TrimSpace(update.Owner); v != "" {
		next.Owner = v
	}
	if v := strings.TrimSpace(update.Name); v != "" {
		next.Name = v
	}
	if v := strings.TrimSpace(update.FullName); v != "" {
		next.FullName = v
	}
	if v := strings.TrimSpace(update.Branch); v != "" {
		next.Branch = v
	}
	if v := strings.TrimSpace(update.RemoteURL); v != "" {
		next.RemoteURL = v
	}
	if next.FullName == "" && next.Owner != "" && next.Name != "" {
		next.FullName = next.Owner + "/" + next.Name
	}
	next.IsOpen = true
	next.LastSync = m.now()
	m.current = next
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Put(storageKey, next); err != nil {
			log.Printf("repocontext: persist failed: %v", err)
		}
	}
	return next
}

// Clear resets to the default shape and removes the persisted entry.
func (m *Manager) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.current = defaultContext()
	m.mu.Unlock()
	if m.store != nil {
		if err := m.store.Delete(storageKey); err != nil {
			log.Printf("repocontext: clear failed: %v", err)
		}
	}
}

// Restore reads the persisted entry on startup. Entries older than seven
// days are expired: they are cleared, not adopted.
func (m *Manager) Restore() {
	if m == nil || m.store == nil {
		return
	}
	ctx, ok, err := m.store.Get(storageKey)
	if err != nil {
		log.Printf("repocontext: restore failed: %v", err)
		return
	}
	if !ok {
		return
	}
	if m.now().Sub(ctx.LastSync) > maxAge {
		log.Printf("repocontext: persisted context for %s expired, clearing", ctx.FullName)
		m.Clear()
		return
	}
	m.mu.Lock()
	m.current = ctx
	m.mu.Unlock()
}
