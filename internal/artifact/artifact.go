// Package artifact models the units of AI-driven work streamed into the
// workbench: an artifact groups an ordered stream of actions (file writes,
// shell commands) that the runner applies exactly once each.
package artifact

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrUnknownArtifact is returned when an action references an
	// artifact id that was never announced.
	ErrUnknownArtifact = errors.New("artifact: unknown artifact")
	// ErrUnknownAction is returned when a run references an action id
	// that was never added.
	ErrUnknownAction = errors.New("artifact: unknown action")
)

// ActionType labels one instruction in an artifact stream.
type ActionType string

const (
	ActionFile  ActionType = "file"
	ActionShell ActionType = "shell"
	ActionStart ActionType = "start"
)

// Action is one imperative instruction inside an artifact's stream.
// Executed guards against double-execution; an executed action is
// immutable.
type Action struct {
	ArtifactID string
	ActionID   string
	Type       ActionType
	FilePath   string
	Content    []byte
	Command    string
	Executed   bool
}

// Artifact is one coherent unit of agent work. Closed means the agent has
// finished streaming actions for it. Artifacts are retained for the
// session and never destroyed.
type Artifact struct {
	ID        string
	MessageID string
	Title     string
	Type      string
	Closed    bool

	Runner  *Runner
	actions []*Action
}

// Registry tracks every artifact announced during the session.
type Registry struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
	newRunner func(artifactID, messageID string) *Runner
}

// NewRegistry creates a registry. newRunner builds the per-artifact runner
// when an artifact is announced.
func NewRegistry(newRunner func(artifactID, messageID string) *Runner) *Registry {
	return &Registry{
		artifacts: make(map[string]*Artifact),
		newRunner: newRunner,
	}
}

// Open registers a new artifact. Re-announcing an existing id returns the
// existing artifact (streams can resume after a reload).
func (r *Registry) Open(id, messageID, title, typ string) (*Artifact, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("artifact: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.artifacts[id]; ok {
		return existing, nil
	}
	a := &Artifact{
		ID:        id,
		MessageID: strings.TrimSpace(messageID),
		Title:     strings.TrimSpace(title),
		Type:      strings.TrimSpace(typ),
	}
	if r.newRunner != nil {
		a.Runner = r.newRunner(a.ID, a.MessageID)
	}
	r.artifacts[id] = a
	return a, nil
}

// Close marks an artifact as fully streamed.
func (r *Registry) Close(id string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArtifact, id)
	}
	a.Closed = true
	return nil
}

// Get returns the artifact for id.
func (r *Registry) Get(id string) (*Artifact, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[strings.TrimSpace(id)]
	return a, ok
}

// AddAction registers a new action under its artifact, preserving arrival
// order. The same action id is registered once; later adds update the
// pending action's content (streaming re-sends grow the payload).
func (r *Registry) AddAction(action *Action) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if action == nil {
		return fmt.Errorf("artifact: action is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[strings.TrimSpace(action.ArtifactID)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArtifact, action.ArtifactID)
	}
	for _, existing := range a.actions {
		if existing.ActionID == action.ActionID {
			if existing.Executed {
				return nil
			}
			existing.FilePath = action.FilePath
			existing.Content = action.Content
			existing.Command = action.Command
			return nil
		}
	}
	a.actions = append(a.actions, action)
	return nil
}

// Action returns the registered action by id.
func (r *Registry) Action(artifactID, actionID string) (*Action, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[strings.TrimSpace(artifactID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
	}
	for _, action := range a.actions {
		if action.ActionID == actionID {
			return action, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownAction, artifactID, actionID)
}

// Actions returns the artifact's actions in arrival order.
func (r *Registry) Actions(artifactID string) ([]*Action, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[strings.TrimSpace(artifactID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
	}
	out := make([]*Action, len(a.actions))
	copy(out, a.actions)
	return out, nil
}
