// Package alert carries workbench failure notices (build/action failures,
// database schema issues, deploy problems) from the action runner to
// whoever renders them.
package alert

import (
	"context"
	"sync"
	"time"
)

// Kind tags an alert event so subscribers can filter without separate
// callback wiring per category.
type Kind string

const (
	KindAction Kind = "action"
	KindSchema Kind = "schema"
	KindDeploy Kind = "deploy"
)

// Event is one alert. Content holds enough detail for a human-readable
// notice and a "post back to the agent" affordance.
type Event struct {
	Kind        Kind      `json:"kind"`
	ArtifactID  string    `json:"artifactId,omitempty"`
	ActionID    string    `json:"actionId,omitempty"`
	MessageID   string    `json:"messageId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content,omitempty"`
	Source      string    `json:"source,omitempty"`
	At          time.Time `json:"at"`
}

// Bus fans alert events out to subscribers. Publish never blocks: a slow
// subscriber loses its oldest undelivered event, not the publisher.
type Bus struct {
	mu       sync.Mutex
	subs     map[int]chan Event
	nextID   int
	reloaded map[string]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subs:     make(map[int]chan Event),
		reloaded: make(map[string]struct{}),
	}
}

// MarkReloaded suppresses future alerts attributed to messageID. Used when
// a chat message has been reloaded/resumed and re-running its actions would
// spam duplicate alerts.
func (b *Bus) MarkReloaded(messageID string) {
	if b == nil || messageID == "" {
		return
	}
	b.mu.Lock()
	b.reloaded[messageID] = struct{}{}
	b.mu.Unlock()
}

// Reloaded reports whether alerts for messageID are suppressed.
func (b *Bus) Reloaded(messageID string) bool {
	if b == nil || messageID == "" {
		return false
	}
	b.mu.Lock()
	_, ok := b.reloaded[messageID]
	b.mu.Unlock()
	return ok
}

// Publish delivers an event to every subscriber. Events from reloaded
// messages are dropped.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	if ev.MessageID != "" {
		if _, suppressed := b.reloaded[ev.MessageID]; suppressed {
			b.mu.Unlock()
			return
		}
	}
	chans := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full buffer: drop the oldest event, then retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of alert events. The subscription is removed
// when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	if b == nil {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, 32)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return ch
}
