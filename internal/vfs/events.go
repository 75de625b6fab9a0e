package vfs

// EventKind labels a store mutation.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventWrite  EventKind = "write"
	EventSave   EventKind = "save"
	EventDelete EventKind = "delete"
	EventLock   EventKind = "lock"
	EventUnlock EventKind = "unlock"
)

// Event is delivered to store observers after each committed mutation.
type Event struct {
	Kind EventKind
	Path string
}
