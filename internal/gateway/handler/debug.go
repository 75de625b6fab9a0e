package handler

import (
	"net/http"

	"workbench/internal/execqueue"
	"workbench/internal/vfs"
)

// DebugHandler exposes runtime observability endpoints.
type DebugHandler struct {
	queue *execqueue.Queue
	store *vfs.Store
}

func NewDebugHandler(queue *execqueue.Queue, store *vfs.Store) *DebugHandler {
	return &DebugHandler{queue: queue, store: store}
}

func (h *DebugHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"depth":         h.queue.Depth(),
		"file_count":    h.store.FileCount(),
		"unsaved_paths": h.store.UnsavedPaths(),
	})
}
