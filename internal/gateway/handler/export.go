package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"workbench/internal/export"
	"workbench/internal/vfs"
)

// ExportHandler serves read-only workspace exports: zip download, local
// directory sync, and S3 snapshots when a snapshot store is configured.
type ExportHandler struct {
	store     *vfs.Store
	snapshots *export.SnapshotStore
}

func NewExportHandler(store *vfs.Store, snapshots *export.SnapshotStore) *ExportHandler {
	return &ExportHandler{store: store, snapshots: snapshots}
}

func (h *ExportHandler) HandleZip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, err := export.Zip(h.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="workspace.zip"`)
	_, _ = w.Write(data)
}

func (h *ExportHandler) HandleDir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Root string `json:"root"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(in.Root) == "" {
		writeError(w, http.StatusBadRequest, "root is required")
		return
	}
	if err := export.SyncDir(h.store, in.Root); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *ExportHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
		return
	}
	var in struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	key, err := h.snapshots.Put(r.Context(), in.WorkspaceID, h.store)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	url, err := h.snapshots.URL(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "url": url})
}
