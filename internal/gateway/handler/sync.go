package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"workbench/internal/push"
	"workbench/internal/repocontext"
)

// SyncHandler serves the push endpoint and the repository context
// endpoints.
type SyncHandler struct {
	engine   *push.Engine
	contexts *repocontext.Manager
}

func NewSyncHandler(engine *push.Engine, contexts *repocontext.Manager) *SyncHandler {
	return &SyncHandler{engine: engine, contexts: contexts}
}

func (h *SyncHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Provider      string `json:"provider"`
		RepoName      string `json:"repo_name"`
		CommitMessage string `json:"commit_message"`
		Username      string `json:"username"`
		Token         string `json:"token"`
		Private       bool   `json:"private"`
		Branch        string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	url, err := h.engine.Push(r.Context(), push.Request{
		Provider:      repocontext.Provider(strings.ToLower(strings.TrimSpace(in.Provider))),
		RepoName:      in.RepoName,
		CommitMessage: in.CommitMessage,
		Username:      in.Username,
		Token:         in.Token,
		Private:       in.Private,
		Branch:        in.Branch,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"url": url})
	case errors.Is(err, push.ErrMissingCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, push.ErrEmptyWorkspace), errors.Is(err, push.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *SyncHandler) HandleRepository(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.contexts.Current())
	case http.MethodDelete:
		h.contexts.Clear()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
