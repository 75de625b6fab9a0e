package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workbench/internal/repocontext"
	"workbench/internal/vfs"
)

// mockGitHub is a minimal stateful github API for push tests.
type mockGitHub struct {
	mu           sync.Mutex
	exists       bool
	private      bool
	blobCount    int
	treeCount    int
	treeEntries  int
	treeBase     string
	commitCount  int
	commitParent []string
	refUpdates   int
	patches      int
	created      bool
	blobsBefore  []string // event log for ordering checks
}

func (m *mockGitHub) log(event string) {
	m.blobsBefore = append(m.blobsBefore, event)
}

func (m *mockGitHub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	repoBody := func() map[string]any {
		return map[string]any{
			"name":           "demo",
			"full_name":      "alice/demo",
			"private":        m.private,
			"default_branch": "main",
			"html_url":       "https://github.test/alice/demo",
			"owner":          map[string]any{"login": "alice"},
		}
	}

	mux.HandleFunc("/repos/alice/demo", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			if !m.exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, repoBody())
		case http.MethodPatch:
			var body struct {
				Private bool `json:"private"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			m.private = body.Private
			m.patches++
			m.log("visibility-update")
			writeJSON(w, repoBody())
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.exists = true
		m.created = true
		var body struct {
			Private bool `json:"private"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.private = body.Private
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, repoBody())
	})
	mux.HandleFunc("/repos/alice/demo/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.blobCount++
		m.log("blob")
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"sha": "blob-sha"})
	})
	mux.HandleFunc("/repos/alice/demo/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"object": map[string]string{"sha": "init-commit"}})
	})
	mux.HandleFunc("/repos/alice/demo/git/trees", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		var body struct {
			BaseTree string           `json:"base_tree"`
			Tree     []map[string]any `json:"tree"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.treeCount++
		m.treeEntries = len(body.Tree)
		m.treeBase = body.BaseTree
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"sha": "tree-sha"})
	})
	mux.HandleFunc("/repos/alice/demo/git/commits", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		var body struct {
			Parents []string `json:"parents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.commitCount++
		m.commitParent = body.Parents
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"sha": "new-commit"})
	})
	mux.HandleFunc("/repos/alice/demo/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.refUpdates++
		writeJSON(w, map[string]string{"ref": "refs/heads/main"})
	})

	return httptest.NewServer(mux)
}

func newGitHubEngine(t *testing.T, srv *httptest.Server, store *vfs.Store) (*Engine, *GitHubHost, *repocontext.Manager) {
	t.Helper()
	host := NewGitHubHost()
	host.BaseURL = srv.URL
	host.HTTPClient = srv.Client()
	host.SetSleep(func(time.Duration) {})
	contexts := repocontext.NewManager(nil)
	engine := NewEngine(store, contexts, nil, host)
	engine.SetSleep(func(time.Duration) {})
	return engine, host, contexts
}

func TestGitHubEndToEndFirstPush(t *testing.T) {
	mock := &mockGitHub{}
	srv := mock.server(t)
	defer srv.Close()

	store := vfs.NewStore()
	require.NoError(t, store.CreateFile("README.md", []byte("hello")))
	require.NoError(t, store.CreateFile("src/index.ts", []byte("export {}")))

	engine, _, contexts := newGitHubEngine(t, srv, store)
	url, err := engine.Push(context.Background(), Request{
		Provider:      repocontext.ProviderGitHub,
		RepoName:      "demo",
		CommitMessage: "init commit",
		Username:      "alice",
		Token:         "tok123",
		Private:       false,
		Branch:        "main",
	})
	require.NoError(t, err)
	require.Equal(t, "https://github.test/alice/demo", url)

	require.True(t, mock.created, "repository should be auto-created")
	require.Equal(t, 2, mock.blobCount)
	require.Equal(t, 1, mock.treeCount)
	require.Equal(t, 2, mock.treeEntries)
	require.Equal(t, 1, mock.commitCount)
	// First commit after auto-init: parent is the init commit, never
	// an empty list.
	require.Equal(t, []string{"init-commit"}, mock.commitParent)
	require.Equal(t, 1, mock.refUpdates)

	got := contexts.Current()
	require.Equal(t, repocontext.ProviderGitHub, got.Provider)
	require.Equal(t, "demo", got.Name)
	require.Equal(t, "main", got.Branch)
	require.True(t, got.IsOpen)
}

func TestGitHubVisibilityChangeWaitsBeforeUpload(t *testing.T) {
	mock := &mockGitHub{exists: true, private: false}
	srv := mock.server(t)
	defer srv.Close()

	store := vfs.NewStore()
	require.NoError(t, store.CreateFile("README.md", []byte("hello")))

	host := NewGitHubHost()
	host.BaseURL = srv.URL
	host.HTTPClient = srv.Client()
	var waits []time.Duration
	host.SetSleep(func(d time.Duration) {
		waits = append(waits, d)
		mock.mu.Lock()
		mock.log("wait")
		mock.mu.Unlock()
	})

	engine := NewEngine(store, repocontext.NewManager(nil), nil, host)
	engine.SetSleep(func(time.Duration) {})

	_, err := engine.Push(context.Background(), Request{
		Provider: repocontext.ProviderGitHub,
		RepoName: "demo",
		Username: "alice",
		Token:    "tok123",
		Private:  true,
	})
	require.NoError(t, err)

	require.Equal(t, 1, mock.patches, "visibility update should happen exactly once")
	require.Equal(t, []time.Duration{visibilityPropagationWait}, waits)

	// Ordering: update, then wait, then blob uploads.
	require.GreaterOrEqual(t, len(mock.blobsBefore), 3)
	require.Equal(t, "visibility-update", mock.blobsBefore[0])
	require.Equal(t, "wait", mock.blobsBefore[1])
	require.Equal(t, "blob", mock.blobsBefore[2])
}

func TestGitHubRetryResolvesExistingRepo(t *testing.T) {
	// A repo created by a previous failed push resolves instead of
	// being recreated.
	mock := &mockGitHub{exists: true, private: false}
	srv := mock.server(t)
	defer srv.Close()

	store := vfs.NewStore()
	require.NoError(t, store.CreateFile("README.md", []byte("hello")))

	engine, _, _ := newGitHubEngine(t, srv, store)
	_, err := engine.Push(context.Background(), Request{
		Provider: repocontext.ProviderGitHub,
		RepoName: "demo",
		Username: "alice",
		Token:    "tok123",
	})
	require.NoError(t, err)
	require.False(t, mock.created, "existing repository must not be recreated")
}
