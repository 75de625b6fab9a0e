package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"workbench/internal/alert"
	"workbench/internal/artifact"
	"workbench/internal/execqueue"
	"workbench/internal/sandbox"
	"workbench/internal/vfs"
)

type fakeExecutor struct {
	mu         sync.Mutex
	writes     map[string]string
	writeCalls map[string]int
	commands   []string
}

func (f *fakeExecutor) Run(_ context.Context, command, _ string) (sandbox.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	f.mu.Unlock()
	return sandbox.Result{ExitCode: 0}, nil
}

func (f *fakeExecutor) WriteFile(_ context.Context, path string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writes == nil {
		f.writes = map[string]string{}
		f.writeCalls = map[string]int{}
	}
	f.writes[path] = string(content)
	f.writeCalls[path]++
	return nil
}

func (f *fakeExecutor) writeContent(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[path]
}

func (f *fakeExecutor) writeCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls[path]
}

func (f *fakeExecutor) commandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

type wsFixture struct {
	store *vfs.Store
	exec  *fakeExecutor
	queue *execqueue.Queue
	conn  *websocket.Conn
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	store := vfs.NewStore()
	queue := execqueue.New()
	bus := alert.NewBus()
	exec := &fakeExecutor{}
	registry := artifact.NewRegistry(func(artifactID, messageID string) *artifact.Runner {
		return artifact.NewRunner(artifactID, messageID, store, exec, bus)
	})
	h := NewActionHandler(registry, queue, bus)

	ts := httptest.NewServer(http.HandlerFunc(h.HandleActionsWS))
	t.Cleanup(ts.Close)
	t.Cleanup(queue.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &wsFixture{store: store, exec: exec, queue: queue, conn: conn}
}

func (f *wsFixture) send(t *testing.T, msg map[string]any) {
	t.Helper()
	if err := f.conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (f *wsFixture) recv(t *testing.T) actionWSOutbound {
	t.Helper()
	_ = f.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out actionWSOutbound
	if err := f.conn.ReadJSON(&out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func TestActionsWSFileActionRoundTrip(t *testing.T) {
	f := newWSFixture(t)

	f.send(t, map[string]any{
		"type":       "open_artifact",
		"artifactId": "art-1",
		"messageId":  "msg-1",
		"title":      "Scaffold",
	})
	if out := f.recv(t); out.Type != "artifact_opened" {
		t.Fatalf("expected artifact_opened, got %+v", out)
	}

	f.send(t, map[string]any{
		"type":       "action",
		"artifactId": "art-1",
		"actionId":   "act-1",
		"actionType": "file",
		"filePath":   "/src/main.go",
		"content":    "package main",
	})
	if out := f.recv(t); out.Type != "action_done" || out.ActionID != "act-1" {
		t.Fatalf("expected action_done for act-1, got %+v", out)
	}

	entry, ok := f.store.Get("/src/main.go")
	if !ok || string(entry.Content) != "package main" {
		t.Fatalf("file not materialized in store: %+v", entry)
	}
	if entry.Unsaved {
		t.Fatalf("final (non-streaming) action must be saved")
	}
	if f.exec.writeContent("/src/main.go") != "package main" {
		t.Fatalf("file not persisted to sandbox")
	}

	f.send(t, map[string]any{"type": "close_artifact", "artifactId": "art-1"})
	if out := f.recv(t); out.Type != "artifact_closed" {
		t.Fatalf("expected artifact_closed, got %+v", out)
	}
}

func TestActionsWSUnknownArtifactRejected(t *testing.T) {
	f := newWSFixture(t)

	f.send(t, map[string]any{
		"type":       "action",
		"artifactId": "ghost",
		"actionId":   "act-1",
		"actionType": "file",
		"filePath":   "/a.txt",
		"content":    "x",
	})
	out := f.recv(t)
	if out.Type != "error" || out.Code != "invalid_argument" {
		t.Fatalf("expected invalid_argument error, got %+v", out)
	}
}

func TestActionsWSDoubleEscapedPayload(t *testing.T) {
	f := newWSFixture(t)

	f.send(t, map[string]any{
		"type":       "open_artifact",
		"artifactId": "art-1",
		"messageId":  "msg-1",
	})
	if out := f.recv(t); out.Type != "artifact_opened" {
		t.Fatalf("expected artifact_opened, got %+v", out)
	}

	// Whole payload arrives as a quoted JSON string, the way some agent
	// transports deliver it.
	raw := `"{\"type\":\"action\",\"artifactId\":\"art-1\",\"actionId\":\"act-2\",\"actionType\":\"file\",\"filePath\":\"/b.txt\",\"content\":\"hi\"}"`
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	if out := f.recv(t); out.Type != "action_done" || out.ActionID != "act-2" {
		t.Fatalf("expected action_done for act-2, got %+v", out)
	}
	if entry, ok := f.store.Get("/b.txt"); !ok || string(entry.Content) != "hi" {
		t.Fatalf("double-escaped action not applied: %+v", entry)
	}
}

func TestActionsWSDuplicateFinalFramePersistsOnce(t *testing.T) {
	f := newWSFixture(t)

	f.send(t, map[string]any{
		"type":       "open_artifact",
		"artifactId": "art-1",
		"messageId":  "msg-1",
	})
	if out := f.recv(t); out.Type != "artifact_opened" {
		t.Fatalf("expected artifact_opened, got %+v", out)
	}

	frame := func(content string, streaming bool) map[string]any {
		return map[string]any{
			"type":       "action",
			"artifactId": "art-1",
			"actionId":   "act-1",
			"actionType": "file",
			"filePath":   "/src/main.go",
			"content":    content,
			"streaming":  streaming,
		}
	}

	f.send(t, frame("package ", true))
	if out := f.recv(t); out.Type != "action_done" {
		t.Fatalf("streaming chunk: %+v", out)
	}
	f.send(t, frame("package main", false))
	if out := f.recv(t); out.Type != "action_done" {
		t.Fatalf("final frame: %+v", out)
	}
	// Retransmitted final frame (reconnect replay) must be a no-op.
	f.send(t, frame("package main", false))
	if out := f.recv(t); out.Type != "action_done" {
		t.Fatalf("duplicate final frame: %+v", out)
	}

	if n := f.exec.writeCount("/src/main.go"); n != 1 {
		t.Fatalf("expected exactly one durable write, got %d", n)
	}
	entry, ok := f.store.Get("/src/main.go")
	if !ok || string(entry.Content) != "package main" || entry.Unsaved {
		t.Fatalf("unexpected store state: %+v", entry)
	}
}

func TestActionsWSDuplicateShellFrameRunsOnce(t *testing.T) {
	f := newWSFixture(t)

	f.send(t, map[string]any{
		"type":       "open_artifact",
		"artifactId": "art-1",
		"messageId":  "msg-1",
	})
	if out := f.recv(t); out.Type != "artifact_opened" {
		t.Fatalf("expected artifact_opened, got %+v", out)
	}

	shell := map[string]any{
		"type":       "action",
		"artifactId": "art-1",
		"actionId":   "act-sh",
		"actionType": "shell",
		"command":    "npm install",
	}
	f.send(t, shell)
	if out := f.recv(t); out.Type != "action_done" {
		t.Fatalf("shell frame: %+v", out)
	}
	f.send(t, shell)
	if out := f.recv(t); out.Type != "action_done" {
		t.Fatalf("duplicate shell frame: %+v", out)
	}

	if n := f.exec.commandCount(); n != 1 {
		t.Fatalf("expected command to run once, ran %d times", n)
	}
}
