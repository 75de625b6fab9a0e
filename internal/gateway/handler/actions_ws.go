package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"workbench/internal/alert"
	"workbench/internal/artifact"
	"workbench/internal/execqueue"
	"workbench/internal/util/jsonutil"
)

const (
	actionWSWriteWait = 10 * time.Second
	actionWSPongWait  = 60 * time.Second
	actionWSPingEvery = (actionWSPongWait * 9) / 10
)

var actionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type actionWSInbound struct {
	Type       string `json:"type"`
	ArtifactID string `json:"artifactId,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	Title      string `json:"title,omitempty"`
	Kind       string `json:"kind,omitempty"`
	ActionID   string `json:"actionId,omitempty"`
	ActionType string `json:"actionType,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	Content    string `json:"content,omitempty"`
	Command    string `json:"command,omitempty"`
	Streaming  bool   `json:"streaming,omitempty"`
}

type actionWSOutbound struct {
	Type       string `json:"type"`
	ArtifactID string `json:"artifactId,omitempty"`
	ActionID   string `json:"actionId,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ActionHandler ingests the agent's artifact/action stream over a
// websocket and feeds it through the execution queue.
type ActionHandler struct {
	registry *artifact.Registry
	queue    *execqueue.Queue
	bus      *alert.Bus
}

func NewActionHandler(registry *artifact.Registry, queue *execqueue.Queue, bus *alert.Bus) *ActionHandler {
	return &ActionHandler{registry: registry, queue: queue, bus: bus}
}

func (h *ActionHandler) HandleActionsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := actionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(actionWSPongWait)); err != nil {
		log.Printf("action ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(actionWSPongWait))
	})

	writeCh := make(chan actionWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(actionWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(actionWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(actionWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			cancel()
			<-writerDone
			return
		}
		var in actionWSInbound
		// Agent payloads occasionally arrive double-escaped.
		if err := jsonutil.UnmarshalFlex(raw, &in); err != nil {
			pushActionWS(writeCh, actionWSOutbound{
				Type:    "error",
				Code:    "invalid_argument",
				Message: "unparseable message",
			})
			continue
		}
		h.dispatch(ctx, writeCh, in)
	}
}

func (h *ActionHandler) dispatch(ctx context.Context, writeCh chan actionWSOutbound, in actionWSInbound) {
	switch strings.ToLower(strings.TrimSpace(in.Type)) {
	case "ping":
		pushActionWS(writeCh, actionWSOutbound{Type: "pong"})

	case "reloaded":
		h.bus.MarkReloaded(strings.TrimSpace(in.MessageID))
		pushActionWS(writeCh, actionWSOutbound{Type: "reloaded_ack"})

	case "open_artifact":
		if _, err := h.registry.Open(in.ArtifactID, in.MessageID, in.Title, in.Kind); err != nil {
			pushActionWS(writeCh, actionWSOutbound{
				Type:       "error",
				ArtifactID: in.ArtifactID,
				Code:       "invalid_argument",
				Message:    err.Error(),
			})
			return
		}
		pushActionWS(writeCh, actionWSOutbound{Type: "artifact_opened", ArtifactID: in.ArtifactID})

	case "close_artifact":
		if err := h.registry.Close(in.ArtifactID); err != nil {
			pushActionWS(writeCh, actionWSOutbound{
				Type:       "error",
				ArtifactID: in.ArtifactID,
				Code:       "not_found",
				Message:    err.Error(),
			})
			return
		}
		pushActionWS(writeCh, actionWSOutbound{Type: "artifact_closed", ArtifactID: in.ArtifactID})

	case "action":
		h.enqueueAction(ctx, writeCh, in)

	default:
		pushActionWS(writeCh, actionWSOutbound{
			Type:    "error",
			Code:    "invalid_argument",
			Message: "unknown message type",
		})
	}
}

func (h *ActionHandler) enqueueAction(ctx context.Context, writeCh chan actionWSOutbound, in actionWSInbound) {
	act := &artifact.Action{
		ArtifactID: strings.TrimSpace(in.ArtifactID),
		ActionID:   strings.TrimSpace(in.ActionID),
		Type:       artifact.ActionType(strings.TrimSpace(in.ActionType)),
		FilePath:   strings.TrimSpace(in.FilePath),
		Content:    []byte(in.Content),
		Command:    strings.TrimSpace(in.Command),
	}
	if err := h.registry.AddAction(act); err != nil {
		pushActionWS(writeCh, actionWSOutbound{
			Type:       "error",
			ArtifactID: in.ArtifactID,
			ActionID:   in.ActionID,
			Code:       "invalid_argument",
			Message:    err.Error(),
		})
		return
	}

	// Run the registered action, not the frame's copy: a retransmitted
	// frame must hit the same Executed guard as the original.
	registered, err := h.registry.Action(act.ArtifactID, act.ActionID)
	if err != nil {
		pushActionWS(writeCh, actionWSOutbound{
			Type:       "error",
			ArtifactID: in.ArtifactID,
			ActionID:   in.ActionID,
			Code:       "not_found",
			Message:    err.Error(),
		})
		return
	}

	art, ok := h.registry.Get(act.ArtifactID)
	if !ok || art.Runner == nil {
		pushActionWS(writeCh, actionWSOutbound{
			Type:       "error",
			ArtifactID: in.ArtifactID,
			ActionID:   in.ActionID,
			Code:       "not_found",
			Message:    "artifact has no runner",
		})
		return
	}

	streaming := in.Streaming
	task, err := h.queue.Enqueue(fmt.Sprintf("%s/%s", act.ArtifactID, act.ActionID), func(ctx context.Context) error {
		return art.Runner.Run(ctx, registered, streaming)
	})
	if err != nil {
		pushActionWS(writeCh, actionWSOutbound{
			Type:       "error",
			ArtifactID: in.ArtifactID,
			ActionID:   in.ActionID,
			Code:       "unavailable",
			Message:    err.Error(),
		})
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-task.Done():
		}
		out := actionWSOutbound{
			Type:       "action_done",
			ArtifactID: act.ArtifactID,
			ActionID:   act.ActionID,
		}
		if runErr := task.Err(); runErr != nil {
			out.Type = "action_failed"
			out.Message = runErr.Error()
		}
		pushActionWS(writeCh, out)
	}()
}

// pushActionWS enqueues an outbound frame without blocking the reader;
// when the buffer is full the oldest frame is dropped.
func pushActionWS(writeCh chan actionWSOutbound, out actionWSOutbound) {
	select {
	case writeCh <- out:
	default:
		select {
		case <-writeCh:
		default:
		}
		select {
		case writeCh <- out:
		default:
		}
	}
}
