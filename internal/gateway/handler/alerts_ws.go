package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"workbench/internal/alert"
)

// AlertHandler streams alert bus events to websocket subscribers.
type AlertHandler struct {
	bus *alert.Bus
}

func NewAlertHandler(bus *alert.Bus) *AlertHandler {
	return &AlertHandler{bus: bus}
}

func (h *AlertHandler) HandleAlertsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := actionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(actionWSPongWait)); err != nil {
		log.Printf("alert ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(actionWSPongWait))
	})

	// The client is not expected to send anything; the read loop only
	// services control frames and connection teardown.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := h.bus.Subscribe(ctx)
	ticker := time.NewTicker(actionWSPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(actionWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
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
}
