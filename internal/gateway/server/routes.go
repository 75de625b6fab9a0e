package server

import (
	"net/http"

	"workbench/internal/gateway/handler"
	"workbench/internal/gateway/middleware"
)

func NewMux(
	actionHandler *handler.ActionHandler,
	alertHandler *handler.AlertHandler,
	syncHandler *handler.SyncHandler,
	exportHandler *handler.ExportHandler,
	debugHandler *handler.DebugHandler,
) http.Handler {
	mux := http.NewServeMux()

	// WebSocket streams
	mux.HandleFunc("/ws/actions", actionHandler.HandleActionsWS)
	mux.HandleFunc("/ws/alerts", alertHandler.HandleAlertsWS)

	// Repository sync
	mux.HandleFunc("/push", syncHandler.HandlePush)
	mux.HandleFunc("/repository", syncHandler.HandleRepository)

	// Exports
	mux.HandleFunc("/export/zip", exportHandler.HandleZip)
	mux.HandleFunc("/export/dir", exportHandler.HandleDir)
	mux.HandleFunc("/export/snapshot", exportHandler.HandleSnapshot)

	// Debug Handlers
	mux.HandleFunc("/debug/queue", debugHandler.HandleQueue)

	// Middleware
	return middleware.CORS(mux)
}
