package app

import (
	"context"
	"fmt"

	"workbench/internal/alert"
	"workbench/internal/artifact"
	"workbench/internal/execqueue"
	"workbench/internal/gateway/config"
	"workbench/internal/gateway/handler"
	"workbench/internal/gateway/server"
	"workbench/internal/push"
	"workbench/internal/repocontext"
	"workbench/internal/sandbox"
	"workbench/internal/vfs"
)

type App struct {
	server *server.Server
	queue  *execqueue.Queue
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Dependencies
	store := vfs.NewStore()
	queue := execqueue.New()
	bus := alert.NewBus()

	exec, err := sandbox.NewLocalExecutor(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sandbox: %w", err)
	}
	registry := artifact.NewRegistry(func(artifactID, messageID string) *artifact.Runner {
		return artifact.NewRunner(artifactID, messageID, store, exec, bus)
	})

	contexts := repocontext.NewManager(newContextStore(cfg))
	contexts.Restore()

	engine := push.NewEngine(store, contexts, envCredentials{cfg: cfg},
		push.NewGitHubHost(), push.NewGitLabHost())

	snapshots, err := newSnapshotStore(cfg)
	if err != nil {
		return nil, err
	}

	actionHandler := handler.NewActionHandler(registry, queue, bus)
	alertHandler := handler.NewAlertHandler(bus)
	syncHandler := handler.NewSyncHandler(engine, contexts)
	exportHandler := handler.NewExportHandler(store, snapshots)
	debugHandler := handler.NewDebugHandler(queue, store)

	// Routing & Server
	mux := server.NewMux(actionHandler, alertHandler, syncHandler, exportHandler, debugHandler)
	srv := server.New(cfg.Port, mux)

	return &App{
		server: srv,
		queue:  queue,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		return err
	}
	// Let queued actions finish before exiting.
	a.queue.Close()
	return nil
}
