package artifact

import (
	"context"
	"fmt"
	"strings"

	"workbench/internal/alert"
	"workbench/internal/sandbox"
	"workbench/internal/vfs"
)

// Runner applies one artifact's actions against the virtual file store and
// the execution environment. Each action runs at most once; failures are
// reported on the alert bus, not retried.
type Runner struct {
	artifactID string
	messageID  string
	store      *vfs.Store
	exec       sandbox.Executor
	bus        *alert.Bus
	workDir    string
}

// NewRunner builds a runner scoped to one artifact.
func NewRunner(artifactID, messageID string, store *vfs.Store, exec sandbox.Executor, bus *alert.Bus) *Runner {
	return &Runner{
		artifactID: artifactID,
		messageID:  messageID,
		store:      store,
		exec:       exec,
		bus:        bus,
		workDir:    "/",
	}
}

// Run applies one action. Executed actions are a no-op.
//
// Streaming semantics for file actions: while streaming=true, content
// updates go to the virtual store only, so the editor view follows the
// token stream without a durable write per chunk. The final,
// non-streaming call performs the single persisted save.
func (r *Runner) Run(ctx context.Context, action *Action, streaming bool) error {
	if r == nil {
		return fmt.Errorf("runner is nil")
	}
	if action == nil {
		return fmt.Errorf("artifact: action is required")
	}
	if action.Executed {
		return nil
	}

	switch action.Type {
	case ActionFile:
		return r.runFile(ctx, action, streaming)
	case ActionShell, ActionStart:
		return r.runShell(ctx, action)
	default:
		action.Executed = true
		return nil
	}
}

func (r *Runner) runFile(ctx context.Context, action *Action, streaming bool) error {
	path := strings.TrimSpace(action.FilePath)
	if path == "" {
		return fmt.Errorf("artifact: file action %s has no path", action.ActionID)
	}
	if err := r.store.WriteFile(path, action.Content); err != nil {
		return err
	}
	if streaming {
		return nil
	}

	action.Executed = true
	if err := r.store.SaveFile(path, action.Content); err != nil {
		return err
	}
	if err := r.exec.WriteFile(ctx, path, action.Content); err != nil {
		return fmt.Errorf("artifact: persisting %s: %w", path, err)
	}
	return nil
}

func (r *Runner) runShell(ctx context.Context, action *Action) error {
	command := strings.TrimSpace(action.Command)
	if command == "" {
		return fmt.Errorf("artifact: shell action %s has no command", action.ActionID)
	}
	action.Executed = true

	result, err := r.exec.Run(ctx, command, r.workDir)
	if err != nil {
		r.publish(action, "Shell command failed", err.Error(), "")
		return err
	}
	if result.ExitCode != 0 {
		output := strings.TrimSpace(result.Stderr)
		if output == "" {
			output = strings.TrimSpace(result.Stdout)
		}
		r.publish(action,
			fmt.Sprintf("Command exited with code %d", result.ExitCode),
			command,
			output,
		)
	}
	return nil
}

func (r *Runner) publish(action *Action, title, description, content string) {
	if r.bus == nil {
		return
	}
	kind := classifyAlert(description, content)
	r.bus.Publish(alert.Event{
		Kind:        kind,
		ArtifactID:  r.artifactID,
		ActionID:    action.ActionID,
		MessageID:   r.messageID,
		Title:       title,
		Description: description,
		Content:     content,
		Source:      "action-runner",
	})
}

// classifyAlert routes shell failures to the schema or deploy category
// when the output clearly points there; everything else is a generic
// action alert.
func classifyAlert(description, content string) alert.Kind {
	blob := strings.ToLower(description + "\n" + content)
	switch {
	case strings.Contains(blob, "migration") || strings.Contains(blob, "schema"):
		return alert.KindSchema
	case strings.Contains(blob, "deploy"):
		return alert.KindDeploy
	default:
		return alert.KindAction
	}
}
