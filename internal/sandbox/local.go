package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LocalExecutor runs commands with `sh -c` and writes files under a fixed
// root directory. All paths are resolved against the root; traversal
// outside it is rejected.
type LocalExecutor struct {
	absRoot string
}

// NewLocalExecutor locks all future operations to the given root directory.
func NewLocalExecutor(root string) (*LocalExecutor, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("sandbox: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &LocalExecutor{absRoot: abs}, nil
}

// Root returns the absolute workspace root.
func (e *LocalExecutor) Root() string {
	if e == nil {
		return ""
	}
	return e.absRoot
}

func (e *LocalExecutor) Run(ctx context.Context, command, dir string) (Result, error) {
	if e == nil {
		return Result{}, errors.New("sandbox: executor is nil")
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{}, errors.New("sandbox: command is required")
	}
	workDir, err := e.resolve(dir)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, runErr
	}
	return result, nil
}

func (e *LocalExecutor) WriteFile(ctx context.Context, path string, content []byte) error {
	if e == nil {
		return errors.New("sandbox: executor is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := e.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, content, 0o644)
}

// resolve joins a workspace path onto the root and rejects traversal
// outside it.
func (e *LocalExecutor) resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(p, "/")))
	if clean == "." || clean == "" {
		return e.absRoot, nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("sandbox: path traversal not allowed: %s", p)
	}
	joined := filepath.Join(e.absRoot, clean)
	if joined != e.absRoot && !strings.HasPrefix(joined, e.absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("sandbox: resolved outside root (root=%s, path=%s)", e.absRoot, joined)
	}
	return joined, nil
}
