// Package sandbox abstracts the execution environment that runs shell
// actions and durably persists files. The workbench core only ever talks
// to the Executor interface; the local implementation is used by the
// gateway daemon and by tests.
package sandbox

import "context"

// Result is the outcome of one shell command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs commands and persists files in the durable workspace.
type Executor interface {
	// Run executes a shell command in dir (relative to the workspace
	// root) and returns its output and exit status. A non-zero exit is
	// not an error: it is reported through Result.ExitCode.
	Run(ctx context.Context, command, dir string) (Result, error)

	// WriteFile durably persists content at the given workspace path,
	// creating parent directories as needed.
	WriteFile(ctx context.Context, path string, content []byte) error
}
