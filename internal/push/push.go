// Package push publishes the current virtual file store snapshot to a
// remote Git host (GitHub or GitLab) and records the result in the
// repository context.
//
// Remote hosts are eventually consistent for repository creation, branch
// creation and visibility changes. Every wait in this package exists to
// absorb that propagation lag; removing one reintroduces intermittent
// "ref not found" and "403 on newly-private repo" failures.
package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"workbench/internal/repocontext"
	"workbench/internal/vfs"
)

var (
	// ErrMissingCredentials is returned when neither the request nor the
	// credential provider yields a token and owner. No network call is
	// made.
	ErrMissingCredentials = errors.New("push: missing credentials")
	// ErrEmptyWorkspace is returned when the file store has no files.
	ErrEmptyWorkspace = errors.New("push: workspace has no files")
	// ErrUnknownProvider is returned for provider tags without a host
	// adapter.
	ErrUnknownProvider = errors.New("push: unknown provider")
)

// Propagation and retry schedule. The waits are load-bearing: see the
// package comment.
const (
	// visibilityPropagationWait follows a repository visibility change.
	visibilityPropagationWait = 4 * time.Second
	// repoInitWait follows auto-initialized repository creation.
	repoInitWait = 2 * time.Second
	// projectInitWait follows GitLab project creation.
	projectInitWait = 2 * time.Second
	// branchVerifyAttempts bounds the GitLab branch-creation poll. This
	// is the only bounded poll that does not feed the outer retry.
	branchVerifyAttempts = 5
	// branchVerifyInterval spaces the branch-creation poll.
	branchVerifyInterval = time.Second
	// syncAttempts bounds the upload-through-ref-update retry loop.
	syncAttempts = 3
	// retryBaseDelay scales the backoff: attempt × retryBaseDelay.
	retryBaseDelay = 2 * time.Second
)

// Credentials authenticate one push against a host.
type Credentials struct {
	Token    string
	Username string
}

// CredentialProvider resolves stored credentials for a provider when the
// request does not carry them.
type CredentialProvider interface {
	Credential(provider repocontext.Provider) (Credentials, bool)
}

// Request describes one push.
type Request struct {
	Provider      repocontext.Provider
	RepoName      string
	CommitMessage string
	Username      string
	Token         string
	Private       bool
	Branch        string
}

// File is one snapshot entry bound for the remote, keyed by its path
// relative to the repository root.
type File struct {
	Path    string
	Content []byte
}

// RepoInfo describes the resolved remote repository.
type RepoInfo struct {
	ID            string
	Owner         string
	Name          string
	FullName      string
	DefaultBranch string
	WebURL        string
	// VisibilityChanged reports that the resolve step updated the
	// repository's visibility; the propagation wait already happened.
	VisibilityChanged bool
}

// Host is one remote Git host adapter. ResolveRepository creates or
// reuses the repository; Sync performs the upload-through-commit sequence
// for one attempt.
type Host interface {
	Provider() repocontext.Provider
	ResolveRepository(ctx context.Context, creds Credentials, req Request) (RepoInfo, error)
	Sync(ctx context.Context, creds Credentials, repo RepoInfo, branch, message string, files []File) error
}

// Engine orchestrates a push: credential and snapshot checks, repository
// resolution, the bounded retry loop around Sync, and the context update
// on success.
type Engine struct {
	store    *vfs.Store
	contexts *repocontext.Manager
	creds    CredentialProvider
	hosts    map[repocontext.Provider]Host
	sleep    func(time.Duration)
}

func NewEngine(store *vfs.Store, contexts *repocontext.Manager, creds CredentialProvider, hosts ...Host) *Engine {
	byProvider := make(map[repocontext.Provider]Host, len(hosts))
	for _, h := range hosts {
		if h == nil {
			continue
		}
		byProvider[h.Provider()] = h
	}
	return &Engine{
		store:    store,
		contexts: contexts,
		creds:    creds,
		hosts:    byProvider,
		sleep:    time.Sleep,
	}
}

// SetSleep replaces the retry backoff sleeper. Tests inject a recorder.
func (e *Engine) SetSleep(fn func(time.Duration)) {
	if e == nil || fn == nil {
		return
	}
	e.sleep = fn
}

// Push publishes the current snapshot and returns the repository's web
// URL. On failure the repository context is left untouched, so a retry
// re-resolves whatever the failed attempt already created remotely.
func (e *Engine) Push(ctx context.Context, req Request) (string, error) {
	if e == nil {
		return "", fmt.Errorf("engine is nil")
	}
	host, ok := e.hosts[req.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}

	creds, err := e.resolveCredentials(req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.RepoName) == "" {
		return "", fmt.Errorf("push: repository name is required")
	}

	files := e.snapshotFiles()
	if len(files) == 0 {
		return "", ErrEmptyWorkspace
	}

	branch := strings.TrimSpace(req.Branch)
	if branch == "" {
		branch = "main"
	}
	message := strings.TrimSpace(req.CommitMessage)
	if message == "" {
		message = "Update from workbench"
	}

	repo, err := host.ResolveRepository(ctx, creds, req)
	if err != nil {
		return "", fmt.Errorf("push: resolving repository %s: %w", req.RepoName, err)
	}
	if repo.VisibilityChanged {
		log.Printf("push: visibility of %s updated, propagation wait applied", repo.FullName)
	}

	var syncErr error
	for attempt := 1; attempt <= syncAttempts; attempt++ {
		syncErr = host.Sync(ctx, creds, repo, branch, message, files)
		if syncErr == nil {
			break
		}
		log.Printf("push: attempt %d/%d for %s failed: %v", attempt, syncAttempts, repo.FullName, syncErr)
		if attempt < syncAttempts {
			e.sleep(time.Duration(attempt) * retryBaseDelay)
		}
	}
	if syncErr != nil {
		return "", fmt.Errorf("push: syncing %s after %d attempts: %w", repo.FullName, syncAttempts, syncErr)
	}

	if e.contexts != nil {
		e.contexts.Set(repocontext.Update{
			Provider:  req.Provider,
			Owner:     repo.Owner,
			Name:      repo.Name,
			FullName:  repo.FullName,
			Branch:    branch,
			RemoteURL: repo.WebURL,
		})
	}
	return repo.WebURL, nil
}

func (e *Engine) resolveCredentials(req Request) (Credentials, error) {
	creds := Credentials{
		Token:    strings.TrimSpace(req.Token),
		Username: strings.TrimSpace(req.Username),
	}
	if (creds.Token == "" || creds.Username == "") && e.creds != nil {
		if stored, ok := e.creds.Credential(req.Provider); ok {
			if creds.Token == "" {
				creds.Token = strings.TrimSpace(stored.Token)
			}
			if creds.Username == "" {
				creds.Username = strings.TrimSpace(stored.Username)
			}
		}
	}
	if creds.Token == "" || creds.Username == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

// snapshotFiles flattens the store snapshot to repository-relative file
// entries. Directories carry no content and are implied by file paths.
func (e *Engine) snapshotFiles() []File {
	if e.store == nil {
		return nil
	}
	entries := e.store.Snapshot()
	out := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.Kind != vfs.EntryFile {
			continue
		}
		out = append(out, File{
			Path:    strings.TrimPrefix(entry.Path, "/"),
			Content: entry.Content,
		})
	}
	return out
}
