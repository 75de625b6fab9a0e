package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"workbench/internal/repocontext"
)

// GitLabHost pushes through the GitLab project API with one multi-file
// commit per push.
type GitLabHost struct {
	BaseURL    string
	HTTPClient *http.Client
	sleep      func(time.Duration)

	// projects caches path→project resolution; project ids are stable,
	// so repeat pushes skip the lookup round-trip.
	projects *lru.Cache[string, gitlabProject]
}

func NewGitLabHost() *GitLabHost {
	cache, _ := lru.New[string, gitlabProject](64)
	return &GitLabHost{
		BaseURL:  "https://gitlab.com",
		sleep:    time.Sleep,
		projects: cache,
	}
}

// SetSleep replaces the propagation-wait sleeper. Tests inject a recorder.
func (h *GitLabHost) SetSleep(fn func(time.Duration)) {
	if h == nil || fn == nil {
		return
	}
	h.sleep = fn
}

func (h *GitLabHost) Provider() repocontext.Provider {
	return repocontext.ProviderGitLab
}

func (h *GitLabHost) headers(creds Credentials) map[string]string {
	return map[string]string{"PRIVATE-TOKEN": creds.Token}
}

type gitlabProject struct {
	ID                int64  `json:"id"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	WebURL            string `json:"web_url"`
	Namespace         struct {
		Path string `json:"path"`
	} `json:"namespace"`
}

// ResolveRepository fetches the project by owner/name, creating it when
// absent and waiting for initialization to settle.
func (h *GitLabHost) ResolveRepository(ctx context.Context, creds Credentials, req Request) (RepoInfo, error) {
	owner := creds.Username
	name := strings.TrimSpace(req.RepoName)
	fullPath := owner + "/" + name

	project, ok := h.cachedProject(fullPath)
	if !ok {
		err := doJSON(ctx, h.HTTPClient, http.MethodGet,
			fmt.Sprintf("%s/api/v4/projects/%s", h.BaseURL, url.PathEscape(fullPath)),
			h.headers(creds), nil, &project)
		switch {
		case err == nil:
			// Found.
		case IsNotFound(err):
			visibility := "public"
			if req.Private {
				visibility = "private"
			}
			create := map[string]any{
				"name":                   name,
				"visibility":             visibility,
				"initialize_with_readme": true,
			}
			if createErr := doJSON(ctx, h.HTTPClient, http.MethodPost,
				h.BaseURL+"/api/v4/projects",
				h.headers(creds), create, &project); createErr != nil {
				return RepoInfo{}, fmt.Errorf("creating project: %w", createErr)
			}
			h.sleep(projectInitWait)
		default:
			return RepoInfo{}, fmt.Errorf("fetching project: %w", err)
		}
		if h.projects != nil {
			h.projects.Add(fullPath, project)
		}
	}

	info := RepoInfo{
		ID:            fmt.Sprintf("%d", project.ID),
		Owner:         owner,
		Name:          name,
		FullName:      project.PathWithNamespace,
		DefaultBranch: project.DefaultBranch,
		WebURL:        project.WebURL,
	}
	if info.FullName == "" {
		info.FullName = fullPath
	}
	if info.DefaultBranch == "" {
		info.DefaultBranch = "main"
	}
	return info, nil
}

func (h *GitLabHost) cachedProject(fullPath string) (gitlabProject, bool) {
	if h.projects == nil {
		return gitlabProject{}, false
	}
	return h.projects.Get(fullPath)
}

// Sync stages one create-or-update action per file and submits them as a
// single multi-file commit against the target branch.
func (h *GitLabHost) Sync(ctx context.Context, creds Credentials, repo RepoInfo, branch, message string, files []File) error {
	base := fmt.Sprintf("%s/api/v4/projects/%s", h.BaseURL, repo.ID)
	headers := h.headers(creds)

	if err := h.ensureBranch(ctx, creds, base, branch, repo.DefaultBranch); err != nil {
		return err
	}

	type commitAction struct {
		Action   string `json:"action"`
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	actions := make([]commitAction, 0, len(files))
	for _, f := range files {
		action := "create"
		// Hosts require "update" for pre-existing paths.
		if h.fileExists(ctx, creds, base, f.Path, branch) {
			action = "update"
		}
		actions = append(actions, commitAction{
			Action:   action,
			FilePath: f.Path,
			Content:  string(f.Content),
		})
	}

	commitPayload := map[string]any{
		"branch":         branch,
		"commit_message": message,
		"actions":        actions,
	}
	if err := doJSON(ctx, h.HTTPClient, http.MethodPost, base+"/repository/commits", headers, commitPayload, nil); err != nil {
		return fmt.Errorf("committing %d files: %w", len(actions), err)
	}
	return nil
}

// ensureBranch checks for the target branch and creates it from the
// default branch when missing. Existence is probed by reading the
// branch's README.md, which misreports on branches that lack one; a
// creation failure therefore falls through to the branch endpoint.
func (h *GitLabHost) ensureBranch(ctx context.Context, creds Credentials, base, branch, defaultBranch string) error {
	if h.fileExists(ctx, creds, base, "README.md", branch) {
		return nil
	}

	headers := h.headers(creds)
	createPayload := map[string]string{
		"branch": branch,
		"ref":    defaultBranch,
	}
	if err := doJSON(ctx, h.HTTPClient, http.MethodPost, base+"/repository/branches", headers, createPayload, nil); err != nil {
		// The README probe can misreport an existing branch; treat an
		// "already exists" style failure as resolved by verification.
		if !h.branchExists(ctx, creds, base, branch) {
			return fmt.Errorf("creating branch %s: %w", branch, err)
		}
		return nil
	}

	// Branch creation propagates asynchronously: poll the branch
	// endpoint directly before committing against it.
	for attempt := 1; attempt <= branchVerifyAttempts; attempt++ {
		if h.branchExists(ctx, creds, base, branch) {
			return nil
		}
		if attempt < branchVerifyAttempts {
			h.sleep(branchVerifyInterval)
		}
	}
	return fmt.Errorf("branch %s was created but never became visible after %d checks", branch, branchVerifyAttempts)
}

func (h *GitLabHost) branchExists(ctx context.Context, creds Credentials, base, branch string) bool {
	err := doJSON(ctx, h.HTTPClient, http.MethodGet,
		fmt.Sprintf("%s/repository/branches/%s", base, url.PathEscape(branch)),
		h.headers(creds), nil, nil)
	return err == nil
}

// fileExists probes for a file on a branch. Any unsuccessful read counts
// as absence.
func (h *GitLabHost) fileExists(ctx context.Context, creds Credentials, base, path, branch string) bool {
	err := doJSON(ctx, h.HTTPClient, http.MethodGet,
		fmt.Sprintf("%s/repository/files/%s?ref=%s", base, url.PathEscape(path), url.QueryEscape(branch)),
		h.headers(creds), nil, nil)
	return err == nil
}
