package push

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"workbench/internal/repocontext"
)

// githubAPIVersion pins the REST API version header so behavior stays
// stable as GitHub evolves the API.
const githubAPIVersion = "2022-11-28"

// GitHubHost pushes through the GitHub git-data API: blobs, tree, commit,
// ref update.
type GitHubHost struct {
	BaseURL    string
	HTTPClient *http.Client
	sleep      func(time.Duration)
}

func NewGitHubHost() *GitHubHost {
	return &GitHubHost{
		BaseURL: "https://api.github.com",
		sleep:   time.Sleep,
	}
}

// SetSleep replaces the propagation-wait sleeper. Tests inject a recorder.
func (h *GitHubHost) SetSleep(fn func(time.Duration)) {
	if h == nil || fn == nil {
		return
	}
	h.sleep = fn
}

func (h *GitHubHost) Provider() repocontext.Provider {
	return repocontext.ProviderGitHub
}

func (h *GitHubHost) headers(creds Credentials) map[string]string {
	return map[string]string{
		"Authorization":        "Bearer " + creds.Token,
		"X-GitHub-Api-Version": githubAPIVersion,
	}
}

type githubRepo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// ResolveRepository fetches the named repository, creating it when absent
// and aligning visibility when it differs from the request. Visibility
// changes and fresh auto-initialized repositories both get a propagation
// wait before any further call.
func (h *GitHubHost) ResolveRepository(ctx context.Context, creds Credentials, req Request) (RepoInfo, error) {
	owner := creds.Username
	name := strings.TrimSpace(req.RepoName)

	var repo githubRepo
	err := doJSON(ctx, h.HTTPClient, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s", h.BaseURL, owner, name),
		h.headers(creds), nil, &repo)
	switch {
	case err == nil:
		info := repoInfoFromGitHub(repo)
		if repo.Private != req.Private {
			patch := map[string]any{"private": req.Private}
			if updateErr := doJSON(ctx, h.HTTPClient, http.MethodPatch,
				fmt.Sprintf("%s/repos/%s/%s", h.BaseURL, owner, name),
				h.headers(creds), patch, &repo); updateErr != nil {
				// Best effort: a failed visibility update does not
				// abort the push.
				log.Printf("push: github visibility update for %s/%s failed: %v", owner, name, updateErr)
			} else {
				info = repoInfoFromGitHub(repo)
				info.VisibilityChanged = true
				h.sleep(visibilityPropagationWait)
			}
		}
		return info, nil

	case IsNotFound(err):
		create := map[string]any{
			"name":      name,
			"private":   req.Private,
			"auto_init": true,
		}
		if createErr := doJSON(ctx, h.HTTPClient, http.MethodPost,
			h.BaseURL+"/user/repos",
			h.headers(creds), create, &repo); createErr != nil {
			return RepoInfo{}, fmt.Errorf("creating repository: %w", createErr)
		}
		h.sleep(repoInitWait)
		return repoInfoFromGitHub(repo), nil

	default:
		return RepoInfo{}, fmt.Errorf("fetching repository: %w", err)
	}
}

func repoInfoFromGitHub(repo githubRepo) RepoInfo {
	info := RepoInfo{
		Owner:         repo.Owner.Login,
		Name:          repo.Name,
		FullName:      repo.FullName,
		DefaultBranch: repo.DefaultBranch,
		WebURL:        repo.HTMLURL,
	}
	if info.DefaultBranch == "" {
		info.DefaultBranch = "main"
	}
	return info
}

// Sync is one attempt of the upload sequence: blobs, branch ref, tree,
// commit, ref update. The engine retries the whole sequence.
func (h *GitHubHost) Sync(ctx context.Context, creds Credentials, repo RepoInfo, branch, message string, files []File) error {
	base := fmt.Sprintf("%s/repos/%s/%s", h.BaseURL, repo.Owner, repo.Name)
	headers := h.headers(creds)

	// Upload blobs; failed or empty entries are discarded.
	type treeEntry struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	entries := make([]treeEntry, 0, len(files))
	for _, f := range files {
		var blob struct {
			SHA string `json:"sha"`
		}
		payload := map[string]string{
			"content":  base64.StdEncoding.EncodeToString(f.Content),
			"encoding": "base64",
		}
		if err := doJSON(ctx, h.HTTPClient, http.MethodPost, base+"/git/blobs", headers, payload, &blob); err != nil {
			return fmt.Errorf("uploading blob %s: %w", f.Path, err)
		}
		if blob.SHA == "" {
			continue
		}
		entries = append(entries, treeEntry{Path: f.Path, Mode: "100644", Type: "blob", SHA: blob.SHA})
	}
	if len(entries) == 0 {
		return fmt.Errorf("no blobs uploaded")
	}

	// Re-fetch the repository for the freshest default branch before
	// resolving the target ref.
	var fresh githubRepo
	if err := doJSON(ctx, h.HTTPClient, http.MethodGet, base, headers, nil, &fresh); err != nil {
		return fmt.Errorf("refreshing repository: %w", err)
	}
	defaultBranch := fresh.DefaultBranch
	if defaultBranch == "" {
		defaultBranch = repo.DefaultBranch
	}

	latestSHA, err := h.resolveBranchHead(ctx, creds, base, branch, defaultBranch)
	if err != nil {
		return err
	}

	// Tree from the branch head plus all uploaded blobs.
	var tree struct {
		SHA string `json:"sha"`
	}
	treePayload := map[string]any{
		"base_tree": latestSHA,
		"tree":      entries,
	}
	if err := doJSON(ctx, h.HTTPClient, http.MethodPost, base+"/git/trees", headers, treePayload, &tree); err != nil {
		return fmt.Errorf("creating tree: %w", err)
	}

	// Commit with the branch head as sole parent. Auto-initialized
	// repositories always have an init commit, so the parent list is
	// never empty here.
	var commit struct {
		SHA string `json:"sha"`
	}
	commitPayload := map[string]any{
		"message": message,
		"tree":    tree.SHA,
		"parents": []string{latestSHA},
	}
	if err := doJSON(ctx, h.HTTPClient, http.MethodPost, base+"/git/commits", headers, commitPayload, &commit); err != nil {
		return fmt.Errorf("creating commit: %w", err)
	}

	refPayload := map[string]any{"sha": commit.SHA}
	if err := doJSON(ctx, h.HTTPClient, http.MethodPatch,
		fmt.Sprintf("%s/git/refs/heads/%s", base, url.PathEscape(branch)),
		headers, refPayload, nil); err != nil {
		return fmt.Errorf("updating ref %s: %w", branch, err)
	}
	return nil
}

// resolveBranchHead reads the target branch's head commit, creating the
// branch off the default branch when it does not exist yet.
func (h *GitHubHost) resolveBranchHead(ctx context.Context, creds Credentials, base, branch, defaultBranch string) (string, error) {
	headers := h.headers(creds)

	type refResponse struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}

	var ref refResponse
	err := doJSON(ctx, h.HTTPClient, http.MethodGet,
		fmt.Sprintf("%s/git/ref/heads/%s", base, url.PathEscape(branch)),
		headers, nil, &ref)
	if err == nil {
		return ref.Object.SHA, nil
	}
	if !IsNotFound(err) {
		return "", fmt.Errorf("reading ref %s: %w", branch, err)
	}

	// Branch off the default branch's current commit.
	var defaultRef refResponse
	if err := doJSON(ctx, h.HTTPClient, http.MethodGet,
		fmt.Sprintf("%s/git/ref/heads/%s", base, url.PathEscape(defaultBranch)),
		headers, nil, &defaultRef); err != nil {
		return "", fmt.Errorf("reading default branch %s: %w", defaultBranch, err)
	}
	createPayload := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": defaultRef.Object.SHA,
	}
	if err := doJSON(ctx, h.HTTPClient, http.MethodPost, base+"/git/refs", headers, createPayload, nil); err != nil {
		return "", fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return defaultRef.Object.SHA, nil
}
