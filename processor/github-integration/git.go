package githubintegration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rosterlabs/roster/resource"
)

// DefaultAPIBase is the GitHub REST endpoint.
const DefaultAPIBase = "https://api.github.com"

// DefaultCloneBase is the prefix for clone URLs.
const DefaultCloneBase = "https://github.com"

// prTitlePrefix marks pull requests opened by the control plane.
const prTitlePrefix = "[roster-ai] "

// GitPusher maintains working clones under a local directory and turns
// code reports into branches and pull requests. All git operations are
// serialized; concurrent pushes to the same clone would corrupt it.
type GitPusher struct {
	workdir    string
	token      string
	apiBase    string
	cloneBase  string
	httpClient *http.Client
	logger     *slog.Logger

	mu sync.Mutex
}

// NewGitPusher creates a pusher rooted at workdir. apiBase and
// cloneBase fall back to github.com when empty.
func NewGitPusher(workdir, token, apiBase, cloneBase string, logger *slog.Logger) *GitPusher {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if cloneBase == "" {
		cloneBase = DefaultCloneBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitPusher{
		workdir:    workdir,
		token:      token,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		cloneBase:  strings.TrimSuffix(cloneBase, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// PushCodeReport writes the report's outputs onto the workspace branch,
// pushes it and opens a pull request. It returns the pull request URL,
// or "" when the report produced no changes.
func (g *GitPusher) PushCodeReport(ctx context.Context, workspace resource.WorkspaceResource, report resource.WorkflowCodeReportPayload) (string, error) {
	info := workspace.Spec.GithubInfo
	if info == nil {
		return "", fmt.Errorf("workspace %s has no github binding", workspace.Spec.Name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	dir, err := g.ensureClone(ctx, workspace)
	if err != nil {
		return "", err
	}

	branch := info.BranchName
	if branch == "" {
		branch = "roster/" + workspace.Spec.Name
	}
	checkout := []string{"checkout", "-B", branch}
	if info.BaseHash != "" {
		checkout = append(checkout, info.BaseHash)
	}
	if _, err := g.runGit(ctx, dir, checkout...); err != nil {
		return "", err
	}

	for _, out := range report.CodeOutputs {
		if err := applyCodeOutput(dir, out); err != nil {
			return "", err
		}
	}

	status, err := g.runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		g.logger.Info("code report produced no changes", "workspace", workspace.Spec.Name)
		return "", nil
	}

	if _, err := g.runGit(ctx, dir, "add", "-A"); err != nil {
		return "", err
	}
	message := prTitlePrefix + report.WorkflowName + " " + report.WorkflowRecord
	if _, err := g.runGit(ctx, dir,
		"-c", "user.name=roster", "-c", "user.email=roster@localhost",
		"commit", "-m", message); err != nil {
		return "", err
	}
	if _, err := g.runGit(ctx, dir, "push", "-f", "-u", "origin", branch); err != nil {
		return "", err
	}

	return g.openPullRequest(ctx, info, report)
}

// ListTree returns the tracked file paths of the workspace clone, one
// per line.
func (g *GitPusher) ListTree(ctx context.Context, workspace resource.WorkspaceResource) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dir, err := g.ensureClone(ctx, workspace)
	if err != nil {
		return "", err
	}
	out, err := g.runGit(ctx, dir, "ls-files")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ReadFiles returns the contents of the requested paths from the
// workspace clone.
func (g *GitPusher) ReadFiles(ctx context.Context, workspace resource.WorkspaceResource, paths []string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dir, err := g.ensureClone(ctx, workspace)
	if err != nil {
		return nil, err
	}

	contents := make(map[string]string, len(paths))
	for _, path := range paths {
		full, err := safeJoin(dir, path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		contents[path] = string(data)
	}
	return contents, nil
}

// ensureClone makes sure the workspace has a working clone and returns
// its path. Existing clones are fetched, not re-cloned. Callers hold
// the mutex.
func (g *GitPusher) ensureClone(ctx context.Context, workspace resource.WorkspaceResource) (string, error) {
	info := workspace.Spec.GithubInfo
	if info == nil || info.RepositoryName == "" {
		return "", fmt.Errorf("workspace %s has no repository", workspace.Spec.Name)
	}

	dir := filepath.Join(g.workdir, workspace.Spec.Name)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		if _, err := g.runGit(ctx, dir, "fetch", "origin"); err != nil {
			return "", err
		}
		return dir, nil
	}

	if err := os.MkdirAll(g.workdir, 0o755); err != nil {
		return "", err
	}
	if _, err := g.runGit(ctx, g.workdir, "clone", g.cloneURL(info.RepositoryName), dir); err != nil {
		return "", err
	}
	return dir, nil
}

func (g *GitPusher) cloneURL(repository string) string {
	if g.token != "" && strings.HasPrefix(g.cloneBase, "https://") {
		return "https://x-access-token:" + g.token + "@" + strings.TrimPrefix(g.cloneBase, "https://") + "/" + repository + ".git"
	}
	return g.cloneBase + "/" + repository + ".git"
}

// runGit executes one git command in dir. The token never appears in
// returned errors.
func (g *GitPusher) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := fmt.Sprintf("git %s: %v: %s", args[0], err, strings.TrimSpace(string(out)))
		if g.token != "" {
			msg = strings.ReplaceAll(msg, g.token, "***")
		}
		return "", fmt.Errorf("%s", msg)
	}
	return string(out), nil
}

// applyCodeOutput writes or removes one file inside the clone.
func applyCodeOutput(dir string, out resource.CodeOutput) error {
	full, err := safeJoin(dir, out.FilePath)
	if err != nil {
		return err
	}
	if out.Kind == "delete" {
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", out.FilePath, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(full, []byte(out.Content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out.FilePath, err)
	}
	return nil
}

// safeJoin joins rel under dir, rejecting paths that escape the clone.
func safeJoin(dir, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("invalid path %q", rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return filepath.Join(dir, clean), nil
}

type pullRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"`
	Base  string `json:"base"`
}

// openPullRequest opens a PR for the workspace branch against the
// repository default branch. An already-open PR is not an error; the
// force push updated it.
func (g *GitPusher) openPullRequest(ctx context.Context, info *resource.GithubInfo, report resource.WorkflowCodeReportPayload) (string, error) {
	base, err := g.defaultBranch(ctx, info.RepositoryName)
	if err != nil {
		g.logger.Warn("could not resolve default branch, using main", "repository", info.RepositoryName, "error", err)
		base = "main"
	}

	pr := pullRequest{
		Title: prTitlePrefix + report.WorkflowName,
		Body:  fmt.Sprintf("Generated by workflow %s, record %s.", report.WorkflowName, report.WorkflowRecord),
		Head:  info.BranchName,
		Base:  base,
	}
	body, err := json.Marshal(pr)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/pulls", g.apiBase, info.RepositoryName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("open pull request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusCreated:
		var created struct {
			HTMLURL string `json:"html_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", fmt.Errorf("decode pull request response: %w", err)
		}
		return created.HTMLURL, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// Branch already has an open PR.
		g.logger.Info("pull request already open", "repository", info.RepositoryName, "branch", info.BranchName)
		return "", nil
	default:
		return "", fmt.Errorf("open pull request: unexpected status %d", resp.StatusCode)
	}
}

// defaultBranch asks the API which branch PRs should target.
func (g *GitPusher) defaultBranch(ctx context.Context, repository string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s", g.apiBase, repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&repo); err != nil {
		return "", err
	}
	if repo.DefaultBranch == "" {
		return "", fmt.Errorf("repository has no default branch")
	}
	return repo.DefaultBranch, nil
}
