package target

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/go-github/v57/github"
)

// GitHubCanonicalizer resolves a local git remote's owner/repo to the
// repository's current name via the GitHub API, the same shape as the
// routing package's RealGitHubChecker: a renamed repository's local clone
// directory may still carry the old name, which would otherwise poison
// directory-name inference with a stale candidate.
type GitHubCanonicalizer struct {
	client *github.Client
}

// NewGitHubCanonicalizer builds a canonicalizer. If token is empty, an
// unauthenticated client is used (60 req/hour, fine for the occasional
// rename check this performs).
func NewGitHubCanonicalizer(token string) *GitHubCanonicalizer {
	var client *github.Client
	if token != "" {
		client = github.NewClient(nil).WithAuthToken(token)
	} else {
		client = github.NewClient(nil)
	}
	return &GitHubCanonicalizer{client: client}
}

// NewGitHubCanonicalizerWithHTTPClient builds a canonicalizer against a
// custom *http.Client, for tests driving an httptest server.
func NewGitHubCanonicalizerWithHTTPClient(httpClient *http.Client, baseURL string) (*GitHubCanonicalizer, error) {
	client := github.NewClient(httpClient)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, err
		}
	}
	return &GitHubCanonicalizer{client: client}, nil
}

// CanonicalName returns the repository's current name, following any
// rename since owner/repo was last recorded locally. A rate-limit or
// lookup failure falls back to "not found" so the caller uses the raw
// directory basename instead of failing the whole resolution.
func (c *GitHubCanonicalizer) CanonicalName(ctx context.Context, owner, repo string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repoInfo, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil || repoInfo == nil || repoInfo.Name == nil {
		return "", false
	}
	return *repoInfo.Name, true
}

var gitRemoteURLRe = regexp.MustCompile(`(?m)(?:github\.com[:/])([^/]+)/([^/.]+?)(?:\.git)?\s*$`)

// gitHubRemote reads root/.git/config and extracts owner/repo from the
// first GitHub remote URL in it (the "origin" remote, in a plain clone),
// for both SSH and HTTPS remote forms.
func gitHubRemote(root string) (owner, repo string, ok bool) {
	data, err := os.ReadFile(filepath.Join(root, ".git", "config"))
	if err != nil {
		return "", "", false
	}
	m := gitRemoteURLRe.FindStringSubmatch(string(data))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
