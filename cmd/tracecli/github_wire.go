package main

import (
	"os"

	"github.com/kouak/tracecli/internal/target"
)

// newGitHubCanonicalizer wires a GitHubCanonicalizer from GITHUB_TOKEN when
// present. Without a token the canonicalizer still works, unauthenticated,
// at GitHub's lower rate limit, so this never gates directory-name
// inference on having a token configured.
func newGitHubCanonicalizer() *target.GitHubCanonicalizer {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	return target.NewGitHubCanonicalizer(token)
}
