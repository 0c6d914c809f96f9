// Package gitremote resolves branch heads on upstream hosts without cloning.
// Resolution always returns the current head; staleness decisions belong to
// the orchestrator, never to this package.
package gitremote

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/errors"
)

// Identity names a repository independent of URL spelling. It is the stable
// component of the cache key.
type Identity struct {
	Host  string `json:"host"`
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String returns the canonical "host/owner/name" form.
func (id Identity) String() string {
	return id.Host + "/" + id.Owner + "/" + id.Name
}

// ResolvedCommit records the head of (repository, branch) at one instant.
// The same (URL, branch) at a later time may resolve to a different commit.
type ResolvedCommit struct {
	RepoURL    string    `json:"repoUrl"`
	Branch     string    `json:"branch"`
	Commit     string    `json:"commit"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// ParseRepoURL validates a repository URL and extracts its identity.
// Accepted forms: https://host/owner/name[.git] (any host with an
// owner/name path).
func ParseRepoURL(repoURL string) (Identity, error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return Identity{}, errors.Wrap(errors.InvalidRequest, "malformed repository URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Identity{}, errors.New(errors.InvalidRequest, fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return Identity{}, errors.New(errors.InvalidRequest, "repository URL has no host")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Identity{}, errors.New(errors.InvalidRequest, "repository URL must contain owner and name")
	}

	return Identity{
		Host:  u.Host,
		Owner: parts[0],
		Name:  strings.TrimSuffix(parts[1], ".git"),
	}, nil
}

// Client resolves branch heads via git ls-remote.
type Client struct {
	timeout time.Duration
}

// NewClient creates a resolver. timeout bounds each ls-remote invocation.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{timeout: timeout}
}

// Resolve returns the current head commit of (repoURL, branch). It never
// clones, never caches, and is safe to call concurrently.
func (c *Client) Resolve(ctx context.Context, repoURL, branch string) (ResolvedCommit, error) {
	if _, err := ParseRepoURL(repoURL); err != nil {
		return ResolvedCommit{}, err
	}
	if strings.TrimSpace(branch) == "" {
		return ResolvedCommit{}, errors.New(errors.InvalidRequest, "branch must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-remote", "--heads", cloneURL(repoURL), "refs/heads/"+branch)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return ResolvedCommit{}, errors.Wrap(errors.UpstreamUnavailable, "commit resolution timed out", ctx.Err())
		}
		return ResolvedCommit{}, errors.Wrap(errors.UpstreamUnavailable, "git ls-remote failed", err)
	}

	commit, ok := parseLsRemote(string(output), branch)
	if !ok {
		return ResolvedCommit{}, errors.New(errors.BranchNotFound, fmt.Sprintf("branch %q not found", branch))
	}

	return ResolvedCommit{
		RepoURL:    repoURL,
		Branch:     branch,
		Commit:     commit,
		ResolvedAt: time.Now().UTC(),
	}, nil
}

// parseLsRemote extracts the commit for refs/heads/<branch> from ls-remote
// output ("<sha>\t<ref>" per line).
func parseLsRemote(output, branch string) (string, bool) {
	want := "refs/heads/" + branch
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == want {
			return fields[0], true
		}
	}
	return "", false
}

// cloneURL normalizes a repository URL for git commands.
func cloneURL(repoURL string) string {
	if strings.HasSuffix(repoURL, ".git") {
		return repoURL
	}
	return repoURL + ".git"
}
