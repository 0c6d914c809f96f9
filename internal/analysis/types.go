// Package analysis runs the full pipeline for one repository commit:
// resolve, fetch, extract, build graphs, cache.
package analysis

import (
	"context"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/ast"
	"github.com/Gourav1632/into-the-repo/internal/gitremote"
	"github.com/Gourav1632/into-the-repo/internal/graph"
	"github.com/Gourav1632/into-the-repo/internal/snapshot"
)

// Request identifies what to analyze.
type Request struct {
	RepoURL string `json:"repoUrl"`
	Branch  string `json:"branch"`
}

// Result is the immutable output for one (repository, branch, commit).
type Result struct {
	Repo       string    `json:"repo"`
	Branch     string    `json:"branch"`
	Commit     string    `json:"commit"`
	ResolvedAt time.Time `json:"resolvedAt"`

	Files        map[string]*ast.FileRecord `json:"files"`
	Dependencies *graph.Graph               `json:"dependencies"`
	CallGraphs   map[string]*graph.Graph    `json:"callGraphs"`
}

// ProgressFunc receives human-readable progress messages in emission order.
type ProgressFunc func(message string)

// Resolver maps (repository, branch) to a commit.
type Resolver interface {
	Resolve(ctx context.Context, repoURL, branch string) (gitremote.ResolvedCommit, error)
}

// Snapshot is a read-only view of a materialized working tree.
type Snapshot interface {
	Commit() string
	Files() []snapshot.FileInfo
	Read(path string) ([]byte, error)
}

// Fetcher materializes snapshots.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, branch, commit string) (Snapshot, error)
}

// NewSnapshotFetcher adapts the concrete git fetcher to the pipeline's
// Fetcher interface.
func NewSnapshotFetcher(f *snapshot.Fetcher) Fetcher {
	return fetcherAdapter{f: f}
}

type fetcherAdapter struct {
	f *snapshot.Fetcher
}

func (a fetcherAdapter) Fetch(ctx context.Context, repoURL, branch, commit string) (Snapshot, error) {
	snap, err := a.f.Fetch(ctx, repoURL, branch, commit)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
