package analysis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/ast"
	"github.com/Gourav1632/into-the-repo/internal/cache"
	"github.com/Gourav1632/into-the-repo/internal/gitremote"
	"github.com/Gourav1632/into-the-repo/internal/graph"
	"github.com/Gourav1632/into-the-repo/internal/logging"
)

// DefaultBranch is assumed when a request leaves the branch empty.
const DefaultBranch = "main"

// Pipeline orchestrates one analysis end to end. It is safe for concurrent
// use; each Run owns its intermediate state exclusively.
type Pipeline struct {
	resolver         Resolver
	fetcher          Fetcher
	cache            *cache.Store
	extractor        *ast.Extractor
	logger           *logging.Logger
	parseConcurrency int
}

func NewPipeline(resolver Resolver, fetcher Fetcher, store *cache.Store, logger *logging.Logger, parseConcurrency int) *Pipeline {
	if parseConcurrency < 1 {
		parseConcurrency = 1
	}
	return &Pipeline{
		resolver:         resolver,
		fetcher:          fetcher,
		cache:            store,
		extractor:        ast.NewExtractor(),
		logger:           logger,
		parseConcurrency: parseConcurrency,
	}
}

// Run resolves the request to a commit, returns the cached result when one
// exists, and otherwise fetches, extracts and builds from scratch, caching
// the outcome before returning it. progress may be nil.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	branch := req.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	key, resolved, err := p.resolveKey(ctx, req.RepoURL, branch)
	if err != nil {
		return nil, err
	}

	var cached Result
	hit, err := p.cache.Get(ctx, key, &cached)
	if err != nil {
		return nil, err
	}
	if hit {
		p.logger.Info("Analysis served from cache", map[string]interface{}{
			"repo":   key.Repo,
			"branch": key.Branch,
			"commit": key.Commit,
		})
		progress("Analysis loaded from cache")
		return &cached, nil
	}

	progress("Cloning repository...")
	snap, err := p.fetcher.Fetch(ctx, req.RepoURL, branch, resolved.Commit)
	if err != nil {
		return nil, err
	}

	files := snap.Files()
	progress(fmt.Sprintf("Found %d source files to parse", len(files)))

	records, err := p.extractAll(ctx, snap, progress)
	if err != nil {
		return nil, err
	}

	progress("Building architecture map...")
	deps, err := graph.BuildDependencyGraph(records)
	if err != nil {
		return nil, err
	}
	callGraphs, err := graph.BuildCallGraphs(records)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Repo:         key.Repo,
		Branch:       branch,
		Commit:       resolved.Commit,
		ResolvedAt:   resolved.ResolvedAt,
		Files:        make(map[string]*ast.FileRecord, len(records)),
		Dependencies: deps,
		CallGraphs:   callGraphs,
	}
	for _, rec := range records {
		result.Files[rec.Path] = rec
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := p.cache.Put(ctx, key, result); err != nil {
		return nil, err
	}
	progress("Analysis complete")
	return result, nil
}

// Lookup reads a cached result without running an analysis. When commit is
// empty the branch head is resolved first, so the lookup answers "is the
// current state already analyzed".
func (p *Pipeline) Lookup(ctx context.Context, repoURL, branch, commit string) (*Result, bool, error) {
	if branch == "" {
		branch = DefaultBranch
	}

	var key cache.Key
	if commit == "" {
		k, _, err := p.resolveKey(ctx, repoURL, branch)
		if err != nil {
			return nil, false, err
		}
		key = k
	} else {
		identity, err := parseIdentity(repoURL)
		if err != nil {
			return nil, false, err
		}
		key = cache.Key{Repo: identity, Branch: branch, Commit: commit}
	}

	var result Result
	hit, err := p.cache.Get(ctx, key, &result)
	if err != nil || !hit {
		return nil, false, err
	}
	return &result, true, nil
}

// extractAll parses every snapshot file, bounded by the parse concurrency
// cap. Per-file failures never abort the batch; each file yields a record.
func (p *Pipeline) extractAll(ctx context.Context, snap Snapshot, progress ProgressFunc) ([]*ast.FileRecord, error) {
	files := snap.Files()
	records := make([]*ast.FileRecord, len(files))
	total := len(files)

	var (
		wg       sync.WaitGroup
		done     int64
		firstErr error
		errOnce  sync.Once
	)
	sem := make(chan struct{}, p.parseConcurrency)

	for i, fi := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, fi fileMeta) {
			defer wg.Done()
			defer func() { <-sem }()

			n := atomic.AddInt64(&done, 1)
			progress(fmt.Sprintf("[%d/%d] Analyzing %s (%s)...", n, total, fi.path, ast.LanguageForPath(fi.path)))

			rec, err := p.extractOne(ctx, snap, fi)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			records[i] = rec
		}(i, fileMeta{path: fi.Path, modTime: fi.ModTime})
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}

func (p *Pipeline) extractOne(ctx context.Context, snap Snapshot, fi fileMeta) (*ast.FileRecord, error) {
	content, err := snap.Read(fi.path)
	if err != nil {
		// The file vanished or is unreadable; record it like a parse
		// failure so the graph stays connected.
		rec := &ast.FileRecord{
			Path:         fi.path,
			Language:     ast.LanguageForPath(fi.path),
			ParseError:   fmt.Sprintf("unreadable: %v", err),
			LastModified: fi.modTime,
		}
		return rec, nil
	}

	rec, err := p.extractor.Extract(ctx, fi.path, content)
	if err != nil {
		return nil, err
	}
	rec.LastModified = fi.modTime
	return rec, nil
}

func (p *Pipeline) resolveKey(ctx context.Context, repoURL, branch string) (cache.Key, gitremote.ResolvedCommit, error) {
	identity, err := parseIdentity(repoURL)
	if err != nil {
		return cache.Key{}, gitremote.ResolvedCommit{}, err
	}
	resolved, err := p.resolver.Resolve(ctx, repoURL, branch)
	if err != nil {
		return cache.Key{}, gitremote.ResolvedCommit{}, err
	}
	key := cache.Key{Repo: identity, Branch: branch, Commit: resolved.Commit}
	return key, resolved, nil
}

// parseIdentity normalizes a repository URL into the stable cache key
// component.
func parseIdentity(repoURL string) (string, error) {
	identity, err := gitremote.ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}
	return identity.String(), nil
}

// fileMeta is the per-file state handed to extraction workers.
type fileMeta struct {
	path    string
	modTime time.Time
}
