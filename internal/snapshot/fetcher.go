// Package snapshot materializes repository working trees at a resolved
// commit. Snapshots are commit-addressed on disk: a directory named after
// the commit, created atomically, and reused by every later task that
// resolves to the same commit.
package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
	"github.com/Gourav1632/into-the-repo/internal/logging"
)

// completeMarker flags a snapshot directory whose materialization finished.
// A directory without it is a partial clone and is never reused.
const completeMarker = ".snapshot-complete"

// skipDirs are directory names never worth parsing.
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"__pycache__":  {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
}

// FileInfo describes one source file inside a snapshot.
type FileInfo struct {
	// Path is relative to the snapshot root, POSIX-normalized.
	Path    string
	Size    int64
	ModTime time.Time
}

// Limits bound how much of a repository a task will ingest.
type Limits struct {
	MaxRepoBytes int64
	MaxFileCount int
	MaxFileBytes int64
}

// Snapshot is a materialized working tree pinned to one commit.
type Snapshot struct {
	dir    string
	commit string
	files  []FileInfo
}

func (s *Snapshot) Commit() string { return s.commit }

// Files lists the ingestible source files, sorted by path.
func (s *Snapshot) Files() []FileInfo { return s.files }

// Read returns the contents of one snapshot file by its relative path.
func (s *Snapshot) Read(path string) ([]byte, error) {
	full := filepath.Join(s.dir, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.dir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("path %q escapes the snapshot", path)
	}
	return os.ReadFile(full)
}

// Fetcher clones repositories into the commit-addressed work directory.
type Fetcher struct {
	workDir      string
	limits       Limits
	cloneTimeout time.Duration
	logger       *logging.Logger
}

func NewFetcher(workDir string, limits Limits, cloneTimeout time.Duration, logger *logging.Logger) *Fetcher {
	return &Fetcher{
		workDir:      workDir,
		limits:       limits,
		cloneTimeout: cloneTimeout,
		logger:       logger,
	}
}

// Fetch materializes repoURL's branch at the given commit. An existing
// complete snapshot for the commit is reused without touching the network.
// Two tasks racing on the same cold commit both clone; the first rename
// wins and the loser adopts the winner's directory.
func (f *Fetcher) Fetch(ctx context.Context, repoURL, branch, commit string) (*Snapshot, error) {
	dest := filepath.Join(f.workDir, commit)
	if isComplete(dest) {
		return f.open(dest, commit)
	}

	if err := os.MkdirAll(f.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	tmp, err := os.MkdirTemp(f.workDir, "fetch-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	repoDir := filepath.Join(tmp, "repo")
	cloneCtx, cancel := context.WithTimeout(ctx, f.cloneTimeout)
	defer cancel()

	f.logger.Info("Cloning repository", map[string]interface{}{
		"repo":   repoURL,
		"branch": branch,
		"commit": commit,
	})
	if out, err := runGit(cloneCtx, "",
		"clone", "--depth", "1", "--branch", branch, "--single-branch", repoURL, repoDir); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(apperrors.FetchFailed,
			fmt.Sprintf("git clone failed: %s", firstLine(out)), err)
	}

	// A shallow clone of a moving branch may land past the resolved
	// commit; pin the tree back to it.
	head, err := runGit(cloneCtx, repoDir, "rev-parse", "HEAD")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.FetchFailed, "reading clone head", err)
	}
	if strings.TrimSpace(head) != commit {
		if out, err := runGit(cloneCtx, repoDir, "fetch", "--depth", "1", "origin", commit); err != nil {
			return nil, apperrors.Wrap(apperrors.FetchFailed,
				fmt.Sprintf("commit %s not fetchable: %s", commit, firstLine(out)), err)
		}
		if out, err := runGit(cloneCtx, repoDir, "checkout", "--detach", commit); err != nil {
			return nil, apperrors.Wrap(apperrors.FetchFailed,
				fmt.Sprintf("checkout of %s failed: %s", commit, firstLine(out)), err)
		}
	}

	files, err := scanTree(repoDir, f.limits)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(repoDir, completeMarker), []byte(commit+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("marking snapshot complete: %w", err)
	}

	if err := os.Rename(repoDir, dest); err != nil {
		if isComplete(dest) {
			// Lost the race; the winner's snapshot is equivalent.
			return f.open(dest, commit)
		}
		return nil, fmt.Errorf("publishing snapshot: %w", err)
	}
	return &Snapshot{dir: dest, commit: commit, files: files}, nil
}

func (f *Fetcher) open(dest, commit string) (*Snapshot, error) {
	files, err := scanTree(dest, f.limits)
	if err != nil {
		return nil, err
	}
	return &Snapshot{dir: dest, commit: commit, files: files}, nil
}

func isComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, completeMarker))
	return err == nil
}

// scanTree walks a working tree and lists its ingestible files, enforcing
// the repository ceilings. Hidden entries, bulk directories, gitignored
// paths and oversized files are skipped; too many or too-large files in
// total abort the task.
func scanTree(root string, limits Limits) ([]FileInfo, error) {
	ignorer, _ := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))

	var files []FileInfo
	var totalBytes int64

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		name := d.Name()
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if ignorer != nil && ignorer.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if ignorer != nil && ignorer.MatchesPath(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if limits.MaxFileBytes > 0 && info.Size() > limits.MaxFileBytes {
			return nil
		}

		files = append(files, FileInfo{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
		totalBytes += info.Size()

		if limits.MaxFileCount > 0 && len(files) > limits.MaxFileCount {
			return apperrors.New(apperrors.RepositoryTooLarge,
				fmt.Sprintf("repository exceeds %d files", limits.MaxFileCount))
		}
		if limits.MaxRepoBytes > 0 && totalBytes > limits.MaxRepoBytes {
			return apperrors.New(apperrors.RepositoryTooLarge,
				fmt.Sprintf("repository exceeds %d bytes", limits.MaxRepoBytes))
		}
		return nil
	})
	if err != nil {
		if apperrors.Is(err, apperrors.RepositoryTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning snapshot tree: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
