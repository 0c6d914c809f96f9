package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
	"github.com/Gourav1632/into-the-repo/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Output: io.Discard})
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func paths(files []FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestScanTreeSkipRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", "print('hi')\n")
	writeFile(t, root, "lib/util.py", "x = 1\n")
	writeFile(t, root, ".env", "SECRET=1\n")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "node_modules/react/index.js", "module.exports = {}\n")
	writeFile(t, root, "__pycache__/main.pyc", "\x00")
	writeFile(t, root, "docs/readme.md", "# docs\n")

	files, err := scanTree(root, Limits{})
	if err != nil {
		t.Fatalf("scanTree: %v", err)
	}
	want := []string{"docs/readme.md", "lib/util.py", "main.py"}
	if !reflect.DeepEqual(paths(files), want) {
		t.Errorf("files = %v, want %v", paths(files), want)
	}
}

func TestScanTreeHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.log\n")
	writeFile(t, root, "main.py", "x = 1\n")
	writeFile(t, root, "generated/out.py", "y = 2\n")
	writeFile(t, root, "debug.log", "noise\n")

	files, err := scanTree(root, Limits{})
	if err != nil {
		t.Fatalf("scanTree: %v", err)
	}
	want := []string{"main.py"}
	if !reflect.DeepEqual(paths(files), want) {
		t.Errorf("files = %v, want %v", paths(files), want)
	}
}

func TestScanTreeOversizedFileSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.py", "x = 1\n")
	writeFile(t, root, "big.bin", strings.Repeat("a", 128))

	files, err := scanTree(root, Limits{MaxFileBytes: 64})
	if err != nil {
		t.Fatalf("scanTree: %v", err)
	}
	want := []string{"small.py"}
	if !reflect.DeepEqual(paths(files), want) {
		t.Errorf("files = %v, want %v", paths(files), want)
	}
}

func TestScanTreeCeilings(t *testing.T) {
	t.Run("file count", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.py", "1")
		writeFile(t, root, "b.py", "2")
		writeFile(t, root, "c.py", "3")

		_, err := scanTree(root, Limits{MaxFileCount: 2})
		if code := apperrors.CodeOf(err); code != apperrors.RepositoryTooLarge {
			t.Errorf("error code = %s, want %s", code, apperrors.RepositoryTooLarge)
		}
	})

	t.Run("total bytes", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.py", strings.Repeat("a", 40))
		writeFile(t, root, "b.py", strings.Repeat("b", 40))

		_, err := scanTree(root, Limits{MaxRepoBytes: 64})
		if code := apperrors.CodeOf(err); code != apperrors.RepositoryTooLarge {
			t.Errorf("error code = %s, want %s", code, apperrors.RepositoryTooLarge)
		}
	})
}

func TestSnapshotRead(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/mod.py", "value = 42\n")

	snap := &Snapshot{dir: root, commit: "abc", files: []FileInfo{{Path: "pkg/mod.py"}}}
	content, err := snap.Read("pkg/mod.py")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(content) != "value = 42\n" {
		t.Errorf("content = %q", content)
	}

	if _, err := snap.Read("../outside"); err == nil {
		t.Error("escaping path must be rejected")
	}
}

func TestFetchReusesCompleteSnapshot(t *testing.T) {
	work := t.TempDir()
	commit := "deadbeef"
	dest := filepath.Join(work, commit)
	writeFile(t, dest, "main.py", "x = 1\n")
	writeFile(t, dest, completeMarker, commit+"\n")

	f := NewFetcher(work, Limits{}, 0, testLogger())
	snap, err := f.Fetch(context.Background(), "https://example.com/acme/widgets", "main", commit)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Commit() != commit {
		t.Errorf("commit = %s, want %s", snap.Commit(), commit)
	}
	want := []string{"main.py"}
	if !reflect.DeepEqual(paths(snap.Files()), want) {
		t.Errorf("files = %v, want %v", paths(snap.Files()), want)
	}
}

func TestIsComplete(t *testing.T) {
	dir := t.TempDir()
	if isComplete(dir) {
		t.Error("directory without marker must not be complete")
	}
	writeFile(t, dir, completeMarker, "c\n")
	if !isComplete(dir) {
		t.Error("directory with marker must be complete")
	}
}
