package graph

import (
	"reflect"
	"testing"

	"github.com/Gourav1632/into-the-repo/internal/ast"
	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
)

func file(path string, imports ...string) *ast.FileRecord {
	rec := &ast.FileRecord{Path: path, Language: ast.LanguageForPath(path)}
	for i, target := range imports {
		rec.Imports = append(rec.Imports, ast.ImportInfo{Target: target, Line: i + 1})
	}
	return rec
}

func edgeIDs(g *Graph) []string {
	ids := make([]string, 0, len(g.Edges))
	for _, e := range g.Edges {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestDependencyGraphRelativeImports(t *testing.T) {
	files := []*ast.FileRecord{
		file("src/app.js", "./loader", "react"),
		file("src/loader.js"),
	}
	g, err := BuildDependencyGraph(files)
	if err != nil {
		t.Fatalf("BuildDependencyGraph: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(g.Nodes))
	}
	// Edge runs imported -> importer; the external "react" import is dropped.
	want := []string{"src/loader->src/app"}
	if !reflect.DeepEqual(edgeIDs(g), want) {
		t.Errorf("edges = %v, want %v", edgeIDs(g), want)
	}
}

func TestDependencyGraphPythonImports(t *testing.T) {
	files := []*ast.FileRecord{
		file("app/main.py", "app.models.user", ".settings", "os"),
		file("app/models/user.py"),
		file("app/settings.py"),
	}
	g, err := BuildDependencyGraph(files)
	if err != nil {
		t.Fatalf("BuildDependencyGraph: %v", err)
	}
	want := []string{
		"app/models/user->app/main",
		"app/settings->app/main",
	}
	if !reflect.DeepEqual(edgeIDs(g), want) {
		t.Errorf("edges = %v, want %v", edgeIDs(g), want)
	}
}

func TestDependencyGraphBasenameMatching(t *testing.T) {
	t.Run("unique basename resolves", func(t *testing.T) {
		files := []*ast.FileRecord{
			file("cmd/main.py", "helpers"),
			file("lib/helpers.py"),
		}
		g, err := BuildDependencyGraph(files)
		if err != nil {
			t.Fatalf("BuildDependencyGraph: %v", err)
		}
		want := []string{"lib/helpers->cmd/main"}
		if !reflect.DeepEqual(edgeIDs(g), want) {
			t.Errorf("edges = %v, want %v", edgeIDs(g), want)
		}
	})

	t.Run("ambiguous basename is dropped", func(t *testing.T) {
		files := []*ast.FileRecord{
			file("cmd/main.py", "helpers"),
			file("lib/helpers.py"),
			file("web/helpers.py"),
		}
		g, err := BuildDependencyGraph(files)
		if err != nil {
			t.Fatalf("BuildDependencyGraph: %v", err)
		}
		if len(g.Edges) != 0 {
			t.Errorf("edges = %v, want none for an ambiguous name", edgeIDs(g))
		}
	})
}

func TestDependencyGraphSystemIncludesDropped(t *testing.T) {
	files := []*ast.FileRecord{
		file("core/alloc.c", "<stdio.h>", "arena.h"),
		file("core/arena.c"),
	}
	// <stdio.h> is dropped; arena.h strips its extension and matches the
	// only file named arena.
	g, err := BuildDependencyGraph(files)
	if err != nil {
		t.Fatalf("BuildDependencyGraph: %v", err)
	}
	want := []string{"core/arena->core/alloc"}
	if !reflect.DeepEqual(edgeIDs(g), want) {
		t.Errorf("edges = %v, want %v", edgeIDs(g), want)
	}
}

func TestDependencyGraphIDCollision(t *testing.T) {
	files := []*ast.FileRecord{
		file("lib/util.py"),
		file("lib/util.js"),
	}
	_, err := BuildDependencyGraph(files)
	if err == nil {
		t.Fatal("expected an error for colliding node ids")
	}
	if code := apperrors.CodeOf(err); code != apperrors.GraphInvariant {
		t.Errorf("error code = %s, want %s", code, apperrors.GraphInvariant)
	}
}

func TestDependencyGraphDeterministic(t *testing.T) {
	files := []*ast.FileRecord{
		file("b.py", "a"),
		file("a.py", "c"),
		file("c.py", "a", "b"),
	}
	first, err := BuildDependencyGraph(files)
	if err != nil {
		t.Fatalf("BuildDependencyGraph: %v", err)
	}
	second, err := BuildDependencyGraph(files)
	if err != nil {
		t.Fatalf("BuildDependencyGraph: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two builds over the same records differ")
	}
	for i := 1; i < len(first.Nodes); i++ {
		if first.Nodes[i-1].ID >= first.Nodes[i].ID {
			t.Fatalf("nodes not in id order: %v", first.Nodes)
		}
	}
	for i := 1; i < len(first.Edges); i++ {
		if first.Edges[i-1].ID >= first.Edges[i].ID {
			t.Fatalf("edges not in id order: %v", first.Edges)
		}
	}
}

func TestCallGraphStructure(t *testing.T) {
	rec := &ast.FileRecord{
		Path:     "app/service.py",
		Language: ast.LangPython,
		Functions: []ast.FunctionInfo{
			{Name: "validate", StartLine: 1, EndLine: 3, Complexity: 2},
			{Name: "run", StartLine: 5, EndLine: 9, Complexity: 1, Calls: []string{"validate", "self.save"}},
		},
		Classes: []ast.ClassInfo{
			{Name: "Store", StartLine: 11, Methods: []ast.FunctionInfo{
				{Name: "save", StartLine: 12, EndLine: 14, Complexity: 1, Calls: []string{"validate"}},
			}},
		},
	}

	g, err := BuildCallGraph(rec)
	if err != nil {
		t.Fatalf("BuildCallGraph: %v", err)
	}

	wantNodes := []string{
		"app/service",
		"app/service::class::Store",
		"app/service::class::Store::method::save",
		"app/service::function::run",
		"app/service::function::validate",
	}
	gotNodes := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		gotNodes = append(gotNodes, n.ID)
	}
	if !reflect.DeepEqual(gotNodes, wantNodes) {
		t.Errorf("nodes = %v, want %v", gotNodes, wantNodes)
	}

	wantEdges := []string{
		// containment
		"app/service->app/service::class::Store",
		"app/service->app/service::function::run",
		"app/service->app/service::function::validate",
		"app/service::class::Store->app/service::class::Store::method::save",
		// calls: "self.save" falls back to its last segment
		"app/service::class::Store::method::save->app/service::function::validate",
		"app/service::function::run->app/service::class::Store::method::save",
		"app/service::function::run->app/service::function::validate",
	}
	if !reflect.DeepEqual(edgeIDs(g), wantEdges) {
		t.Errorf("edges = %v, want %v", edgeIDs(g), wantEdges)
	}
}

func TestCallGraphAmbiguousAndUnknownCalls(t *testing.T) {
	rec := &ast.FileRecord{
		Path:     "mix.js",
		Language: ast.LangJavaScript,
		Functions: []ast.FunctionInfo{
			{Name: "init", StartLine: 1, EndLine: 2, Calls: []string{"parse", "fetch"}},
		},
		Classes: []ast.ClassInfo{
			{Name: "A", StartLine: 4, Methods: []ast.FunctionInfo{{Name: "parse", StartLine: 5, EndLine: 6}}},
			{Name: "B", StartLine: 8, Methods: []ast.FunctionInfo{{Name: "parse", StartLine: 9, EndLine: 10}}},
		},
	}
	g, err := BuildCallGraph(rec)
	if err != nil {
		t.Fatalf("BuildCallGraph: %v", err)
	}
	// "parse" matches two methods and "fetch" matches nothing; neither
	// produces a call edge, so only containment edges remain.
	for _, e := range g.Edges {
		if e.Source == "mix::function::init" {
			continue
		}
		if e.Source != "mix" && e.Source != "mix::class::A" && e.Source != "mix::class::B" {
			t.Errorf("unexpected edge %s", e.ID)
		}
	}
	for _, e := range g.Edges {
		if e.Target == "mix::class::A::method::parse" && e.Source != "mix::class::A" {
			t.Errorf("ambiguous call produced edge %s", e.ID)
		}
	}
}

func TestCallGraphDuplicateDeclaration(t *testing.T) {
	rec := &ast.FileRecord{
		Path:     "dup.py",
		Language: ast.LangPython,
		Functions: []ast.FunctionInfo{
			{Name: "f", StartLine: 1, EndLine: 2},
			{Name: "f", StartLine: 4, EndLine: 5},
		},
	}
	_, err := BuildCallGraph(rec)
	if err == nil {
		t.Fatal("expected an error for duplicate declaration ids")
	}
	if code := apperrors.CodeOf(err); code != apperrors.GraphInvariant {
		t.Errorf("error code = %s, want %s", code, apperrors.GraphInvariant)
	}
}

func TestBuildCallGraphsKeyedByPath(t *testing.T) {
	files := []*ast.FileRecord{
		file("a.py"),
		file("b/c.py"),
	}
	graphs, err := BuildCallGraphs(files)
	if err != nil {
		t.Fatalf("BuildCallGraphs: %v", err)
	}
	for _, p := range []string{"a.py", "b/c.py"} {
		if graphs[p] == nil {
			t.Errorf("missing call graph for %s", p)
		}
	}
}
