package graph

import (
	"path"
	"strings"

	"github.com/Gourav1632/into-the-repo/internal/ast"
)

// fileID normalizes a snapshot-relative path into a node identity: the path
// with its extension removed. Dotfiles keep their full name.
func fileID(p string) string {
	ext := path.Ext(p)
	if ext == "" || ext == path.Base(p) {
		return p
	}
	return strings.TrimSuffix(p, ext)
}

// BuildDependencyGraph links files through their import statements. An edge
// runs from the imported file to the importing file, so the graph reads as
// "changes here flow there". Imports that do not land on a file in the same
// snapshot (standard library, third-party packages, system headers) are
// dropped.
func BuildDependencyGraph(files []*ast.FileRecord) (*Graph, error) {
	b := newBuilder()
	r := newImportResolver()

	for _, f := range files {
		id := fileID(f.Path)
		if err := b.addNode(id, path.Base(id)); err != nil {
			return nil, err
		}
		r.addFile(id)
	}

	for _, f := range files {
		importer := fileID(f.Path)
		dir := path.Dir(f.Path)
		for _, imp := range f.Imports {
			imported, ok := r.resolve(imp.Target, dir)
			if !ok || imported == importer {
				continue
			}
			b.addEdge(imported, importer)
		}
	}
	return b.graph(), nil
}

// importResolver matches import targets, written in any of the supported
// languages' notations, against the snapshot's file identities.
type importResolver struct {
	ids       map[string]struct{}
	basenames map[string][]string
}

func newImportResolver() *importResolver {
	return &importResolver{
		ids:       make(map[string]struct{}),
		basenames: make(map[string][]string),
	}
}

func (r *importResolver) addFile(id string) {
	r.ids[id] = struct{}{}
	base := path.Base(id)
	r.basenames[base] = append(r.basenames[base], id)
}

func (r *importResolver) resolve(target, fileDir string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" || strings.HasPrefix(target, "<") {
		// System headers and empty targets are never snapshot files.
		return "", false
	}

	// Explicit relative path: "./loader", "../core/db.js".
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		return r.exact(fileID(path.Join(fileDir, target)))
	}

	// Python relative module: ".utils", "..core.db".
	if strings.HasPrefix(target, ".") && !strings.Contains(target, "/") {
		dots := 0
		for dots < len(target) && target[dots] == '.' {
			dots++
		}
		rest := strings.ReplaceAll(target[dots:], ".", "/")
		if rest == "" {
			return "", false
		}
		dir := fileDir
		for i := 1; i < dots; i++ {
			dir = path.Join(dir, "..")
		}
		return r.exact(path.Join(dir, rest))
	}

	// Path-like target: match the identity directly.
	if strings.Contains(target, "/") {
		return r.exact(fileID(target))
	}

	// File-style target with a known source extension: "arena.h",
	// "util.js". The extension is noise for identity matching.
	if ast.LanguageForPath(target) != ast.LangUnknown {
		return r.unique(fileID(target))
	}

	// Dotted module path: "app.models.user" maps to app/models/user,
	// falling back to the last segment as a basename.
	if strings.Contains(target, ".") {
		if id, ok := r.exact(strings.ReplaceAll(target, ".", "/")); ok {
			return id, true
		}
		parts := strings.Split(target, ".")
		return r.unique(parts[len(parts)-1])
	}

	// Bare name: resolve only when exactly one file carries it.
	return r.unique(target)
}

func (r *importResolver) exact(id string) (string, bool) {
	if _, ok := r.ids[id]; ok {
		return id, true
	}
	return "", false
}

// unique resolves a basename only when it is unambiguous. A name carried by
// several files would force an arbitrary pick, so it is dropped instead.
func (r *importResolver) unique(base string) (string, bool) {
	ids := r.basenames[base]
	if len(ids) == 1 {
		return ids[0], true
	}
	return "", false
}

// BuildCallGraph maps one file's internal structure: containment edges from
// the file to its functions and classes and from each class to its methods,
// plus call edges wherever a recorded call site names exactly one
// function or method declared in the same file.
func BuildCallGraph(file *ast.FileRecord) (*Graph, error) {
	b := newBuilder()
	fid := fileID(file.Path)
	if err := b.addNode(fid, path.Base(fid)); err != nil {
		return nil, err
	}

	// candidates maps a declared name to every node carrying it; a call
	// edge is drawn only when the set has exactly one entry.
	candidates := make(map[string][]string)

	type caller struct {
		id    string
		calls []string
	}
	var callers []caller

	for _, fn := range file.Functions {
		id := fid + "::function::" + fn.Name
		if err := b.addNode(id, fn.Name); err != nil {
			return nil, err
		}
		b.addEdge(fid, id)
		candidates[fn.Name] = append(candidates[fn.Name], id)
		callers = append(callers, caller{id: id, calls: fn.Calls})
	}

	for _, cls := range file.Classes {
		cid := fid + "::class::" + cls.Name
		if err := b.addNode(cid, cls.Name); err != nil {
			return nil, err
		}
		b.addEdge(fid, cid)
		for _, m := range cls.Methods {
			mid := cid + "::method::" + m.Name
			if err := b.addNode(mid, m.Name); err != nil {
				return nil, err
			}
			b.addEdge(cid, mid)
			candidates[m.Name] = append(candidates[m.Name], mid)
			callers = append(callers, caller{id: mid, calls: m.Calls})
		}
	}

	for _, c := range callers {
		for _, name := range c.calls {
			target, ok := matchCallee(candidates, name)
			if !ok {
				continue
			}
			b.addEdge(c.id, target)
		}
	}
	return b.graph(), nil
}

// matchCallee resolves a call-site name against the file's declarations.
// Dotted names ("self.save", "db.Client.connect") fall back to their final
// segment. Ambiguous names resolve to nothing rather than to a guess.
func matchCallee(candidates map[string][]string, name string) (string, bool) {
	if ids := candidates[name]; len(ids) == 1 {
		return ids[0], true
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		if ids := candidates[name[i+1:]]; len(ids) == 1 {
			return ids[0], true
		}
	}
	return "", false
}

// BuildCallGraphs builds the per-file call graphs for a whole snapshot,
// keyed by the original file path.
func BuildCallGraphs(files []*ast.FileRecord) (map[string]*Graph, error) {
	graphs := make(map[string]*Graph, len(files))
	for _, f := range files {
		g, err := BuildCallGraph(f)
		if err != nil {
			return nil, err
		}
		graphs[f.Path] = g
	}
	return graphs, nil
}
