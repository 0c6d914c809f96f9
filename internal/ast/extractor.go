package ast

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Extractor parses source files into FileRecords. It is stateless and safe
// for concurrent use; each extraction creates its own parser because
// tree-sitter parsers are not thread-safe.
type Extractor struct{}

// NewExtractor creates an extractor over the registered grammars.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses one file's contents into a normalized record.
//
// Unknown extensions yield a minimal record (language "unknown", empty
// body). A parse failure in a supported language yields a record with
// ParseError set and an empty body. Neither case is an error: per-file
// problems never abort the batch.
func (e *Extractor) Extract(ctx context.Context, path string, source []byte) (*FileRecord, error) {
	record := &FileRecord{
		Path:     path,
		Language: LanguageForPath(path),
	}
	if !record.Language.Supported() {
		record.Language = LangUnknown
		return record, nil
	}

	grammar, _ := grammarFor(record.Language)
	syn, _ := syntaxFor(record.Language)

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		record.ParseError = err.Error()
		return record, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		record.ParseError = "syntax error"
		return record, nil
	}

	w := &walker{source: source, syn: syn, lang: record.Language, record: record}
	w.walk(root, nil, false, 0)
	w.finish()
	return record, nil
}

// walker carries traversal state for one file.
type walker struct {
	source []byte
	syn    *syntax
	lang   Language
	record *FileRecord
}

// walk visits n and its subtree. cls is the enclosing class when the walker
// is directly inside a class body (nil within function bodies, so nested
// definitions are not misattributed as methods). depth counts enclosing
// classes.
func (w *walker) walk(n *sitter.Node, cls *ClassInfo, insideFn bool, depth int) {
	t := n.Type()

	switch {
	case w.syn.imports.has(t):
		w.record.Imports = append(w.record.Imports, w.importTargets(n)...)
		return

	// A class node without a body is a bare type reference, not a
	// declaration (C++ "struct Foo x;").
	case w.syn.classes.has(t) && n.ChildByFieldName("body") != nil:
		ci := ClassInfo{
			Name:      w.declName(n),
			StartLine: startLine(n),
			Depth:     depth,
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			w.walk(n.Child(i), &ci, false, depth+1)
		}
		for _, m := range ci.Methods {
			ci.Complexity += m.Complexity
		}
		w.record.Classes = append(w.record.Classes, ci)
		return

	case w.syn.functions.has(t):
		fi := FunctionInfo{
			Name:       w.declName(n),
			StartLine:  startLine(n),
			EndLine:    int(n.EndPoint().Row) + 1,
			Complexity: w.complexityOf(n),
			Calls:      w.collectCalls(n),
		}
		if cls != nil && !insideFn {
			cls.Methods = append(cls.Methods, fi)
		} else {
			w.record.Functions = append(w.record.Functions, fi)
		}
		// Nested classes and functions are still their own entities.
		for i := 0; i < int(n.ChildCount()); i++ {
			w.walk(n.Child(i), nil, true, depth)
		}
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i), cls, insideFn, depth)
	}
}

// finish orders the record deterministically: declarations by position, then
// name, so identical inputs always produce identical records.
func (w *walker) finish() {
	sortFunctions(w.record.Functions)
	sort.SliceStable(w.record.Classes, func(i, j int) bool {
		a, b := w.record.Classes[i], w.record.Classes[j]
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.Name < b.Name
	})
	for i := range w.record.Classes {
		sortFunctions(w.record.Classes[i].Methods)
	}
	sort.SliceStable(w.record.Imports, func(i, j int) bool {
		a, b := w.record.Imports[i], w.record.Imports[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Target < b.Target
	})
}

func sortFunctions(fns []FunctionInfo) {
	sort.SliceStable(fns, func(i, j int) bool {
		if fns[i].StartLine != fns[j].StartLine {
			return fns[i].StartLine < fns[j].StartLine
		}
		return fns[i].Name < fns[j].Name
	})
}

// complexityOf applies the uniform cyclomatic rule to a function subtree:
// base 1, plus one per branch, loop, exception handler, and short-circuit
// boolean operator.
func (w *walker) complexityOf(n *sitter.Node) int {
	score := 1
	var visit func(*sitter.Node)
	visit = func(m *sitter.Node) {
		t := m.Type()
		switch {
		case w.syn.branches.has(t), w.syn.loops.has(t), w.syn.handlers.has(t):
			score++
		case w.syn.booleanExprs.has(t) && w.isShortCircuit(m):
			score++
		}
		for i := 0; i < int(m.ChildCount()); i++ {
			visit(m.Child(i))
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		visit(n.Child(i))
	}
	return score
}

// isShortCircuit reports whether a candidate boolean node applies one of the
// language's short-circuit operators. Python spells them as keyword node
// types ("and"/"or"); the C-family languages as operator tokens.
func (w *walker) isShortCircuit(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if w.syn.boolOps.has(child.Type()) || w.syn.boolOps.has(w.text(child)) {
			return true
		}
	}
	return false
}

// collectCalls gathers callee names invoked directly by n's body. Nested
// function and class subtrees are skipped: their call sites belong to the
// nested unit.
func (w *walker) collectCalls(n *sitter.Node) []string {
	var calls []string
	var visit func(*sitter.Node)
	visit = func(m *sitter.Node) {
		t := m.Type()
		if w.syn.functions.has(t) || w.syn.classes.has(t) {
			return
		}
		if w.syn.calls.has(t) {
			if name := w.calleeName(m); name != "" {
				calls = append(calls, name)
			}
		}
		for i := 0; i < int(m.ChildCount()); i++ {
			visit(m.Child(i))
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		visit(n.Child(i))
	}
	return calls
}

// declName extracts the declared name of a function or class node, falling
// back to a position-stamped placeholder for anonymous units.
func (w *walker) declName(n *sitter.Node) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return w.text(name)
	}

	// C/C++ bury the identifier inside the declarator.
	if decl := n.ChildByFieldName("declarator"); decl != nil {
		if id := findIdentifier(decl); id != nil {
			return w.text(id)
		}
	}

	return fmt.Sprintf("<anonymous>:line-%d", startLine(n))
}

// findIdentifier locates the first identifier-like node in a declarator.
func findIdentifier(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if id := findIdentifier(n.NamedChild(i)); id != nil {
			return id
		}
	}
	return nil
}

// calleeName extracts a readable callee name from a call node.
func (w *walker) calleeName(n *sitter.Node) string {
	switch n.Type() {
	case "method_invocation":
		name := n.ChildByFieldName("name")
		if name == nil {
			return ""
		}
		if obj := n.ChildByFieldName("object"); obj != nil {
			return w.nodeName(obj) + "." + w.text(name)
		}
		return w.text(name)
	case "object_creation_expression":
		if typ := n.ChildByFieldName("type"); typ != nil {
			return w.text(typ)
		}
		return ""
	}

	target := n.ChildByFieldName("function")
	if target == nil {
		target = n.ChildByFieldName("constructor")
	}
	if target == nil && n.NamedChildCount() > 0 {
		target = n.NamedChild(0)
	}
	if target == nil {
		return ""
	}
	return w.nodeName(target)
}

// nodeName converts an expression node into a dotted name where possible:
// identifiers map to their text, member accesses to "object.property".
func (w *walker) nodeName(n *sitter.Node) string {
	switch n.Type() {
	case "member_expression":
		return w.joinName(n.ChildByFieldName("object"), n.ChildByFieldName("property"))
	case "attribute":
		return w.joinName(n.ChildByFieldName("object"), n.ChildByFieldName("attribute"))
	case "selector_expression":
		return w.joinName(n.ChildByFieldName("operand"), n.ChildByFieldName("field"))
	case "field_expression":
		return w.joinName(n.ChildByFieldName("argument"), n.ChildByFieldName("field"))
	case "call_expression", "call", "method_invocation":
		return w.calleeName(n)
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return w.nodeName(n.NamedChild(0))
		}
		return ""
	}
	return w.text(n)
}

func (w *walker) joinName(object, property *sitter.Node) string {
	objName := ""
	if object != nil {
		objName = w.nodeName(object)
	}
	propName := ""
	if property != nil {
		propName = w.text(property)
	}
	if objName != "" && propName != "" {
		return objName + "." + propName
	}
	if objName != "" {
		return objName
	}
	return propName
}

// importTargets extracts import targets exactly as written in the source.
func (w *walker) importTargets(n *sitter.Node) []ImportInfo {
	line := startLine(n)

	switch w.lang {
	case LangPython:
		if n.Type() == "import_from_statement" {
			if module := n.ChildByFieldName("module_name"); module != nil {
				return []ImportInfo{{Target: w.text(module), Line: line}}
			}
			return nil
		}
		// import_statement: possibly several comma-separated modules.
		var targets []ImportInfo
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				targets = append(targets, ImportInfo{Target: w.text(child), Line: line})
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					targets = append(targets, ImportInfo{Target: w.text(name), Line: line})
				}
			}
		}
		return targets

	case LangJavaScript, LangTypeScript, LangTSX:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "string" {
				return []ImportInfo{{Target: stripQuotes(w.text(child)), Line: line}}
			}
		}
		return nil

	case LangGo:
		if path := n.ChildByFieldName("path"); path != nil {
			return []ImportInfo{{Target: stripQuotes(w.text(path)), Line: line}}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "interpreted_string_literal" {
				return []ImportInfo{{Target: stripQuotes(w.text(child)), Line: line}}
			}
		}
		return nil

	case LangJava:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
				return []ImportInfo{{Target: w.text(child), Line: line}}
			}
		}
		return nil

	case LangC, LangCPP:
		if path := n.ChildByFieldName("path"); path != nil {
			target := w.text(path)
			if path.Type() == "string_literal" {
				target = stripQuotes(target)
			}
			return []ImportInfo{{Target: target, Line: line}}
		}
		return nil
	}
	return nil
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.source[n.StartByte():n.EndByte()])
}

func startLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
