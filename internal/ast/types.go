// Package ast extracts normalized structural records from source files using
// tree-sitter grammars. One record is produced per file; files in languages
// without a registered grammar still get a minimal record so that every file
// remains visible to the graph builder.
package ast

import "time"

// Language identifies a registered grammar.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	// LangUnknown marks files with no registered grammar. They are listed
	// but carry no AST body.
	LangUnknown Language = "unknown"
)

// FunctionInfo is the structural summary of one function or method.
type FunctionInfo struct {
	// Name is the declared name, or "<anonymous>:line-N" for unnamed units.
	Name string `json:"name"`

	// StartLine and EndLine are 1-based and inclusive.
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`

	// Complexity is the cyclomatic score: 1 plus one per conditional
	// branch, loop construct, short-circuit boolean operator, and
	// exception handler in the body. The counting rule is shared across
	// grammars so scores are comparable between languages.
	Complexity int `json:"complexity"`

	// Calls holds the names invoked from this unit, as written and
	// unresolved. Matching happens in the graph builder.
	Calls []string `json:"calls,omitempty"`
}

// ClassInfo is the structural summary of one class-like declaration.
type ClassInfo struct {
	Name      string `json:"name"`
	StartLine int    `json:"startLine"`

	// Methods are the function-like members declared directly in the
	// class body.
	Methods []FunctionInfo `json:"methods,omitempty"`

	// Complexity is the sum of the method complexities.
	Complexity int `json:"complexity"`

	// Depth counts enclosing class declarations (0 for a top-level class).
	Depth int `json:"depth"`
}

// ImportInfo is one import edge target, recorded exactly as written in the
// source. Resolution against the snapshot's file set is the graph builder's
// job.
type ImportInfo struct {
	Target string `json:"target"`
	Line   int    `json:"line"`
}

// FileRecord is the normalized AST summary of a single file.
type FileRecord struct {
	// Path is relative to the snapshot root, POSIX-normalized, and unique
	// within the snapshot.
	Path string `json:"path"`

	Language Language `json:"language"`

	Functions []FunctionInfo `json:"functions,omitempty"`
	Classes   []ClassInfo    `json:"classes,omitempty"`
	Imports   []ImportInfo   `json:"imports,omitempty"`

	// LastModified comes from snapshot file metadata, not from the AST.
	LastModified time.Time `json:"lastModified,omitzero"`

	// ParseError marks a file in a supported language that failed to
	// parse. The failure is local: the file keeps its graph node, the
	// task does not fail.
	ParseError string `json:"parseError,omitempty"`
}
