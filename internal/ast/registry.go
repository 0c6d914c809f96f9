package ast

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// stringSet is a membership set over node type names.
type stringSet map[string]struct{}

func newSet(items ...string) stringSet {
	s := make(stringSet, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s stringSet) has(item string) bool {
	_, ok := s[item]
	return ok
}

// syntax describes how one grammar maps onto the shared structural model:
// which node types declare functions and classes, which introduce imports
// and calls, and which count toward the uniform control-flow complexity
// classification (branches, loops, exception handlers, boolean operators).
type syntax struct {
	functions stringSet
	classes   stringSet
	imports   stringSet
	calls     stringSet

	// branches, loops and handlers each add one to cyclomatic complexity.
	branches stringSet
	loops    stringSet
	handlers stringSet

	// booleanExprs are node types that may be short-circuit operator
	// applications; they count only when the operator is one of boolOps.
	booleanExprs stringSet
	boolOps      stringSet
}

var grammars = map[Language]*sitter.Language{
	LangGo:         golang.GetLanguage(),
	LangPython:     python.GetLanguage(),
	LangJavaScript: javascript.GetLanguage(),
	LangTypeScript: typescript.GetLanguage(),
	LangTSX:        tsx.GetLanguage(),
	LangJava:       java.GetLanguage(),
	LangC:          c.GetLanguage(),
	LangCPP:        cpp.GetLanguage(),
}

var extensions = map[string]Language{
	".go":   LangGo,
	".py":   LangPython,
	".pyw":  LangPython,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".ts":   LangTypeScript,
	".tsx":  LangTSX,
	".java": LangJava,
	".c":    LangC,
	".h":    LangC,
	".cpp":  LangCPP,
	".cc":   LangCPP,
	".cxx":  LangCPP,
	".hpp":  LangCPP,
	".hh":   LangCPP,
}

var jsSyntax = &syntax{
	functions: newSet("function_declaration", "function_expression", "generator_function_declaration",
		"arrow_function", "method_definition"),
	classes:      newSet("class_declaration"),
	imports:      newSet("import_statement"),
	calls:        newSet("call_expression", "new_expression"),
	branches:     newSet("if_statement", "switch_case", "ternary_expression"),
	loops:        newSet("for_statement", "for_in_statement", "while_statement", "do_statement"),
	handlers:     newSet("catch_clause"),
	booleanExprs: newSet("binary_expression"),
	boolOps:      newSet("&&", "||", "??"),
}

var syntaxes = map[Language]*syntax{
	LangGo: {
		functions:    newSet("function_declaration", "method_declaration", "func_literal"),
		imports:      newSet("import_spec"),
		calls:        newSet("call_expression"),
		branches:     newSet("if_statement", "expression_case", "type_case", "communication_case"),
		loops:        newSet("for_statement"),
		handlers:     newSet(), // no exception clauses in Go
		booleanExprs: newSet("binary_expression"),
		boolOps:      newSet("&&", "||"),
	},
	LangPython: {
		functions: newSet("function_definition", "lambda"),
		classes:   newSet("class_definition"),
		imports:   newSet("import_statement", "import_from_statement"),
		calls:     newSet("call"),
		branches:  newSet("if_statement", "elif_clause", "conditional_expression"),
		loops: newSet("for_statement", "while_statement",
			"list_comprehension", "dictionary_comprehension", "set_comprehension", "generator_expression"),
		handlers:     newSet("except_clause"),
		booleanExprs: newSet("boolean_operator"),
		boolOps:      newSet("and", "or"),
	},
	LangJavaScript: jsSyntax,
	LangTypeScript: jsSyntax,
	LangTSX:        jsSyntax,
	LangJava: {
		functions:    newSet("method_declaration", "constructor_declaration", "lambda_expression"),
		classes:      newSet("class_declaration"),
		imports:      newSet("import_declaration"),
		calls:        newSet("method_invocation", "object_creation_expression"),
		branches:     newSet("if_statement", "switch_block_statement_group", "ternary_expression"),
		loops:        newSet("for_statement", "enhanced_for_statement", "while_statement", "do_statement"),
		handlers:     newSet("catch_clause"),
		booleanExprs: newSet("binary_expression"),
		boolOps:      newSet("&&", "||"),
	},
	LangC: {
		functions:    newSet("function_definition"),
		imports:      newSet("preproc_include"),
		calls:        newSet("call_expression"),
		branches:     newSet("if_statement", "case_statement", "conditional_expression"),
		loops:        newSet("for_statement", "while_statement", "do_statement"),
		handlers:     newSet(),
		booleanExprs: newSet("binary_expression"),
		boolOps:      newSet("&&", "||"),
	},
	LangCPP: {
		functions:    newSet("function_definition", "lambda_expression"),
		classes:      newSet("class_specifier", "struct_specifier"),
		imports:      newSet("preproc_include"),
		calls:        newSet("call_expression"),
		branches:     newSet("if_statement", "case_statement", "conditional_expression"),
		loops:        newSet("for_statement", "for_range_loop", "while_statement", "do_statement"),
		handlers:     newSet("catch_clause"),
		booleanExprs: newSet("binary_expression"),
		boolOps:      newSet("&&", "||"),
	},
}

// LanguageForPath maps a file to its registered grammar by extension.
// Unknown extensions return LangUnknown; the file is still listed but
// carries no AST body.
func LanguageForPath(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensions[ext]; ok {
		return lang
	}
	return LangUnknown
}

// Supported reports whether a grammar is registered for the language.
func (l Language) Supported() bool {
	_, ok := grammars[l]
	return ok
}

// grammarFor returns the tree-sitter grammar for a supported language.
func grammarFor(lang Language) (*sitter.Language, bool) {
	g, ok := grammars[lang]
	return g, ok
}

// syntaxFor returns the node classification tables for a supported language.
func syntaxFor(lang Language) (*syntax, bool) {
	s, ok := syntaxes[lang]
	return s, ok
}
