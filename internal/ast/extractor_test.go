package ast

import (
	"context"
	"reflect"
	"testing"
)

func extract(t *testing.T, path, source string) *FileRecord {
	t.Helper()
	rec, err := NewExtractor().Extract(context.Background(), path, []byte(source))
	if err != nil {
		t.Fatalf("Extract(%s): %v", path, err)
	}
	return rec
}

func findFunction(t *testing.T, fns []FunctionInfo, name string) FunctionInfo {
	t.Helper()
	for _, fn := range fns {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %q not found in %v", name, fns)
	return FunctionInfo{}
}

func TestExtractPython(t *testing.T) {
	source := `import os
from utils import helper

def simple():
    return 1

def branchy(x):
    if x > 0 and x < 10:
        return helper(x)
    for i in range(x):
        print(i)
    return 0

class Greeter:
    def greet(self, name):
        if name:
            return "hi " + name
        return "hi"
`
	rec := extract(t, "app/main.py", source)
	if rec.Language != LangPython {
		t.Fatalf("language = %s, want python", rec.Language)
	}
	if rec.ParseError != "" {
		t.Fatalf("unexpected parse error: %s", rec.ParseError)
	}

	t.Run("imports", func(t *testing.T) {
		want := []ImportInfo{{Target: "os", Line: 1}, {Target: "utils", Line: 2}}
		if !reflect.DeepEqual(rec.Imports, want) {
			t.Errorf("imports = %v, want %v", rec.Imports, want)
		}
	})

	t.Run("functions", func(t *testing.T) {
		if len(rec.Functions) != 2 {
			t.Fatalf("got %d functions, want 2", len(rec.Functions))
		}
		simple := findFunction(t, rec.Functions, "simple")
		if simple.StartLine != 4 || simple.EndLine != 5 {
			t.Errorf("simple lines = %d..%d, want 4..5", simple.StartLine, simple.EndLine)
		}
		if simple.Complexity != 1 {
			t.Errorf("simple complexity = %d, want 1", simple.Complexity)
		}

		branchy := findFunction(t, rec.Functions, "branchy")
		// 1 + if + and + for
		if branchy.Complexity != 4 {
			t.Errorf("branchy complexity = %d, want 4", branchy.Complexity)
		}
		wantCalls := []string{"helper", "range", "print"}
		if !reflect.DeepEqual(branchy.Calls, wantCalls) {
			t.Errorf("branchy calls = %v, want %v", branchy.Calls, wantCalls)
		}
	})

	t.Run("classes", func(t *testing.T) {
		if len(rec.Classes) != 1 {
			t.Fatalf("got %d classes, want 1", len(rec.Classes))
		}
		greeter := rec.Classes[0]
		if greeter.Name != "Greeter" || greeter.StartLine != 14 || greeter.Depth != 0 {
			t.Errorf("class = %+v, want Greeter at line 14, depth 0", greeter)
		}
		if len(greeter.Methods) != 1 || greeter.Methods[0].Name != "greet" {
			t.Fatalf("methods = %v, want [greet]", greeter.Methods)
		}
		if greeter.Methods[0].Complexity != 2 {
			t.Errorf("greet complexity = %d, want 2", greeter.Methods[0].Complexity)
		}
		if greeter.Complexity != 2 {
			t.Errorf("class complexity = %d, want 2", greeter.Complexity)
		}
	})
}

func TestExtractPythonNestedFunction(t *testing.T) {
	source := `class A:
    def outer(self):
        def inner():
            return 1
        return inner()
`
	rec := extract(t, "a.py", source)

	// inner is declared inside a method body, so it is a free function,
	// not a method of A.
	if len(rec.Functions) != 1 || rec.Functions[0].Name != "inner" {
		t.Fatalf("functions = %v, want [inner]", rec.Functions)
	}
	if len(rec.Classes) != 1 || len(rec.Classes[0].Methods) != 1 {
		t.Fatalf("classes = %v, want A with one method", rec.Classes)
	}
	outer := rec.Classes[0].Methods[0]
	if outer.Name != "outer" {
		t.Fatalf("method = %q, want outer", outer.Name)
	}
	// The inner() call site is outside the nested body, so it belongs
	// to outer.
	if !reflect.DeepEqual(outer.Calls, []string{"inner"}) {
		t.Errorf("outer calls = %v, want [inner]", outer.Calls)
	}
}

func TestExtractGo(t *testing.T) {
	source := `package main

import (
	"fmt"
	"strings"
)

func Render(items []string) string {
	var b strings.Builder
	for _, item := range items {
		if item != "" && !strings.HasPrefix(item, "#") {
			b.WriteString(fmt.Sprintf("- %s", item))
		}
	}
	return b.String()
}
`
	rec := extract(t, "render.go", source)
	if rec.Language != LangGo {
		t.Fatalf("language = %s, want go", rec.Language)
	}

	wantImports := []ImportInfo{{Target: "fmt", Line: 4}, {Target: "strings", Line: 5}}
	if !reflect.DeepEqual(rec.Imports, wantImports) {
		t.Errorf("imports = %v, want %v", rec.Imports, wantImports)
	}

	render := findFunction(t, rec.Functions, "Render")
	if render.StartLine != 8 || render.EndLine != 16 {
		t.Errorf("Render lines = %d..%d, want 8..16", render.StartLine, render.EndLine)
	}
	// 1 + for + if + &&
	if render.Complexity != 4 {
		t.Errorf("Render complexity = %d, want 4", render.Complexity)
	}
	wantCalls := []string{"strings.HasPrefix", "b.WriteString", "fmt.Sprintf", "b.String"}
	if !reflect.DeepEqual(render.Calls, wantCalls) {
		t.Errorf("Render calls = %v, want %v", render.Calls, wantCalls)
	}
}

func TestExtractJavaScript(t *testing.T) {
	source := `import { load } from "./loader";

function run(items) {
  const data = load(items);
  if (data && data.ok) {
    return render(data);
  }
  return null;
}

class View {
  draw(ctx) {
    if (ctx) {
      render(ctx);
    }
  }
}
`
	rec := extract(t, "src/run.js", source)

	wantImports := []ImportInfo{{Target: "./loader", Line: 1}}
	if !reflect.DeepEqual(rec.Imports, wantImports) {
		t.Errorf("imports = %v, want %v", rec.Imports, wantImports)
	}

	run := findFunction(t, rec.Functions, "run")
	// 1 + if + &&
	if run.Complexity != 3 {
		t.Errorf("run complexity = %d, want 3", run.Complexity)
	}
	if !reflect.DeepEqual(run.Calls, []string{"load", "render"}) {
		t.Errorf("run calls = %v, want [load render]", run.Calls)
	}

	if len(rec.Classes) != 1 || rec.Classes[0].Name != "View" {
		t.Fatalf("classes = %v, want [View]", rec.Classes)
	}
	draw := findFunction(t, rec.Classes[0].Methods, "draw")
	if draw.Complexity != 2 {
		t.Errorf("draw complexity = %d, want 2", draw.Complexity)
	}
}

func TestExtractAnonymousFunction(t *testing.T) {
	rec := extract(t, "util.js", "const double = (x) => x * 2;\n")
	if len(rec.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(rec.Functions))
	}
	if got := rec.Functions[0].Name; got != "<anonymous>:line-1" {
		t.Errorf("name = %q, want <anonymous>:line-1", got)
	}
}

func TestExtractTypeScript(t *testing.T) {
	source := `import { parse } from "./parse";

function pick(x: number): number {
  return x > 0 ? parse(x) : 0;
}
`
	rec := extract(t, "pick.ts", source)
	if rec.Language != LangTypeScript {
		t.Fatalf("language = %s, want typescript", rec.Language)
	}
	pick := findFunction(t, rec.Functions, "pick")
	if pick.Complexity != 2 {
		t.Errorf("pick complexity = %d, want 2", pick.Complexity)
	}
	if !reflect.DeepEqual(pick.Calls, []string{"parse"}) {
		t.Errorf("pick calls = %v, want [parse]", pick.Calls)
	}
}

func TestExtractJava(t *testing.T) {
	source := `import java.util.List;

public class Processor {
    public int count(List<String> items) {
        int n = 0;
        for (String item : items) {
            if (item != null && !item.isEmpty()) {
                n++;
            }
        }
        return n;
    }
}
`
	rec := extract(t, "Processor.java", source)

	wantImports := []ImportInfo{{Target: "java.util.List", Line: 1}}
	if !reflect.DeepEqual(rec.Imports, wantImports) {
		t.Errorf("imports = %v, want %v", rec.Imports, wantImports)
	}

	if len(rec.Classes) != 1 {
		t.Fatalf("got %d classes, want 1", len(rec.Classes))
	}
	count := findFunction(t, rec.Classes[0].Methods, "count")
	// 1 + for + if + &&
	if count.Complexity != 4 {
		t.Errorf("count complexity = %d, want 4", count.Complexity)
	}
	if !reflect.DeepEqual(count.Calls, []string{"item.isEmpty"}) {
		t.Errorf("count calls = %v, want [item.isEmpty]", count.Calls)
	}
}

func TestExtractC(t *testing.T) {
	source := `#include <stdio.h>
#include "util.h"

int classify(int x) {
    if (x > 0 && x < 10) {
        return 1;
    }
    return x ? 2 : 3;
}
`
	rec := extract(t, "classify.c", source)

	wantImports := []ImportInfo{{Target: "<stdio.h>", Line: 1}, {Target: "util.h", Line: 2}}
	if !reflect.DeepEqual(rec.Imports, wantImports) {
		t.Errorf("imports = %v, want %v", rec.Imports, wantImports)
	}

	classify := findFunction(t, rec.Functions, "classify")
	// 1 + if + && + ternary
	if classify.Complexity != 4 {
		t.Errorf("classify complexity = %d, want 4", classify.Complexity)
	}
}

func TestExtractCPPNestedClass(t *testing.T) {
	source := `class Outer {
public:
    class Inner {
    public:
        int get() { return 1; }
    };
    int size() { return 2; }
};
`
	rec := extract(t, "outer.cpp", source)
	if len(rec.Classes) != 2 {
		t.Fatalf("got %d classes, want 2: %v", len(rec.Classes), rec.Classes)
	}
	outer, inner := rec.Classes[0], rec.Classes[1]
	if outer.Name != "Outer" || outer.Depth != 0 {
		t.Errorf("outer = %+v, want Outer at depth 0", outer)
	}
	if inner.Name != "Inner" || inner.Depth != 1 {
		t.Errorf("inner = %+v, want Inner at depth 1", inner)
	}
	if len(outer.Methods) != 1 || outer.Methods[0].Name != "size" {
		t.Errorf("outer methods = %v, want [size]", outer.Methods)
	}
	if len(inner.Methods) != 1 || inner.Methods[0].Name != "get" {
		t.Errorf("inner methods = %v, want [get]", inner.Methods)
	}
}

func TestComplexityMonotonic(t *testing.T) {
	base := `def f(x):
    if x > 0:
        return 1
    return 0
`
	extended := `def f(x):
    if x > 0:
        return 1
    elif x < 0:
        return -1
    return 0
`
	fn1 := findFunction(t, extract(t, "a.py", base).Functions, "f")
	fn2 := findFunction(t, extract(t, "b.py", extended).Functions, "f")
	if fn2.Complexity != fn1.Complexity+1 {
		t.Errorf("added branch: complexity went %d -> %d, want +1", fn1.Complexity, fn2.Complexity)
	}
}

func TestExtractParseError(t *testing.T) {
	rec := extract(t, "broken.py", "def broken(:\n")
	if rec.ParseError == "" {
		t.Fatal("expected a parse error marker")
	}
	if rec.Language != LangPython {
		t.Errorf("language = %s, want python", rec.Language)
	}
	if len(rec.Functions) != 0 || len(rec.Classes) != 0 || len(rec.Imports) != 0 {
		t.Errorf("body should be empty after a parse failure, got %+v", rec)
	}
}

func TestExtractUnknownLanguage(t *testing.T) {
	rec := extract(t, "README.md", "# hello\n")
	if rec.Language != LangUnknown {
		t.Fatalf("language = %s, want unknown", rec.Language)
	}
	if rec.ParseError != "" {
		t.Errorf("unexpected parse error: %s", rec.ParseError)
	}
	if len(rec.Functions) != 0 || len(rec.Classes) != 0 || len(rec.Imports) != 0 {
		t.Errorf("unknown-language record should be minimal, got %+v", rec)
	}
}
