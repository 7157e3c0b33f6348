// sigil/parser_test.go
package sigil

import (
	"strings"
	"testing"
)

// findAll collects every node of the given kind in depth-first order.
func findAll(root *Node, kind SyntaxKind) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		if n.Kind() == kind {
			out = append(out, n)
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return out
}

// TestParseLossless verifies the tree reproduces its source byte for byte,
// including for inputs the parser cannot fully understand.
func TestParseLossless(t *testing.T) {
	sources := []string{
		"",
		"fn main() {}",
		"/// doc\n// plain\nfn foo(x: u32, y: u32) -> u32 { x + y }",
		"struct F; impl F { pub fn new() { F{} } }",
		"pub fn generic<T: Clone>(v: Vec<T>) -> Option<T> where T: Sized { None }",
		"trait A { fn m(&mut self, ctx: &mut Context<Self>) where Self: Sized; }",
		"fn broken( { let x = ; }",
		"fn f() { foo(1, ",
		"@#$ garbage ^^",
		"fn m() { match x { 1 => a, _ => b } }",
		"fn u() { let s = \"text\"; s.method::<u32>(1)?.field }",
		"mod outer { mod inner { fn deep() {} } }",
		"#[derive(Debug)]\npub struct S { a: u32 }",
		"fn l() { for i in 0..10 { if i > 5 { break_here(i); } } }",
	}

	for _, src := range sources {
		root := Parse(src)
		if got := root.Text(); got != src {
			t.Errorf("Parse(%q).Text() = %q, want input unchanged", src, got)
		}
		if root.Kind() != KindSourceFile {
			t.Errorf("Parse(%q) root kind = %v, want SOURCE_FILE", src, root.Kind())
		}
		if root.Range().Start != 0 || root.Range().End != len(src) {
			t.Errorf("Parse(%q) root range = %v, want 0..%d", src, root.Range(), len(src))
		}
	}
}

func TestParseFnDefShape(t *testing.T) {
	src := "pub fn generic<T>(first: u32, second: Vec<T>) -> Option<T> where T: Sized { None }"
	root := Parse(src)

	fns := findAll(root, KindFnDef)
	if len(fns) != 1 {
		t.Fatalf("found %d FN_DEF nodes, want 1", len(fns))
	}
	fn := fns[0]

	name := childOfKind(fn, KindName)
	if name == nil || name.Text() != "generic" {
		t.Errorf("fn name = %v, want generic", name)
	}
	if childOfKind(fn, KindTypeParamList) == nil {
		t.Error("missing TYPE_PARAM_LIST")
	}
	if childOfKind(fn, KindRetType) == nil {
		t.Error("missing RET_TYPE")
	}
	if childOfKind(fn, KindWhereClause) == nil {
		t.Error("missing WHERE_CLAUSE")
	}
	if childOfKind(fn, KindBlockExpr) == nil {
		t.Error("missing body BLOCK_EXPR")
	}

	paramList := childOfKind(fn, KindParamList)
	if paramList == nil {
		t.Fatal("missing PARAM_LIST")
	}
	params := childrenOfKind(paramList, KindParam)
	if len(params) != 2 {
		t.Fatalf("found %d params, want 2", len(params))
	}
	wantPats := []string{"first", "second"}
	for i, p := range params {
		pat := childOfKind(p, KindBindPat)
		if pat == nil {
			t.Errorf("param %d has no BIND_PAT", i)
			continue
		}
		if pat.Text() != wantPats[i] {
			t.Errorf("param %d pattern = %q, want %q", i, pat.Text(), wantPats[i])
		}
		if childOfKind(p, KindTypeRef) == nil {
			t.Errorf("param %d has no TYPE_REF", i)
		}
	}
}

func TestParseSelfParam(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantSelf string
		wantRest []string
	}{
		{"shared borrow", "fn m(&self) {}", "&self", nil},
		{"mutable borrow", "fn m(&mut self) {}", "&mut self", nil},
		{"by value", "fn m(self) {}", "self", nil},
		{"typed self", "fn m(self: Box<Self>) {}", "self: Box<Self>", nil},
		{"self plus args", "fn m(&mut self, x: i32, y: i32) {}", "&mut self", []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := Parse(tt.src)
			fns := findAll(root, KindFnDef)
			if len(fns) != 1 {
				t.Fatalf("found %d FN_DEF nodes, want 1", len(fns))
			}
			selfParam := fnSelfParam(fns[0])
			if selfParam == nil {
				t.Fatalf("no SELF_PARAM found")
			}
			if selfParam.Text() != tt.wantSelf {
				t.Errorf("self param text = %q, want %q", selfParam.Text(), tt.wantSelf)
			}
			paramList := childOfKind(fns[0], KindParamList)
			var rest []string
			for _, p := range childrenOfKind(paramList, KindParam) {
				if pat := childOfKind(p, KindBindPat); pat != nil {
					rest = append(rest, pat.Text())
				}
			}
			if len(rest) != len(tt.wantRest) {
				t.Fatalf("other params = %v, want %v", rest, tt.wantRest)
			}
			for i := range rest {
				if rest[i] != tt.wantRest[i] {
					t.Errorf("param %d = %q, want %q", i, rest[i], tt.wantRest[i])
				}
			}
		})
	}
}

func TestDocCommentsAreFnChildren(t *testing.T) {
	src := "/// first\n/// second\n// plain\nfn foo() {}"
	root := Parse(src)
	fns := findAll(root, KindFnDef)
	if len(fns) != 1 {
		t.Fatalf("found %d FN_DEF nodes, want 1", len(fns))
	}
	comments := childrenOfKind(fns[0], KindComment)
	if len(comments) != 3 {
		t.Fatalf("found %d comment children, want 3", len(comments))
	}
	if !strings.HasPrefix(comments[0].Text(), "/// first") {
		t.Errorf("first comment = %q", comments[0].Text())
	}
}

func TestParseCallShapes(t *testing.T) {
	src := "fn f() { plain(1); obj.method(2); Mod::assoc(3); obj.field; make::<u32>(); }"
	root := Parse(src)

	calls := findAll(root, KindCallExpr)
	if len(calls) != 3 {
		t.Errorf("found %d CALL_EXPR nodes, want 3", len(calls))
	}
	methods := findAll(root, KindMethodCallExpr)
	if len(methods) != 1 {
		t.Errorf("found %d METHOD_CALL_EXPR nodes, want 1", len(methods))
	}
	fields := findAll(root, KindFieldExpr)
	if len(fields) != 1 {
		t.Errorf("found %d FIELD_EXPR nodes, want 1", len(fields))
	}

	// Method call children: receiver, dot, name ref, arg list.
	m := methods[0]
	if ref := childOfKind(m, KindNameRef); ref == nil || ref.Text() != "method" {
		t.Errorf("method NAME_REF = %v, want method", ref)
	}
	if childOfKind(m, KindArgList) == nil {
		t.Error("method call missing ARG_LIST")
	}
}

func TestParseToleratesUnclosedCall(t *testing.T) {
	src := "fn bar() { add_one("
	root := Parse(src)
	if root.Text() != src {
		t.Fatalf("lossless reconstruction failed: %q", root.Text())
	}
	call := innermostOfKind(root, KindCallExpr, len(src))
	if call == nil {
		t.Fatal("no CALL_EXPR contains the end-of-file cursor")
	}
	if args := childOfKind(call, KindArgList); args == nil {
		t.Error("unclosed call has no ARG_LIST")
	}
}

func TestNodePtrResolve(t *testing.T) {
	src := "fn a() {}\nfn b(x: u32) { a(); }"
	root := Parse(src)
	fns := findAll(root, KindFnDef)
	if len(fns) != 2 {
		t.Fatalf("found %d FN_DEF nodes, want 2", len(fns))
	}

	for _, fn := range fns {
		ptr := PtrFor(fn)
		got := ptr.Resolve(root)
		if got != fn {
			t.Errorf("Resolve(PtrFor(fn)) returned a different node for %q", fn.Text())
		}
	}

	// Same pointer against a changed file: no matching node.
	other := Parse("struct Unrelated;")
	if got := PtrFor(fns[1]).Resolve(other); got != nil {
		t.Errorf("stale pointer resolved to %v, want nil", got)
	}
}

func TestParseIfConditionIsNotStructLit(t *testing.T) {
	src := "fn f() { if x { 1 } else { 2 } }"
	root := Parse(src)

	ifs := findAll(root, KindIfExpr)
	if len(ifs) != 1 {
		t.Fatalf("found %d IF_EXPR nodes, want 1", len(ifs))
	}
	if lits := findAll(ifs[0], KindStructLit); len(lits) != 0 {
		t.Errorf("condition parsed as struct literal: %v", lits[0].Text())
	}
	// Both arms are blocks.
	if blocks := childrenOfKind(ifs[0], KindBlockExpr); len(blocks) != 2 {
		t.Errorf("found %d arm blocks, want 2", len(blocks))
	}
}

func TestSyntaxDiagnostics(t *testing.T) {
	t.Run("clean file has none", func(t *testing.T) {
		diags := syntaxDiagnostics(Parse("fn main() {}"))
		if len(diags) != 0 {
			t.Errorf("got %d diagnostics, want 0: %v", len(diags), diags)
		}
	})
	t.Run("garbage is reported", func(t *testing.T) {
		diags := syntaxDiagnostics(Parse("fn main() {}\n\x01\x02"))
		if len(diags) == 0 {
			t.Fatal("got no diagnostics for malformed input")
		}
		for _, d := range diags {
			if d.Severity != SeverityError {
				t.Errorf("severity = %v, want error", d.Severity)
			}
			if d.Source != diagnosticSource {
				t.Errorf("source = %q, want %q", d.Source, diagnosticSource)
			}
		}
	})
}
