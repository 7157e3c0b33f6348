// sigil/callinfo_test.go
package sigil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

// cursorMarker marks the query position inside test sources.
const cursorMarker = "<|>"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// splitMarker removes the cursor marker from src and returns its byte offset.
func splitMarker(t *testing.T, src string) (string, int) {
	t.Helper()
	idx := strings.Index(src, cursorMarker)
	if idx < 0 {
		t.Fatalf("source has no %q marker:\n%s", cursorMarker, src)
	}
	return src[:idx] + src[idx+len(cursorMarker):], idx
}

// newTestWorkspace builds an in-memory workspace with no disk cache.
func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	cfg := getDefaultConfig()
	w, err := NewWorkspace(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewWorkspace() error: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// querySingleFile runs the signature-help query against one marked source file.
func querySingleFile(t *testing.T, src string) (*CallInfo, error) {
	t.Helper()
	clean, offset := splitMarker(t, src)
	w := newTestWorkspace(t)
	w.SetFile("test.rs", []byte(clean), 1)
	engine := NewEngine(w, testLogger())
	return engine.SignatureHelp(context.Background(), FilePosition{File: "test.rs", Offset: offset})
}

func TestSignatureHelp(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantLabel  string
		wantParams []string
		wantActive *int // nil means no active parameter
		wantDoc    string
	}{
		{
			name: "two args, cursor on first",
			src: `fn foo(x: u32, y: u32) -> u32 {x + y}
fn bar() { foo(<|>3, ); }`,
			wantLabel:  "fn foo(x: u32, y: u32) -> u32",
			wantParams: []string{"x", "y"},
			wantActive: intPtr(0),
		},
		{
			name: "two args, cursor on second",
			src: `fn foo(x: u32, y: u32) -> u32 {x + y}
fn bar() { foo(3, <|>); }`,
			wantLabel:  "fn foo(x: u32, y: u32) -> u32",
			wantParams: []string{"x", "y"},
			wantActive: intPtr(1),
		},
		{
			name: "associated function with no parameters",
			src: `struct F; impl F { pub fn new() { F{} } }
fn bar() { let _: F = F::new(<|>); }`,
			wantLabel:  "pub fn new()",
			wantParams: []string{},
			wantActive: nil,
		},
		{
			name: "method with only a receiver",
			src: `struct F;
impl F { pub fn do_it(&self) {} }
fn bar() {
    let f: F = F;
    f.do_it(<|>);
}`,
			wantLabel:  "pub fn do_it(&self)",
			wantParams: []string{"&self"},
			wantActive: nil,
		},
		{
			name: "method with receiver and one argument",
			src: `struct F;
impl F { pub fn do_it(&self, x: i32) {} }
fn bar() {
    let f: F = F;
    f.do_it(<|>);
}`,
			wantLabel:  "pub fn do_it(&self, x: i32)",
			wantParams: []string{"&self", "x"},
			wantActive: intPtr(1),
		},
		{
			name: "single parameter shortcut",
			src: `fn square(x: u32) -> u32 { x * x }
fn bar() { square(1 +<|> 2); }`,
			wantLabel:  "fn square(x: u32) -> u32",
			wantParams: []string{"x"},
			wantActive: intPtr(0),
		},
		{
			name: "doc comment and non-doc comment stripped from label",
			src: `/// test
// non-doc-comment
fn foo(j: u32) -> u32 {
    j
}

fn bar() {
    let _ = foo(<|>);
}`,
			wantLabel:  "fn foo(j: u32) -> u32",
			wantParams: []string{"j"},
			wantActive: intPtr(0),
			wantDoc:    "test",
		},
		{
			name: "doc with code fence retagged",
			src: `/// Adds one to the number given.
///
/// # Examples
///
/// ` + "```" + `
/// let five = 5;
///
/// assert_eq!(6, my_crate::add_one(5));
/// ` + "```" + `
pub fn add_one(x: i32) -> i32 {
    x + 1
}

pub fn do() {
    add_one(<|>
}`,
			wantLabel:  "pub fn add_one(x: i32) -> i32",
			wantParams: []string{"x"},
			wantActive: intPtr(0),
			wantDoc: `Adds one to the number given.

# Examples

` + "```rust" + `
let five = 5;

assert_eq!(6, my_crate::add_one(5));
` + "```",
		},
		{
			name: "documented method inside impl",
			src: `struct addr;
impl addr {
    /// Adds one to the number given.
    ///
    /// # Examples
    ///
    /// ` + "```" + `
    /// let five = 5;
    ///
    /// assert_eq!(6, my_crate::add_one(5));
    /// ` + "```" + `
    pub fn add_one(x: i32) -> i32 {
        x + 1
    }
}

pub fn do_it() {
    addr.add_one(<|>);
}`,
			wantLabel:  "pub fn add_one(x: i32) -> i32",
			wantParams: []string{"x"},
			wantActive: intPtr(0),
			wantDoc: `Adds one to the number given.

# Examples

` + "```rust" + `
let five = 5;

assert_eq!(6, my_crate::add_one(5));
` + "```",
		},
		{
			name: "trait method with receiver and context argument",
			src: `trait Actor {
    fn started(&mut self, ctx: &mut Context<Self>)
    where
        Self: Sized;
}

fn foo(mut r: impl Actor) {
    r.started(<|>);
}`,
			wantLabel:  "fn started(&mut self, ctx: &mut Context<Self>)\n    where\n        Self: Sized;",
			wantParams: []string{"&mut self", "ctx"},
			wantActive: intPtr(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := querySingleFile(t, tt.src)
			if err != nil {
				t.Fatalf("SignatureHelp() error: %v", err)
			}
			if info == nil {
				t.Fatal("SignatureHelp() returned nil, want a result")
			}
			if info.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", info.Label, tt.wantLabel)
			}
			if !reflect.DeepEqual(info.Parameters, tt.wantParams) {
				t.Errorf("parameters = %v, want %v", info.Parameters, tt.wantParams)
			}
			switch {
			case tt.wantActive == nil && info.ActiveParameter != nil:
				t.Errorf("active parameter = %d, want none", *info.ActiveParameter)
			case tt.wantActive != nil && info.ActiveParameter == nil:
				t.Errorf("active parameter = none, want %d", *tt.wantActive)
			case tt.wantActive != nil && *info.ActiveParameter != *tt.wantActive:
				t.Errorf("active parameter = %d, want %d", *info.ActiveParameter, *tt.wantActive)
			}
			if info.Doc != tt.wantDoc {
				t.Errorf("doc = %q, want %q", info.Doc, tt.wantDoc)
			}
		})
	}
}

func TestSignatureHelpNoResult(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "cursor outside any call",
			src:  `fn foo(x: u32) -> u32 { x } fn bar() { let a = 1;<|> }`,
		},
		{
			name: "callee is not a plain path",
			src:  `fn bar() { (f())(<|>); }`,
		},
		{
			name: "callee name has no definition",
			src:  `fn bar() { missing(<|>); }`,
		},
		{
			name: "name resolves to a struct, not a function",
			src:  `struct foo; fn bar() { foo(<|>); }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := querySingleFile(t, tt.src)
			if err != nil {
				t.Fatalf("SignatureHelp() error: %v", err)
			}
			if info != nil {
				t.Errorf("SignatureHelp() = %+v, want nil", info)
			}
		})
	}
}

func TestSignatureHelpErrors(t *testing.T) {
	w := newTestWorkspace(t)
	w.SetFile("test.rs", []byte("fn foo() {}"), 1)
	engine := NewEngine(w, testLogger())

	t.Run("unknown file", func(t *testing.T) {
		_, err := engine.SignatureHelp(context.Background(), FilePosition{File: "nope.rs", Offset: 0})
		if !errors.Is(err, ErrFileNotFound) {
			t.Errorf("error = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := engine.SignatureHelp(ctx, FilePosition{File: "test.rs", Offset: 0})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestActiveParameter(t *testing.T) {
	// Build an arg list node from a real parse so ranges are consistent.
	src := `fn bar() { foo(10, 20, 30); }`
	root := Parse(src)
	argStart := strings.Index(src, "(10")
	call := callNodeAt(root, argStart+1)
	if call == nil {
		t.Fatal("no call node found")
	}
	args := call.argList()
	if args == nil {
		t.Fatal("no arg list found")
	}

	tests := []struct {
		name      string
		numParams int
		hasSelf   bool
		args      *Node
		offset    int
		want      *int
	}{
		{"zero params", 0, false, args, argStart + 1, nil},
		{"single param ignores offset", 1, false, args, argStart + 9, intPtr(0)},
		{"single param with self", 1, true, args, argStart + 1, nil},
		{"before first comma", 3, false, args, argStart + 2, intPtr(0)},
		{"after first comma", 3, false, args, strings.Index(src, "20"), intPtr(1)},
		{"after second comma", 3, false, args, strings.Index(src, "30"), intPtr(2)},
		{"self shifts by one", 3, true, args, strings.Index(src, "20"), intPtr(2)},
		{"offset past arg list clamps", 3, false, args, len(src) + 10, intPtr(2)},
		{"offset before arg list clamps", 3, false, args, 0, intPtr(0)},
		{"multiple params without arg list", 3, false, nil, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := activeParameter(tt.numParams, tt.hasSelf, tt.args, tt.offset)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("activeParameter() = %d, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("activeParameter() = nil, want %d", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("activeParameter() = %d, want %d", *got, *tt.want)
			}
		})
	}
}

func TestCallNodeAtPrefersDirectCall(t *testing.T) {
	// A direct call nested inside a method call argument: the innermost
	// CALL_EXPR wins even though a METHOD_CALL_EXPR also encloses the offset.
	src := `fn bar() { obj.method(helper(1)); }`
	root := Parse(src)
	offset := strings.Index(src, "(1)") + 1

	call := callNodeAt(root, offset)
	if call == nil {
		t.Fatal("no call node found")
	}
	if call.isMethod {
		t.Errorf("call classified as method, want direct call")
	}
	ref := call.nameRef()
	if ref == nil || ref.Text() != "helper" {
		t.Errorf("callee name = %v, want helper", ref)
	}
}
