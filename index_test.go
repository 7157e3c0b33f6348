// sigil/index_test.go
package sigil

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileSymbols(t *testing.T) {
	src := `fn top() {}
struct Data;
mod inner {
    pub fn nested() {}
    impl Data {
        fn method(&self) {}
    }
}
trait T {
    fn required(&self);
}
const LIMIT: u32 = 10;
`
	syms := fileSymbols("lib.rs", Parse(src))

	byName := make(map[string]Symbol, len(syms))
	for _, s := range syms {
		byName[s.Name] = s
	}

	wantKinds := map[string]SyntaxKind{
		"top":      KindFnDef,
		"Data":     KindStructDef,
		"inner":    KindModDef,
		"nested":   KindFnDef,
		"method":   KindFnDef,
		"T":        KindTraitDef,
		"required": KindFnDef,
		"LIMIT":    KindConstDef,
	}
	for name, kind := range wantKinds {
		sym, ok := byName[name]
		if !ok {
			t.Errorf("symbol %q not indexed", name)
			continue
		}
		if sym.Kind != kind {
			t.Errorf("symbol %q kind = %v, want %v", name, sym.Kind, kind)
		}
		if sym.File != "lib.rs" {
			t.Errorf("symbol %q file = %q, want lib.rs", name, sym.File)
		}
	}

	// Pointers must resolve back to definition nodes of the same kind.
	root := Parse(src)
	for _, sym := range syms {
		n := sym.Ptr.Resolve(root)
		if n == nil {
			t.Errorf("pointer for %q did not resolve", sym.Name)
			continue
		}
		if n.Kind() != sym.Kind {
			t.Errorf("pointer for %q resolved to %v, want %v", sym.Name, n.Kind(), sym.Kind)
		}
	}
}

func TestIndexCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	cache, err := newIndexCache(path, testLogger())
	if err != nil {
		t.Fatalf("newIndexCache() error: %v", err)
	}
	defer cache.Close()

	src := "fn alpha() {}\nfn beta(x: u32) {}"
	hash := hashBytes([]byte(src))
	syms := fileSymbols("a.rs", Parse(src))

	if err := cache.Put("a.rs", hash, syms); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok, err := cache.Get("a.rs", hash)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if !reflect.DeepEqual(got, syms) {
		t.Errorf("Get() = %+v, want %+v", got, syms)
	}

	t.Run("content hash mismatch is a miss", func(t *testing.T) {
		_, ok, err := cache.Get("a.rs", hashBytes([]byte("fn changed() {}")))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if ok {
			t.Error("Get() hit for stale content hash, want miss")
		}
	})

	t.Run("unknown file is a miss", func(t *testing.T) {
		_, ok, err := cache.Get("missing.rs", hash)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if ok {
			t.Error("Get() hit for unknown file, want miss")
		}
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		if err := cache.Delete("a.rs"); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		_, ok, err := cache.Get("a.rs", hash)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if ok {
			t.Error("Get() hit after delete, want miss")
		}
		// Deleting again is not an error.
		if err := cache.Delete("a.rs"); err != nil {
			t.Errorf("second Delete() error: %v", err)
		}
	})
}

func TestWorkspaceUsesIndexCache(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.IndexCachePath = filepath.Join(t.TempDir(), "index.db")

	src := []byte("fn cached_fn() {}")

	w1, err := NewWorkspace(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewWorkspace() error: %v", err)
	}
	w1.SetFile("a.rs", src, 1)
	w1.Close()

	// A fresh workspace over the same cache file sees the symbols without
	// reparsing having to agree with anything but the content hash.
	w2, err := NewWorkspace(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewWorkspace() error: %v", err)
	}
	defer w2.Close()
	w2.SetFile("a.rs", src, 1)

	syms, err := w2.ResolveName(context.Background(), "cached_fn", "a.rs")
	if err != nil {
		t.Fatalf("ResolveName() error: %v", err)
	}
	if len(syms) != 1 || syms[0].Kind != KindFnDef {
		t.Errorf("ResolveName() = %+v, want one FN_DEF", syms)
	}
}
