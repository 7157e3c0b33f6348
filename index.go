// sigil/index.go
// Per-file symbol extraction and the bbolt-backed persistent index cache.
// The cache avoids re-walking unchanged files across server restarts.
package sigil

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// indexedDefKinds are the definition shapes the name index records. Only
// FN_DEF is consumed by the signature-help query today; the rest make the
// index reusable for symbol search.
var indexedDefKinds = map[SyntaxKind]bool{
	KindFnDef:        true,
	KindStructDef:    true,
	KindEnumDef:      true,
	KindTraitDef:     true,
	KindConstDef:     true,
	KindStaticDef:    true,
	KindTypeAliasDef: true,
	KindModDef:       true,
}

// fileSymbols walks a parsed file and extracts every named definition,
// including those nested in modules, impl blocks, and function bodies.
func fileSymbols(id FileID, root *Node) []Symbol {
	var out []Symbol
	var walk func(n *Node)
	walk = func(n *Node) {
		if indexedDefKinds[n.kind] {
			if name := childOfKind(n, KindName); name != nil {
				out = append(out, Symbol{
					Name: name.Text(),
					Kind: n.kind,
					File: id,
					Ptr:  PtrFor(n),
				})
			}
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// =============================================================================
// Persistent Index Cache (bbolt)
// =============================================================================

var indexBucketName = []byte("SymbolIndex")

// cachedSymbolEntry is the gob-encoded value stored per file. Entries are
// validated against both the schema version and the content hash on read;
// a mismatch is treated as a miss.
type cachedSymbolEntry struct {
	SchemaVersion int
	ContentHash   string
	Symbols       []Symbol
}

// indexCache persists extracted symbol lists keyed by FileID.
type indexCache struct {
	db     *bbolt.DB
	logger *slog.Logger
}

func newIndexCache(path string, logger *slog.Logger) (*indexCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating index cache directory: %w", ErrCache, err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening index cache: %w", ErrCache, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(indexBucketName)
		return createErr
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating index bucket: %w", ErrCache, err)
	}
	logger.Debug("Index cache opened", "path", path, "schema_version", indexCacheSchemaVersion)
	return &indexCache{db: db, logger: logger}, nil
}

func (c *indexCache) Close() error {
	return c.db.Close()
}

// Get returns the cached symbols for a file when the stored entry matches
// both the current schema and the file's content hash.
func (c *indexCache) Get(id FileID, contentHash string) ([]Symbol, bool, error) {
	var entry cachedSymbolEntry
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucketName)
		if b == nil {
			return fmt.Errorf("%w: index bucket missing", ErrCacheRead)
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry); err != nil {
			return fmt.Errorf("%w: %w", ErrCacheDecode, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if entry.SchemaVersion != indexCacheSchemaVersion {
		c.logger.Debug("Index cache entry schema mismatch, ignoring", "file", id, "stored", entry.SchemaVersion, "current", indexCacheSchemaVersion)
		return nil, false, nil
	}
	if entry.ContentHash != contentHash {
		return nil, false, nil
	}
	return entry.Symbols, true, nil
}

// Put stores the symbol list for a file under its content hash.
func (c *indexCache) Put(id FileID, contentHash string, syms []Symbol) error {
	var buf bytes.Buffer
	entry := cachedSymbolEntry{
		SchemaVersion: indexCacheSchemaVersion,
		ContentHash:   contentHash,
		Symbols:       syms,
	}
	if err := gob.NewEncoder(&buf).Encode(&entry); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheEncode, err)
	}
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucketName)
		if b == nil {
			return fmt.Errorf("index bucket missing")
		}
		return b.Put([]byte(id), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return nil
}

// Delete removes a file's entry. Missing entries are not an error.
func (c *indexCache) Delete(id FileID) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucketName)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return nil
}
