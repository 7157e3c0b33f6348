// sigil/snapshot.go
// Workspace document store and immutable parsed snapshots. The workspace is
// the default Source implementation behind the signature-help engine.
package sigil

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// Snapshot is an immutable view of one file's parsed syntax tree as of a
// point in time. Snapshots are created once and shared; neither the content
// nor the tree is ever mutated.
type Snapshot struct {
	FileID  FileID
	Version int
	Content []byte
	root    *Node
}

// Root returns the snapshot's SOURCE_FILE node.
func (s *Snapshot) Root() *Node { return s.root }

// Resolve maps an index-stored node pointer into this snapshot's tree.
func (s *Snapshot) Resolve(ptr NodePtr) *Node { return ptr.Resolve(s.root) }

// Source is the collaborator contract the engine queries against. A Source
// may serve many concurrent queries over independently-versioned snapshots;
// both operations are cancellation points.
type Source interface {
	// Snapshot returns the current immutable snapshot for a file.
	Snapshot(ctx context.Context, id FileID) (*Snapshot, error)
	// ResolveName performs a non-type-aware, name-based index lookup.
	// Candidate ordering is owned by the implementation.
	ResolveName(ctx context.Context, name string, from FileID) ([]Symbol, error)
}

// Workspace tracks open and on-disk documents, parses them on demand, and
// maintains the symbol index. It is safe for concurrent use.
type Workspace struct {
	mu      sync.RWMutex
	docs    map[FileID]*document
	symbols map[FileID][]Symbol

	cache  *ristretto.Cache // parsed snapshots, keyed fileID:version
	disk   *indexCache      // persisted per-file symbol lists, may be nil
	config Config
	logger *slog.Logger
}

type document struct {
	content []byte
	version int
	hash    string
}

// NewWorkspace creates an empty workspace using the given configuration.
func NewWorkspace(config Config, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     config.MemoryCacheMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating snapshot cache: %w", err)
	}

	w := &Workspace{
		docs:    make(map[FileID]*document),
		symbols: make(map[FileID][]Symbol),
		cache:   cache,
		config:  config,
		logger:  logger,
	}
	if config.IndexCachePath != "" {
		disk, err := newIndexCache(config.IndexCachePath, logger)
		if err != nil {
			// The disk cache is an accelerator, not a requirement.
			logger.Warn("Failed to open index cache, continuing without it", "path", config.IndexCachePath, "error", err)
		} else {
			w.disk = disk
		}
	}
	return w, nil
}

// Close releases the snapshot cache and the index cache.
func (w *Workspace) Close() error {
	w.cache.Close()
	if w.disk != nil {
		return w.disk.Close()
	}
	return nil
}

// SetFile registers or replaces a document and refreshes its index entry.
func (w *Workspace) SetFile(id FileID, content []byte, version int) {
	hash := hashBytes(content)

	var syms []Symbol
	cached := false
	if w.disk != nil {
		if got, ok, err := w.disk.Get(id, hash); err != nil {
			w.logger.Warn("Index cache read failed", "file", id, "error", err)
		} else if ok {
			syms = got
			cached = true
		}
	}
	if !cached {
		syms = fileSymbols(id, Parse(string(content)))
		if w.disk != nil {
			if err := w.disk.Put(id, hash, syms); err != nil {
				w.logger.Warn("Index cache write failed", "file", id, "error", err)
			}
		}
	}

	w.mu.Lock()
	w.docs[id] = &document{content: content, version: version, hash: hash}
	w.symbols[id] = syms
	w.mu.Unlock()
	w.logger.Debug("Workspace file updated", "file", id, "version", version, "symbols", len(syms), "index_cache_hit", cached)
}

// RemoveFile drops a document and its index entries.
func (w *Workspace) RemoveFile(id FileID) {
	w.mu.Lock()
	delete(w.docs, id)
	delete(w.symbols, id)
	w.mu.Unlock()
	if w.disk != nil {
		if err := w.disk.Delete(id); err != nil {
			w.logger.Warn("Index cache delete failed", "file", id, "error", err)
		}
	}
}

// Content returns the raw text and version of a tracked document.
func (w *Workspace) Content(id FileID) ([]byte, int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[id]
	if !ok {
		return nil, 0, false
	}
	return doc.content, doc.version, true
}

// Snapshot implements Source. Parsed trees are cached per file version.
func (w *Workspace) Snapshot(ctx context.Context, id FileID) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.RLock()
	doc, ok := w.docs[id]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	key := fmt.Sprintf("%s:%d:%s", id, doc.version, doc.hash)
	if cached, found := w.cache.Get(key); found {
		if snap, valid := cached.(*Snapshot); valid {
			return snap, nil
		}
	}

	snap := &Snapshot{
		FileID:  id,
		Version: doc.version,
		Content: doc.content,
		root:    Parse(string(doc.content)),
	}
	w.cache.SetWithTTL(key, snap, int64(len(doc.content))+1, w.config.MemoryCacheTTL)
	return snap, nil
}

// ResolveName implements Source. Candidates from the querying file come
// first, then the remaining files in stable order. The lookup is purely
// name-based; disambiguation is the caller's problem.
func (w *Workspace) ResolveName(ctx context.Context, name string, from FileID) ([]Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []Symbol
	for _, sym := range w.symbols[from] {
		if sym.Name == name {
			out = append(out, sym)
		}
	}
	rest := make([]FileID, 0, len(w.symbols))
	for id := range w.symbols {
		if id != from {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, id := range rest {
		for _, sym := range w.symbols[id] {
			if sym.Name == name {
				out = append(out, sym)
			}
		}
	}
	return out, nil
}

// LoadDirectory walks dir and registers every source file found, skipping
// hidden directories and build output. Returns the number of files loaded.
func (w *Workspace) LoadDirectory(dir string) (int, error) {
	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || name == "target" || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, sourceFileExt) {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			w.logger.Warn("Skipping unreadable file", "path", path, "error", readErr)
			return nil
		}
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		w.SetFile(FileID(abs), content, 0)
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("walking %s: %w", dir, err)
	}
	w.logger.Info("Workspace directory loaded", "dir", dir, "files", loaded)
	return loaded, nil
}
