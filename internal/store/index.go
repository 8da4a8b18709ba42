package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/google/uuid"
)

// DefaultOpenTimeout bounds the wait for another process to release an
// existing index.
const DefaultOpenTimeout = 2 * time.Second

var generationKey = []byte("repoindex_generation")

// Index is an open chunk index directory.
type Index struct {
	dir        string
	idx        bleve.Index
	generation string
}

// Open opens the index at dir with DefaultOpenTimeout.
func Open(dir string) (*Index, error) {
	return OpenTimeout(dir, DefaultOpenTimeout)
}

// OpenTimeout opens the index at dir, creating it when missing. An index
// whose metadata is unreadable is cleared and recreated; chunks are
// rebuildable from source, so losing them costs one rebuild. A non-empty
// directory that holds no index is refused rather than cleared. When
// another process holds the index, OpenTimeout gives up after timeout.
//
// Every index carries a generation id that changes whenever the index is
// created from scratch, so file hashes recorded against an older index can
// be recognized as stale.
func OpenTimeout(dir string, timeout time.Duration) (*Index, error) {
	m, err := NewMapping()
	if err != nil {
		return nil, rerrors.IndexOpenError(dir, err)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, rerrors.IndexOpenError(dir, err)
	}

	var idx bleve.Index
	state, reason := inspectDir(dir)
	switch state {
	case dirAbsent:
		idx, err = bleve.New(dir, m)
	case dirForeign:
		return nil, rerrors.IndexOpenError(dir, fmt.Errorf("%s is not empty and holds no index", dir))
	case dirCorrupt:
		idx, err = recreate(dir, m, reason)
	default:
		idx, err = bleve.OpenUsing(dir, map[string]interface{}{
			"bolt_timeout": timeout.String(),
		})
		if err != nil && looksCorrupt(err) {
			idx, err = recreate(dir, m, err)
		}
	}
	if err != nil {
		return nil, rerrors.IndexOpenError(dir, err)
	}

	gen, err := ensureGeneration(idx)
	if err != nil {
		_ = idx.Close()
		return nil, rerrors.IndexOpenError(dir, err)
	}
	return &Index{dir: dir, idx: idx, generation: gen}, nil
}

func ensureGeneration(idx bleve.Index) (string, error) {
	val, err := idx.GetInternal(generationKey)
	if err != nil {
		return "", fmt.Errorf("failed to read index generation: %w", err)
	}
	if len(val) > 0 {
		return string(val), nil
	}
	gen := uuid.NewString()
	if err := idx.SetInternal(generationKey, []byte(gen)); err != nil {
		return "", fmt.Errorf("failed to write index generation: %w", err)
	}
	return gen, nil
}

type dirState int

const (
	dirAbsent dirState = iota
	dirIndex
	dirCorrupt
	dirForeign
)

// inspectDir classifies dir before opening it.
func inspectDir(dir string) (dirState, error) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return dirAbsent, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, "index_meta.json"))
	if err != nil {
		for _, e := range entries {
			if e.Name() == "store" {
				return dirCorrupt, errors.New("index_meta.json missing")
			}
		}
		return dirForeign, nil
	}
	if len(data) == 0 {
		return dirCorrupt, errors.New("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return dirCorrupt, fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return dirIndex, nil
}

func recreate(dir string, m *mapping.IndexMappingImpl, reason error) (bleve.Index, error) {
	slog.Warn("index_corrupted", slog.String("path", dir), slog.String("error", reason.Error()))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("cannot clear corrupted index: %w (original: %v)", err, reason)
	}
	slog.Info("index_cleared", slog.String("path", dir), slog.String("reason", "corruption detected, rebuild required"))
	return bleve.New(dir, m)
}

func looksCorrupt(err error) bool {
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment")
}

// Dir returns the index directory.
func (x *Index) Dir() string { return x.dir }

// Generation returns the id assigned when the index was created.
func (x *Index) Generation() string { return x.generation }

// Apply removes the deleted ids and then indexes docs, as one batch. A doc
// whose id is also deleted replaces the old version.
func (x *Index) Apply(ctx context.Context, docs []Document, deleted []string) error {
	if len(docs) == 0 && len(deleted) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := x.idx.NewBatch()
	for _, id := range deleted {
		batch.Delete(id)
	}
	for i := range docs {
		if err := batch.Index(docs[i].ID, docs[i]); err != nil {
			return rerrors.IndexWriteError(fmt.Sprintf("failed to index chunk %s", docs[i].ID), err)
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return rerrors.IndexWriteError("failed to write batch", err)
	}
	return nil
}

// Search runs req against the index.
func (x *Index) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, rerrors.IndexReadError("search failed", err)
	}
	return res, nil
}

// DocCount returns the number of live documents.
func (x *Index) DocCount() (uint64, error) {
	n, err := x.idx.DocCount()
	if err != nil {
		return 0, rerrors.IndexReadError("failed to count documents", err)
	}
	return n, nil
}

// Close closes the index. Indexes obtained from a Registry are closed by
// their release function instead.
func (x *Index) Close() error {
	return x.idx.Close()
}

// StoredString returns the first value of a stored field from a hit.
func StoredString(hit *search.DocumentMatch, field string) (string, bool) {
	switch v := hit.Fields[field].(type) {
	case string:
		return v, true
	case []interface{}:
		if len(v) > 0 {
			s, ok := v[0].(string)
			return s, ok
		}
	}
	return "", false
}

// DirSize returns the total size of the regular files under dir.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// Segments vanish under merges; skip what disappeared mid-walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Registry shares one open Index per directory within the process. Scorch
// holds an exclusive lock on its directory, so readers and the writer must
// use the same handle.
type Registry struct {
	mu          sync.Mutex
	open        map[string]*sharedIndex
	openTimeout time.Duration
}

type sharedIndex struct {
	ready chan struct{}
	idx   *Index
	err   error
	refs  int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOpenTimeout sets how long opening an index held by another process
// may wait.
func WithOpenTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.openTimeout = d
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{open: make(map[string]*sharedIndex), openTimeout: DefaultOpenTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the shared index for dir, opening it on first use. The
// open runs without holding the registry lock, so callers for other
// directories never wait on it; callers for the same directory share its
// outcome. The returned release function must be called once when the
// caller is done; the last release closes the index.
func (r *Registry) Acquire(dir string) (*Index, func() error, error) {
	key, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, rerrors.IndexOpenError(dir, err)
	}

	r.mu.Lock()
	s, ok := r.open[key]
	if !ok {
		s = &sharedIndex{ready: make(chan struct{})}
		r.open[key] = s
	}
	s.refs++
	r.mu.Unlock()

	if !ok {
		idx, err := OpenTimeout(key, r.openTimeout)
		r.mu.Lock()
		s.idx, s.err = idx, err
		if err != nil && r.open[key] == s {
			delete(r.open, key)
		}
		close(s.ready)
		r.mu.Unlock()
	} else {
		<-s.ready
	}
	if s.err != nil {
		return nil, nil, s.err
	}

	var once sync.Once
	var closeErr error
	release := func() error {
		once.Do(func() { closeErr = r.release(key, s) })
		return closeErr
	}
	return s.idx, release, nil
}

func (r *Registry) release(key string, s *sharedIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.refs--
	if s.refs > 0 || s.idx == nil {
		return nil
	}
	if r.open[key] != s {
		return nil
	}
	delete(r.open, key)
	return s.idx.Close()
}

// Close closes every open index regardless of outstanding references.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, s := range r.open {
		if s.idx == nil {
			continue
		}
		if err := s.idx.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.open, key)
	}
	return errors.Join(errs...)
}
