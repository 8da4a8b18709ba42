package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Aman-CERP/repoindex/internal/build"
	"github.com/Aman-CERP/repoindex/internal/chunk"
	"github.com/Aman-CERP/repoindex/internal/config"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/scanner"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/pkg/version"
)

// Manager answers lifecycle requests for the index at one directory.
type Manager struct {
	registry *store.Registry
	dir      string
	meta     *store.MetadataStore
	cfg      *config.Config
}

// New creates a Manager. meta may be nil, in which case Status never
// reports a last update.
func New(registry *store.Registry, meta *store.MetadataStore, cfg *config.Config) *Manager {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Manager{registry: registry, dir: cfg.Index.Dir, meta: meta, cfg: cfg}
}

// Status counts the live documents of all segments and measures the index
// directory. lastUpdated is the end of the last completed build of id.
func (m *Manager) Status(ctx context.Context, id string) (*Status, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, rerrors.ValidationError("index id is required", nil)
	}

	idx, release, err := m.registry.Acquire(m.dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	snap, err := idx.Snapshot()
	if err != nil {
		return nil, err
	}
	var live uint64
	for _, seg := range snap.Segments() {
		live += seg.LiveCount()
	}
	_ = snap.Close()

	size, err := store.DirSize(idx.Dir())
	if err != nil {
		return nil, rerrors.IndexReadError("failed to measure index size", err)
	}

	st := &Status{
		IndexID:       id,
		Status:        StatusReady,
		DocumentCount: live,
		SizeBytes:     size,
		Version:       version.Short(),
	}
	if m.meta != nil {
		at, ok, err := m.meta.LastCompleted(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			st.LastUpdated = &at
		}
	}
	return st, nil
}

// Delete would remove the chunks of id.
func (m *Manager) Delete(_ context.Context, id string) error {
	slog.Debug("lifecycle_unimplemented", slog.String("op", "delete"), slog.String("index_id", id))
	return rerrors.NotImplemented("index delete")
}

// Rebuild would rebuild id from its recorded source.
func (m *Manager) Rebuild(_ context.Context, id string) error {
	slog.Debug("lifecycle_unimplemented", slog.String("op", "rebuild"), slog.String("index_id", id))
	return rerrors.NotImplemented("index rebuild")
}

// BatchCreate would schedule one build per request.
func (m *Manager) BatchCreate(_ context.Context, reqs []build.Request) (*BatchStatus, error) {
	slog.Debug("lifecycle_unimplemented", slog.String("op", "batch_create"), slog.Int("tasks", len(reqs)))
	return nil, rerrors.NotImplemented("batch index create")
}

// BatchStatus would report on a batch started by BatchCreate.
func (m *Manager) BatchStatus(_ context.Context, id string) (*BatchStatus, error) {
	slog.Debug("lifecycle_unimplemented", slog.String("op", "batch_status"), slog.String("batch_id", id))
	return nil, rerrors.NotImplemented("batch index status")
}

// Config returns the settings a build without overrides runs with.
func (m *Manager) Config() IndexingConfig {
	c := m.cfg
	return IndexingConfig{
		MaxFileSizeKB:      c.Scan.MaxFileSizeKB,
		MaxFileSizeKBLimit: build.MaxFileSizeKBLimit,
		DefaultExclude:     slices.Clone(config.DefaultExcludePatterns),
		Include:            slices.Clone(c.Scan.Include),
		Exclude:            slices.Clone(c.Scan.Exclude),
		SupportedLanguages: scanner.Languages(),
		SyntaxLanguages:    chunk.SyntaxLanguages(),
		ChunkStrategy:      c.Chunk.Strategy,
		ChunkMaxLines:      c.Chunk.MaxLines,
		ChunkOverlapLines:  c.Chunk.OverlapLines,
		EmbeddingProvider:  c.Embedding.Provider,
		EmbeddingModel:     c.Embedding.Model,
		EmbeddingDims:      c.Embedding.Dimensions,
		GitBackend:         c.Source.GitBackend,
	}
}

// ValidateConfig checks a build request and lists every problem found.
// Nothing is fetched or opened.
func (m *Manager) ValidateConfig(req build.Request) Validation {
	problems := []string{}
	if err := req.Source.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if req.MaxFileSizeKB < 0 || req.MaxFileSizeKB > build.MaxFileSizeKBLimit {
		problems = append(problems, fmt.Sprintf("maxFileSize must be between 0 and %d KB, got %d", build.MaxFileSizeKBLimit, req.MaxFileSizeKB))
	}
	if err := scanner.ValidatePatterns(req.Include); err != nil {
		problems = append(problems, "invalid include pattern: "+err.Error())
	}
	if err := scanner.ValidatePatterns(req.Exclude); err != nil {
		problems = append(problems, "invalid exclude pattern: "+err.Error())
	}
	if req.Language != "" && !slices.Contains(scanner.Languages(), req.Language) {
		problems = append(problems, fmt.Sprintf("unknown language %q", req.Language))
	}
	return Validation{Valid: len(problems) == 0, Errors: problems}
}
