package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aman-CERP/repoindex/internal/build"
	"github.com/Aman-CERP/repoindex/internal/config"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/source"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m    *Manager
	idx  *store.Index
	meta *store.MetadataStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Index.Dir = filepath.Join(t.TempDir(), "index")

	reg := store.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	idx, release, err := reg.Acquire(cfg.Index.Dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = release() })

	meta, err := store.OpenMetadata("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	return fixture{m: New(reg, meta, cfg), idx: idx, meta: meta}
}

func (f fixture) add(t *testing.T, ids ...string) {
	t.Helper()
	docs := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := store.NewDocument(id, "demo", store.Attributes{
			Filepath: id + ".go",
			Body:     "package demo",
			Language: "go",
			GitURL:   "https://example.com/demo",
		}, nil)
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	require.NoError(t, f.idx.Apply(context.Background(), docs, nil))
}

func TestStatus_CountsLiveDocuments(t *testing.T) {
	// Given: three chunks, one of them deleted afterwards
	f := newFixture(t)
	f.add(t, "a", "b")
	f.add(t, "c")
	require.NoError(t, f.idx.Apply(context.Background(), nil, []string{"b"}))

	// When: asking for the status
	st, err := f.m.Status(context.Background(), "demo")

	// Then: the deleted chunk is not counted
	require.NoError(t, err)
	assert.Equal(t, "demo", st.IndexID)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, uint64(2), st.DocumentCount)
	assert.Positive(t, st.SizeBytes)
	assert.Equal(t, version.Short(), st.Version)
	assert.Nil(t, st.LastUpdated)
}

func TestStatus_LastUpdatedFromCompletedBuilds(t *testing.T) {
	// Given: a completed build followed by a failed one
	f := newFixture(t)
	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, f.meta.RecordBuild(ctx, store.BuildRecord{
		ID: "b1", SourceID: "demo", Status: store.BuildCompleted,
		StartedAt: done.Add(-time.Minute), FinishedAt: done,
	}))
	require.NoError(t, f.meta.RecordBuild(ctx, store.BuildRecord{
		ID: "b2", SourceID: "demo", Status: "Failed",
		StartedAt: done, FinishedAt: done.Add(time.Hour),
	}))

	// When: asking for the status
	st, err := f.m.Status(ctx, "demo")

	// Then: lastUpdated is the completed build
	require.NoError(t, err)
	require.NotNil(t, st.LastUpdated)
	assert.True(t, done.Equal(*st.LastUpdated), "got %s", st.LastUpdated)

	other, err := f.m.Status(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, other.LastUpdated)
}

func TestStatus_RequiresID(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.Status(context.Background(), " ")

	assert.Equal(t, rerrors.ErrCodeInvalidInput, rerrors.GetCode(err))
}

func TestPlaceholders_AreNotImplemented(t *testing.T) {
	// Given: an index with one chunk
	f := newFixture(t)
	f.add(t, "a")
	ctx := context.Background()

	// When: calling every placeholder operation
	errs := map[string]error{
		"delete":  f.m.Delete(ctx, "demo"),
		"rebuild": f.m.Rebuild(ctx, "demo"),
	}
	batch, err := f.m.BatchCreate(ctx, []build.Request{{Source: source.Request{Kind: source.KindLocal, Location: "."}}})
	assert.Nil(t, batch)
	errs["batch_create"] = err
	st, err := f.m.BatchStatus(ctx, "batch-1")
	assert.Nil(t, st)
	errs["batch_status"] = err

	// Then: each one fails as not implemented and the index is untouched
	for op, err := range errs {
		assert.True(t, rerrors.IsNotImplemented(err), op)
	}
	n, err := f.idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestConfig_ReflectsSettings(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Scan.MaxFileSizeKB = 256
	cfg.Chunk.Strategy = config.ChunkStrategyLines
	m := New(store.NewRegistry(), nil, cfg)

	got := m.Config()

	assert.Equal(t, 256, got.MaxFileSizeKB)
	assert.Equal(t, build.MaxFileSizeKBLimit, got.MaxFileSizeKBLimit)
	assert.Equal(t, config.ChunkStrategyLines, got.ChunkStrategy)
	assert.Equal(t, config.DefaultExcludePatterns, got.DefaultExclude)
	assert.Contains(t, got.SupportedLanguages, "rust")
	assert.Contains(t, got.SyntaxLanguages, "go")
	assert.Equal(t, cfg.Embedding.Model, got.EmbeddingModel)
}

func TestValidateConfig(t *testing.T) {
	m := New(store.NewRegistry(), nil, nil)

	tests := []struct {
		name     string
		req      build.Request
		problems int
	}{
		{
			name: "valid local build",
			req: build.Request{
				Source:   source.Request{Kind: source.KindLocal, Location: "/srv/repo"},
				Language: "go",
				Include:  []string{"**/*.go"},
			},
		},
		{
			name:     "missing source",
			req:      build.Request{Source: source.Request{Kind: source.KindGit}},
			problems: 1,
		},
		{
			name: "archive must be http",
			req: build.Request{
				Source: source.Request{Kind: source.KindArchive, Location: "ftp://host/a.zip"},
			},
			problems: 1,
		},
		{
			name: "every problem is listed",
			req: build.Request{
				Source:        source.Request{Kind: source.KindGit, Location: "https://github.com/acme/demo"},
				MaxFileSizeKB: build.MaxFileSizeKBLimit + 1,
				Exclude:       []string{"src/[a-"},
				Language:      "klingon",
			},
			problems: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.ValidateConfig(tt.req)

			assert.Len(t, got.Errors, tt.problems)
			assert.Equal(t, tt.problems == 0, got.Valid)
		})
	}
}
