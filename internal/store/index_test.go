package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(t *testing.T, corpus, path, body string, n int) Document {
	t.Helper()
	line := n*10 + 1
	doc, err := NewDocument(ChunkID(corpus, path, n), corpus, Attributes{
		Filepath:  path,
		Body:      body,
		Language:  "go",
		StartLine: &line,
		GitURL:    "https://github.com/acme/" + corpus,
	}, nil)
	require.NoError(t, err)
	return doc
}

func openTemp(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func corpusIDs(t *testing.T, idx *Index, corpus string) []string {
	t.Helper()
	snap, err := idx.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	var ids []string
	for _, seg := range snap.Segments() {
		err := seg.Postings(FieldCorpus, corpus, func(num uint64) bool {
			id, err := seg.DocID(num)
			require.NoError(t, err)
			ids = append(ids, id)
			return true
		})
		require.NoError(t, err)
	}
	sort.Strings(ids)
	return ids
}

func TestParseAttributes(t *testing.T) {
	a, ok := ParseAttributes(`{"filepath":"a.go","body":"x","language":"go","git_url":"u","start_line":3}`)
	require.True(t, ok)
	assert.Equal(t, "a.go", a.Filepath)
	require.NotNil(t, a.StartLine)
	assert.Equal(t, 3, *a.StartLine)

	_, ok = ParseAttributes(`{"filepath":"a.go","body":"x","language":"go"}`)
	assert.False(t, ok, "git_url is required")

	_, ok = ParseAttributes(`not json`)
	assert.False(t, ok)

	a, ok = ParseAttributes(`{"filepath":"a.go","body":"","language":"go","git_url":"u"}`)
	require.True(t, ok, "empty values are present values")
	assert.Nil(t, a.StartLine)
}

func TestOpen_CreatesAndReopens(t *testing.T) {
	// Given: a fresh index with one chunk
	dir := filepath.Join(t.TempDir(), "index")
	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.Apply(context.Background(), []Document{chunk(t, "demo", "main.go", "package main", 0)}, nil))
	require.NoError(t, idx.Close())

	// When: reopening
	idx, err = Open(dir)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then: the chunk survived
	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestOpen_RefusesForeignDirectory(t *testing.T) {
	// Given: a directory with unrelated content
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0o644))

	// When: opening it as an index
	_, err := Open(dir)

	// Then: it is refused and left alone
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeIndexOpen, rerrors.GetCode(err))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestOpen_RecreatesCorruptIndex(t *testing.T) {
	// Given: an index whose metadata got truncated
	dir := filepath.Join(t.TempDir(), "index")
	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_meta.json"), nil, 0o644))

	// When: opening again
	idx, err = Open(dir)

	// Then: a fresh empty index is created
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_GenerationTracksIndexIdentity(t *testing.T) {
	// Given: a fresh index
	dir := filepath.Join(t.TempDir(), "index")
	idx, err := Open(dir)
	require.NoError(t, err)
	first := idx.Generation()
	require.NotEmpty(t, first)
	require.NoError(t, idx.Close())

	// When: reopening it, then recreating it after corruption
	idx, err = Open(dir)
	require.NoError(t, err)
	reopened := idx.Generation()
	require.NoError(t, idx.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_meta.json"), nil, 0o644))
	idx, err = Open(dir)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then: the generation is stable across reopens and new after recreation
	assert.Equal(t, first, reopened)
	assert.NotEqual(t, first, idx.Generation())
}

func TestSnapshot_PostingsSkipTombstones(t *testing.T) {
	// Given: two corpora, then one chunk of demo deleted
	idx := openTemp(t)
	ctx := context.Background()
	docs := []Document{
		chunk(t, "demo", "a.go", "alpha", 0),
		chunk(t, "demo", "b.go", "beta", 0),
		chunk(t, "demo", "c.go", "gamma", 0),
		chunk(t, "other", "d.go", "delta", 0),
	}
	require.NoError(t, idx.Apply(ctx, docs, nil))
	require.NoError(t, idx.Apply(ctx, nil, []string{docs[1].ID}))

	// When: walking the corpus postings
	ids := corpusIDs(t, idx, "demo")

	// Then: the deleted chunk is not visited
	assert.Equal(t, []string{docs[0].ID, docs[2].ID}, ids)
	assert.Empty(t, corpusIDs(t, idx, "missing"))
}

func TestSnapshot_LiveCountAndStoredFields(t *testing.T) {
	idx := openTemp(t)
	ctx := context.Background()
	a := chunk(t, "demo", "a.go", "alpha", 0)
	b := chunk(t, "demo", "b.go", "beta", 0)
	require.NoError(t, idx.Apply(ctx, []Document{a, b}, nil))
	require.NoError(t, idx.Apply(ctx, nil, []string{b.ID}))

	snap, err := idx.Snapshot()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	var live uint64
	var stored map[string][]string
	for _, seg := range snap.Segments() {
		live += seg.LiveCount()
		require.NoError(t, seg.Postings(FieldCorpus, "demo", func(num uint64) bool {
			stored, err = seg.StoredFields(num)
			require.NoError(t, err)
			return false
		}))
	}

	assert.Equal(t, uint64(1), live)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"demo"}, stored[FieldCorpus])
	assert.Equal(t, []string{"go"}, stored[FieldLanguage])
	assert.Equal(t, []string{a.Attributes}, stored[FieldAttributes])
	assert.NotContains(t, stored, "_id")
	assert.NotContains(t, stored, FieldSearchableText)
}

func TestApply_ReplacesDocumentWithSameID(t *testing.T) {
	idx := openTemp(t)
	ctx := context.Background()
	old := chunk(t, "demo", "a.go", "old body", 0)
	require.NoError(t, idx.Apply(ctx, []Document{old}, nil))

	updated := chunk(t, "demo", "a.go", "new body", 0)
	require.NoError(t, idx.Apply(ctx, []Document{updated}, []string{old.ID}))

	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, []string{old.ID}, corpusIDs(t, idx, "demo"))
}

func TestApply_CancelledContext(t *testing.T) {
	idx := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := idx.Apply(ctx, []Document{chunk(t, "demo", "a.go", "x", 0)}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_SharesOneHandlePerDirectory(t *testing.T) {
	// Given: a registry and one index directory
	reg := NewRegistry()
	dir := filepath.Join(t.TempDir(), "index")

	// When: acquiring twice
	a, releaseA, err := reg.Acquire(dir)
	require.NoError(t, err)
	b, releaseB, err := reg.Acquire(dir + "/")
	require.NoError(t, err)

	// Then: both share the handle, which stays open until the last release
	assert.Same(t, a, b)
	require.NoError(t, releaseA())
	require.NoError(t, releaseA())
	_, err = b.DocCount()
	assert.NoError(t, err)
	require.NoError(t, releaseB())

	c, releaseC, err := reg.Acquire(dir)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	require.NoError(t, releaseC())
	assert.NoError(t, reg.Close())
}

func TestRegistry_IndexHeldElsewhereFailsWithoutBlocking(t *testing.T) {
	// Given: an index held open by another registry
	held := filepath.Join(t.TempDir(), "held")
	owner := NewRegistry()
	_, releaseOwner, err := owner.Acquire(held)
	require.NoError(t, err)
	defer func() { _ = releaseOwner() }()

	reg := NewRegistry(WithOpenTimeout(time.Second))
	defer func() { _ = reg.Close() }()

	// When: acquiring the held index while also acquiring a free one
	heldErr := make(chan error, 1)
	go func() {
		_, _, err := reg.Acquire(held)
		heldErr <- err
	}()
	free, releaseFree, err := reg.Acquire(filepath.Join(t.TempDir(), "free"))

	// Then: the free index opens at once and the held one fails with an open error
	require.NoError(t, err)
	assert.NotNil(t, free)
	require.NoError(t, releaseFree())
	select {
	case err := <-heldErr:
		require.Error(t, err)
		assert.Equal(t, rerrors.ErrCodeIndexOpen, rerrors.GetCode(err))
	case <-time.After(10 * time.Second):
		t.Fatal("acquiring a held index did not give up")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 23), 0o644))

	n, err := DirSize(dir)

	require.NoError(t, err)
	assert.Equal(t, int64(123), n)
}
