package query

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*Engine, *store.Index) {
	t.Helper()
	reg := store.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	dir := filepath.Join(t.TempDir(), "index")
	idx, release, err := reg.Acquire(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = release() })
	return New(reg, dir, WithMetrics(telemetry.New())), idx
}

func addChunk(t *testing.T, idx *store.Index, corpus, path, lang, body string) string {
	t.Helper()
	line := 1
	id := store.ChunkID(corpus, path, 0)
	doc, err := store.NewDocument(id, corpus, store.Attributes{
		Filepath:  path,
		Body:      body,
		Language:  lang,
		StartLine: &line,
		GitURL:    "https://example.com/" + corpus,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Apply(context.Background(), []store.Document{doc}, nil))
	return id
}

func TestDocuments_CapsAndSkipsTombstones(t *testing.T) {
	// Given: twelve chunks in alpha, one of them deleted, and two in beta
	e, idx := newEngine(t)
	var ids []string
	for i := 0; i < 12; i++ {
		ids = append(ids, addChunk(t, idx, "alpha", fmt.Sprintf("f%02d.go", i), "go", "package alpha"))
	}
	addChunk(t, idx, "beta", "b1.go", "go", "package beta")
	addChunk(t, idx, "beta", "b2.go", "go", "package beta")
	require.NoError(t, idx.Apply(context.Background(), nil, []string{ids[0]}))

	// When: listing alpha
	docs, err := e.Documents(context.Background(), "alpha")

	// Then: at most ten live documents come back
	require.NoError(t, err)
	assert.Len(t, docs, MaxDocuments)
	for _, d := range docs {
		assert.Equal(t, "alpha", d.Corpus)
		assert.NotContains(t, d.Content, "f00.go")
	}
}

func TestDocuments_ContentIsUnwrappedJSON(t *testing.T) {
	e, idx := newEngine(t)
	addChunk(t, idx, "beta", "src/lib.rs", "rust", "fn lib() {}")

	docs, err := e.Documents(context.Background(), "beta")

	require.NoError(t, err)
	require.Len(t, docs, 1)
	var content map[string]any
	require.NoError(t, json.Unmarshal([]byte(docs[0].Content), &content))
	assert.Equal(t, "beta", content["corpus"])
	assert.Equal(t, "rust", content["language"])
	attrs, ok := content["attributes"].(map[string]any)
	require.True(t, ok, "attributes must be an object, got %T", content["attributes"])
	assert.Equal(t, "src/lib.rs", attrs["filepath"])
	assert.Equal(t, "fn lib() {}", attrs["body"])
}

func TestDocuments_SkipsBrokenAttributes(t *testing.T) {
	// Given: a listed corpus holding one chunk without git_url and one that is not JSON
	e, idx := newEngine(t)
	addChunk(t, idx, "demo", "ok.go", "go", "package ok")
	require.NoError(t, idx.Apply(context.Background(), []store.Document{
		{ID: "no-url", Corpus: "demo", Attributes: `{"filepath":"no-url.go","body":"x","language":"go"}`},
		{ID: "garbage", Corpus: "demo", Attributes: "not json"},
	}, nil))

	// When: listing the corpus
	docs, err := e.Documents(context.Background(), "demo")

	// Then: only the well-formed chunk is listed
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, "ok.go")
}

func TestDocuments_UnknownCorpusIsEmpty(t *testing.T) {
	e, idx := newEngine(t)
	addChunk(t, idx, "alpha", "a.go", "go", "package a")

	docs, err := e.Documents(context.Background(), "missing")

	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStoredJSON(t *testing.T) {
	out, err := storedJSON(map[string][]string{
		"corpus":     {"x"},
		"attributes": {`{"filepath":"a.go"}`},
		"tags":       {"one", "two"},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"corpus":"x","attributes":{"filepath":"a.go"},"tags":["one","two"]}`, out)
}

// seedRanking indexes Go chunks that score higher for "tokenizer" than the
// Python chunks.
func seedRanking(t *testing.T, idx *store.Index) {
	t.Helper()
	for i := 0; i < 6; i++ {
		addChunk(t, idx, "demo", fmt.Sprintf("go/t%d.go", i), "go", "tokenizer tokenizer tokenizer")
	}
	for i := 0; i < 4; i++ {
		addChunk(t, idx, "demo", fmt.Sprintf("py/t%d.py", i), "python", "tokenizer alpha beta gamma delta")
	}
}

func TestSearch_RanksAndExtractsAttributes(t *testing.T) {
	e, idx := newEngine(t)
	seedRanking(t, idx)

	resp, err := e.Search(context.Background(), SearchRequest{Query: "tokenizer", Limit: 100})

	require.NoError(t, err)
	require.Len(t, resp.Results, 10)
	assert.Equal(t, 10, resp.Total)
	assert.GreaterOrEqual(t, resp.QueryTimeMs, int64(0))
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
	top := resp.Results[0]
	assert.Equal(t, "go", top.Language)
	assert.Equal(t, "https://example.com/demo", top.GitURL)
	require.NotNil(t, top.StartLine)
	assert.Equal(t, 1, *top.StartLine)
}

func TestSearch_FiltersApplyAfterTheTopKCut(t *testing.T) {
	// Given: Go chunks outrank every Python chunk
	e, idx := newEngine(t)
	seedRanking(t, idx)

	// When: asking for three Python results
	narrow, err := e.Search(context.Background(), SearchRequest{Query: "tokenizer", Language: "python", Limit: 3})
	require.NoError(t, err)
	wide, err := e.Search(context.Background(), SearchRequest{Query: "tokenizer", Language: "python", Limit: 100})
	require.NoError(t, err)

	// Then: the top three window holds no Python chunk, a wider window holds all four
	assert.Empty(t, narrow.Results)
	assert.Len(t, wide.Results, 4)
	for _, r := range wide.Results {
		assert.Equal(t, "python", r.Language)
	}
}

func TestSearch_FilePathSubstring(t *testing.T) {
	e, idx := newEngine(t)
	seedRanking(t, idx)

	resp, err := e.Search(context.Background(), SearchRequest{Query: "tokenizer", FilePath: "py/", Limit: 100})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 4)
	for _, r := range resp.Results {
		assert.True(t, strings.HasPrefix(r.Filepath, "py/"))
	}
}

func TestSearch_OffsetSkipsRankedHits(t *testing.T) {
	e, idx := newEngine(t)
	seedRanking(t, idx)

	all, err := e.Search(context.Background(), SearchRequest{Query: "tokenizer", Limit: 100})
	require.NoError(t, err)
	page, err := e.Search(context.Background(), SearchRequest{Query: "tokenizer", Limit: 2, Offset: 7})
	require.NoError(t, err)

	// ranks 7 and 8 fall inside the Python tier
	require.Len(t, page.Results, 2)
	assert.Equal(t, all.Results[7].Score, page.Results[0].Score)
	assert.Equal(t, "python", page.Results[0].Language)
	assert.Equal(t, "python", page.Results[1].Language)
	assert.NotEqual(t, page.Results[0].Filepath, page.Results[1].Filepath)

	beyond, err := e.Search(context.Background(), SearchRequest{Query: "tokenizer", Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, beyond.Results)
}

func TestSearch_DefaultLimit(t *testing.T) {
	e, idx := newEngine(t)
	for i := 0; i < 15; i++ {
		addChunk(t, idx, "demo", fmt.Sprintf("f%d.go", i), "go", "parser")
	}

	resp, err := e.Search(context.Background(), SearchRequest{Query: "parser"})

	require.NoError(t, err)
	assert.Len(t, resp.Results, DefaultLimit)
}

func TestSearch_SkipsBrokenAttributes(t *testing.T) {
	// Given: a chunk whose attributes lack git_url
	e, idx := newEngine(t)
	addChunk(t, idx, "demo", "ok.go", "go", "widget")
	require.NoError(t, idx.Apply(context.Background(), []store.Document{{
		ID:             "broken",
		Corpus:         "demo",
		Attributes:     `{"filepath":"broken.go","body":"widget","language":"go"}`,
		SearchableText: "widget",
	}}, nil))

	// When: searching
	resp, err := e.Search(context.Background(), SearchRequest{Query: "widget"})

	// Then: the broken chunk is left out without an error
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "ok.go", resp.Results[0].Filepath)
}

func TestSearch_QueryErrors(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.Search(context.Background(), SearchRequest{Query: "   "})
	assert.Equal(t, rerrors.ErrCodeQueryEmpty, rerrors.GetCode(err))

	_, err = e.Search(context.Background(), SearchRequest{Query: "^"})
	assert.Equal(t, rerrors.ErrCodeInvalidQuery, rerrors.GetCode(err))

	_, err = e.Search(context.Background(), SearchRequest{Query: "x", Offset: -1})
	assert.Equal(t, rerrors.ErrCodeInvalidInput, rerrors.GetCode(err))
}

func TestSemanticSearch_MatchesSearch(t *testing.T) {
	e, idx := newEngine(t)
	seedRanking(t, idx)
	req := SearchRequest{Query: "tokenizer", Language: "python", Limit: 100}

	plain, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	semantic, err := e.SemanticSearch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, len(plain.Results), len(semantic.Results))
}

func TestSearchFiles_FuzzyMatchesAndDedupes(t *testing.T) {
	// Given: two chunks of main.rs and one of admin.rs
	e, idx := newEngine(t)
	addChunk(t, idx, "demo", "src/main.rs", "rust", "fn main() {}")
	require.NoError(t, idx.Apply(context.Background(), []store.Document{mustDoc(t, "demo", "src/main.rs", 1, "fn helper() {}")}, nil))
	addChunk(t, idx, "demo", "src/admin.rs", "rust", "fn admin() {}")
	addChunk(t, idx, "demo", "docs/guide.md", "markdown", "# Guide")

	// When: looking up "amin"
	paths, err := e.SearchFiles(context.Background(), "amin", 0)

	// Then: both paths are found once each
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/main.rs", "src/admin.rs"}, paths)
}

func TestSearchFiles_PrefixAndLimit(t *testing.T) {
	e, idx := newEngine(t)
	for i := 0; i < 5; i++ {
		addChunk(t, idx, "demo", fmt.Sprintf("internal/configuration%d.go", i), "go", "package config")
	}

	paths, err := e.SearchFiles(context.Background(), "config", 3)

	require.NoError(t, err)
	assert.Len(t, paths, 3)

	_, err = e.SearchFiles(context.Background(), "", 3)
	assert.Equal(t, rerrors.ErrCodeQueryEmpty, rerrors.GetCode(err))
}

func mustDoc(t *testing.T, corpus, path string, n int, body string) store.Document {
	t.Helper()
	doc, err := store.NewDocument(store.ChunkID(corpus, path, n), corpus, store.Attributes{
		Filepath: path,
		Body:     body,
		Language: "rust",
		GitURL:   "https://example.com/" + corpus,
	}, nil)
	require.NoError(t, err)
	return doc
}

func TestInfo(t *testing.T) {
	e, idx := newEngine(t)
	addChunk(t, idx, "demo", "a.go", "go", "package a")

	info, err := e.Info(context.Background())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.NumSegments, 1)
	assert.Positive(t, info.TotalBytes)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10))
	assert.Equal(t, 20, clampLimit(-5, 20))
	assert.Equal(t, 7, clampLimit(7, 10))
	assert.Equal(t, MaxLimit, clampLimit(1000, 10))
}
