package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

// Engine runs queries against the index directory it was created for.
type Engine struct {
	registry *store.Registry
	dir      string
	metrics  *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records query counts and latency.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine over the index at dir. The index is opened through
// registry on every call, sharing the handle a running build holds.
func New(registry *store.Registry, dir string, opts ...Option) *Engine {
	e := &Engine{registry: registry, dir: dir}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) open() (*store.Index, func() error, error) {
	return e.registry.Acquire(e.dir)
}

// Documents lists up to MaxDocuments live chunks of corpus by walking the
// corpus postings of every segment. Tombstoned chunks and chunks with a
// broken attributes blob are skipped.
func (e *Engine) Documents(ctx context.Context, corpus string) ([]Document, error) {
	start := time.Now()
	docs, err := e.documents(ctx, corpus)
	e.metrics.QueryObserved("documents", len(docs), time.Since(start), err)
	return docs, err
}

func (e *Engine) documents(ctx context.Context, corpus string) ([]Document, error) {
	idx, release, err := e.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	snap, err := idx.Snapshot()
	if err != nil {
		return nil, err
	}
	defer func() { _ = snap.Close() }()

	docs := make([]Document, 0, MaxDocuments)
	for _, seg := range snap.Segments() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var visitErr error
		err := seg.Postings(store.FieldCorpus, corpus, func(num uint64) bool {
			fields, err := seg.StoredFields(num)
			if err != nil {
				visitErr = err
				return false
			}
			if !validAttributes(fields) {
				slog.Debug("query_skipped_document", slog.String("corpus", corpus), slog.Uint64("num", num))
				return true
			}
			content, err := storedJSON(fields)
			if err != nil {
				visitErr = rerrors.IndexReadError("failed to encode stored fields", err)
				return false
			}
			docs = append(docs, Document{Corpus: corpus, Content: content})
			return len(docs) < MaxDocuments
		})
		if err != nil {
			return nil, err
		}
		if visitErr != nil {
			return nil, visitErr
		}
		if len(docs) >= MaxDocuments {
			break
		}
	}
	return docs, nil
}

func validAttributes(fields map[string][]string) bool {
	blobs := fields[store.FieldAttributes]
	if len(blobs) != 1 {
		return false
	}
	_, ok := store.ParseAttributes(blobs[0])
	return ok
}

// storedJSON encodes stored fields as one JSON object. Fields with a single
// value become scalars; the attributes blob is embedded as an object.
func storedJSON(fields map[string][]string) (string, error) {
	obj := make(map[string]any, len(fields))
	for name, values := range fields {
		vals := make([]any, len(values))
		for i, v := range values {
			if name == store.FieldAttributes && json.Valid([]byte(v)) {
				vals[i] = json.RawMessage(v)
			} else {
				vals[i] = v
			}
		}
		if len(vals) == 1 {
			obj[name] = vals[0]
		} else {
			obj[name] = vals
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Search runs a ranked full-text search. It fetches Limit+Offset hits,
// drops the first Offset and only then applies the language and file path
// filters, so fewer than Limit results may come back even when more
// matches exist further down the ranking.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	resp, err := e.search(ctx, req, start)
	n := 0
	if resp != nil {
		n = resp.Total
	}
	e.metrics.QueryObserved("search", n, time.Since(start), err)
	return resp, err
}

// SemanticSearch currently answers like Search.
func (e *Engine) SemanticSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return e.Search(ctx, req)
}

func (e *Engine) search(ctx context.Context, req SearchRequest, start time.Time) (*SearchResponse, error) {
	text := strings.TrimSpace(req.Query)
	if text == "" {
		return nil, rerrors.New(rerrors.ErrCodeQueryEmpty, "query is required", nil)
	}
	if req.Offset < 0 {
		return nil, rerrors.ValidationError("offset must not be negative", nil)
	}
	limit := clampLimit(req.Limit, DefaultLimit)

	qs := bleve.NewQueryStringQuery(text)
	if _, err := qs.Parse(); err != nil {
		return nil, rerrors.QueryError(text, err)
	}

	idx, release, err := e.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	sr := bleve.NewSearchRequestOptions(qs, limit+req.Offset, 0, false)
	sr.Fields = []string{store.FieldAttributes}
	res, err := idx.Search(ctx, sr)
	if err != nil {
		return nil, err
	}

	hits := res.Hits
	if req.Offset >= len(hits) {
		hits = nil
	} else {
		hits = hits[req.Offset:]
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		blob, ok := store.StoredString(hit, store.FieldAttributes)
		if !ok {
			continue
		}
		attrs, ok := store.ParseAttributes(blob)
		if !ok {
			slog.Debug("query_skipped_document", slog.String("id", hit.ID))
			continue
		}
		if req.Language != "" && attrs.Language != req.Language {
			continue
		}
		if req.FilePath != "" && !strings.Contains(attrs.Filepath, req.FilePath) {
			continue
		}
		results = append(results, Result{
			Filepath:  attrs.Filepath,
			Body:      attrs.Body,
			Language:  attrs.Language,
			StartLine: attrs.StartLine,
			GitURL:    attrs.GitURL,
			Score:     hit.Score,
		})
	}

	elapsed := time.Since(start)
	slog.Debug("query_search",
		slog.String("query", text),
		slog.Int("hits", len(res.Hits)),
		slog.Int("results", len(results)),
		slog.Duration("duration", elapsed))
	return &SearchResponse{
		Results:     results,
		Total:       len(results),
		QueryTimeMs: elapsed.Milliseconds(),
	}, nil
}

// SearchFiles finds file paths close to q: every identifier part of q
// matches path tokens within edit distance 2 or as a prefix. Paths are
// returned in rank order without duplicates.
func (e *Engine) SearchFiles(ctx context.Context, q string, limit int) ([]string, error) {
	start := time.Now()
	paths, err := e.searchFiles(ctx, q, limit)
	e.metrics.QueryObserved("files", len(paths), time.Since(start), err)
	return paths, err
}

func (e *Engine) searchFiles(ctx context.Context, q string, limit int) ([]string, error) {
	text := strings.ToLower(strings.TrimSpace(q))
	if text == "" {
		return nil, rerrors.New(rerrors.ErrCodeQueryEmpty, "query is required", nil)
	}
	limit = clampLimit(limit, DefaultFileLimit)

	terms := store.TokenizeCode(text)
	if len(terms) == 0 {
		terms = []string{text}
	}
	clauses := make([]bquery.Query, 0, 2*len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetField(store.FieldFilepath)
		fq.SetFuzziness(fileFuzziness)
		pq := bleve.NewPrefixQuery(term)
		pq.SetField(store.FieldFilepath)
		clauses = append(clauses, fq, pq)
	}

	idx, release, err := e.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	sr := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(clauses...), limit, 0, false)
	sr.Fields = []string{store.FieldAttributes}
	res, err := idx.Search(ctx, sr)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(res.Hits))
	paths := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		blob, ok := store.StoredString(hit, store.FieldAttributes)
		if !ok {
			continue
		}
		attrs, ok := store.ParseAttributes(blob)
		if !ok {
			continue
		}
		if _, dup := seen[attrs.Filepath]; dup {
			continue
		}
		seen[attrs.Filepath] = struct{}{}
		paths = append(paths, attrs.Filepath)
	}
	return paths, nil
}

// Info reports the segment count and on-disk size of the index.
func (e *Engine) Info(ctx context.Context) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, release, err := e.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	snap, err := idx.Snapshot()
	if err != nil {
		return nil, err
	}
	n := len(snap.Segments())
	_ = snap.Close()

	size, err := store.DirSize(idx.Dir())
	if err != nil {
		return nil, rerrors.IndexReadError("failed to measure index size", err)
	}
	return &Info{NumSegments: n, TotalBytes: size}, nil
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
