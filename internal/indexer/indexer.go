// Package indexer refreshes one source tree into the shared index.
//
// A refresh scans the tree, skips files whose content hash matches the last
// successful refresh, chunks and embeds the rest on a worker pool, and writes
// the resulting documents in batches from a single goroutine. Chunks of
// files that changed shape or disappeared are deleted in the same batches.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/Aman-CERP/repoindex/internal/chunk"
	"github.com/Aman-CERP/repoindex/internal/embed"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/scanner"
	"github.com/Aman-CERP/repoindex/internal/source"
	"github.com/Aman-CERP/repoindex/internal/store"
	"golang.org/x/sync/errgroup"
)

// Defaults used when Options leaves them zero.
const (
	DefaultBatchSize = 256
	defaultLanguage  = "text"
)

// Options selects the files of a refresh and sizes the pipeline.
type Options struct {
	Include         []string
	Exclude         []string
	IgnoreGitignore bool
	MaxFileSize     int64 // bytes; zero uses the scanner default
	Language        string

	Workers   int // zero means runtime.NumCPU
	BatchSize int // documents per index batch
}

// ProgressFunc is called after every file, always from the goroutine that
// called Refresh.
type ProgressFunc func(total, processed, updatedChunks int, currentFile string)

// Result summarizes a refresh.
type Result struct {
	TotalFiles     int
	ProcessedFiles int
	ChangedFiles   int
	RemovedFiles   int
	UpdatedChunks  int
	Duration       time.Duration
}

// CodeIndexer writes chunks of source trees into an index.
type CodeIndexer struct {
	index   *store.Index
	meta    *store.MetadataStore
	chunker chunk.Chunker
}

// New returns a CodeIndexer writing to idx and recording file hashes in meta.
func New(idx *store.Index, meta *store.MetadataStore, chunker chunk.Chunker) *CodeIndexer {
	return &CodeIndexer{index: idx, meta: meta, chunker: chunker}
}

type fileResult struct {
	path      string
	unchanged bool
	record    store.FileRecord
	docs      []store.Document
	stale     []string
}

// Refresh brings the chunks of h.SourceID in line with the tree at
// h.Location. Context errors are returned unwrapped; every other failure is
// an IndexerError or an index write error.
func (x *CodeIndexer) Refresh(ctx context.Context, emb embed.Embedder, h source.Handle, opts Options, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	if onProgress == nil {
		onProgress = func(int, int, int, string) {}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	files, err := scanner.Scan(ctx, scanner.Options{
		Root:            h.Location,
		Include:         opts.Include,
		Exclude:         opts.Exclude,
		IgnoreGitignore: opts.IgnoreGitignore,
		MaxFileSize:     opts.MaxFileSize,
		Language:        opts.Language,
	})
	if err != nil {
		return nil, err
	}
	if err := x.syncGeneration(ctx, h.SourceID); err != nil {
		return nil, err
	}
	prev, err := x.meta.Files(ctx, h.SourceID)
	if err != nil {
		return nil, rerrors.IndexerError("failed to load file hashes", err)
	}

	res := &Result{TotalFiles: len(files)}
	slog.Info("refresh_started",
		slog.String("source_id", h.SourceID),
		slog.String("location", h.Location),
		slog.Int("files", len(files)),
		slog.Int("known_files", len(prev)))
	onProgress(len(files), 0, 0, "")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan fileResult, workers)
	var workErr error
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, f := range files {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				r, err := x.processFile(gctx, emb, h, f, prev[f.Path])
				if err != nil {
					return err
				}
				select {
				case results <- r:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		workErr = g.Wait()
		if workErr == nil {
			workErr = ctx.Err()
		}
		close(results)
	}()

	w := &writer{index: x.index, meta: x.meta, sourceID: h.SourceID, batchSize: batchSize}
	var writeErr error
	for r := range results {
		if writeErr != nil {
			continue
		}
		res.ProcessedFiles++
		if !r.unchanged {
			res.ChangedFiles++
			res.UpdatedChunks += len(r.docs)
			w.add(r)
		}
		if w.full() {
			if writeErr = w.flush(ctx); writeErr != nil {
				cancel()
				continue
			}
		}
		onProgress(res.TotalFiles, res.ProcessedFiles, res.UpdatedChunks, r.path)
	}

	if writeErr != nil {
		return nil, writeErr
	}
	if workErr != nil {
		return nil, workErr
	}

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.Path] = struct{}{}
	}
	var removed []string
	for p, rec := range prev {
		if _, ok := seen[p]; ok {
			continue
		}
		removed = append(removed, p)
		w.deletes = append(w.deletes, rec.ChunkIDs...)
	}
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		if err := x.meta.DeleteFiles(ctx, h.SourceID, removed); err != nil {
			return nil, rerrors.IndexerError("failed to forget removed files", err)
		}
	}
	res.RemovedFiles = len(removed)
	res.Duration = time.Since(start)

	slog.Info("refresh_completed",
		slog.String("source_id", h.SourceID),
		slog.Int("files", res.TotalFiles),
		slog.Int("changed", res.ChangedFiles),
		slog.Int("removed", res.RemovedFiles),
		slog.Int("chunks", res.UpdatedChunks),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// syncGeneration drops the file records of sourceID when they were written
// against another index than the open one, so every file is reindexed.
func (x *CodeIndexer) syncGeneration(ctx context.Context, sourceID string) error {
	gen := x.index.Generation()
	known, err := x.meta.Generation(ctx, sourceID)
	if err != nil {
		return rerrors.IndexerError("failed to load index generation", err)
	}
	if known == gen {
		return nil
	}
	slog.Info("refresh_generation_changed",
		slog.String("source_id", sourceID),
		slog.String("previous", known),
		slog.String("current", gen))
	if err := x.meta.ResetSource(ctx, sourceID, gen); err != nil {
		return rerrors.IndexerError("failed to reset file hashes", err)
	}
	return nil
}

func (x *CodeIndexer) processFile(ctx context.Context, emb embed.Embedder, h source.Handle, f scanner.File, prev store.FileRecord) (fileResult, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		slog.Warn("file_unreadable", slog.String("path", f.Path), slog.String("error", err.Error()))
		return fileResult{path: f.Path, unchanged: true}, nil
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if prev.Hash == hash {
		return fileResult{path: f.Path, unchanged: true}, nil
	}

	lang := f.Language
	if lang == "" {
		lang = defaultLanguage
	}
	chunks, err := x.chunker.Chunk(ctx, chunk.File{Path: f.Path, Language: f.Language, Content: content})
	if err != nil {
		if ctx.Err() != nil {
			return fileResult{}, ctx.Err()
		}
		return fileResult{}, rerrors.New(rerrors.ErrCodeChunkingFailed, "failed to chunk "+f.Path, err)
	}

	bodies := make([]string, len(chunks))
	for i, c := range chunks {
		bodies[i] = c.Body
	}
	var vecs [][]float32
	if len(bodies) > 0 {
		vecs, err = emb.EmbedBatch(ctx, bodies)
		if err != nil {
			if ctx.Err() != nil {
				return fileResult{}, ctx.Err()
			}
			return fileResult{}, rerrors.IndexerError("failed to embed "+f.Path, err)
		}
	}

	r := fileResult{path: f.Path, docs: make([]store.Document, 0, len(chunks))}
	ids := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		startLine := c.StartLine
		id := store.ChunkID(h.SourceID, f.Path, i)
		doc, err := store.NewDocument(id, h.SourceID, store.Attributes{
			Filepath:  f.Path,
			Body:      c.Body,
			Language:  lang,
			StartLine: &startLine,
			GitURL:    h.GitURL,
		}, embed.BinaryTokens(vecs[i]))
		if err != nil {
			return fileResult{}, rerrors.IndexerError("failed to build document for "+f.Path, err)
		}
		r.docs = append(r.docs, doc)
		ids[id] = struct{}{}
	}
	for _, id := range prev.ChunkIDs {
		if _, ok := ids[id]; !ok {
			r.stale = append(r.stale, id)
		}
	}
	r.record = store.FileRecord{Path: f.Path, Hash: hash, ChunkIDs: make([]string, 0, len(r.docs))}
	for _, d := range r.docs {
		r.record.ChunkIDs = append(r.record.ChunkIDs, d.ID)
	}
	return r, nil
}

// writer accumulates documents and file records and writes them together,
// so file hashes are only recorded once their chunks are in the index.
type writer struct {
	index     *store.Index
	meta      *store.MetadataStore
	sourceID  string
	batchSize int

	docs    []store.Document
	deletes []string
	records []store.FileRecord
}

func (w *writer) add(r fileResult) {
	w.docs = append(w.docs, r.docs...)
	w.deletes = append(w.deletes, r.stale...)
	w.records = append(w.records, r.record)
}

func (w *writer) full() bool {
	return len(w.docs)+len(w.deletes) >= w.batchSize
}

func (w *writer) flush(ctx context.Context) error {
	if len(w.docs) == 0 && len(w.deletes) == 0 && len(w.records) == 0 {
		return nil
	}
	if err := w.index.Apply(ctx, w.docs, w.deletes); err != nil {
		return err
	}
	if err := w.meta.PutFiles(ctx, w.sourceID, w.records); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return rerrors.IndexerError("failed to record file hashes", err)
	}
	w.docs, w.deletes, w.records = w.docs[:0], w.deletes[:0], w.records[:0]
	return nil
}
