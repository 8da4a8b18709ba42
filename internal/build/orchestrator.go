// Package build runs index builds: it resolves a source, refreshes the
// index from it, and reports progress snapshots on a bounded channel until
// the build ends as Completed or Failed.
package build

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/repoindex/internal/chunk"
	"github.com/Aman-CERP/repoindex/internal/embed"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/indexer"
	"github.com/Aman-CERP/repoindex/internal/progress"
	"github.com/Aman-CERP/repoindex/internal/scanner"
	"github.com/Aman-CERP/repoindex/internal/source"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
	"github.com/google/uuid"
)

// MaxFileSizeKBLimit caps the per-request file size limit.
const MaxFileSizeKBLimit = 100 * 1024

// Request is one build request.
type Request struct {
	Source source.Request

	// Language keeps only files detected as this language. Empty keeps all.
	Language string
	// MaxFileSizeKB overrides the configured limit when positive.
	MaxFileSizeKB int
	Include       []string
	Exclude       []string
}

// Validate checks the request without touching the network or disk.
func (r Request) Validate() error {
	if err := r.Source.Validate(); err != nil {
		return rerrors.ValidationError(err.Error(), err)
	}
	if r.MaxFileSizeKB < 0 || r.MaxFileSizeKB > MaxFileSizeKBLimit {
		return rerrors.ValidationError("maxFileSize must be between 0 and 102400 KB", nil)
	}
	if err := scanner.ValidatePatterns(r.Include); err != nil {
		return rerrors.ValidationError("invalid include pattern: "+err.Error(), err)
	}
	if err := scanner.ValidatePatterns(r.Exclude); err != nil {
		return rerrors.ValidationError("invalid exclude pattern: "+err.Error(), err)
	}
	return nil
}

// EmbedderFactory creates the embedder of one build. The orchestrator
// closes it when the build ends.
type EmbedderFactory func(ctx context.Context) (embed.Embedder, error)

// Config wires an Orchestrator. Resolver, Registry, Metadata, Chunker and
// NewEmbedder are required.
type Config struct {
	IndexDir        string
	ChannelCapacity int

	Resolver    *source.Resolver
	Registry    *store.Registry
	Metadata    *store.MetadataStore
	Chunker     chunk.Chunker
	NewEmbedder EmbedderFactory

	// Indexing holds the defaults merged into every request.
	Indexing indexer.Options

	// Locks defaults to a table private to the orchestrator.
	Locks   *WriterLocks
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

// Orchestrator starts builds. It is safe for concurrent use; builds of the
// same index directory run one at a time.
type Orchestrator struct {
	cfg    Config
	active atomic.Int64
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = progress.DefaultCapacity
	}
	if cfg.Locks == nil {
		cfg.Locks = NewWriterLocks()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{cfg: cfg}
}

// Active returns the number of running builds.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

// Build is a running build.
type Build struct {
	ID      string
	IndexID string

	ch     *progress.Channel
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	final progress.Snapshot
	err   error
}

// Events returns the progress stream. It is closed after the terminal
// snapshot.
func (b *Build) Events() <-chan progress.Snapshot {
	return b.ch.Receive()
}

// Cancel aborts the build. The build still emits its Failed snapshot.
func (b *Build) Cancel() {
	b.cancel()
}

// Done is closed once the build has ended and released its resources.
func (b *Build) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the build ends and returns its terminal snapshot and
// error. The events must be drained concurrently, or the build may block
// on a full channel.
func (b *Build) Wait() (progress.Snapshot, error) {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.final, b.err
}

// Start validates req and runs the build on its own goroutine. The build
// is bound to ctx: cancelling it aborts the build.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Build, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &Build{
		ID:      uuid.NewString(),
		IndexID: req.Source.SourceID(),
		ch:      progress.NewChannel(o.cfg.ChannelCapacity),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		defer cancel()
		final, err := o.run(ctx, b.ID, req, b.ch)
		b.mu.Lock()
		b.final, b.err = final, err
		b.mu.Unlock()
	}()
	return b, nil
}

// Run executes a build on the calling goroutine, sending snapshots to ch
// and closing it at the end. It returns the terminal snapshot and, for a
// failed build, the cause.
func (o *Orchestrator) Run(ctx context.Context, req Request, ch *progress.Channel) (progress.Snapshot, error) {
	if err := req.Validate(); err != nil {
		ch.Close()
		return progress.Snapshot{}, err
	}
	return o.run(ctx, uuid.NewString(), req, ch)
}

func (o *Orchestrator) run(ctx context.Context, id string, req Request, ch *progress.Channel) (progress.Snapshot, error) {
	defer ch.Close()

	kind := string(req.Source.Kind)
	o.active.Add(1)
	defer o.active.Add(-1)
	o.cfg.Metrics.BuildStarted(kind)

	j := &job{
		o:       o,
		id:      id,
		req:     req,
		ch:      ch,
		tracker: progress.NewTracker(req.Source.SourceID(), o.cfg.Now),
		log: slog.Default().With(
			slog.String("build_id", id),
			slog.String("index_id", req.Source.SourceID())),
		started: o.cfg.Now(),
	}
	j.log.Info("build_started",
		slog.String("kind", kind),
		slog.String("location", req.Source.Location))

	final, err := j.execute(ctx)

	if relErr := j.resolved.Release(); relErr != nil {
		j.log.Warn("temp_release_failed", slog.String("error", relErr.Error()))
	}
	o.cfg.Metrics.BuildFinished(kind, string(final.Status), o.cfg.Now().Sub(j.started))
	return final, err
}

// job is the state of one build, owned by its goroutine.
type job struct {
	o       *Orchestrator
	id      string
	req     Request
	ch      *progress.Channel
	tracker *progress.Tracker
	log     *slog.Logger
	started time.Time

	resolved *source.Resolved
}

func (j *job) execute(ctx context.Context) (progress.Snapshot, error) {
	j.milestone(ctx, progress.StatusInitializing, progress.PhaseResolving, progress.PctStart, "Preparing source")

	resolved, err := j.o.cfg.Resolver.Resolve(ctx, j.req.Source, j.observe(ctx))
	j.resolved = resolved
	if err != nil {
		return j.fail(ctx, err)
	}
	handle := resolved.Handle

	j.milestone(ctx, progress.StatusInitializing, progress.PhaseEmbeddingInit, progress.PctEmbeddingInit, "Loading embedding model")
	emb, err := j.o.cfg.NewEmbedder(ctx)
	if err != nil {
		return j.fail(ctx, err)
	}
	defer func() {
		if err := emb.Close(); err != nil {
			j.log.Warn("embedder_close_failed", slog.String("error", err.Error()))
		}
	}()
	j.milestone(ctx, progress.StatusInitializing, progress.PhaseEmbeddingDone, progress.PctEmbeddingReady, "Embedding model ready")

	unlock, err := j.o.cfg.Locks.Acquire(ctx, j.o.cfg.IndexDir)
	if err != nil {
		return j.fail(ctx, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			j.log.Warn("writer_unlock_failed", slog.String("error", err.Error()))
		}
	}()

	idx, releaseIdx, err := j.o.cfg.Registry.Acquire(j.o.cfg.IndexDir)
	if err != nil {
		return j.fail(ctx, err)
	}
	defer func() { _ = releaseIdx() }()

	x := indexer.New(idx, j.o.cfg.Metadata, j.o.cfg.Chunker)
	res, err := x.Refresh(ctx, emb, handle, j.indexOptions(), j.onIndexProgress)
	if err != nil {
		return j.fail(ctx, err)
	}
	j.o.cfg.Metrics.ChunksWritten(res.UpdatedChunks)

	final, _ := j.tracker.Complete(res.TotalFiles, res.UpdatedChunks)
	j.sendTerminal(ctx, final)
	j.record(ctx, handle.GitURL, final)
	j.log.Info("build_completed",
		slog.Int("files", res.TotalFiles),
		slog.Int("changed_files", res.ChangedFiles),
		slog.Int("removed_files", res.RemovedFiles),
		slog.Int("chunks", res.UpdatedChunks),
		slog.Duration("duration", j.o.cfg.Now().Sub(j.started)))
	return final, nil
}

func (j *job) indexOptions() indexer.Options {
	opts := j.o.cfg.Indexing
	if j.req.MaxFileSizeKB > 0 {
		opts.MaxFileSize = int64(j.req.MaxFileSizeKB) * 1024
	}
	if j.req.Language != "" {
		opts.Language = j.req.Language
	}
	opts.Include = append(append([]string(nil), opts.Include...), j.req.Include...)
	opts.Exclude = append(append([]string(nil), opts.Exclude...), j.req.Exclude...)
	return opts
}

// observe maps acquisition steps onto fixed milestones of the source kind.
func (j *job) observe(ctx context.Context) source.Observer {
	kind := j.req.Source.Kind
	return func(step source.Step) {
		switch step {
		case source.StepConnect:
			j.milestone(ctx, progress.StatusDownloading, progress.PhaseConnecting, progress.PctConnect, "Connecting")
		case source.StepTransfer:
			j.milestone(ctx, progress.StatusDownloading, progress.PhaseTransferring, progress.PctTransfer, "Downloading archive")
		case source.StepPayload:
			j.milestone(ctx, progress.StatusDownloading, progress.PhaseDownloaded, progress.PctPayload, "Archive downloaded")
		case source.StepExtract:
			j.milestone(ctx, progress.StatusExtracting, progress.PhaseExtracting, progress.PctPayload, "Extracting archive")
		case source.StepClone:
			j.milestone(ctx, progress.StatusCloning, progress.PhaseCloning, progress.PctTransfer, "Cloning repository")
		case source.StepLocal:
			j.milestone(ctx, progress.StatusInitializing, progress.PhaseResolving, progress.PctConnect, "Checking local path")
		case source.StepAcquired:
			status, msg := progress.StatusInitializing, "Local path ready"
			switch kind {
			case source.KindGit:
				status, msg = progress.StatusCloning, "Repository cloned"
			case source.KindArchive:
				status, msg = progress.StatusExtracting, "Archive extracted"
			}
			j.milestone(ctx, status, progress.PhaseAcquired, progress.PctAcquired, msg)
		}
	}
}

func (j *job) milestone(ctx context.Context, status progress.Status, phase progress.Phase, pct float64, msg string) {
	s, ok := j.tracker.Milestone(status, phase, pct, msg)
	if !ok {
		return
	}
	if err := j.ch.Send(ctx, s); err != nil {
		j.log.Debug("milestone_not_delivered", slog.String("phase", string(phase)), slog.String("error", err.Error()))
	}
}

// onIndexProgress runs on the build goroutine for every indexed file. It
// never blocks; a full channel drops the snapshot.
func (j *job) onIndexProgress(total, processed, updated int, currentFile string) {
	s, ok := j.tracker.Indexing(total, processed, updated, currentFile)
	if !ok {
		return
	}
	if !j.ch.TrySend(s) {
		j.o.cfg.Metrics.SnapshotDropped()
	}
}

// sendTerminal delivers the last snapshot. A cancelled build has most
// likely lost its consumer, so it only gets a non-blocking attempt.
func (j *job) sendTerminal(ctx context.Context, s progress.Snapshot) {
	if ctx.Err() != nil {
		if !j.ch.TrySend(s) {
			j.o.cfg.Metrics.SnapshotDropped()
		}
		return
	}
	if err := j.ch.Send(ctx, s); err != nil {
		j.log.Debug("terminal_not_delivered", slog.String("error", err.Error()))
	}
}

func (j *job) fail(ctx context.Context, err error) (progress.Snapshot, error) {
	// Clones killed by the context surface as clone errors; the context is
	// the real cause.
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = rerrors.New(rerrors.ErrCodeBuildCancelled, "build cancelled", ctxErr)
	}

	final, _ := j.tracker.Fail(failureMessage(err))
	j.sendTerminal(ctx, final)

	gitURL := j.req.Source.Location
	if j.resolved != nil && j.resolved.Handle.GitURL != "" {
		gitURL = j.resolved.Handle.GitURL
	}
	j.record(ctx, gitURL, final)

	attrs := []any{slog.String("phase", string(final.CurrentPhase))}
	for k, v := range rerrors.FormatForLog(err) {
		attrs = append(attrs, slog.Any(k, v))
	}
	j.log.Error("build_failed", attrs...)
	return final, err
}

// record stores the outcome in the metadata store. It runs even when the
// build context is cancelled.
func (j *job) record(ctx context.Context, gitURL string, final progress.Snapshot) {
	if j.o.cfg.Metadata == nil {
		return
	}
	rec := store.BuildRecord{
		ID:            j.id,
		SourceID:      j.req.Source.SourceID(),
		GitURL:        gitURL,
		Status:        string(final.Status),
		Message:       final.StatusMsg,
		TotalFiles:    final.TotalFiles,
		UpdatedChunks: final.UpdatedChunks,
		StartedAt:     j.started,
		FinishedAt:    j.o.cfg.Now(),
	}
	if err := j.o.cfg.Metadata.RecordBuild(context.WithoutCancel(ctx), rec); err != nil {
		j.log.Warn("build_record_failed", slog.String("error", err.Error()))
	}
}

// failureMessage is the human-readable statusMsg of a failed build.
func failureMessage(err error) string {
	e, ok := rerrors.As(err)
	if !ok {
		return err.Error()
	}
	msg := e.Message
	if e.Cause != nil && e.Code != rerrors.ErrCodeBuildCancelled {
		if cause := e.Cause.Error(); cause != "" && cause != msg {
			msg += ": " + cause
		}
	}
	return msg
}
