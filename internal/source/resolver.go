package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
)

const (
	// DefaultMaxArchiveBytes caps buffered archive downloads.
	DefaultMaxArchiveBytes int64 = 512 << 20

	// DefaultCloneTimeout bounds a single clone.
	DefaultCloneTimeout = 10 * time.Minute
)

// ResolverConfig configures a Resolver. Zero values pick defaults.
type ResolverConfig struct {
	// TempDir is the parent for clone and extraction directories.
	TempDir string
	// Cloner fetches git remotes. Defaults to ExecCloner.
	Cloner Cloner
	// HTTPClient downloads archives. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// MaxArchiveBytes caps archive size.
	MaxArchiveBytes int64
	// CloneTimeout bounds each clone. Negative disables the bound.
	CloneTimeout time.Duration
	// Getwd resolves relative local paths. Defaults to os.Getwd.
	Getwd func() (string, error)
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver materializes sources on the local filesystem.
type Resolver struct {
	cfg ResolverConfig
}

// Resolved is the outcome of Resolve. Temp is nil for local sources; when
// set, the caller must Release it once indexing is over, including after
// a failed Resolve.
type Resolved struct {
	Handle Handle
	Temp   *TempResource
}

// Release frees the temporary directory, if any.
func (r *Resolved) Release() error {
	if r == nil {
		return nil
	}
	return r.Temp.Release()
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Cloner == nil {
		cfg.Cloner = ExecCloner{Depth: 1}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxArchiveBytes <= 0 {
		cfg.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if cfg.CloneTimeout == 0 {
		cfg.CloneTimeout = DefaultCloneTimeout
	}
	if cfg.Getwd == nil {
		cfg.Getwd = os.Getwd
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{cfg: cfg}
}

// Resolve acquires req and reports milestones to observe. The returned
// *Resolved may be non-nil alongside an error when a temporary directory
// was already created.
func (r *Resolver) Resolve(ctx context.Context, req Request, observe Observer) (*Resolved, error) {
	if err := req.Validate(); err != nil {
		return nil, rerrors.ValidationError(err.Error(), err)
	}

	switch req.Kind {
	case KindGit:
		return r.resolveGit(ctx, req, observe)
	case KindArchive:
		return r.resolveArchive(ctx, req, observe)
	default:
		return r.resolveLocal(req, observe)
	}
}

func (r *Resolver) resolveGit(ctx context.Context, req Request, observe Observer) (*Resolved, error) {
	tmp, err := NewTempResource(r.cfg.TempDir, "repoindex-clone-")
	if err != nil {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionEnvironment, err.Error(), err)
	}
	res := &Resolved{Temp: tmp}

	observe.emit(StepClone)
	r.cfg.Logger.Info("cloning repository", slog.String("url", req.Location))

	cloneCtx := ctx
	if r.cfg.CloneTimeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, r.cfg.CloneTimeout)
		defer cancel()
	}

	dir := filepath.Join(tmp.Path(), "repo")
	if err := r.cfg.Cloner.Clone(cloneCtx, req.Location, dir); err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, ok := rerrors.As(err); !ok {
			err = rerrors.AcquisitionError(rerrors.AcquisitionClone, err.Error(), err)
		}
		return res, err
	}

	res.Handle = Handle{Location: dir, SourceID: req.SourceID(), GitURL: req.Location}
	observe.emit(StepAcquired)
	return res, nil
}

func (r *Resolver) resolveArchive(ctx context.Context, req Request, observe Observer) (*Resolved, error) {
	tmp, err := NewTempResource(r.cfg.TempDir, "repoindex-archive-")
	if err != nil {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionEnvironment, err.Error(), err)
	}
	res := &Resolved{Temp: tmp}

	r.cfg.Logger.Info("downloading archive", slog.String("url", req.Location))
	data, err := download(ctx, r.cfg.HTTPClient, req.Location, r.cfg.MaxArchiveBytes, observe)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, err
	}

	observe.emit(StepExtract)
	if err := extractZip(data, tmp.Path()); err != nil {
		return res, err
	}

	res.Handle = Handle{
		Location: singleRoot(tmp.Path()),
		SourceID: req.SourceID(),
		GitURL:   req.Location,
	}
	r.cfg.Logger.Debug("archive extracted",
		slog.String("dir", res.Handle.Location),
		slog.Int("bytes", len(data)))
	observe.emit(StepAcquired)
	return res, nil
}

func (r *Resolver) resolveLocal(req Request, observe Observer) (*Resolved, error) {
	observe.emit(StepLocal)

	abs := req.Location
	if !filepath.IsAbs(abs) {
		wd, err := r.cfg.Getwd()
		if err != nil {
			return nil, rerrors.AcquisitionError(rerrors.AcquisitionEnvironment,
				fmt.Sprintf("cannot determine working directory: %v", err), err)
		}
		abs = filepath.Join(wd, abs)
	}
	abs = filepath.Clean(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionFilesystem,
			fmt.Sprintf("source path %s: %v", abs, err), err).
			WithDetail("path", abs)
	}
	if !info.IsDir() {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionFilesystem,
			fmt.Sprintf("source path %s is not a directory", abs), nil).
			WithDetail("path", abs)
	}

	gitURL := originURL(abs)
	if gitURL == "" {
		gitURL = "file://" + filepath.ToSlash(abs)
	}

	observe.emit(StepAcquired)
	return &Resolved{Handle: Handle{Location: abs, SourceID: req.SourceID(), GitURL: gitURL}}, nil
}
