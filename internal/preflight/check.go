package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/repoindex/internal/config"
	"github.com/Aman-CERP/repoindex/internal/embed"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns PASS, WARN or FAIL.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult is the result of one check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the checks for one configuration.
type Checker struct {
	cfg         *config.Config
	lookPath    func(string) (string, error)
	newEmbedder func(context.Context, config.EmbeddingConfig) (embed.Embedder, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithLookPath replaces exec.LookPath.
func WithLookPath(f func(string) (string, error)) Option {
	return func(c *Checker) {
		c.lookPath = f
	}
}

// WithEmbedderFactory replaces embed.New.
func WithEmbedderFactory(f func(context.Context, config.EmbeddingConfig) (embed.Embedder, error)) Option {
	return func(c *Checker) {
		c.newEmbedder = f
	}
}

// New creates a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{cfg: cfg, lookPath: exec.LookPath, newEmbedder: embed.New}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	indexParent := filepath.Dir(filepath.Clean(c.cfg.Index.Dir))
	tempDir := c.cfg.Source.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return []CheckResult{
		c.CheckWritable("index_dir", indexParent, true),
		c.CheckDiskSpace("index_disk_space", indexParent, MinIndexDiskBytes, true),
		c.CheckWritable("temp_dir", tempDir, false),
		c.CheckDiskSpace("temp_disk_space", tempDir, MinTempDiskBytes, false),
		c.CheckGit(),
		c.CheckEmbedder(ctx),
		c.CheckFileDescriptors(),
	}
}

// CheckWritable creates dir when missing and writes a probe file into it.
func (c *Checker) CheckWritable(name, dir string, required bool) CheckResult {
	r := CheckResult{Name: name, Required: required, Details: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status = failOrWarn(required)
		r.Message = fmt.Sprintf("cannot create directory: %v", err)
		return r
	}
	f, err := os.CreateTemp(dir, ".repoindex-preflight-*")
	if err != nil {
		r.Status = failOrWarn(required)
		r.Message = fmt.Sprintf("not writable: %v", err)
		return r
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	r.Status = StatusPass
	r.Message = "writable"
	return r
}

// CheckGit verifies the git binary when the exec backend is configured.
func (c *Checker) CheckGit() CheckResult {
	r := CheckResult{Name: "git", Required: true}
	if c.cfg.Source.GitBackend == config.GitBackendGoGit {
		r.Status = StatusPass
		r.Message = "built-in go-git backend"
		return r
	}
	path, err := c.lookPath("git")
	if err != nil {
		r.Status = StatusFail
		r.Message = "git not found in PATH"
		r.Details = "Install git or set source.git_backend to go-git"
		return r
	}
	r.Status = StatusPass
	r.Message = path
	return r
}

// CheckEmbedder creates the configured embedder and embeds a probe text.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	r := CheckResult{Name: "embedder", Required: true}
	e, err := c.newEmbedder(ctx, c.cfg.Embedding)
	if err != nil {
		r.Status = StatusFail
		r.Message = err.Error()
		if c.cfg.Embedding.Provider != embed.ProviderStatic {
			r.Details = "Set embedding.provider to static to index without a model server"
		}
		return r
	}
	defer func() { _ = e.Close() }()

	if _, err := e.Embed(ctx, "func main() {}"); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("embedding failed: %v", err)
		return r
	}
	r.Status = StatusPass
	r.Message = fmt.Sprintf("%s (%d dimensions)", e.ModelName(), e.Dimensions())
	return r
}

func failOrWarn(required bool) CheckStatus {
	if required {
		return StatusFail
	}
	return StatusWarn
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus condenses results into ready, ready_with_warnings or
// failed.
func SummaryStatus(results []CheckResult) string {
	warn := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warn = true
		}
	}
	if warn {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes one line per check followed by the summary.
func PrintResults(w io.Writer, results []CheckResult, verbose bool) {
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(w, "       %s\n", r.Details)
		}
	}
	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(SummaryStatus(results)))
}
