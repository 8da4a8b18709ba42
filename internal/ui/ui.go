// Package ui renders build progress in the terminal: a bubbletea view for
// interactive sessions and one line per step for pipes and CI.
package ui

import (
	"context"
	"io"
	"os"

	"github.com/Aman-CERP/repoindex/internal/progress"
	"github.com/mattn/go-isatty"
)

// Step is the coarse pipeline step shown to the user.
type Step int

const (
	StepFetch Step = iota
	StepEmbed
	StepIndex
	StepDone
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepFetch:
		return "Fetch"
	case StepEmbed:
		return "Embed"
	case StepIndex:
		return "Index"
	case StepDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Icon returns the tag printed by the plain renderer.
func (s Step) Icon() string {
	switch s {
	case StepFetch:
		return "FETCH"
	case StepEmbed:
		return "EMBED"
	case StepIndex:
		return "INDEX"
	case StepDone:
		return "DONE"
	default:
		return "???"
	}
}

// StepOf maps a snapshot phase onto its step.
func StepOf(p progress.Phase) Step {
	switch p {
	case progress.PhaseEmbeddingInit, progress.PhaseEmbeddingDone:
		return StepEmbed
	case progress.PhaseIndexing:
		return StepIndex
	case progress.PhaseCompleted:
		return StepDone
	default:
		return StepFetch
	}
}

// Renderer displays the snapshots of one build.
type Renderer interface {
	Start(ctx context.Context) error
	// Update shows a non-terminal snapshot.
	Update(s progress.Snapshot)
	// Finish shows the terminal snapshot.
	Finish(s progress.Snapshot)
	Stop() error
}

// Config configures the renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Source is shown in the TUI header.
	Source string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithSource sets the source shown in the header.
func WithSource(src string) ConfigOption {
	return func(c *Config) {
		c.Source = src
	}
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI for interactive terminals and the plain
// renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// Follow renders every snapshot of events until the channel closes and
// returns the last one. ok is false when no snapshot arrived.
func Follow(ctx context.Context, r Renderer, events <-chan progress.Snapshot) (last progress.Snapshot, ok bool, err error) {
	if err := r.Start(ctx); err != nil {
		return progress.Snapshot{}, false, err
	}
	defer func() { _ = r.Stop() }()

	for s := range events {
		last, ok = s, true
		if s.Status.Terminal() {
			r.Finish(s)
		} else {
			r.Update(s)
		}
	}
	return last, ok, nil
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks if NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
