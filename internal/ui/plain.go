package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/repoindex/internal/progress"
)

// PlainRenderer prints a line whenever the phase changes or the
// percentage crosses a multiple of ten.
type PlainRenderer struct {
	mu         sync.Mutex
	out        io.Writer
	lastPhase  progress.Phase
	lastDecile int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, lastDecile: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// Update implements Renderer.
func (r *PlainRenderer) Update(s progress.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	decile := int(s.ProgressPercentage / 10)
	if s.CurrentPhase == r.lastPhase && decile == r.lastDecile {
		return
	}
	r.lastPhase, r.lastDecile = s.CurrentPhase, decile

	icon := StepOf(s.CurrentPhase).Icon()
	if s.CurrentPhase == progress.PhaseIndexing && s.TotalFiles > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %3.0f%% %d/%d %s\n",
			icon, s.ProgressPercentage, s.ProcessedFiles, s.TotalFiles, s.CurrentFile)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %3.0f%% %s\n", icon, s.ProgressPercentage, s.StatusMsg)
}

// Finish implements Renderer.
func (r *PlainRenderer) Finish(s progress.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Status == progress.StatusFailed {
		_, _ = fmt.Fprintf(r.out, "Failed: %s\n", s.StatusMsg)
		return
	}
	if st := s.IndexStats; st != nil {
		d := time.Duration(st.DurationMs) * time.Millisecond
		_, _ = fmt.Fprintf(r.out, "Completed: %d files, %d chunks updated in %s\n",
			st.TotalFiles, st.UpdatedChunks, d.Round(10*time.Millisecond))
		return
	}
	_, _ = fmt.Fprintln(r.out, "Completed")
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
